// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package track

import (
	"context"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
)

type bedGraphWriter struct {
	ctx  context.Context
	out  file.File
	bgzw *bgzf.Writer
	w    *tsv.Writer
}

func newBedGraphWriter(ctx context.Context, path string, compress bool, parallelism int) (*bedGraphWriter, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	w := &bedGraphWriter{ctx: ctx, out: out}
	if compress {
		if parallelism <= 0 {
			parallelism = 1
		}
		w.bgzw = bgzf.NewWriter(out.Writer(ctx), parallelism)
		w.w = tsv.NewWriter(w.bgzw)
	} else {
		w.w = tsv.NewWriter(out.Writer(ctx))
	}
	return w, nil
}

// Write implements Writer.
func (w *bedGraphWriter) Write(r Record) error {
	if r.Missing {
		return nil
	}
	w.w.WriteString(r.RefName)
	w.w.WriteUint32(uint32(r.Start))
	w.w.WriteUint32(uint32(r.End))
	w.w.WriteFloat64(r.Value, 'g', -1)
	return w.w.EndLine()
}

// Close implements Writer.
func (w *bedGraphWriter) Close() error {
	err := w.w.Flush()
	if w.bgzw != nil {
		if e := w.bgzw.Close(); e != nil && err == nil {
			err = e
		}
		w.bgzw = nil
	}
	if err != nil {
		w.out.Discard(w.ctx)
		return err
	}
	return w.out.Close(w.ctx)
}

// Discard implements Writer.
func (w *bedGraphWriter) Discard() {
	if w.bgzw != nil {
		w.bgzw.Close() // nolint: errcheck
	}
	w.out.Discard(w.ctx)
}
