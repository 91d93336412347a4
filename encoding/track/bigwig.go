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
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/sam"
	"github.com/pbenner/gonetics"
)

// bigWigWriter collects the records into one value per BinLength step and
// writes the bigWig file on Close.  Steps without a record are NaN, which the
// bigWig writer leaves out.
type bigWigWriter struct {
	ctx       context.Context
	out       file.File
	header    *sam.Header
	binLength int
	refs      map[string]*sam.Reference
	seqs      map[string][]float64
}

func newBigWigWriter(ctx context.Context, path string, opts Opts) (*bigWigWriter, error) {
	if opts.BinLength <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("bigwig: bin length must be positive, got %d", opts.BinLength))
	}
	if opts.Header == nil {
		return nil, errors.E(errors.Invalid, "bigwig: the reference lengths are required")
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	w := &bigWigWriter{
		ctx:       ctx,
		out:       out,
		header:    opts.Header,
		binLength: opts.BinLength,
		refs:      map[string]*sam.Reference{},
		seqs:      map[string][]float64{},
	}
	for _, ref := range opts.Header.Refs() {
		w.refs[ref.Name()] = ref
	}
	return w, nil
}

// Write implements Writer.  A record that does not start or end on a step
// boundary covers every step it overlaps.
func (w *bigWigWriter) Write(r Record) error {
	if r.Missing {
		return nil
	}
	seq, ok := w.seqs[r.RefName]
	if !ok {
		ref := w.refs[r.RefName]
		if ref == nil {
			return errors.E(errors.Invalid, fmt.Sprintf("bigwig: reference %q is not in the header", r.RefName))
		}
		seq = make([]float64, ref.Len()/w.binLength)
		for i := range seq {
			seq[i] = math.NaN()
		}
		w.seqs[r.RefName] = seq
	}
	hi := (r.End + w.binLength - 1) / w.binLength
	if hi > len(seq) {
		hi = len(seq)
	}
	for i := r.Start / w.binLength; i < hi; i++ {
		seq[i] = r.Value
	}
	return nil
}

// Close implements Writer.
func (w *bigWigWriter) Close() error {
	var (
		names   []string
		lengths []int
		seqs    [][]float64
	)
	for _, ref := range w.header.Refs() {
		if seq := w.seqs[ref.Name()]; len(seq) > 0 {
			names = append(names, ref.Name())
			lengths = append(lengths, ref.Len())
			seqs = append(seqs, seq)
		}
	}
	t, err := gonetics.NewSimpleTrack("", seqs, gonetics.NewGenome(names, lengths), w.binLength)
	if err == nil {
		err = w.write(t)
	}
	if err != nil {
		w.out.Discard(w.ctx)
		return errors.E(err, fmt.Sprintf("bigwig: write %s", w.out.Name()))
	}
	return w.out.Close(w.ctx)
}

// write encodes t.  The encoder seeks, so output that is not seekable is
// staged in a temporary file.
func (w *bigWigWriter) write(t gonetics.SimpleTrack) error {
	dst := w.out.Writer(w.ctx)
	if ws, ok := dst.(io.WriteSeeker); ok {
		return t.WriteBigWig(ws)
	}
	tmp, err := ioutil.TempFile("", "track_*.bw")
	if err != nil {
		return err
	}
	defer func() {
		tmp.Close()           // nolint: errcheck
		os.Remove(tmp.Name()) // nolint: errcheck
	}()
	if err := t.WriteBigWig(tmp); err != nil {
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err = io.Copy(dst, tmp)
	return err
}

// Discard implements Writer.
func (w *bigWigWriter) Discard() {
	w.out.Discard(w.ctx)
}
