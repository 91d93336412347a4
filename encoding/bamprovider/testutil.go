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

package bamprovider

import (
	"bytes"
	"io"
	"os"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// NewTestRecord creates a mapped record of readLen aligned bases, for use in
// tests. Paired records get a mate on the same reference.
func NewTestRecord(name string, ref *sam.Reference, pos, readLen int, flags sam.Flags, tempLen int) *sam.Record {
	r := sam.GetFromFreePool()
	r.Name = name
	r.Ref = ref
	r.Pos = pos
	r.MapQ = 60
	r.Flags = flags
	r.Cigar = sam.Cigar{sam.NewCigarOp(sam.CigarMatch, readLen)}
	r.Seq = sam.NewSeq(bytes.Repeat([]byte{'A'}, readLen))
	r.Qual = bytes.Repeat([]byte{30}, readLen)
	r.MateRef = nil
	r.MatePos = -1
	r.TempLen = tempLen
	if flags&sam.Paired != 0 {
		r.MateRef = ref
		r.MatePos = pos + tempLen - readLen
		if tempLen < 0 {
			r.MatePos = pos + tempLen + readLen
		}
	}
	return r
}

// WriteTestBAM writes recs, which must be coordinate sorted, to a BAM file at
// path, and a matching index at path + ".bai".
func WriteTestBAM(path string, header *sam.Header, recs []*sam.Record) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	w, err := bam.NewWriter(out, header, 1)
	if err != nil {
		out.Close() // nolint: errcheck
		return err
	}
	for _, r := range recs {
		if err = w.Write(r); err != nil {
			w.Close()   // nolint: errcheck
			out.Close() // nolint: errcheck
			return err
		}
	}
	if err = w.Close(); err != nil {
		out.Close() // nolint: errcheck
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return writeTestIndex(path)
}

func writeTestIndex(path string) (err error) {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if e := in.Close(); e != nil && err == nil {
			err = e
		}
	}()
	reader, err := bam.NewReader(in, 1)
	if err != nil {
		return err
	}
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	var idx bam.Index
	for {
		r, e := reader.Read()
		if e == io.EOF {
			break
		}
		if e != nil {
			return e
		}
		if err = idx.Add(r, reader.LastChunk()); err != nil {
			return err
		}
	}
	out, err := os.Create(path + ".bai")
	if err != nil {
		return err
	}
	if err = bam.WriteIndex(out, &idx); err != nil {
		out.Close() // nolint: errcheck
		return err
	}
	return out.Close()
}
