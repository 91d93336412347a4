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

// Package track writes signal tracks, one value per genomic interval, as
// bedGraph text or as bigWig.
package track

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Format is the on-disk encoding of a track.
type Format int

const (
	// FormatBedGraph is plain-text bedGraph: one
	// "chrom<TAB>start<TAB>end<TAB>value" line per interval, 0-based
	// half-open.
	FormatBedGraph Format = iota
	// FormatBedGraphBGZF is bedGraph compressed with bgzf, readable by gzip
	// and indexable by tabix.
	FormatBedGraphBGZF
	// FormatBigWig is the indexed binary bigWig format.
	FormatBigWig
)

// String implements fmt.Stringer.
func (f Format) String() string {
	switch f {
	case FormatBedGraph:
		return "bedgraph"
	case FormatBedGraphBGZF:
		return "bedgraph-bgz"
	case FormatBigWig:
		return "bigwig"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat parses the output of Format.String.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "bedgraph":
		return FormatBedGraph, nil
	case "bedgraph-bgz":
		return FormatBedGraphBGZF, nil
	case "bigwig", "bw":
		return FormatBigWig, nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown output format %q, must be one of bigwig, bedgraph, bedgraph-bgz", s))
}

// Record is one interval of a track.
type Record struct {
	RefName string
	Start   int
	End     int
	Value   float64
	// Missing marks an interval without a value.  Such records are not
	// written; they are gaps in the output.
	Missing bool
}

// Opts configures NewWriter.
type Opts struct {
	// Parallelism bounds the compression goroutines of FormatBedGraphBGZF.
	Parallelism int
	// BinLength is the step of FormatBigWig.  Values are stored per
	// BinLength-sized step counted from position 0 of each reference.
	BinLength int
	// Header lists the references and their lengths.  FormatBigWig needs it.
	Header *sam.Header
}

// Writer writes Records to a file.  It is not thread safe.  Exactly one of
// Close or Discard must be called.
type Writer interface {
	// Write appends r.  Records of one reference must be in position order.
	Write(r Record) error
	// Close commits the file to its path.  If Close fails, nothing is left
	// at the path.
	Close() error
	// Discard abandons the file.
	Discard()
}

// NewWriter creates path and returns a Writer for it.
func NewWriter(ctx context.Context, path string, format Format, opts Opts) (Writer, error) {
	switch format {
	case FormatBedGraph, FormatBedGraphBGZF:
		return newBedGraphWriter(ctx, path, format == FormatBedGraphBGZF, opts.Parallelism)
	case FormatBigWig:
		return newBigWigWriter(ctx, path, opts)
	}
	return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown output format %v", format))
}
