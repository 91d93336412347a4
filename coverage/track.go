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

package coverage

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/coverage/encoding/track"
)

// TrackOpts controls AssembleTrack.
type TrackOpts struct {
	// Sample is the matrix column to assemble.
	Sample int
	// ScaleFactor multiplies every count.
	ScaleFactor float64
	// BinLength is the bin length the matrix was counted with.
	BinLength int
	// SmoothLength, if larger than BinLength, replaces every bin by the mean
	// of the SmoothLength/BinLength (rounded up to odd) bins centered on it.
	SmoothLength int
	// KeepZeros writes zero bins as zero instead of leaving them out.
	KeepZeros bool
	Verbose   bool
}

// smoothingWindow returns the number of bins averaged by smoothing, or 0 if
// smoothing is off.
func smoothingWindow(opts *TrackOpts) int {
	if opts.SmoothLength <= 0 {
		return 0
	}
	if opts.BinLength <= 0 || opts.SmoothLength <= opts.BinLength {
		log.Printf("coverage.AssembleTrack: warning: smooth length %d is not larger than the bin length %d, no smoothing is done",
			opts.SmoothLength, opts.BinLength)
		return 0
	}
	n := opts.SmoothLength / opts.BinLength
	if n%2 == 0 {
		n++
	}
	return n
}

// smooth replaces v[i] by the mean of v[i-w/2 : i+w/2+1], truncated at both
// ends of v.
func smooth(v []float64, w int) []float64 {
	half := w / 2
	out := make([]float64, len(v))
	for i := range v {
		lo, hi := i-half, i+half+1
		if lo < 0 {
			lo = 0
		}
		if hi > len(v) {
			hi = len(v)
		}
		sum := 0.0
		for _, x := range v[lo:hi] {
			sum += x
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

// AssembleTrack turns one sample of m into track records.  Counts are scaled
// and optionally smoothed within each reference.  Zero bins become missing
// unless opts.KeepZeros is set.  Finally, adjacent bins with equal values on
// the same reference are merged.
func AssembleTrack(m *Matrix, opts TrackOpts) ([]track.Record, error) {
	if opts.Sample < 0 || opts.Sample >= m.NumSamples() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("coverage.AssembleTrack: sample %d out of range [0,%d)", opts.Sample, m.NumSamples()))
	}
	if opts.ScaleFactor <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("coverage.AssembleTrack: scale factor must be positive, got %v", opts.ScaleFactor))
	}
	values := m.Column(opts.Sample)
	for i := range values {
		values[i] *= opts.ScaleFactor
	}
	if w := smoothingWindow(&opts); w > 1 {
		// Smooth each run of bins on one reference separately.
		for start := 0; start < len(values); {
			end := start + 1
			for end < len(values) && m.Bins[end].RefName == m.Bins[start].RefName {
				end++
			}
			copy(values[start:end], smooth(values[start:end], w))
			start = end
		}
	}

	var recs []track.Record
	for i, b := range m.Bins {
		r := track.Record{RefName: b.RefName, Start: b.Start, End: b.End, Value: values[i]}
		if r.Value == 0 && !opts.KeepZeros {
			r.Value, r.Missing = 0, true
		}
		if n := len(recs); n > 0 {
			prev := &recs[n-1]
			if prev.RefName == r.RefName && prev.End == r.Start && prev.Missing == r.Missing && prev.Value == r.Value {
				prev.End = r.End
				continue
			}
		}
		recs = append(recs, r)
	}
	if opts.Verbose {
		log.Printf("coverage.AssembleTrack: %d bins merged into %d intervals", len(m.Bins), len(recs))
	}
	return recs, nil
}

// WriteTrack writes recs to path.  Missing records are left out.  On error,
// nothing is left at path.
func WriteTrack(ctx context.Context, path string, format track.Format, opts track.Opts, recs []track.Record) error {
	w, err := track.NewWriter(ctx, path, format, opts)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := w.Write(r); err != nil {
			w.Discard()
			return err
		}
	}
	return w.Close()
}
