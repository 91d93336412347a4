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

package fragment

import (
	"context"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/coverage/encoding/bamprovider"
	"github.com/grailbio/hts/sam"
	"gonum.org/v1/gonum/stat"
)

// LengthStats summarizes the read and fragment lengths seen in a sample of
// the input.
type LengthStats struct {
	// ReadLength is the median aligned read length.
	ReadLength int
	// MeanReadLength is the mean aligned read length.
	MeanReadLength float64
	// FragmentLength is the median template length of proper pairs.  Only
	// meaningful if HasFragments is set.
	FragmentLength int
	// MeanFragmentLength is the mean template length of proper pairs.
	MeanFragmentLength float64
	// HasFragments is false when no proper pair was sampled, i.e. the library
	// looks single-end.
	HasFragments bool
	NumReads     int
	NumFragments int
}

// EstimateOpts controls EstimateLengths.
type EstimateOpts struct {
	// Filter is applied to the sampled records.
	Filter Filter
	// Parallelism bounds the number of concurrently scanned windows.
	Parallelism int
	// NumWindows is the number of evenly spaced windows sampled across the
	// genome.
	NumWindows int
	// WindowLength is the length of each sampled window.
	WindowLength int
	// MaxReadsPerWindow stops a window scan early.
	MaxReadsPerWindow int
	Verbose           bool
}

// DefaultEstimateOpts is the default for EstimateOpts.
var DefaultEstimateOpts = EstimateOpts{
	Parallelism:       1,
	NumWindows:        200,
	WindowLength:      50000,
	MaxReadsPerWindow: 5000,
}

type window struct {
	region bamprovider.Region
	reads  []float64
	frags  []float64
}

// sampleWindows spreads n windows of the given length evenly across the
// references in header.  Windows never span two references.
func sampleWindows(header *sam.Header, n, length int) []window {
	var genomeLen int64
	for _, ref := range header.Refs() {
		genomeLen += int64(ref.Len())
	}
	if n <= 0 || genomeLen == 0 {
		return nil
	}
	step := genomeLen / int64(n)
	if step < int64(length) {
		step = int64(length)
	}
	var windows []window
	for _, ref := range header.Refs() {
		refLen := int64(ref.Len())
		for pos := int64(0); pos < refLen; pos += step {
			end := pos + int64(length)
			if end > refLen {
				end = refLen
			}
			windows = append(windows, window{region: bamprovider.Region{Ref: ref, Start: int(pos), End: int(end)}})
		}
	}
	return windows
}

// EstimateLengths samples read and fragment lengths from p.  Fragment lengths
// are taken from the positive template length of proper pairs, so every pair
// is seen once.  Each window is scanned by its own iterator.
func EstimateLengths(ctx context.Context, p bamprovider.Provider, opts EstimateOpts) (*LengthStats, error) {
	header, err := p.GetHeader()
	if err != nil {
		return nil, err
	}
	windows := sampleWindows(header, opts.NumWindows, opts.WindowLength)
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	err = traverse.T{Limit: parallelism}.Each(len(windows), func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := &windows[i]
		iter := p.NewIterator(w.region)
		for iter.Scan() {
			r := iter.Record()
			// Records starting before the window belong to an earlier one.
			if r.Pos >= w.region.Start && opts.Filter.Pass(r) {
				w.reads = append(w.reads, float64(r.End()-r.Pos))
				if r.Flags&sam.ProperPair != 0 && r.TempLen > 0 {
					w.frags = append(w.frags, float64(r.TempLen))
				}
			}
			sam.PutInFreePool(r)
			if opts.MaxReadsPerWindow > 0 && len(w.reads) >= opts.MaxReadsPerWindow {
				break
			}
		}
		return iter.Close()
	})
	if err != nil {
		return nil, err
	}
	var reads, frags []float64
	for _, w := range windows {
		reads = append(reads, w.reads...)
		frags = append(frags, w.frags...)
	}
	stats := &LengthStats{NumReads: len(reads), NumFragments: len(frags)}
	if len(reads) > 0 {
		sort.Float64s(reads)
		stats.ReadLength = int(stat.Quantile(0.5, stat.Empirical, reads, nil))
		stats.MeanReadLength = stat.Mean(reads, nil)
	}
	if len(frags) > 0 {
		sort.Float64s(frags)
		stats.HasFragments = true
		stats.FragmentLength = int(stat.Quantile(0.5, stat.Empirical, frags, nil))
		stats.MeanFragmentLength = stat.Mean(frags, nil)
	}
	if opts.Verbose {
		log.Printf("fragment.EstimateLengths: %d windows, %d reads (median length %d), %d fragments (median length %d)",
			len(windows), stats.NumReads, stats.ReadLength, stats.NumFragments, stats.FragmentLength)
	}
	return stats, nil
}
