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
	"runtime"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/coverage/encoding/bamprovider"
	"github.com/grailbio/coverage/fragment"
	"github.com/grailbio/hts/sam"
)

// CountOpts controls Count.
type CountOpts struct {
	// Filter selects the records that are counted.
	Filter fragment.Filter
	// Fragment maps a record to its footprint.  It must be resolved (see
	// fragment.Opts.Resolve).
	Fragment fragment.Opts
	// Parallelism is the maximum number of concurrent tasks.  If <= 0,
	// runtime.NumCPU() is used.
	Parallelism int
	// ChunkBins is the maximum number of bins handled by one task.
	ChunkBins int
	// SkipZeros drops the bins that are zero in every sample.
	SkipZeros bool
	Verbose   bool
}

// DefaultCountOpts sets the default values of CountOpts.
var DefaultCountOpts = CountOpts{
	Filter:    fragment.Filter{FlagExclude: sam.Unmapped},
	ChunkBins: 2000,
}

// Records scanned between two cancellation checks.
const ctxCheckInterval = 4096

// A bin starting more than this many bin lengths past the end of the current
// chunk starts a new chunk.
const maxChunkGapBins = 4

// chunk is a run of consecutive bins on one reference, counted by one task
// per sample.
type chunk struct {
	refName     string
	start, end  int // union of the bin intervals
	first, last int // bins[first:last]
}

func makeChunks(bins []Bin, maxBins int) []chunk {
	var chunks []chunk
	for i, b := range bins {
		if n := len(chunks); n > 0 {
			c := &chunks[n-1]
			near := b.Start-c.end <= maxChunkGapBins*(b.End-b.Start)
			if c.refName == b.RefName && i-c.first < maxBins && near {
				c.last = i + 1
				if b.Start < c.start {
					c.start = b.Start
				}
				if b.End > c.end {
					c.end = b.End
				}
				continue
			}
		}
		chunks = append(chunks, chunk{refName: b.RefName, start: b.Start, end: b.End, first: i, last: i + 1})
	}
	return chunks
}

// Count counts, for every bin and provider, the footprints that overlap the
// bin.  A footprint spanning several bins adds one to each of them.  The
// result does not depend on opts.Parallelism.
//
// Count fails with errors.Precondition if fewer than two bins end up with a
// nonzero count.
func Count(ctx context.Context, providers []bamprovider.Provider, bins []Bin, opts CountOpts) (*Matrix, error) {
	if len(providers) == 0 {
		return nil, errors.E(errors.Invalid, "coverage.Count: no input files")
	}
	if len(bins) == 0 {
		return nil, errors.E(errors.Precondition, "coverage.Count: no bins to count")
	}
	if err := opts.Fragment.Validate(); err != nil {
		return nil, err
	}
	if opts.Fragment.NeedsStats() {
		return nil, errors.E(errors.Invalid, "coverage.Count: fragment length is not resolved")
	}
	chunkBins := opts.ChunkBins
	if chunkBins <= 0 {
		chunkBins = DefaultCountOpts.ChunkBins
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	headers := make([]*sam.Header, len(providers))
	for i, p := range providers {
		h, err := p.GetHeader()
		if err != nil {
			return nil, err
		}
		headers[i] = h
	}

	chunks := makeChunks(bins, chunkBins)
	nSamples := len(providers)
	results := make([][]float64, len(chunks)*nSamples)
	if opts.Verbose {
		log.Printf("coverage.Count: %d bins, %d samples, %d tasks, parallelism %d",
			len(bins), nSamples, len(results), parallelism)
	}
	err := traverse.T{Limit: parallelism}.Each(len(results), func(task int) error {
		c := &chunks[task/nSamples]
		sample := task % nSamples
		counts, err := countChunk(ctx, providers[sample], headers[sample], c, bins[c.first:c.last], &opts)
		if err != nil {
			return err
		}
		results[task] = counts
		return nil
	})
	if err != nil {
		return nil, err
	}

	m := NewMatrix(bins, nSamples)
	for ci, c := range chunks {
		for s := 0; s < nSamples; s++ {
			for j, v := range results[ci*nSamples+s] {
				m.Counts.Set(c.first+j, s, v)
			}
		}
	}
	if opts.SkipZeros {
		m.DropZeroRows()
		if opts.Verbose {
			log.Printf("coverage.Count: %d of %d bins are nonzero", len(m.Bins), len(bins))
		}
	}
	if n := m.NonZeroRows(); n < 2 {
		return nil, errors.E(errors.Precondition,
			fmt.Sprintf("too few non zero bins found (%d); if using a BED file, check that the chromosome names match the BAM file", n))
	}
	return m, nil
}

// countChunk counts the footprints of one sample over the bins of one chunk.
func countChunk(ctx context.Context, p bamprovider.Provider, header *sam.Header, c *chunk, bins []Bin, opts *CountOpts) ([]float64, error) {
	counts := make([]float64, len(bins))
	ref := bamprovider.RefByName(header, c.refName)
	if ref == nil {
		// The reference is absent from this sample.
		return counts, nil
	}
	pad := opts.Fragment.Padding()
	region := bamprovider.Region{Ref: ref, Start: c.start - pad, End: c.end + pad}
	if region.Start < 0 {
		region.Start = 0
	}
	index := newBinIndex(bins)
	incr := func(i int) { counts[i]++ }
	iter := p.NewIterator(region)
	n := 0
	for iter.Scan() {
		r := iter.Record()
		if opts.Filter.Pass(r) {
			if iv, ok := fragment.Footprint(r, &opts.Fragment); ok {
				index.each(iv, incr)
			}
		}
		sam.PutInFreePool(r)
		if n++; n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				iter.Close() // nolint: errcheck
				return nil, err
			}
		}
	}
	if err := iter.Close(); err != nil {
		return nil, errors.E(err, fmt.Sprintf("coverage.Count: reading %v", region))
	}
	return counts, ctx.Err()
}
