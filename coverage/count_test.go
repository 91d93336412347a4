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
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/coverage/encoding/bamprovider"
	"github.com/grailbio/coverage/fragment"
	"github.com/grailbio/coverage/interval"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	status := m.Run()
	shutdown()
	os.Exit(status)
}

func newTestHeader(t *testing.T) (*sam.Header, *sam.Reference, *sam.Reference) {
	chr1, err := sam.NewReference("chr1", "", "", 1000, nil, nil)
	require.NoError(t, err)
	chr2, err := sam.NewReference("chr2", "", "", 500, nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
	require.NoError(t, err)
	return header, chr1, chr2
}

// binIndexOf returns the position of the bin starting at start on refName.
func binIndexOf(t *testing.T, bins []Bin, refName string, start int) int {
	for i, b := range bins {
		if b.RefName == refName && b.Start == start {
			return i
		}
	}
	t.Fatalf("no bin %s:%d", refName, start)
	return -1
}

func testCountOpts() CountOpts {
	opts := DefaultCountOpts
	opts.Filter.IgnoreDuplicates = true
	return opts
}

func TestMakeChunks(t *testing.T) {
	header, _, _ := newTestHeader(t)
	bins, err := Partition(header, PartitionOpts{BinLength: 100})
	require.NoError(t, err)
	chunks := makeChunks(bins, 4)
	// chr1: 10 bins -> 4+4+2, chr2: 5 bins -> 4+1.
	require.Len(t, chunks, 5)
	assert.Equal(t, chunk{refName: "chr1", start: 0, end: 400, first: 0, last: 4}, chunks[0])
	assert.Equal(t, chunk{refName: "chr1", start: 800, end: 1000, first: 8, last: 10}, chunks[2])
	assert.Equal(t, chunk{refName: "chr2", start: 0, end: 400, first: 10, last: 14}, chunks[3])
	assert.Equal(t, chunk{refName: "chr2", start: 400, end: 500, first: 14, last: 15}, chunks[4])

	// Sparse bins, as from a BED file of peaks, are not merged into one
	// long query.
	sparse := []Bin{
		{RefName: "chr1", Start: 0, End: 10},
		{RefName: "chr1", Start: 30, End: 40},
		{RefName: "chr1", Start: 5000, End: 5010},
		{RefName: "chr1", Start: 4990, End: 5020},
		{RefName: "chr1", Start: 900000, End: 900010},
	}
	assert.Equal(t, []chunk{
		{refName: "chr1", start: 0, end: 40, first: 0, last: 2},
		{refName: "chr1", start: 4990, end: 5020, first: 2, last: 4},
		{refName: "chr1", start: 900000, end: 900010, first: 4, last: 5},
	}, makeChunks(sparse, 2000))
}

func TestBinIndex(t *testing.T) {
	sorted := []Bin{{Start: 0, End: 50}, {Start: 50, End: 100}, {Start: 150, End: 200}}
	unsorted := []Bin{{Start: 100, End: 200}, {Start: 0, End: 1000}, {Start: 150, End: 250}}
	_, ok := newBinIndex(sorted).(sortedIndex)
	assert.True(t, ok)
	_, ok = newBinIndex(unsorted).(*treeIndex)
	assert.True(t, ok)

	tests := []struct {
		bins []Bin
		iv   fragment.Interval
		want []int
	}{
		{sorted, fragment.Interval{Start: 40, End: 60}, []int{0, 1}},
		{sorted, fragment.Interval{Start: 100, End: 150}, nil},
		{sorted, fragment.Interval{Start: 99, End: 151}, []int{1, 2}},
		{sorted, fragment.Interval{Start: 500, End: 600}, nil},
		{unsorted, fragment.Interval{Start: 160, End: 170}, []int{0, 1, 2}},
		{unsorted, fragment.Interval{Start: 900, End: 910}, []int{1}},
		{unsorted, fragment.Interval{Start: 200, End: 210}, []int{1, 2}},
	}
	for _, test := range tests {
		counts := make([]int, len(test.bins))
		newBinIndex(test.bins).each(test.iv, func(i int) { counts[i]++ })
		var got []int
		for i, c := range counts {
			require.True(t, c <= 1)
			if c == 1 {
				got = append(got, i)
			}
		}
		assert.Equal(t, test.want, got, "%+v", test.iv)
	}
}

func newTestSamples(chr1, chr2 *sam.Reference) (a, b []*sam.Record) {
	a = []*sam.Record{
		bamprovider.NewTestRecord("a1", chr1, 100, 40, 0, 0),
		bamprovider.NewTestRecord("a2", chr1, 140, 20, sam.Reverse, 0),
		bamprovider.NewTestRecord("a3", chr1, 500, 30, sam.Duplicate, 0),
		bamprovider.NewTestRecord("a4", chr2, 0, 10, 0, 0),
	}
	b = []*sam.Record{
		bamprovider.NewTestRecord("b1", chr1, 120, 10, 0, 0),
		bamprovider.NewTestRecord("b2", chr2, 460, 30, 0, 0),
	}
	return
}

func TestCount(t *testing.T) {
	header, chr1, chr2 := newTestHeader(t)
	a, b := newTestSamples(chr1, chr2)
	providers := []bamprovider.Provider{
		bamprovider.NewFakeProvider(header, a),
		bamprovider.NewFakeProvider(header, b),
	}
	bins, err := Partition(header, PartitionOpts{BinLength: 50})
	require.NoError(t, err)
	require.Len(t, bins, 30)

	var ref *mat.Dense
	for _, c := range []struct{ parallelism, chunkBins int }{{1, 1}, {1, 1000}, {8, 3}, {3, 7}} {
		opts := testCountOpts()
		opts.Parallelism = c.parallelism
		opts.ChunkBins = c.chunkBins
		m, err := Count(context.Background(), providers, bins, opts)
		require.NoError(t, err)
		assert.Equal(t, 2, m.NumSamples())
		assert.Equal(t, bins, m.Bins)
		if ref == nil {
			ref = m.Counts
			continue
		}
		assert.True(t, mat.Equal(ref, m.Counts), "parallelism %d, chunk %d", c.parallelism, c.chunkBins)
	}
	at := func(refName string, start, sample int) float64 {
		return ref.At(binIndexOf(t, bins, refName, start), sample)
	}
	// a1 [100,140) and the straddling a2 [140,160).
	assert.Equal(t, 2.0, at("chr1", 100, 0))
	assert.Equal(t, 1.0, at("chr1", 150, 0))
	// a3 is a duplicate.
	assert.Equal(t, 0.0, at("chr1", 500, 0))
	assert.Equal(t, 1.0, at("chr2", 0, 0))
	assert.Equal(t, 1.0, at("chr1", 100, 1))
	assert.Equal(t, 0.0, at("chr1", 150, 1))
	assert.Equal(t, 1.0, at("chr2", 450, 1))
	assert.Equal(t, 6.0, mat.Sum(ref))
}

func TestCountExtension(t *testing.T) {
	header, chr1, _ := newTestHeader(t)
	recs := []*sam.Record{
		// [100,220)
		bamprovider.NewTestRecord("f", chr1, 100, 10, 0, 0),
		// [290,410)
		bamprovider.NewTestRecord("r", chr1, 400, 10, sam.Reverse, 0),
	}
	bins, err := Partition(header, PartitionOpts{BinLength: 50})
	require.NoError(t, err)
	opts := testCountOpts()
	opts.Fragment = fragment.Opts{ExtendReads: true, ExtendLength: 120}
	opts.ChunkBins = 2
	m, err := Count(context.Background(), []bamprovider.Provider{bamprovider.NewFakeProvider(header, recs)}, bins, opts)
	require.NoError(t, err)
	want := make([]float64, len(bins))
	for _, start := range []int{100, 150, 200, 250, 300, 350, 400} {
		want[binIndexOf(t, bins, "chr1", start)] = 1
	}
	assert.Equal(t, want, m.Column(0))
}

func TestCountUnresolvedExtension(t *testing.T) {
	header, chr1, chr2 := newTestHeader(t)
	a, _ := newTestSamples(chr1, chr2)
	bins, err := Partition(header, PartitionOpts{BinLength: 50})
	require.NoError(t, err)
	opts := testCountOpts()
	opts.Fragment = fragment.Opts{ExtendReads: true}
	_, err = Count(context.Background(), []bamprovider.Provider{bamprovider.NewFakeProvider(header, a)}, bins, opts)
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)
}

func TestCountTooFewBins(t *testing.T) {
	header, chr1, _ := newTestHeader(t)
	recs := []*sam.Record{bamprovider.NewTestRecord("a1", chr1, 100, 40, 0, 0)}
	bins, err := Partition(header, PartitionOpts{BinLength: 50})
	require.NoError(t, err)
	providers := []bamprovider.Provider{
		bamprovider.NewFakeProvider(header, recs),
		bamprovider.NewFakeProvider(header, recs),
	}
	for _, skipZeros := range []bool{false, true} {
		opts := testCountOpts()
		opts.SkipZeros = skipZeros
		_, err = Count(context.Background(), providers, bins, opts)
		assert.True(t, errors.Is(errors.Precondition, err), "%v", err)
	}
}

func TestCountSkipZeros(t *testing.T) {
	header, chr1, chr2 := newTestHeader(t)
	a, b := newTestSamples(chr1, chr2)
	providers := []bamprovider.Provider{
		bamprovider.NewFakeProvider(header, a),
		bamprovider.NewFakeProvider(header, b),
	}
	bins, err := Partition(header, PartitionOpts{BinLength: 50})
	require.NoError(t, err)
	opts := testCountOpts()
	opts.SkipZeros = true
	opts.Parallelism = 4
	m, err := Count(context.Background(), providers, bins, opts)
	require.NoError(t, err)
	assert.Equal(t, []Bin{
		{RefID: 0, RefName: "chr1", Start: 100, End: 150},
		{RefID: 0, RefName: "chr1", Start: 150, End: 200},
		{RefID: 1, RefName: "chr2", Start: 0, End: 50},
		{RefID: 1, RefName: "chr2", Start: 450, End: 500},
	}, m.Bins)
	assert.Equal(t, []float64{2, 1, 1, 0}, m.Column(0))
	assert.Equal(t, []float64{1, 0, 0, 1}, m.Column(1))
}

func TestCountBEDRegions(t *testing.T) {
	header, chr1, _ := newTestHeader(t)
	recs := []*sam.Record{
		bamprovider.NewTestRecord("a", chr1, 160, 10, 0, 0),
		bamprovider.NewTestRecord("b", chr1, 900, 10, 0, 0),
	}
	bins, err := BinsFromEntries(header, []interval.Entry{
		{ChrName: "chr1", Start0: 100, End: 200},
		{ChrName: "chrX", Start0: 0, End: 100},
		{ChrName: "chr1", Start0: 0, End: 1000},
		{ChrName: "chr1", Start0: 150, End: 250},
	})
	require.NoError(t, err)
	require.Len(t, bins, 3)
	m, err := Count(context.Background(), []bamprovider.Provider{bamprovider.NewFakeProvider(header, recs)}, bins, testCountOpts())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 1}, m.Column(0))
}

func TestCountBAM(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	header, chr1, chr2 := newTestHeader(t)
	a, _ := newTestSamples(chr1, chr2)
	bamPath := filepath.Join(tmpdir, "a.bam")
	require.NoError(t, bamprovider.WriteTestBAM(bamPath, header, a))

	bins, err := Partition(header, PartitionOpts{BinLength: 50})
	require.NoError(t, err)
	opts := testCountOpts()
	opts.Parallelism = 3
	opts.ChunkBins = 4

	p := bamprovider.NewProvider(bamPath)
	got, err := Count(context.Background(), []bamprovider.Provider{p}, bins, opts)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	want, err := Count(context.Background(), []bamprovider.Provider{bamprovider.NewFakeProvider(header, a)}, bins, opts)
	require.NoError(t, err)
	assert.Equal(t, want.Column(0), got.Column(0))
}
