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
	"sort"

	"github.com/biogo/store/interval"
	"github.com/grailbio/coverage/fragment"
)

// binIndex finds the bins of one chunk that overlap a footprint.
type binIndex interface {
	// each calls fn with the chunk-relative index of every bin overlapping iv.
	each(iv fragment.Interval, fn func(i int))
}

// newBinIndex picks binary search when the bins are sorted and disjoint, and
// an interval tree otherwise.
func newBinIndex(bins []Bin) binIndex {
	for i := 1; i < len(bins); i++ {
		if bins[i].Start < bins[i-1].End {
			return newTreeIndex(bins)
		}
	}
	return sortedIndex(bins)
}

type sortedIndex []Bin

func (s sortedIndex) each(iv fragment.Interval, fn func(i int)) {
	i := sort.Search(len(s), func(i int) bool { return s[i].End > iv.Start })
	for ; i < len(s) && s[i].Start < iv.End; i++ {
		fn(i)
	}
}

// binInterval adapts a bin to interval.IntInterface.  The id is the bin's
// index within its chunk.
type binInterval struct {
	start, end int
	id         uintptr
}

func (b binInterval) Overlap(r interval.IntRange) bool { return b.end > r.Start && b.start < r.End }
func (b binInterval) ID() uintptr                       { return b.id }
func (b binInterval) Range() interval.IntRange {
	return interval.IntRange{Start: b.start, End: b.end}
}

type treeIndex struct {
	tree interval.IntTree
}

func newTreeIndex(bins []Bin) *treeIndex {
	t := &treeIndex{}
	for i, b := range bins {
		if err := t.tree.Insert(binInterval{start: b.Start, end: b.End, id: uintptr(i)}, true); err != nil {
			// Bins always have positive length.
			panic(err)
		}
	}
	t.tree.AdjustRanges()
	return t
}

func (t *treeIndex) each(iv fragment.Interval, fn func(i int)) {
	for _, e := range t.tree.Get(binInterval{start: iv.Start, end: iv.End}) {
		fn(int(e.ID()))
	}
}
