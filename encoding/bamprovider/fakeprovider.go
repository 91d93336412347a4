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
	"github.com/grailbio/hts/sam"
)

// fakeProvider is only for unittests. It yields the given records.
type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record
}

type fakeIterator struct {
	recs   []*sam.Record
	rec    *sam.Record
	region Region
}

// NewFakeProvider creates a provider that returns "header" in response to a
// GetHeader() call, and the subset of recs overlapping the requested region
// from NewIterator calls. recs must be sorted by (reference, position).
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	return &fakeProvider{header, recs}
}

// GetHeader implements the Provider interface. It returns the header passed to
// the constructor.
func (b *fakeProvider) GetHeader() (*sam.Header, error) {
	return b.header, nil
}

// MappedCounts implements the Provider interface.
func (b *fakeProvider) MappedCounts() ([]int64, error) {
	counts := make([]int64, len(b.header.Refs()))
	for _, r := range b.recs {
		if r.Ref == nil || r.Flags&sam.Unmapped != 0 {
			continue
		}
		counts[r.Ref.ID()]++
	}
	return counts, nil
}

// Close implements the Provider interface.
func (b *fakeProvider) Close() error {
	return nil
}

// NewIterator implements the Provider interface.
func (b *fakeProvider) NewIterator(region Region) Iterator {
	if err := checkRegion(b.header, region); err != nil {
		return &failedIterator{err: err}
	}
	return &fakeIterator{recs: b.recs, region: region}
}

// Err implements the Iterator interface.
func (i *fakeIterator) Err() error {
	return nil
}

// Close implements the Iterator interface.
func (i *fakeIterator) Close() error {
	return nil
}

func (i *fakeIterator) Scan() bool {
	for {
		if len(i.recs) == 0 {
			return false
		}
		i.rec = i.recs[0]
		i.recs = i.recs[1:]
		if i.rec.Ref == nil || i.rec.Ref.ID() != i.region.Ref.ID() {
			continue
		}
		if i.rec.Pos < i.region.End && i.rec.End() > i.region.Start {
			return true
		}
	}
}

func (i *fakeIterator) Record() *sam.Record {
	// Return a copy so that the code under test cannot alter the
	// original test input data.
	copy := sam.GetFromFreePool()
	*copy = *i.rec
	return copy
}
