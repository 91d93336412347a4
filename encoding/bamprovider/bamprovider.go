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
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// BAMProvider implements Provider for BAM files.  Both BAM and the index
// filenames are allowed to be S3 URLs, in which case the data will be read from
// S3. Otherwise the data will be read from the local filesystem.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the pathname of *.bam.bai file. If "", Path + ".bai"
	Index string
	err   errors.Once

	mu        sync.Mutex
	nActive   int
	freeIters []*bamIterator
	header    *sam.Header
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   *bam.Reader
	index    *bam.Index
	region   Region

	active bool
	err    error
	next   *sam.Record
}

func (b *BAMProvider) indexPath() string {
	index := b.Index
	if index == "" {
		index = b.Path + ".bai"
	}
	return index
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}

	ctx := vcontext.Background()
	reader, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer reader.Close(ctx)
	bamReader, err := bam.NewReader(reader.Reader(ctx), 1)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer bamReader.Close()
	b.header = bamReader.Header()
	return b.header, nil
}

// MappedCounts implements the Provider interface. The counts come from the
// per-reference statistics stored in the BAM index. If the index carries no
// statistics at all, the records are counted by scanning the file.
func (b *BAMProvider) MappedCounts() ([]int64, error) {
	header, err := b.GetHeader()
	if err != nil {
		return nil, err
	}
	ctx := vcontext.Background()
	indexIn, err := file.Open(ctx, b.indexPath())
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer indexIn.Close(ctx)
	idx, err := bam.ReadIndex(indexIn.Reader(ctx))
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	counts := make([]int64, len(header.Refs()))
	found := false
	for _, ref := range header.Refs() {
		stats, ok := idx.ReferenceStats(ref.ID())
		if !ok {
			continue
		}
		found = true
		counts[ref.ID()] = int64(stats.Mapped)
	}
	if found || len(counts) == 0 {
		return counts, nil
	}
	vlog.VI(1).Infof("%v: index has no reference statistics, counting records", b.indexPath())
	return countMapped(b, header)
}

// countMapped counts mapped records on each reference by scanning.
func countMapped(p Provider, header *sam.Header) ([]int64, error) {
	counts := make([]int64, len(header.Refs()))
	for _, ref := range header.Refs() {
		iter := p.NewIterator(Region{Ref: ref, Start: 0, End: ref.Len()})
		for iter.Scan() {
			r := iter.Record()
			if r.Flags&sam.Unmapped == 0 && r.Ref != nil && r.Ref.ID() == ref.ID() {
				counts[ref.ID()]++
			}
			sam.PutInFreePool(r)
		}
		if err := iter.Close(); err != nil {
			return nil, err
		}
	}
	return counts, nil
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	if b.nActive > 0 {
		vlog.Fatalf("%d iterators still active for %+v", b.nActive, b)
	}
	for _, iter := range b.freeIters {
		iter.internalClose()
	}
	b.freeIters = nil
	return b.err.Err()
}

func (b *BAMProvider) freeIterator(i *bamIterator) {
	if !i.active {
		vlog.Fatal(i)
	}
	i.active = false
	if i.Err() != nil || i.reader == nil {
		// The iter may be invalid. Don't reuse it.
		i.internalClose() // Will set b.err
		i = nil
	}
	b.mu.Lock()
	if i != nil {
		b.freeIters = append(b.freeIters, i)
	}
	b.nActive--
	if b.nActive < 0 {
		vlog.Fatalf("Negative active count for %+v", b)
	}
	b.mu.Unlock()
}

// Return an unused iterator. If b.freeIters is nonempty, this function returns
// one from freeIters. Else, it opens the BAM file, creates a BAM reader and
// returns an iterator containing them. On error, returns an iterator with
// non-nil err field.
func (b *BAMProvider) allocateIterator() *bamIterator {
	b.mu.Lock()
	b.nActive++
	if len(b.freeIters) > 0 {
		iter := b.freeIters[len(b.freeIters)-1]
		iter.active = true
		iter.err = nil
		iter.next = nil
		b.freeIters = b.freeIters[:len(b.freeIters)-1]
		b.mu.Unlock()
		return iter
	}
	b.mu.Unlock()

	iter := bamIterator{
		provider: b,
		active:   true,
	}
	ctx := vcontext.Background()
	if iter.in, iter.err = file.Open(ctx, b.Path); iter.err != nil {
		return &iter
	}

	var indexIn file.File
	if indexIn, iter.err = file.Open(ctx, b.indexPath()); iter.err != nil {
		return &iter
	}
	defer indexIn.Close(ctx)
	if iter.index, iter.err = bam.ReadIndex(indexIn.Reader(ctx)); iter.err != nil {
		return &iter
	}
	iter.reader, iter.err = bam.NewReader(iter.in.Reader(ctx), 1)
	return &iter
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator(region Region) Iterator {
	header, err := b.GetHeader()
	if err != nil {
		return &failedIterator{err: err}
	}
	if err := checkRegion(header, region); err != nil {
		return &failedIterator{err: err}
	}
	iter := b.allocateIterator()
	if iter.err != nil {
		return iter
	}
	iter.reset(region)
	return iter
}

// Reset the iterator to read the records overlapping region.
func (i *bamIterator) reset(region Region) {
	i.region = region
	if region.Start >= region.End {
		i.err = io.EOF
		return
	}
	found, offset, err := i.findRecordOffset(region.Ref, region.Start, region.End)
	if err != nil {
		i.err = err
		return
	}
	if !found {
		i.err = io.EOF
		return
	}
	i.err = i.reader.Seek(offset)
}

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	err := i.Err()
	i.provider.freeIterator(i)
	return err
}

// Find the the file offset at which the first record overlapping <ref,pos> is
// stored. This function is conservative; it may return an offset that's smaller
// than absolutely necessary.
func (i *bamIterator) findRecordOffset(ref *sam.Reference, startPos, endPos int) (bool, bgzf.Offset, error) {
	chunks, err := i.index.Chunks(ref, startPos, endPos)
	if err == index.ErrInvalid || len(chunks) == 0 {
		// No reads for this interval: return an empty iterator.
		return false, bgzf.Offset{}, nil
	}
	if err != nil {
		return false, bgzf.Offset{}, err
	}
	return true, chunks[0].Begin, nil
}

// Scan implements the Iterator interface.
func (i *bamIterator) Scan() bool {
	if !i.active {
		vlog.Fatal("Reusing iterator")
	}
	if i.err != nil {
		return false
	}
	refID := i.region.Ref.ID()
	for {
		i.next, i.err = i.reader.Read()
		if i.err != nil {
			return false
		}
		if i.next.Ref == nil || i.next.Ref.ID() != refID || i.next.Pos >= i.region.End {
			// Coordinate-sorted input: nothing after this record can overlap.
			sam.PutInFreePool(i.next)
			i.next = nil
			i.err = io.EOF
			return false
		}
		if i.next.End() <= i.region.Start {
			sam.PutInFreePool(i.next)
			continue
		}
		return true
	}
}

// Record implements the Iterator interface.
func (i *bamIterator) Record() *sam.Record {
	return i.next
}

func (i *bamIterator) internalClose() {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	i.provider.err.Set(i.Err())
}
