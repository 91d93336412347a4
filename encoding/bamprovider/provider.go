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
	"fmt"
	"strings"

	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// ProviderOpts defines options for NewProvider.
type ProviderOpts struct {
	// Index specifies the name of the BAM index file. If Index=="", it defaults
	// to path + ".bai".
	Index string
}

// Region is a half-open, 0-based interval [Start, End) on a single reference.
type Region struct {
	Ref   *sam.Reference
	Start int
	End   int
}

// String returns the region in "chr:start-end" form, with a 0-based start.
func (r Region) String() string {
	if r.Ref == nil {
		return fmt.Sprintf("<nil>:%d-%d", r.Start, r.End)
	}
	return fmt.Sprintf("%s:%d-%d", r.Ref.Name(), r.Start, r.End)
}

// Provider allows reading a BAM file in parallel. Thread safe.
type Provider interface {
	// GetHeader returns the header for the provided BAM data.  The callee
	// must not modify the returned header object.
	//
	// REQUIRES: Close has not been called.
	GetHeader() (*sam.Header, error)

	// MappedCounts returns the number of mapped records on each reference,
	// indexed by reference ID.
	//
	// REQUIRES: Close has not been called.
	MappedCounts() ([]int64, error)

	// NewIterator returns an iterator over the records whose alignment
	// overlaps the region. Each call yields a fresh, independent iterator, so
	// concurrent callers never share read state.
	//
	// REQUIRES: Close has not been called.
	NewIterator(region Region) Iterator

	// Close must be called exactly once. It returns any error encountered
	// by the provider, or any iterator created by the provider.
	//
	// REQUIRES: All the iterators created by NewIterator have been closed.
	Close() error
}

// Iterator iterates over sam.Records in a particular genomic range, in
// coordinate order. Thread compatible.
type Iterator interface {
	// Scan returns where there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record. If the iterator
	// reaches the end of its range, Scan() returns false.  If an error
	// occurs, Scan() returns false and the error can be retrieved by
	// calling Err().
	//
	// REQUIRES: Close has not been called.
	Scan() bool

	// Record returns the current record in the iterator. This must be
	// called only after a call to Scan() returns true.  The caller owns the
	// record and may hand it back with sam.PutInFreePool.
	//
	// REQUIRES: Close has not been called.
	Record() *sam.Record

	// Err returns the error encoutered during iteration, or nil if no error
	// occurred.  An io.EOF error will be translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

// NewProvider creates a Provider for the BAM file at "path". The path and the
// index may be local or S3 paths.
func NewProvider(path string, optList ...ProviderOpts) Provider {
	opts := ProviderOpts{}
	for _, o := range optList {
		if o.Index != "" {
			opts.Index = o.Index
		}
	}
	if !strings.HasSuffix(path, ".bam") {
		vlog.VI(1).Infof("%v: no .bam suffix, reading it as BAM anyway", path)
	}
	return &BAMProvider{Path: path, Index: opts.Index}
}
