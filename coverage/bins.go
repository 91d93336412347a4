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
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/coverage/encoding/bamprovider"
	"github.com/grailbio/coverage/interval"
	"github.com/grailbio/hts/sam"
)

// Bin is a half-open interval [Start, End) on reference RefName.  RefID is
// the reference's position in the header the bins were made from.
type Bin struct {
	RefID   int
	RefName string
	Start   int
	End     int
}

// String implements fmt.Stringer.
func (b Bin) String() string {
	return fmt.Sprintf("%s:%d-%d", b.RefName, b.Start, b.End)
}

// PartitionOpts defines how Partition tiles the genome.
type PartitionOpts struct {
	// BinLength is the length of every bin.
	BinLength int
	// Gap is the distance between consecutive bins.  Bases in a gap are not
	// counted.
	Gap int
	// Region, if nonempty, restricts the bins to one region, formatted as
	// "chr", "chr:pos" or "chr:start-end" (1-based, inclusive).
	Region string
}

// Partition returns bins of opts.BinLength, advancing by BinLength+Gap, over
// every reference of header in header order.  A trailing bin shorter than
// BinLength is dropped.
func Partition(header *sam.Header, opts PartitionOpts) ([]Bin, error) {
	if opts.BinLength <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("bin length must be positive, got %d", opts.BinLength))
	}
	if opts.Gap < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("distance between bins must not be negative, got %d", opts.Gap))
	}
	step := opts.BinLength + opts.Gap
	refs := header.Refs()
	if opts.Region != "" {
		entry, err := interval.ParseRegionString(opts.Region)
		if err != nil {
			return nil, errors.E(errors.Invalid, err)
		}
		ref := bamprovider.RefByName(header, entry.ChrName)
		if ref == nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("region %s: reference %s not in the BAM header", opts.Region, entry.ChrName))
		}
		end := int(entry.End)
		if end > ref.Len() {
			end = ref.Len()
		}
		return tile(nil, ref, int(entry.Start0), end, opts.BinLength, step), nil
	}
	var bins []Bin
	for _, ref := range refs {
		bins = tile(bins, ref, 0, ref.Len(), opts.BinLength, step)
	}
	return bins, nil
}

func tile(bins []Bin, ref *sam.Reference, start, end, binLength, step int) []Bin {
	for pos := start; pos+binLength <= end; pos += step {
		bins = append(bins, Bin{RefID: ref.ID(), RefName: ref.Name(), Start: pos, End: pos + binLength})
	}
	return bins
}

// BinsFromEntries returns one bin per BED entry, verbatim and in file order.
// Entries on references absent from header are skipped with a warning, and
// entries reaching past the end of their reference are clipped.
func BinsFromEntries(header *sam.Header, entries []interval.Entry) ([]Bin, error) {
	bins := make([]Bin, 0, len(entries))
	missing := map[string]int{}
	for _, e := range entries {
		ref := bamprovider.RefByName(header, e.ChrName)
		if ref == nil {
			missing[e.ChrName]++
			continue
		}
		end := int(e.End)
		if end > ref.Len() {
			end = ref.Len()
		}
		if end <= int(e.Start0) {
			log.Printf("coverage.BinsFromEntries: skipping region %s:%d-%d past the end of the reference", e.ChrName, e.Start0, e.End)
			continue
		}
		bins = append(bins, Bin{RefID: ref.ID(), RefName: ref.Name(), Start: int(e.Start0), End: end})
	}
	for name, n := range missing {
		log.Printf("coverage.BinsFromEntries: warning: skipping %d region(s) on %s, which is not in the BAM header", n, name)
	}
	if len(bins) == 0 {
		return nil, errors.E(errors.Invalid, "none of the regions lie on a reference of the BAM header")
	}
	return bins, nil
}
