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
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Policy selects how a record is turned into a footprint.
type Policy int

const (
	// Standard counts the aligned read, or the read extended to a fragment
	// length.
	Standard Policy = iota
	// CenterFragment counts only the center of short proper pairs.
	CenterFragment
)

// String implements fmt.Stringer.
func (p Policy) String() string {
	switch p {
	case Standard:
		return "standard"
	case CenterFragment:
		return "center-fragment"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

const (
	// MaxExtension is the largest accepted explicit extension length.
	MaxExtension = 2000
	// MaxCenterTemplateLen bounds |tlen| for CenterFragment; longer pairs
	// are not counted.
	MaxCenterTemplateLen = 250
)

// Interval is a half-open, 0-based interval [Start, End) on the record's
// reference.
type Interval struct {
	Start int
	End   int
}

// Opts defines the fragment-inference behavior.
type Opts struct {
	Policy Policy
	// ExtendReads extends each read to a fragment length, in the direction
	// of its strand.
	ExtendReads bool
	// ExtendLength is the fragment length used by ExtendReads.  Zero means
	// "infer from the data"; see Resolve.
	ExtendLength int
	// CenterReads re-centers each footprint on the middle of its fragment,
	// keeping the aligned read length.
	CenterReads bool
}

// ValidateExtension checks an explicitly given extension length.
func ValidateExtension(length int) error {
	if length <= 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("read extension must be bigger than one, got %d", length))
	}
	if length > MaxExtension {
		return errors.E(errors.Invalid, fmt.Sprintf("read extension must be at most %d, got %d", MaxExtension, length))
	}
	return nil
}

// Validate checks the options that can be checked without reading any data.
func (o *Opts) Validate() error {
	switch o.Policy {
	case Standard, CenterFragment:
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("unknown fragment policy %v", o.Policy))
	}
	if o.ExtendReads && o.ExtendLength != 0 {
		return ValidateExtension(o.ExtendLength)
	}
	return nil
}

// NeedsStats reports whether Resolve requires length statistics.
func (o *Opts) NeedsStats() bool {
	return o.Policy == Standard && o.ExtendReads && o.ExtendLength == 0
}

// Resolve replaces an inferred extension length with a concrete value: the
// median fragment length for paired data, or the median read length
// otherwise.  It is a no-op when no inference is needed.
func (o *Opts) Resolve(stats *LengthStats) error {
	if !o.NeedsStats() {
		return nil
	}
	if stats == nil || stats.NumReads == 0 {
		return errors.E(errors.Precondition, "cannot infer the read extension length: no reads were sampled")
	}
	if stats.HasFragments {
		o.ExtendLength = stats.FragmentLength
	} else {
		o.ExtendLength = stats.ReadLength
	}
	return nil
}

// Padding returns how far a footprint may reach beyond the alignment of its
// record, in either direction.  Read queries are widened by this amount so
// that no footprint overlapping a region is missed.
func (o *Opts) Padding() int {
	switch {
	case o.Policy == CenterFragment:
		return MaxCenterTemplateLen
	case o.ExtendReads:
		return o.ExtendLength
	}
	return 0
}

// floorDiv2 returns floor(x/2).
func floorDiv2(x int) int {
	if x < 0 {
		return -((-x + 1) / 2)
	}
	return x / 2
}

// Footprint returns the interval r contributes to coverage, and false if r
// contributes nothing.  r is assumed to have passed the record filter.
func Footprint(r *sam.Record, o *Opts) (Interval, bool) {
	if o.Policy == CenterFragment {
		return centerFragment(r)
	}
	start, end := r.Pos, r.End()
	if o.ExtendReads && o.ExtendLength > 0 {
		if r.Flags&sam.Reverse != 0 {
			start = end - o.ExtendLength
		} else {
			end = start + o.ExtendLength
		}
	}
	if o.CenterReads {
		readLen := r.End() - r.Pos
		center := end - (end-start)/2
		start = center - readLen/2
		end = start + readLen
	}
	if start < 0 {
		start = 0
	}
	if end <= start {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// centerFragment returns the 2 (even template length) or 3 (odd) bases at the
// middle of a short proper pair.  Only the forward mate reports it, so each
// pair is counted once.
func centerFragment(r *sam.Record) (Interval, bool) {
	tlen := r.TempLen
	if r.Flags&sam.ProperPair == 0 || r.Flags&sam.Reverse != 0 {
		return Interval{}, false
	}
	if tlen >= MaxCenterTemplateLen || tlen <= -MaxCenterTemplateLen {
		return Interval{}, false
	}
	start := r.Pos + floorDiv2(tlen) - 1
	width := 2
	if tlen%2 != 0 {
		width = 3
	}
	if start < 0 {
		return Interval{}, false
	}
	return Interval{Start: start, End: start + width}, true
}
