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
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/coverage/fragment"
)

// Normalization selects how a signal track is scaled.
type Normalization int

const (
	// NormalizeNone applies only the base scale factor.
	NormalizeNone Normalization = iota
	// NormalizeRPKM reports reads per kilobase per million mapped reads.
	NormalizeRPKM
	// NormalizeTo1x scales the track to an average depth of 1x over the
	// effective genome size.
	NormalizeTo1x
)

// String implements fmt.Stringer.
func (n Normalization) String() string {
	switch n {
	case NormalizeNone:
		return "none"
	case NormalizeRPKM:
		return "rpkm"
	case NormalizeTo1x:
		return "1x"
	}
	return fmt.Sprintf("Normalization(%d)", int(n))
}

// ParseNormalization parses the output of Normalization.String.
func ParseNormalization(s string) (Normalization, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return NormalizeNone, nil
	case "rpkm":
		return NormalizeRPKM, nil
	case "1x":
		return NormalizeTo1x, nil
	}
	return NormalizeNone, errors.E(errors.Invalid, fmt.Sprintf("unknown normalization %q, must be one of none, rpkm, 1x", s))
}

// ScaleOpts is the input of ScaleFactor.
type ScaleOpts struct {
	Mode Normalization
	// BaseFactor multiplies the computed factor.  A value other than 1
	// disables NormalizeTo1x.
	BaseFactor float64
	// MappedReads is the number of mapped reads of the sample.
	MappedReads int64
	// BinLength is the bin length of the track, used by NormalizeRPKM.
	BinLength int
	// GenomeSize is the effective (mappable) genome size, used by
	// NormalizeTo1x.
	GenomeSize int64
	// ExtendReads and ExtendLength mirror fragment.Opts.  ExtendLength is
	// zero if the length is to be inferred from Stats.
	ExtendReads  bool
	ExtendLength int
	// Stats holds the sampled read and fragment lengths.  It is needed only
	// when NeedsStats returns true.
	Stats *fragment.LengthStats
}

// Effective returns the normalization that is actually applied.
func (o *ScaleOpts) Effective() Normalization {
	if o.Mode == NormalizeTo1x && o.BaseFactor != 1 {
		return NormalizeNone
	}
	return o.Mode
}

// NeedsStats reports whether ScaleFactor requires o.Stats.
func (o *ScaleOpts) NeedsStats() bool {
	return o.Effective() == NormalizeTo1x && !(o.ExtendReads && o.ExtendLength != 0)
}

// ScaleFactor computes the multiplier applied to every bin count of a track.
func ScaleFactor(opts ScaleOpts) (float64, error) {
	if opts.BaseFactor <= 0 {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("scale factor must be positive, got %v", opts.BaseFactor))
	}
	mode := opts.Effective()
	if mode != opts.Mode {
		log.Printf("coverage.ScaleFactor: scale factor %v given, normalization to 1x is disabled", opts.BaseFactor)
	}
	switch mode {
	case NormalizeNone:
		return opts.BaseFactor, nil
	case NormalizeRPKM:
		if opts.BinLength <= 0 {
			return 0, errors.E(errors.Invalid, fmt.Sprintf("bin length must be positive, got %d", opts.BinLength))
		}
		if opts.MappedReads <= 0 {
			return 0, errors.E(errors.Precondition, "cannot normalize by RPKM: no mapped reads")
		}
		millions := float64(opts.MappedReads) / 1e6
		kilobases := float64(opts.BinLength) / 1000
		return opts.BaseFactor / (millions * kilobases), nil
	case NormalizeTo1x:
		if opts.GenomeSize <= 0 {
			return 0, errors.E(errors.Invalid, "normalization to 1x requires a positive effective genome size")
		}
		fragLen, err := fragmentLength(&opts)
		if err != nil {
			return 0, err
		}
		if opts.MappedReads <= 0 {
			return 0, errors.E(errors.Precondition, "cannot normalize to 1x: no mapped reads")
		}
		coverage := float64(opts.MappedReads) * float64(fragLen) / float64(opts.GenomeSize)
		return opts.BaseFactor / coverage, nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown normalization %v", opts.Mode))
}

// fragmentLength returns the average footprint length used by 1x
// normalization.
func fragmentLength(opts *ScaleOpts) (int, error) {
	if opts.ExtendReads && opts.ExtendLength != 0 {
		if err := fragment.ValidateExtension(opts.ExtendLength); err != nil {
			return 0, err
		}
		return opts.ExtendLength, nil
	}
	stats := opts.Stats
	if opts.ExtendReads {
		if stats == nil || !stats.HasFragments {
			return 0, errors.E(errors.Precondition,
				"the read extension length must be given for single-end data, or the data must be paired-end")
		}
		return stats.FragmentLength, nil
	}
	if stats == nil || stats.NumReads == 0 {
		return 0, errors.E(errors.Precondition, "cannot normalize to 1x: no read length statistics")
	}
	return stats.ReadLength, nil
}

// parseScaleFactorPair parses two scale factors formatted as "f1:f2", the
// form a two-sample comparison takes them in.
func parseScaleFactorPair(s string) (float64, float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, errors.E(errors.Invalid,
			fmt.Sprintf("the format of scale factors is factor1:factor2, the value given (%s) is not valid", s))
	}
	var f [2]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, 0, errors.E(errors.Invalid, err,
				fmt.Sprintf("the format of scale factors is factor1:factor2, the value given (%s) is not valid", s))
		}
		f[i] = v
	}
	return f[0], f[1], nil
}
