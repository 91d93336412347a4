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

// Package bamcoverage computes the read coverage of one BAM file as a bigWig
// or bedGraph signal track.
package bamcoverage

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/coverage/coverage"
	"github.com/grailbio/coverage/encoding/bamprovider"
	"github.com/grailbio/coverage/encoding/track"
	"github.com/grailbio/coverage/fragment"
	"github.com/grailbio/hts/sam"
)

type Opts struct {
	// Commandline options.
	BinSize      int
	Region       string
	BamIndexPath string
	// ExtendReads extends reads to ExtendLength, or to the inferred fragment
	// length if ExtendLength is 0.
	ExtendReads  bool
	ExtendLength int
	CenterReads  bool
	// MNase counts only the 2 or 3 central bases of short proper pairs.
	MNase            bool
	MinMapQ          int
	FlagInclude      int
	FlagExclude      int
	IgnoreDuplicates bool
	// Normalize is one of "none", "rpkm" and "1x".
	Normalize              string
	ScaleFactor            float64
	EffectiveGenomeSize    int64
	IgnoreForNormalization []string
	SmoothLength           int
	// KeepNAs writes bins without reads as zeros.
	KeepNAs bool
	// Format is one of "bigwig", "bedgraph" and "bedgraph-bgz".
	Format      string
	Parallelism int
	Verbose     bool
}

var DefaultOpts = Opts{
	BinSize:     50,
	Normalize:   "none",
	ScaleFactor: 1,
	Format:      "bigwig",
}

// config is the validated form of Opts.
type config struct {
	format   track.Format
	filter   fragment.Filter
	fragment fragment.Opts
	scale    coverage.ScaleOpts
}

// validate checks everything that can be checked without reading the input.
func (o *Opts) validate() (*config, error) {
	if o.BinSize <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("bin size must be positive, got %d", o.BinSize))
	}
	if o.SmoothLength < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("smooth length must not be negative, got %d", o.SmoothLength))
	}
	c := &config{
		filter: fragment.Filter{
			MinMapQ:          o.MinMapQ,
			FlagInclude:      sam.Flags(o.FlagInclude),
			FlagExclude:      sam.Flags(o.FlagExclude),
			IgnoreDuplicates: o.IgnoreDuplicates,
		},
		fragment: fragment.Opts{
			ExtendReads:  o.ExtendReads,
			ExtendLength: o.ExtendLength,
			CenterReads:  o.CenterReads,
		},
	}
	if o.MNase {
		c.fragment.Policy = fragment.CenterFragment
	}
	if err := c.fragment.Validate(); err != nil {
		return nil, err
	}
	var err error
	if c.format, err = track.ParseFormat(o.Format); err != nil {
		return nil, err
	}
	mode, err := coverage.ParseNormalization(o.Normalize)
	if err != nil {
		return nil, err
	}
	c.scale = coverage.ScaleOpts{
		Mode:         mode,
		BaseFactor:   o.ScaleFactor,
		BinLength:    o.BinSize,
		GenomeSize:   o.EffectiveGenomeSize,
		ExtendReads:  o.ExtendReads,
		ExtendLength: o.ExtendLength,
	}
	if o.ScaleFactor <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("scale factor must be positive, got %v", o.ScaleFactor))
	}
	if c.scale.Effective() == coverage.NormalizeTo1x && o.EffectiveGenomeSize <= 0 {
		return nil, errors.E(errors.Invalid, "normalization to 1x requires the effective genome size")
	}
	return c, nil
}

// Run computes the coverage track of bamPath and writes it to outPath.
func Run(ctx context.Context, bamPath, outPath string, opts *Opts) (err error) {
	c, err := opts.validate()
	if err != nil {
		return err
	}
	provider := bamprovider.NewProvider(bamPath, bamprovider.ProviderOpts{Index: opts.BamIndexPath})
	defer func() {
		if e := provider.Close(); e != nil && err == nil {
			err = e
		}
	}()
	header, err := provider.GetHeader()
	if err != nil {
		return err
	}

	var stats *fragment.LengthStats
	if c.fragment.NeedsStats() || c.scale.NeedsStats() || c.fragment.Policy == fragment.CenterFragment {
		estimate := fragment.DefaultEstimateOpts
		estimate.Filter = c.filter
		estimate.Parallelism = opts.Parallelism
		estimate.Verbose = opts.Verbose
		if stats, err = fragment.EstimateLengths(ctx, provider, estimate); err != nil {
			return err
		}
	}
	if c.fragment.Policy == fragment.CenterFragment && !stats.HasFragments {
		return errors.E(errors.Precondition, "MNase mode requires paired-end data")
	}

	if c.scale.MappedReads, err = bamprovider.TotalMappedReads(provider, opts.IgnoreForNormalization); err != nil {
		return err
	}
	c.scale.Stats = stats
	factor, err := coverage.ScaleFactor(c.scale)
	if err != nil {
		return err
	}
	if opts.Verbose {
		log.Printf("bamcoverage: %d mapped reads, normalization %v, scale factor %v",
			c.scale.MappedReads, c.scale.Effective(), factor)
	}
	if err = c.fragment.Resolve(stats); err != nil {
		return err
	}
	if opts.Verbose && c.fragment.ExtendReads {
		log.Printf("bamcoverage: extending reads to %d bases", c.fragment.ExtendLength)
	}

	bins, err := coverage.Partition(header, coverage.PartitionOpts{BinLength: opts.BinSize, Region: opts.Region})
	if err != nil {
		return err
	}
	countOpts := coverage.DefaultCountOpts
	countOpts.Filter = c.filter
	countOpts.Fragment = c.fragment
	countOpts.Parallelism = opts.Parallelism
	countOpts.Verbose = opts.Verbose
	m, err := coverage.Count(ctx, []bamprovider.Provider{provider}, bins, countOpts)
	if err != nil {
		return err
	}
	recs, err := coverage.AssembleTrack(m, coverage.TrackOpts{
		ScaleFactor:  factor,
		BinLength:    opts.BinSize,
		SmoothLength: opts.SmoothLength,
		KeepZeros:    opts.KeepNAs,
		Verbose:      opts.Verbose,
	})
	if err != nil {
		return err
	}
	trackOpts := track.Opts{Parallelism: opts.Parallelism, BinLength: opts.BinSize, Header: header}
	if err = coverage.WriteTrack(ctx, outPath, c.format, trackOpts, recs); err != nil {
		return err
	}
	log.Debug.Printf("bamcoverage: wrote %d intervals to %s", len(recs), outPath)
	return nil
}
