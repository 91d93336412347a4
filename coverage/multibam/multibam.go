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

// Package multibam counts reads of several BAM files over common bins and
// writes the result as a NumPy .npz matrix.
package multibam

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/coverage/coverage"
	"github.com/grailbio/coverage/encoding/bamprovider"
	"github.com/grailbio/coverage/fragment"
	"github.com/grailbio/coverage/interval"
	"github.com/grailbio/hts/sam"
)

type Opts struct {
	// Commandline options.
	Labels []string
	// BinSize and DistanceBetweenBins define the bins when BedPath is empty.
	BinSize             int
	DistanceBetweenBins int
	Region              string
	// BedPath, if nonempty, lists the regions to count, one bin per line.
	BedPath          string
	ExtendReads      bool
	ExtendLength     int
	CenterReads      bool
	MinMapQ          int
	FlagInclude      int
	FlagExclude      int
	IgnoreDuplicates bool
	// SkipZeros drops the bins without reads in every file.
	SkipZeros    bool
	OutRawCounts string
	Parallelism  int
	TempDir      string
	Verbose      bool
}

var DefaultOpts = Opts{
	BinSize: 10000,
}

// DefaultLabels returns the base names of paths.
func DefaultLabels(paths []string) []string {
	labels := make([]string, len(paths))
	for i, p := range paths {
		labels[i] = filepath.Base(p)
	}
	return labels
}

func (o *Opts) validate(nFiles int) (fragment.Filter, fragment.Opts, error) {
	var (
		filter = fragment.Filter{
			MinMapQ:          o.MinMapQ,
			FlagInclude:      sam.Flags(o.FlagInclude),
			FlagExclude:      sam.Flags(o.FlagExclude),
			IgnoreDuplicates: o.IgnoreDuplicates,
		}
		frag = fragment.Opts{
			ExtendReads:  o.ExtendReads,
			ExtendLength: o.ExtendLength,
			CenterReads:  o.CenterReads,
		}
	)
	if nFiles == 0 {
		return filter, frag, errors.E(errors.Invalid, "no BAM files given")
	}
	if o.Labels != nil && len(o.Labels) != nFiles {
		return filter, frag, errors.E(errors.Invalid,
			fmt.Sprintf("the number of labels (%d) does not match the number of BAM files (%d)", len(o.Labels), nFiles))
	}
	if o.BedPath == "" {
		if o.BinSize <= 0 {
			return filter, frag, errors.E(errors.Invalid, fmt.Sprintf("bin size must be positive, got %d", o.BinSize))
		}
		if o.DistanceBetweenBins < 0 {
			return filter, frag, errors.E(errors.Invalid,
				fmt.Sprintf("distance between bins must not be negative, got %d", o.DistanceBetweenBins))
		}
	}
	return filter, frag, frag.Validate()
}

// Run counts the reads of bamPaths and writes the matrix to outPath.
func Run(ctx context.Context, bamPaths []string, outPath string, opts *Opts) (err error) {
	filter, frag, err := opts.validate(len(bamPaths))
	if err != nil {
		return err
	}
	labels := opts.Labels
	if labels == nil {
		labels = DefaultLabels(bamPaths)
	}
	if len(bamPaths) == 1 && opts.OutRawCounts == "" {
		log.Printf("multibam: warning: a single BAM file was given without a raw counts output; the matrix will not be useful for comparisons")
	}

	providers := make([]bamprovider.Provider, len(bamPaths))
	for i, path := range bamPaths {
		providers[i] = bamprovider.NewProvider(path)
	}
	defer func() {
		for _, p := range providers {
			if e := p.Close(); e != nil && err == nil {
				err = e
			}
		}
	}()
	header, err := providers[0].GetHeader()
	if err != nil {
		return err
	}

	if frag.NeedsStats() {
		// The extension length of every file is inferred from the first one.
		estimate := fragment.DefaultEstimateOpts
		estimate.Filter = filter
		estimate.Parallelism = opts.Parallelism
		estimate.Verbose = opts.Verbose
		stats, err := fragment.EstimateLengths(ctx, providers[0], estimate)
		if err != nil {
			return err
		}
		if err = frag.Resolve(stats); err != nil {
			return err
		}
		if opts.Verbose {
			log.Printf("multibam: extending reads to %d bases", frag.ExtendLength)
		}
	}

	var bins []coverage.Bin
	if opts.BedPath != "" {
		entries, err := interval.NewBEDEntriesFromPath(opts.BedPath, interval.NewBEDOpts{})
		if err != nil {
			return err
		}
		if bins, err = coverage.BinsFromEntries(header, entries); err != nil {
			return err
		}
	} else {
		bins, err = coverage.Partition(header, coverage.PartitionOpts{
			BinLength: opts.BinSize,
			Gap:       opts.DistanceBetweenBins,
			Region:    opts.Region,
		})
		if err != nil {
			return err
		}
	}

	countOpts := coverage.DefaultCountOpts
	countOpts.Filter = filter
	countOpts.Fragment = frag
	countOpts.Parallelism = opts.Parallelism
	countOpts.SkipZeros = opts.SkipZeros
	countOpts.Verbose = opts.Verbose
	m, err := coverage.Count(ctx, providers, bins, countOpts)
	if err != nil {
		return err
	}
	log.Printf("multibam: number of bins found: %d", m.NumBins())
	return coverage.WriteSummary(ctx, m, labels, coverage.SummaryOpts{
		OutPath:       outPath,
		RawCountsPath: opts.OutRawCounts,
		TempDir:       opts.TempDir,
		Verbose:       opts.Verbose,
	})
}
