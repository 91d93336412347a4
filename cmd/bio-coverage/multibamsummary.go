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

package main

import (
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/coverage/coverage/multibam"
	"v.io/x/lib/cmdline"
)

// summaryFlags are the flags of both multibamsummary modes.
type summaryFlags struct {
	reads        readFlags
	labels       string
	outRawCounts string
	skipZeros    bool
	tempDir      string
}

func (f *summaryFlags) register(cmd *cmdline.Command) {
	f.reads.register(&cmd.Flags)
	cmd.Flags.StringVar(&f.labels, "labels", "", "Comma-separated labels of the BAM files. By default the file base names")
	cmd.Flags.StringVar(&f.outRawCounts, "out-raw-counts", "", "Also write the counts to this tab-separated file, one line per bin")
	cmd.Flags.BoolVar(&f.skipZeros, "skip-zeros", false, "Drop the bins without reads in all files")
	cmd.Flags.StringVar(&f.tempDir, "temp-dir", "", "Directory to write temporary files to (default os.TempDir())")
}

func (f *summaryFlags) apply(opts *multibam.Opts) {
	opts.Labels = splitList(f.labels)
	opts.OutRawCounts = f.outRawCounts
	opts.SkipZeros = f.skipZeros
	opts.TempDir = f.tempDir
	opts.ExtendReads = f.reads.extendReads
	opts.ExtendLength = f.reads.extendLength
	opts.CenterReads = f.reads.centerReads
	opts.MinMapQ = f.reads.minMapQ
	opts.FlagInclude = f.reads.flagInclude
	opts.FlagExclude = f.reads.flagExclude
	opts.IgnoreDuplicates = f.reads.ignoreDuplicates
	opts.Parallelism = f.reads.parallelism
	opts.Verbose = f.reads.verbose
}

func runSummary(name string, opts *multibam.Opts, argv []string) error {
	if len(argv) < 2 {
		return fmt.Errorf("%s takes outpath and one or more bampaths, but got %v", name, argv)
	}
	return multibam.Run(vcontext.Background(), argv[1:], argv[0], opts)
}

func newCmdBins() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "bins",
		Short:    "Count reads over consecutive bins of the genome",
		ArgsName: "outpath bampath...",
	}
	var (
		flags summaryFlags
		opts  = multibam.DefaultOpts
	)
	flags.register(cmd)
	cmd.Flags.IntVar(&opts.BinSize, "bin-size", opts.BinSize, "Size of the bins, in bases")
	cmd.Flags.IntVar(&opts.DistanceBetweenBins, "distance-between-bins", 0, "Number of bases skipped between two bins")
	cmd.Flags.StringVar(&opts.Region, "region", "", `Restrict the bins to one region, formatted as <contig ID>:<1-based first pos>-<last pos>,
<contig ID>:<1-based pos>, or just <contig ID>`)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		flags.apply(&opts)
		return runSummary("bins", &opts, argv)
	})
	return cmd
}

func newCmdBEDFile() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "bed-file",
		Short:    "Count reads over the regions of a BED file",
		ArgsName: "outpath bampath...",
	}
	var (
		flags summaryFlags
		opts  = multibam.DefaultOpts
	)
	flags.register(cmd)
	cmd.Flags.StringVar(&opts.BedPath, "bed", "", "BED file of the regions, optionally gzipped. Required")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if opts.BedPath == "" {
			return fmt.Errorf("bed-file requires -bed")
		}
		flags.apply(&opts)
		return runSummary("bed-file", &opts, argv)
	})
	return cmd
}

func newCmdMultiBamSummary() *cmdline.Command {
	return &cmdline.Command{
		Name:     "multibamsummary",
		Short:    "Count reads of several BAM files over common bins",
		Children: []*cmdline.Command{newCmdBins(), newCmdBEDFile()},
	}
}
