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
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/coverage/coverage/bamcoverage"
	"v.io/x/lib/cmdline"
)

func newCmdBamCoverage() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "bamcoverage",
		Short:    "Write the coverage of a BAM file as a bigWig or bedGraph track",
		ArgsName: "bampath outpath",
	}
	var (
		reads     readFlags
		opts      = bamcoverage.DefaultOpts
		ignoreStr string
	)
	reads.register(&cmd.Flags)
	cmd.Flags.StringVar(&opts.BamIndexPath, "index", "", "Input BAM index filename. By default set to input bampath + .bai")
	cmd.Flags.IntVar(&opts.BinSize, "bin-size", opts.BinSize, "Size of the bins, in bases")
	cmd.Flags.StringVar(&opts.Region, "region", "", `Restrict the track to one region, formatted as <contig ID>:<1-based first pos>-<last pos>,
<contig ID>:<1-based pos>, or just <contig ID>`)
	cmd.Flags.BoolVar(&opts.MNase, "mnase", false, `Count only the 2 or 3 central bases of proper pairs with a fragment
shorter than 250 bases. Requires paired-end data`)
	cmd.Flags.StringVar(&opts.Normalize, "normalize", opts.Normalize, `Normalization, one of
  none: counts times -scale-factor
  rpkm: reads per kilobase per million mapped reads
  1x: average depth of 1 over -effective-genome-size bases`)
	cmd.Flags.Float64Var(&opts.ScaleFactor, "scale-factor", opts.ScaleFactor, "Multiplier of the counts. A value other than 1 disables -normalize=1x")
	cmd.Flags.Int64Var(&opts.EffectiveGenomeSize, "effective-genome-size", 0, "Mappable genome size, required by -normalize=1x")
	cmd.Flags.StringVar(&ignoreStr, "ignore-for-normalization", "", "Comma-separated list of references whose reads are not counted as mapped reads, e.g. chrX,chrM")
	cmd.Flags.IntVar(&opts.SmoothLength, "smooth-length", 0, "Average each bin over its neighbors within this many bases. Must be larger than -bin-size")
	cmd.Flags.BoolVar(&opts.KeepNAs, "keep-nas", false, "Write bins without reads as 0 instead of leaving them out")
	cmd.Flags.StringVar(&opts.Format, "format", opts.Format, "Output format, one of 'bigwig', 'bedgraph' or 'bedgraph-bgz'")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("bamcoverage takes bampath and outpath, but got %v", argv)
		}
		opts.ExtendReads = reads.extendReads
		opts.ExtendLength = reads.extendLength
		opts.CenterReads = reads.centerReads
		opts.MinMapQ = reads.minMapQ
		opts.FlagInclude = reads.flagInclude
		opts.FlagExclude = reads.flagExclude
		opts.IgnoreDuplicates = reads.ignoreDuplicates
		opts.Parallelism = reads.parallelism
		opts.Verbose = reads.verbose
		opts.IgnoreForNormalization = splitList(ignoreStr)
		if err := bamcoverage.Run(vcontext.Background(), argv[0], argv[1], &opts); err != nil {
			return err
		}
		log.Debug.Printf("bamcoverage: done")
		return nil
	})
	return cmd
}
