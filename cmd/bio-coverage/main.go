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

/*
bio-coverage computes read coverage from BAM files.

	bio-coverage bamcoverage [flags] bampath outpath
	bio-coverage multibamsummary bins [flags] outpath bampath...
	bio-coverage multibamsummary bed-file -bed regions.bed [flags] outpath bampath...

bamcoverage writes a bigWig or bedGraph signal track of one BAM file, optionally
normalized.  multibamsummary counts reads of several BAM files over common
bins, either tiling the genome or taken from a BED file, and writes a NumPy
.npz matrix.
*/
package main

import (
	"flag"
	"strings"

	"v.io/x/lib/cmdline"
)

// readFlags are the read-processing flags shared by all commands.
type readFlags struct {
	extendReads      bool
	extendLength     int
	centerReads      bool
	minMapQ          int
	flagInclude      int
	flagExclude      int
	ignoreDuplicates bool
	parallelism      int
	verbose          bool
}

func (f *readFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&f.extendReads, "extend-reads", false, `Extend each read to a fragment.  Reads are extended to -extend-length
bases or, if it is 0, to the median fragment length for paired-end data
and the median read length otherwise.  Reverse-strand reads are extended
towards lower positions.`)
	fs.IntVar(&f.extendLength, "extend-length", 0, "Fragment length used by -extend-reads; 0 infers it from the data. Must be in (1, 2000]")
	fs.BoolVar(&f.centerReads, "center-reads", false, "Center each read on the middle of its fragment")
	fs.IntVar(&f.minMapQ, "min-mapq", 0, "Reads with MAPQ below this level are skipped")
	fs.IntVar(&f.flagInclude, "sam-flag-include", 0, "Only reads with all of these FLAG bits are counted")
	fs.IntVar(&f.flagExclude, "sam-flag-exclude", 0, "Reads with a FLAG bit intersecting this value are skipped")
	fs.BoolVar(&f.ignoreDuplicates, "ignore-duplicates", false, "Skip reads flagged as duplicates")
	fs.IntVar(&f.parallelism, "parallelism", 0, "Maximum number of concurrent counting tasks; 0 = runtime.NumCPU()")
	fs.BoolVar(&f.verbose, "verbose", false, "Log progress")
}

// splitList splits a comma-separated flag value.  It returns nil for "".
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var l []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			l = append(l, e)
		}
	}
	return l
}

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-coverage",
		Short:    "Compute read coverage of BAM files",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdBamCoverage(),
			newCmdMultiBamSummary(),
		},
	}
}

func main() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newCmdRoot())
}
