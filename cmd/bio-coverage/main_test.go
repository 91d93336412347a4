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
	"bytes"
	"io/ioutil"
	"math"
	"path/filepath"
	"testing"

	"github.com/grailbio/coverage/encoding/bamprovider"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/pbenner/gonetics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"v.io/x/lib/cmdline"
)

func writeTestBAMs(t *testing.T, dir string) (string, string) {
	chr1, err := sam.NewReference("chr1", "", "", 1000, nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1})
	require.NoError(t, err)
	a := filepath.Join(dir, "a.bam")
	require.NoError(t, bamprovider.WriteTestBAM(a, header, []*sam.Record{
		bamprovider.NewTestRecord("a1", chr1, 100, 40, 0, 0),
		bamprovider.NewTestRecord("a2", chr1, 300, 40, sam.Duplicate, 0),
		bamprovider.NewTestRecord("a3", chr1, 500, 40, 0, 0),
	}))
	b := filepath.Join(dir, "b.bam")
	require.NoError(t, bamprovider.WriteTestBAM(b, header, []*sam.Record{
		bamprovider.NewTestRecord("b1", chr1, 100, 40, 0, 0),
		bamprovider.NewTestRecord("b2", chr1, 500, 40, 0, 0),
	}))
	return a, b
}

func run(t *testing.T, args ...string) error {
	var stdout, stderr bytes.Buffer
	env := &cmdline.Env{Stdout: &stdout, Stderr: &stderr, Vars: map[string]string{}}
	return cmdline.ParseAndRun(newCmdRoot(), env, args)
}

func TestBamCoverageCommand(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	a, _ := writeTestBAMs(t, tmpdir)
	out := filepath.Join(tmpdir, "out.bedgraph")
	require.NoError(t, run(t, "bamcoverage", "-bin-size=100", "-ignore-duplicates", "-scale-factor=2", "-format=bedgraph", a, out))
	data, err := ioutil.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "chr1\t100\t200\t2\nchr1\t500\t600\t2\n", string(data))

	bw := filepath.Join(tmpdir, "out.bw")
	require.NoError(t, run(t, "bamcoverage", "-bin-size=100", a, bw))
	var got gonetics.SimpleTrack
	require.NoError(t, got.ImportBigWig(bw, "", gonetics.BinMean, 100, 0, math.NaN()))
	require.Len(t, got.Data["chr1"], 10)
	assert.Equal(t, 1.0, got.Data["chr1"][1])
	assert.Equal(t, 1.0, got.Data["chr1"][3])
	assert.True(t, math.IsNaN(got.Data["chr1"][2]))

	assert.Error(t, run(t, "bamcoverage", a))
	assert.Error(t, run(t, "bamcoverage", "-format=wig", a, out))
	assert.Error(t, run(t, "bamcoverage", "-normalize=cpm", a, out))
}

func TestMultiBamSummaryCommand(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	a, b := writeTestBAMs(t, tmpdir)
	out := filepath.Join(tmpdir, "out.npz")
	raw := filepath.Join(tmpdir, "raw.tsv")
	require.NoError(t, run(t, "multibamsummary", "bins", "-bin-size=100", "-skip-zeros",
		"-labels=x,y", "-out-raw-counts="+raw, out, a, b))
	data, err := ioutil.ReadFile(raw)
	require.NoError(t, err)
	assert.Equal(t,
		"#'chr'\t'start'\t'end'\t'x'\t'y'\n"+
			"chr1\t100\t200\t1\t1\n"+
			"chr1\t300\t400\t1\t0\n"+
			"chr1\t500\t600\t1\t1\n",
		string(data))

	bed := filepath.Join(tmpdir, "regions.bed")
	require.NoError(t, ioutil.WriteFile(bed, []byte("chr1\t0\t250\nchr1\t250\t1000\n"), 0644))
	require.NoError(t, run(t, "multibamsummary", "bed-file", "-bed="+bed, "-out-raw-counts="+raw, out, a, b))
	data, err = ioutil.ReadFile(raw)
	require.NoError(t, err)
	assert.Equal(t,
		"#'chr'\t'start'\t'end'\t'a.bam'\t'b.bam'\n"+
			"chr1\t0\t250\t1\t1\n"+
			"chr1\t250\t1000\t2\t1\n",
		string(data))

	assert.Error(t, run(t, "multibamsummary", "bed-file", out, a, b))
	assert.Error(t, run(t, "multibamsummary", "bins", out))
	assert.Error(t, run(t, "multibamsummary", "bins", "-labels=x", out, a, b))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"chrX", "chrM"}, splitList("chrX, chrM,"))
}
