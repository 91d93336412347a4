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

package track_test

import (
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/coverage/encoding/track"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/klauspost/compress/gzip"
	"github.com/pbenner/gonetics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRecords = []track.Record{
	{RefName: "chr1", Start: 0, End: 100, Value: 2},
	{RefName: "chr1", Start: 100, End: 150, Missing: true},
	{RefName: "chr1", Start: 150, End: 200, Value: 0.25},
	{RefName: "chr2", Start: 0, End: 50, Value: 1e-7},
}

const testExpected = "chr1\t0\t100\t2\nchr1\t150\t200\t0.25\nchr2\t0\t50\t1e-07\n"

func testHeader(t *testing.T) *sam.Header {
	chr1, err := sam.NewReference("chr1", "", "", 300, nil, nil)
	require.NoError(t, err)
	chr2, err := sam.NewReference("chr2", "", "", 100, nil, nil)
	require.NoError(t, err)
	chr3, err := sam.NewReference("chr3", "", "", 100, nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1, chr2, chr3})
	require.NoError(t, err)
	return header
}

func writeRecords(t *testing.T, path string, format track.Format, opts track.Opts) {
	ctx := vcontext.Background()
	w, err := track.NewWriter(ctx, path, format, opts)
	require.NoError(t, err)
	for _, r := range testRecords {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())
}

func TestWriteBedGraph(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmpdir, "out.bedgraph")
	writeRecords(t, path, track.FormatBedGraph, track.Opts{})
	got, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testExpected, string(got))
}

func TestWriteBedGraphBGZF(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmpdir, "out.bedgraph.gz")
	writeRecords(t, path, track.FormatBedGraphBGZF, track.Opts{Parallelism: 2})
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() // nolint: errcheck
	r, err := gzip.NewReader(f)
	require.NoError(t, err)
	got, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, testExpected, string(got))
}

func TestWriteBigWig(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmpdir, "out.bw")
	writeRecords(t, path, track.FormatBigWig, track.Opts{BinLength: 50, Header: testHeader(t)})

	var got gonetics.SimpleTrack
	require.NoError(t, got.ImportBigWig(path, "", gonetics.BinMean, 50, 0, math.NaN()))
	chr1 := got.Data["chr1"]
	require.Len(t, chr1, 6)
	for i, want := range []float64{2, 2, math.NaN(), 0.25, math.NaN(), math.NaN()} {
		if math.IsNaN(want) {
			assert.True(t, math.IsNaN(chr1[i]), "bin %d: %v", i, chr1[i])
			continue
		}
		assert.InDelta(t, want, chr1[i], 1e-6, "bin %d", i)
	}
	chr2 := got.Data["chr2"]
	require.Len(t, chr2, 2)
	assert.InDelta(t, 1e-7, chr2[0], 1e-9)
	assert.True(t, math.IsNaN(chr2[1]))
	// References without values are not in the file.
	_, ok := got.Data["chr3"]
	assert.False(t, ok)
}

func TestWriterErrorLeavesNoFile(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	path := filepath.Join(tmpdir, "out.bw")

	w, err := track.NewWriter(ctx, path, track.FormatBigWig, track.Opts{BinLength: 50, Header: testHeader(t)})
	require.NoError(t, err)
	require.NoError(t, w.Write(testRecords[0]))
	err = w.Write(track.Record{RefName: "chrUn", Start: 0, End: 50, Value: 1})
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)
	w.Discard()

	w, err = track.NewWriter(ctx, filepath.Join(tmpdir, "out.bedgraph"), track.FormatBedGraphBGZF, track.Opts{})
	require.NoError(t, err)
	require.NoError(t, w.Write(testRecords[0]))
	w.Discard()

	files, err := ioutil.ReadDir(tmpdir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestNewWriterErrors(t *testing.T) {
	ctx := vcontext.Background()
	_, err := track.NewWriter(ctx, "/dev/null", track.FormatBigWig, track.Opts{})
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)
	_, err = track.NewWriter(ctx, "/dev/null", track.Format(17), track.Opts{})
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)
}

func TestParseFormat(t *testing.T) {
	for _, f := range []track.Format{track.FormatBedGraph, track.FormatBedGraphBGZF, track.FormatBigWig} {
		got, err := track.ParseFormat(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := track.ParseFormat("wig")
	assert.True(t, errors.Is(errors.Invalid, err))
}
