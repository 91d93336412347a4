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
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartition(t *testing.T) {
	header, _, _ := newTestHeader(t)
	bin := func(refID int, refName string, start, end int) Bin {
		return Bin{RefID: refID, RefName: refName, Start: start, End: end}
	}
	tests := []struct {
		opts PartitionOpts
		want []Bin
	}{
		{
			PartitionOpts{BinLength: 300},
			[]Bin{bin(0, "chr1", 0, 300), bin(0, "chr1", 300, 600), bin(0, "chr1", 600, 900), bin(1, "chr2", 0, 300)},
		},
		{
			PartitionOpts{BinLength: 300, Gap: 100},
			[]Bin{bin(0, "chr1", 0, 300), bin(0, "chr1", 400, 700), bin(1, "chr2", 0, 300)},
		},
		{
			PartitionOpts{BinLength: 300, Region: "chr1:101-700"},
			[]Bin{bin(0, "chr1", 100, 400), bin(0, "chr1", 400, 700)},
		},
		{
			PartitionOpts{BinLength: 250, Region: "chr2"},
			[]Bin{bin(1, "chr2", 0, 250), bin(1, "chr2", 250, 500)},
		},
		{
			PartitionOpts{BinLength: 600, Region: "chr2"},
			nil,
		},
	}
	for _, test := range tests {
		got, err := Partition(header, test.opts)
		require.NoError(t, err)
		assert.Equal(t, test.want, got, "%+v", test.opts)
	}

	for _, opts := range []PartitionOpts{
		{BinLength: 0},
		{BinLength: 50, Gap: -1},
		{BinLength: 50, Region: "chrX:1-100"},
		{BinLength: 50, Region: "chr1:100-1"},
	} {
		_, err := Partition(header, opts)
		assert.True(t, errors.Is(errors.Invalid, err), "%+v: %v", opts, err)
	}
}

func TestMatrixDropZeroRows(t *testing.T) {
	bins := []Bin{{RefName: "a", End: 1}, {RefName: "b", End: 1}, {RefName: "c", End: 1}}
	m := NewMatrix(bins, 2)
	m.Counts.Set(1, 1, 3)
	assert.Equal(t, 1, m.NonZeroRows())
	m.DropZeroRows()
	assert.Equal(t, []Bin{{RefName: "b", End: 1}}, m.Bins)
	assert.Equal(t, []float64{0}, m.Column(0))
	assert.Equal(t, []float64{3}, m.Column(1))

	m = NewMatrix(bins, 2)
	m.DropZeroRows()
	assert.Empty(t, m.Bins)
	assert.Nil(t, m.Counts)
	assert.Equal(t, 2, m.NumSamples())
	assert.Equal(t, 0, m.NonZeroRows())
}
