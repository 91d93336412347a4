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
	"gonum.org/v1/gonum/mat"
)

// Matrix holds per-bin counts for one or more samples.
type Matrix struct {
	Bins []Bin
	// Counts has one row per bin and one column per sample.  It is nil iff
	// Bins is empty.
	Counts  *mat.Dense
	samples int
}

// NewMatrix allocates a zero matrix for the given bins and number of samples.
func NewMatrix(bins []Bin, samples int) *Matrix {
	m := &Matrix{Bins: bins, samples: samples}
	if len(bins) > 0 && samples > 0 {
		m.Counts = mat.NewDense(len(bins), samples, nil)
	}
	return m
}

// NumSamples returns the number of columns.
func (m *Matrix) NumSamples() int { return m.samples }

// NumBins returns the number of rows.
func (m *Matrix) NumBins() int { return len(m.Bins) }

// At returns the count of the given bin and sample.
func (m *Matrix) At(bin, sample int) float64 { return m.Counts.At(bin, sample) }

// Column returns a copy of the counts of one sample.
func (m *Matrix) Column(sample int) []float64 {
	if m.Counts == nil {
		return nil
	}
	return mat.Col(nil, sample, m.Counts)
}

func (m *Matrix) zeroRow(i int) bool {
	for _, v := range m.Counts.RawRowView(i) {
		if v != 0 {
			return false
		}
	}
	return true
}

// NonZeroRows returns the number of bins with a nonzero count in at least one
// sample.
func (m *Matrix) NonZeroRows() int {
	n := 0
	for i := range m.Bins {
		if !m.zeroRow(i) {
			n++
		}
	}
	return n
}

// DropZeroRows removes the bins whose count is zero in every sample.  The
// order of the remaining bins is preserved.
func (m *Matrix) DropZeroRows() {
	var (
		bins []Bin
		data []float64
	)
	for i, b := range m.Bins {
		if m.zeroRow(i) {
			continue
		}
		bins = append(bins, b)
		data = append(data, m.Counts.RawRowView(i)...)
	}
	m.Bins = bins
	if len(bins) == 0 {
		m.Counts = nil
		return
	}
	m.Counts = mat.NewDense(len(bins), m.samples, data)
}
