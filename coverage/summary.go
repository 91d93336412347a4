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
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/sbinet/npyio/npz"
)

// Names of the arrays of a summary .npz file.
const (
	ArrayMatrix = "matrix"
	ArrayLabels = "labels"
	ArrayChroms = "chroms"
	ArrayStarts = "starts"
	ArrayEnds   = "ends"
)

// NPYName returns the archive member name of the array name.  numpy.load
// strips the suffix.
func NPYName(name string) string { return name + ".npy" }

// SummaryOpts controls WriteSummary.
type SummaryOpts struct {
	// OutPath is the .npz file to create.
	OutPath string
	// RawCountsPath, if nonempty, is a tab-separated table of the counts
	// with one line per bin.
	RawCountsPath string
	// TempDir holds the temporary files.  "" means the system default.
	TempDir string
	Verbose bool
}

// WriteSummary writes m, one column per label, to opts.OutPath and optionally
// opts.RawCountsPath.  On error, neither file is left behind.
func WriteSummary(ctx context.Context, m *Matrix, labels []string, opts SummaryOpts) (err error) {
	if len(labels) != m.NumSamples() {
		return errors.E(errors.Invalid,
			fmt.Sprintf("the number of labels (%d) does not match the number of BAM files (%d)", len(labels), m.NumSamples()))
	}
	if len(m.Bins) < 2 {
		return errors.E(errors.Precondition, fmt.Sprintf("too few bins to summarize (%d)", len(m.Bins)))
	}
	var body *os.File
	if opts.RawCountsPath != "" {
		if body, err = writeRawBody(m, opts.TempDir); err != nil {
			return err
		}
		defer func() {
			body.Close()           // nolint: errcheck
			os.Remove(body.Name()) // nolint: errcheck
		}()
	}

	npzOut, err := file.Create(ctx, opts.OutPath)
	if err != nil {
		return err
	}
	if err = writeNPZ(ctx, npzOut, m, labels); err != nil {
		npzOut.Discard(ctx)
		return err
	}
	var rawOut file.File
	if body != nil {
		if rawOut, err = file.Create(ctx, opts.RawCountsPath); err == nil {
			err = writeRawCounts(ctx, rawOut, labels, body)
			if err != nil {
				rawOut.Discard(ctx)
			}
		}
		if err != nil {
			npzOut.Discard(ctx)
			return err
		}
	}
	if err = npzOut.Close(ctx); err != nil {
		if rawOut != nil {
			rawOut.Discard(ctx)
		}
		return err
	}
	if rawOut != nil {
		if err = rawOut.Close(ctx); err != nil {
			file.Remove(ctx, opts.OutPath) // nolint: errcheck
			return err
		}
	}
	if opts.Verbose {
		log.Printf("coverage.WriteSummary: wrote %d bins x %d samples to %s", len(m.Bins), m.NumSamples(), opts.OutPath)
	}
	return nil
}

func writeNPZ(ctx context.Context, out file.File, m *Matrix, labels []string) error {
	var (
		chroms = make([]string, len(m.Bins))
		starts = make([]int64, len(m.Bins))
		ends   = make([]int64, len(m.Bins))
	)
	for i, b := range m.Bins {
		chroms[i], starts[i], ends[i] = b.RefName, int64(b.Start), int64(b.End)
	}
	w := npz.NewWriter(out.Writer(ctx))
	for _, a := range []struct {
		name string
		v    interface{}
	}{
		{ArrayMatrix, m.Counts},
		{ArrayLabels, labels},
		{ArrayChroms, chroms},
		{ArrayStarts, starts},
		{ArrayEnds, ends},
	} {
		if err := w.Write(NPYName(a.name), a.v); err != nil {
			return err
		}
	}
	return w.Close()
}

// writeRawBody writes one line per bin to a temporary file and returns it
// rewound.
func writeRawBody(m *Matrix, tempDir string) (*os.File, error) {
	tmp, err := ioutil.TempFile(tempDir, "rawcounts_*.tsv")
	if err != nil {
		return nil, err
	}
	w := tsv.NewWriter(tmp)
	for i, b := range m.Bins {
		w.WriteString(b.RefName)
		w.WriteUint32(uint32(b.Start))
		w.WriteUint32(uint32(b.End))
		for _, v := range m.Counts.RawRowView(i) {
			w.WriteFloat64(v, 'g', -1)
		}
		if err = w.EndLine(); err != nil {
			break
		}
	}
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		_, err = tmp.Seek(0, io.SeekStart)
	}
	if err != nil {
		tmp.Close()           // nolint: errcheck
		os.Remove(tmp.Name()) // nolint: errcheck
		return nil, err
	}
	return tmp, nil
}

// writeRawCounts writes the header line followed by body to out.
func writeRawCounts(ctx context.Context, out file.File, labels []string, body io.Reader) error {
	w := tsv.NewWriter(out.Writer(ctx))
	w.WriteString("#'chr'")
	w.WriteString("'start'")
	w.WriteString("'end'")
	for _, l := range labels {
		w.WriteString("'" + l + "'")
	}
	if err := w.EndLine(); err != nil {
		return err
	}
	if err := w.Copy(body); err != nil {
		return err
	}
	return w.Flush()
}
