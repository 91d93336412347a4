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

package interval

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// PosType is the coordinate type of BED entries.  BAM positions are limited
// to int32, so BED positions are too.
type PosType int32

const posTypeMax = math.MaxInt32

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// Entry represents a single interval, with 0-based coordinates.
type Entry struct {
	ChrName string
	Start0  PosType
	End     PosType
	// Name is the optional fourth BED column.
	Name string
}

// NewBEDOpts defines behavior of this package's BED-loading functions.
type NewBEDOpts struct {
	// OneBasedInput interprets the BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).
	OneBasedInput bool
}

// isHeaderLine reports whether a BED line carries no interval: comments and
// UCSC "track"/"browser" lines.
func isHeaderLine(line []byte) bool {
	return bytes.HasPrefix(line, []byte("#")) ||
		bytes.HasPrefix(line, []byte("track")) ||
		bytes.HasPrefix(line, []byte("browser"))
}

// NewBEDEntries loads the intervals of a BED file in file order.  Unlike a
// union, overlapping and unsorted intervals are kept exactly as given.
func NewBEDEntries(reader io.Reader, opts NewBEDOpts) (entries []Entry, err error) {
	var startSubtract int
	if opts.OneBasedInput {
		startSubtract++
	}
	scanner := bufio.NewScanner(reader)
	var tokens [4][]byte
	lineIdx := 0
	totBases := 0
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		if isHeaderLine(curLine) {
			continue
		}
		nToken := getTokens(tokens[:], curLine)
		if nToken == 0 {
			continue
		}
		if nToken < 3 {
			return nil, fmt.Errorf("interval.NewBEDEntries: line %d has fewer tokens than expected", lineIdx)
		}
		var parsedStart int
		if parsedStart, err = strconv.Atoi(gunsafe.BytesToString(tokens[1])); err != nil {
			return nil, errors.Wrapf(err, "interval.NewBEDEntries: line %d", lineIdx)
		}
		parsedStart -= startSubtract
		if parsedStart < 0 {
			return nil, fmt.Errorf("interval.NewBEDEntries: negative start coordinate %s on line %d", tokens[1], lineIdx)
		}
		var parsedEnd int
		if parsedEnd, err = strconv.Atoi(gunsafe.BytesToString(tokens[2])); err != nil {
			return nil, errors.Wrapf(err, "interval.NewBEDEntries: line %d", lineIdx)
		}
		if (parsedEnd <= parsedStart) || (parsedEnd >= posTypeMax) {
			return nil, fmt.Errorf("interval.NewBEDEntries: invalid coordinate pair on line %d", lineIdx)
		}
		entry := Entry{
			ChrName: string(tokens[0]),
			Start0:  PosType(parsedStart),
			End:     PosType(parsedEnd),
		}
		if nToken == 4 {
			entry.Name = string(tokens[3])
		}
		entries = append(entries, entry)
		totBases += parsedEnd - parsedStart
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	log.Printf("BED loaded, %d interval(s), %d base(s).", len(entries), totBases)
	return entries, nil
}

// NewBEDEntriesFromPath is a wrapper for NewBEDEntries that takes a path
// instead of an io.Reader.  Gzipped files are decompressed transparently.
func NewBEDEntriesFromPath(path string, opts NewBEDOpts) (entries []Entry, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		if reader, err = gzip.NewReader(reader); err != nil {
			return
		}
	}
	return NewBEDEntries(reader, opts)
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// returning a contig ID and 0-based interval boundaries.  The interval
// [0, posTypeMax - 1] is returned if there is no positional restriction.
// Thousands separators (',') in positions are accepted.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.IndexByte(region, ':')
	if colonPos == -1 {
		result.ChrName = region
		result.Start0 = 0
		result.End = posTypeMax - 1
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig ID")
		return
	}
	result.ChrName = region[0:colonPos]
	rangeStr := strings.Replace(region[colonPos+1:], ",", "", -1)
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr)
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	var start1 int
	if start1, err = strconv.Atoi(start1Str); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", start1Str)
		return
	}
	var end0 int
	if end0, err = strconv.Atoi(endStr); err != nil {
		return
	}
	if end0 < start1 || end0 >= posTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.Start0 = PosType(start1 - 1)
	result.End = PosType(end0)
	return
}
