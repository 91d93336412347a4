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
Package coverage turns aligned reads into per-bin counts.

The genome (or a list of regions) is partitioned into bins.  Count splits the
bins into contiguous chunks and runs one task per chunk and input file on a
bounded worker pool; every task opens its own iterator, applies the record
filter and the fragment policy, and returns the counts of its own bins.  The
partial results are stitched together in chunk order, so the resulting Matrix
does not depend on scheduling or on the degree of parallelism.

A Matrix is then either scaled and written as a signal track (AssembleTrack,
WriteTrack) or written as a multi-sample summary (WriteSummary).
*/
package coverage
