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

// Package fragment maps alignment records to the genomic footprint that a
// coverage count should credit.
//
// A footprint is computed by a pure function of the record and an Opts value,
// so callers can count in parallel without sharing state.  Two policies are
// supported: Standard (the read, optionally extended to a fragment length)
// and CenterFragment (the two or three bases at the middle of a short
// properly-paired fragment, as used for MNase-seq nucleosome calling).
package fragment
