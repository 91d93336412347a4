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

package fragment

import (
	"github.com/grailbio/hts/sam"
)

// Filter selects the records that contribute to coverage.  The zero value
// accepts every mapped record.
type Filter struct {
	// MinMapQ skips records with a mapping quality below this value.
	MinMapQ int
	// FlagInclude, if nonzero, skips records that lack any of these flag bits.
	FlagInclude sam.Flags
	// FlagExclude skips records carrying any of these flag bits.
	FlagExclude sam.Flags
	// IgnoreDuplicates skips records marked as duplicates.
	IgnoreDuplicates bool
}

// Pass reports whether r survives the filter.  Unmapped records never pass.
func (f *Filter) Pass(r *sam.Record) bool {
	if r.Ref == nil || r.Flags&sam.Unmapped != 0 {
		return false
	}
	if int(r.MapQ) < f.MinMapQ {
		return false
	}
	if f.FlagInclude != 0 && r.Flags&f.FlagInclude != f.FlagInclude {
		return false
	}
	if r.Flags&f.FlagExclude != 0 {
		return false
	}
	if f.IgnoreDuplicates && r.Flags&sam.Duplicate != 0 {
		return false
	}
	return true
}
