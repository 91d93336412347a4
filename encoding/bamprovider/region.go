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

package bamprovider

import (
	"fmt"

	"github.com/grailbio/hts/sam"
)

// checkRegion reports whether region names a reference of header and has a
// nonnegative start.
func checkRegion(header *sam.Header, region Region) error {
	if region.Ref == nil {
		return fmt.Errorf("bamprovider: region %v has no reference", region)
	}
	refs := header.Refs()
	if id := region.Ref.ID(); id < 0 || id >= len(refs) || refs[id].Name() != region.Ref.Name() {
		return fmt.Errorf("bamprovider: reference %s (id %d) is not in the header", region.Ref.Name(), id)
	}
	if region.Start < 0 {
		return fmt.Errorf("bamprovider: region %v starts before the reference", region)
	}
	return nil
}

// failedIterator is returned by NewIterator for a region that cannot be read.
// It yields nothing and reports err.
type failedIterator struct {
	err error
}

func (i *failedIterator) Scan() bool          { return false }
func (i *failedIterator) Record() *sam.Record { panic("bamprovider: Record called on a failed iterator") }
func (i *failedIterator) Err() error          { return i.err }
func (i *failedIterator) Close() error        { return i.err }
