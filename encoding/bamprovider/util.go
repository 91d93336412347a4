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
	"github.com/grailbio/hts/sam"
)

// RefByName finds a sam.Reference with the given name. It returns nil if a
// reference is not found.
func RefByName(h *sam.Header, refName string) *sam.Reference {
	for _, ref := range h.Refs() {
		if ref.Name() == refName {
			return ref
		}
	}
	return nil
}

// TotalMappedReads returns the number of mapped records in p, excluding the
// references named in ignore.
func TotalMappedReads(p Provider, ignore []string) (int64, error) {
	h, err := p.GetHeader()
	if err != nil {
		return 0, err
	}
	counts, err := p.MappedCounts()
	if err != nil {
		return 0, err
	}
	skip := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		skip[name] = true
	}
	var total int64
	for _, ref := range h.Refs() {
		if skip[ref.Name()] {
			continue
		}
		total += counts[ref.ID()]
	}
	return total, nil
}
