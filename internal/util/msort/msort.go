// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package msort contains utility functions for de-duplicating the
// table and database sets that the schema-rebuild step (step 6 of the
// snapshot protocol) assembles.
package msort

import "github.com/mysql-cdc/snapshot-core/internal/util/ident"

// UniqueTableIDs implements a "first one wins" approach to removing
// duplicate tables from the input slice, preserving the relative order
// of first occurrence. It is used to build the union of
// previously-known and newly-discovered tables that step 6 issues
// DROP TABLE IF EXISTS statements for, without emitting the same DROP
// twice.
//
// The modified slice is returned.
func UniqueTableIDs(x []ident.TableID) []ident.TableID {
	// For any given raw name, we're going to track the index in the
	// slice that holds the first occurrence of that table.
	seenIdx := make(map[string]int, len(x))

	// We iterate forwards over the input slice, moving elements to the
	// front so that the earliest (lowest source index) occurrence of a
	// table ends up retained.
	dest := 0
	for src := 0; src < len(x); src++ {
		key := x[src].Raw()

		if _, found := seenIdx[key]; found {
			// An earlier occurrence was already retained; discard this
			// one by simply not copying it forward.
			continue
		}
		seenIdx[key] = dest
		x[dest] = x[src]
		dest++
	}

	// Return the compacted view of the slice.
	return x[:dest]
}

// UniqueStrings removes duplicate strings from x, preserving the order
// of first occurrence. It is used to de-duplicate database names
// discovered across multiple SHOW DATABASES-derived listings.
func UniqueStrings(x []string) []string {
	seen := make(map[string]struct{}, len(x))
	dest := x[:0]
	for _, s := range x {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dest = append(dest, s)
	}
	return dest
}
