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

// Package filter compiles the include/exclude configuration lists into
// predicates over tables, columns, and databases (component C1 of the
// snapshot core).
package filter

import (
	"regexp"

	"github.com/mysql-cdc/snapshot-core/internal/util/ident"
	"github.com/pkg/errors"
)

// builtinDatabases are excluded by default when IgnoreBuiltin is set.
var builtinDatabases = map[string]bool{
	"mysql":              true,
	"information_schema": true,
	"performance_schema": true,
	"sys":                true,
}

// Lists holds one dimension's raw include/exclude regex patterns,
// prior to compilation. Exactly one of Include or Exclude may be
// non-empty; setting both is a ConfigError, enforced by Compile.
type Lists struct {
	Include []string
	Exclude []string
}

// Config is the raw, uncompiled filter configuration across all four
// dimensions spec §4.1 names.
type Config struct {
	Database     Lists
	Table        Lists
	Column       Lists
	GTIDSource   Lists
	IgnoreBuiltin bool
}

// Set is the compiled form of Config: regexp.Regexp predicates over
// fully-qualified, POSIX-extended, case-sensitive, anchored names.
type Set struct {
	database      *compiled
	table         *compiled
	column        *compiled
	gtidSource    *compiled
	ignoreBuiltin bool
}

type compiled struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

func (c *compiled) matches(name string) bool {
	if c == nil {
		return true
	}
	if len(c.include) > 0 {
		for _, re := range c.include {
			if re.MatchString(name) {
				return true
			}
		}
		return false
	}
	if len(c.exclude) > 0 {
		for _, re := range c.exclude {
			if re.MatchString(name) {
				return false
			}
		}
	}
	return true
}

func compileLists(dimension string, lists Lists) (*compiled, error) {
	if len(lists.Include) > 0 && len(lists.Exclude) > 0 {
		return nil, errors.Errorf(
			"%s: include list and exclude list are mutually exclusive", dimension)
	}
	ret := &compiled{}
	for _, pattern := range lists.Include {
		re, err := regexp.CompilePOSIX("^(?:" + pattern + ")$")
		if err != nil {
			return nil, errors.Wrapf(err, "%s: invalid include pattern %q", dimension, pattern)
		}
		ret.include = append(ret.include, re)
	}
	for _, pattern := range lists.Exclude {
		re, err := regexp.CompilePOSIX("^(?:" + pattern + ")$")
		if err != nil {
			return nil, errors.Wrapf(err, "%s: invalid exclude pattern %q", dimension, pattern)
		}
		ret.exclude = append(ret.exclude, re)
	}
	return ret, nil
}

// Compile validates and compiles a Config into a Set. It returns a
// ConfigError-shaped error (via the caller's wrapping, see
// mysnap.Config.Preflight) if any dimension sets both an include list
// and an exclude list.
func Compile(cfg Config) (*Set, error) {
	db, err := compileLists("database filter", cfg.Database)
	if err != nil {
		return nil, err
	}
	tbl, err := compileLists("table filter", cfg.Table)
	if err != nil {
		return nil, err
	}
	col, err := compileLists("column filter", cfg.Column)
	if err != nil {
		return nil, err
	}
	gtid, err := compileLists("gtid source filter", cfg.GTIDSource)
	if err != nil {
		return nil, err
	}
	return &Set{
		database:      db,
		table:         tbl,
		column:        col,
		gtidSource:    gtid,
		ignoreBuiltin: cfg.IgnoreBuiltin,
	}, nil
}

// DatabaseFilter reports whether the named database should be
// traversed at all.
func (s *Set) DatabaseFilter(name string) bool {
	if s.ignoreBuiltin && builtinDatabases[name] {
		return false
	}
	return s.database.matches(name)
}

// TableFilter reports whether the given table should be included in
// the snapshot (and, later, in binlog streaming).
func (s *Set) TableFilter(id ident.TableID) bool {
	if !s.DatabaseFilter(id.Schema) {
		return false
	}
	return s.table.matches(id.Raw())
}

// ColumnFilter reports whether the named column of the given table
// should be included in emitted events.
func (s *Set) ColumnFilter(id ident.TableID, column string) bool {
	return s.column.matches(id.Raw() + "." + column)
}

// GTIDSourceFilter reports whether the named GTID source UUID should
// be retained when building a GTID set for handoff to streaming.
func (s *Set) GTIDSourceFilter(sourceUUID string) bool {
	return s.gtidSource.matches(sourceUUID)
}
