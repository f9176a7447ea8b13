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

// Package schema owns the in-memory catalog of known tables
// (component C3). It mirrors the role the teacher's Watcher interface
// plays for the target schema, but on the source side: the
// orchestrator feeds it synthetic DDL and table schemas during step 6,
// and the tables it installs are the ones the record makers build
// ChangeEvents from during step 8.
package schema

import (
	"strings"
	"sync"
	"time"

	"github.com/mysql-cdc/snapshot-core/internal/types"
	"github.com/mysql-cdc/snapshot-core/internal/util/ident"
	"github.com/pkg/errors"
)

// Emitter is invoked exactly once per call to ApplyDDL when emission is
// enabled and the DDL string is non-empty.
type Emitter func(database, ddl string) error

// Model is a mutable catalog of Table objects keyed by TableID. It is
// shared-read during snapshot and single-writer (the orchestrator
// goroutine); the mutex exists only to make that discipline safe to
// assert in tests, not to support concurrent writers.
type Model struct {
	mu struct {
		sync.RWMutex
		tables map[string]*types.Table
	}
	emit bool
}

// New constructs an empty Model. emitChanges controls whether ApplyDDL
// invokes its Emitter argument at all; some callers (e.g. a
// schema-only snapshot that has no downstream registry configured)
// want the catalog updated silently.
func New(emitChanges bool) *Model {
	m := &Model{emit: emitChanges}
	m.mu.tables = make(map[string]*types.Table)
	return m
}

// TableFor returns the current schema for id, if known.
func (m *Model) TableFor(id ident.TableID) (*types.Table, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.mu.tables[id.Raw()]
	return t, ok
}

// KnownTables returns every TableID currently tracked, in no
// particular order.
func (m *Model) KnownTables() []ident.TableID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]ident.TableID, 0, len(m.mu.tables))
	for _, t := range m.mu.tables {
		ret = append(ret, t.ID)
	}
	return ret
}

// KnownDatabases returns the distinct set of database names that have
// at least one tracked table.
func (m *Model) KnownDatabases() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var ret []string
	for _, t := range m.mu.tables {
		if !seen[t.ID.Schema] {
			seen[t.ID.Schema] = true
			ret = append(ret, t.ID.Schema)
		}
	}
	return ret
}

// DropTable removes id from the catalog. It is idempotent.
func (m *Model) DropTable(id ident.TableID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mu.tables, id.Raw())
}

// DropDatabase removes every table belonging to database from the
// catalog. It is idempotent.
func (m *Model) DropDatabase(database string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, t := range m.mu.tables {
		if t.ID.Schema == database {
			delete(m.mu.tables, key)
		}
	}
}

// PutTable installs or replaces the schema for a table, applying a
// CREATE-TABLE-equivalent DDL. It is used directly by tests and by the
// orchestrator's step-6 schema rebuild.
func (m *Model) PutTable(t *types.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mu.tables[t.ID.Raw()] = t
}

// ApplyDDL forwards a single DDL statement to emitter: if emission is
// enabled and ddl is non-empty, emitter is invoked exactly once. It
// does not parse ddl and does not change the catalog; callers make the
// matching catalog change themselves through PutTable, DropTable, or
// DropDatabase.
func (m *Model) ApplyDDL(database, ddl string, emitter Emitter) error {
	if emitter != nil && m.emit && ddl != "" {
		if err := emitter(database, ddl); err != nil {
			return err
		}
	}
	return nil
}

// NewTableFromColumns is a convenience constructor used by the
// orchestrator's SHOW CREATE TABLE handling once DDL has been parsed
// elsewhere into a column list.
func NewTableFromColumns(id ident.TableID, cols []types.ColData) *types.Table {
	return &types.Table{ID: id, Columns: cols}
}

// SetVariablesDDL renders the database-agnostic charset SET statement
// that step 6.1 issues first, from the server probe's charset
// variables.
func SetVariablesDDL(vars map[string]string) string {
	if len(vars) == 0 {
		return ""
	}
	ddl := "SET "
	first := true
	// Deterministic order keeps tests and logs stable.
	for _, name := range []string{"character_set_server", "collation_server"} {
		v, ok := vars[name]
		if !ok {
			continue
		}
		if !first {
			ddl += ", "
		}
		first = false
		ddl += "@@GLOBAL." + name + " = '" + v + "'"
	}
	if first {
		return ""
	}
	return ddl
}

// DropTableDDL renders the DROP TABLE IF EXISTS statement for id.
func DropTableDDL(id ident.TableID) string {
	return "DROP TABLE IF EXISTS " + id.String()
}

// DropDatabaseDDL renders the DROP DATABASE IF EXISTS statement for
// database.
func DropDatabaseDDL(database string) string {
	return "DROP DATABASE IF EXISTS `" + database + "`"
}

// CreateDatabaseDDL renders the DROP+CREATE+USE bundle step 6.4 issues
// before replaying each discovered database's tables.
func CreateDatabaseDDL(database string) (drop, create, use string) {
	return DropDatabaseDDL(database),
		"CREATE DATABASE `" + database + "`",
		"USE `" + database + "`"
}

// NowMillis is the wall-clock value schema-change events carry.
// Declared as a variable so tests can stub it.
var NowMillis = func() int64 { return time.Now().UnixMilli() }

// ParseCreateTable extracts a column list from the DDL text returned by
// SHOW CREATE TABLE. It is a narrow, purpose-built reader of the one
// dialect of CREATE TABLE MySQL itself emits back -- not a general SQL
// parser -- so it only needs to recognize column definitions, the
// PRIMARY KEY clause, and the handful of other clause kinds (KEY,
// INDEX, UNIQUE, CONSTRAINT, FOREIGN KEY) it must skip over.
func ParseCreateTable(ddl string) ([]types.ColData, error) {
	open := strings.IndexByte(ddl, '(')
	if open < 0 {
		return nil, errors.Errorf("no column list found in DDL: %q", ddl)
	}
	closeIdx := matchingParen(ddl, open)
	if closeIdx < 0 {
		return nil, errors.Errorf("unbalanced parentheses in DDL: %q", ddl)
	}
	body := ddl[open+1 : closeIdx]

	clauses := splitTopLevel(body)
	var cols []types.ColData
	primary := make(map[string]bool)
	index := make(map[string]int)

	for _, clause := range clauses {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		upper := strings.ToUpper(clause)
		switch {
		case strings.HasPrefix(upper, "PRIMARY KEY"):
			for _, name := range extractParenColumns(clause) {
				primary[name] = true
			}
		case strings.HasPrefix(upper, "KEY"),
			strings.HasPrefix(upper, "INDEX"),
			strings.HasPrefix(upper, "UNIQUE"),
			strings.HasPrefix(upper, "CONSTRAINT"),
			strings.HasPrefix(upper, "FOREIGN KEY"),
			strings.HasPrefix(upper, "FULLTEXT"),
			strings.HasPrefix(upper, "SPATIAL"),
			strings.HasPrefix(upper, "CHECK"):
			// Not a column definition; skipped.
		case strings.HasPrefix(clause, "`"):
			name, colType, err := parseColumnDef(clause)
			if err != nil {
				return nil, err
			}
			index[name] = len(cols)
			cols = append(cols, types.ColData{Name: name, Type: colType})
		default:
			// Unrecognized clause kind; skip rather than fail, since
			// new MySQL table-option syntax appears faster than this
			// reader can be updated for it.
		}
	}

	for name := range primary {
		if i, ok := index[name]; ok {
			cols[i].Primary = true
		}
	}
	return cols, nil
}

// parseColumnDef splits a single column-definition clause into its
// backtick-quoted name and the remainder (type plus constraints,
// stored verbatim as ColData.Type).
func parseColumnDef(clause string) (name, rest string, err error) {
	if !strings.HasPrefix(clause, "`") {
		return "", "", errors.Errorf("expected column definition, got %q", clause)
	}
	end := strings.IndexByte(clause[1:], '`')
	if end < 0 {
		return "", "", errors.Errorf("unterminated identifier in %q", clause)
	}
	name = clause[1 : end+1]
	rest = strings.TrimSpace(clause[end+2:])
	return name, rest, nil
}

// extractParenColumns returns the backtick-quoted column names inside
// the first parenthesized list found in clause, e.g.
// "PRIMARY KEY (`a`,`b`)" -> ["a", "b"].
func extractParenColumns(clause string) []string {
	open := strings.IndexByte(clause, '(')
	if open < 0 {
		return nil
	}
	closeIdx := matchingParen(clause, open)
	if closeIdx < 0 {
		return nil
	}
	var ret []string
	for _, part := range strings.Split(clause[open+1:closeIdx], ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimSuffix(strings.TrimPrefix(part, "`"), "`")
		if idx := strings.IndexByte(part, '`'); idx >= 0 {
			part = part[:idx]
		}
		if part != "" {
			ret = append(ret, part)
		}
	}
	return ret
}

// matchingParen returns the index of the ')' matching the '(' at
// position open, or -1 if the parentheses are unbalanced.
func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits body on commas that are not nested inside
// parentheses, so that column types such as DECIMAL(10,2) are not
// split apart.
func splitTopLevel(body string) []string {
	var ret []string
	depth := 0
	start := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				ret = append(ret, body[start:i])
				start = i + 1
			}
		}
	}
	ret = append(ret, body[start:])
	return ret
}
