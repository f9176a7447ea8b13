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

// Package ident holds the identifiers used to refer to catalogs,
// databases, and tables on the source MySQL server.
package ident

import (
	"fmt"
	"strings"
)

// TableID is the triple (catalog, schema, table) that identifies a
// table on the source server. The Schema component may be empty, in
// which case it compares equal to any other TableID that otherwise
// matches, per the spec's "equal up to non-null components" rule.
type TableID struct {
	Catalog string
	Schema  string
	Table   string
}

// NewTableID constructs a TableID. Schema may be empty.
func NewTableID(catalog, schema, table string) TableID {
	return TableID{Catalog: catalog, Schema: schema, Table: table}
}

// Equal reports whether id and other refer to the same table, treating
// an empty Schema on either side as a wildcard that matches any value.
func (id TableID) Equal(other TableID) bool {
	if id.Catalog != other.Catalog {
		return false
	}
	if id.Table != other.Table {
		return false
	}
	if id.Schema == "" || other.Schema == "" {
		return true
	}
	return id.Schema == other.Schema
}

// String renders the fully-qualified, backtick-quoted name used in SQL
// statements issued against the source server. Embedded backticks are
// not escaped; see the design notes around identifier escaping.
func (id TableID) String() string {
	var b strings.Builder
	if id.Schema != "" {
		fmt.Fprintf(&b, "`%s`.", id.Schema)
	}
	fmt.Fprintf(&b, "`%s`", id.Table)
	return b.String()
}

// Raw returns the unquoted, fully-qualified dotted name, suitable for
// use as a map key or for display in log messages.
func (id TableID) Raw() string {
	if id.Schema == "" {
		return id.Table
	}
	return id.Schema + "." + id.Table
}

// Schema identifies a source database by catalog and name.
type Schema struct {
	Catalog string
	Name    string
}

// NewSchema constructs a Schema value.
func NewSchema(catalog, name string) Schema {
	return Schema{Catalog: catalog, Name: name}
}

// String renders the backtick-quoted database name used in SQL
// statements such as `USE` or `SHOW TABLES IN`.
func (s Schema) String() string {
	return fmt.Sprintf("`%s`", s.Name)
}

// Raw returns the unquoted database name.
func (s Schema) Raw() string {
	return s.Name
}

// Table builds a TableID rooted at this schema.
func (s Schema) Table(name string) TableID {
	return TableID{Catalog: s.Catalog, Schema: s.Name, Table: name}
}
