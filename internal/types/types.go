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

// Package types contains the data types and interfaces that define the
// major functional blocks of the snapshot core. Placing them in one
// package makes it easy to compose functionality without import
// cycles, the same role this package plays in the teacher project.
package types

import (
	"database/sql"
	"encoding/json"

	"github.com/mysql-cdc/snapshot-core/internal/util/ident"
)

// SnapshotMarker is the tri-state flag carried on every event's Offset
// that downstream consumers use to decide whether a snapshot is still
// running and, if so, whether this is the final event. It corresponds
// to the NONE|IN_PROGRESS|LAST|COMPLETE states of SourceInfo in
// spec §3, restricted to the values that ever appear on a ChangeEvent
// (COMPLETE never appears on an event; NONE only applies before any
// snapshot has started).
type SnapshotMarker int

const (
	// SnapshotNone means no snapshot is in progress; offsets with this
	// marker are emitted by the binlog-streaming reader, not this
	// package.
	SnapshotNone SnapshotMarker = iota
	// SnapshotInProgress marks every snapshot data event except the
	// last. Schema-change events carry no marker.
	SnapshotInProgress
	// SnapshotLast marks exactly one event per snapshot run: the final
	// data event, rewritten in place by the buffered last-record
	// queue's flush step.
	SnapshotLast
)

// String implements fmt.Stringer.
func (m SnapshotMarker) String() string {
	switch m {
	case SnapshotNone:
		return "NONE"
	case SnapshotInProgress:
		return "IN_PROGRESS"
	case SnapshotLast:
		return "LAST"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders the marker as the JSON the spec's progress-offset
// schema expects: "snapshot" is either absent, a boolean, or the
// literal string "last".
func (m SnapshotMarker) MarshalJSON() ([]byte, error) {
	switch m {
	case SnapshotInProgress:
		return json.Marshal(true)
	case SnapshotLast:
		return json.Marshal("last")
	default:
		return json.Marshal(nil)
	}
}

// BinlogCoordinate identifies a position in the source server's binary
// log. It is captured exactly once, under the global read lock, and
// never mutated afterward.
type BinlogCoordinate struct {
	File     string
	Position uint32
	GTIDSet  string // Empty if the server does not have GTIDs enabled.
}

// IsZero reports whether the coordinate was never populated.
func (c BinlogCoordinate) IsZero() bool {
	return c.File == "" && c.Position == 0 && c.GTIDSet == ""
}

// Offset is the embeddable position information carried by every
// ChangeEvent, matching the progress-offset schema of spec §6:
// {file, pos, gtids?, snapshot, row?}.
type Offset struct {
	File     string
	Pos      uint32
	GTIDSet  string         `json:",omitempty"`
	Snapshot SnapshotMarker `json:"snapshot,omitempty"`
	Row      *int64         `json:"row,omitempty"`
}

// SourceInfo is the mutable progress record threaded through a single
// snapshot (and, afterward, streaming) run. It is single-writer: only
// the orchestrator goroutine mutates it, until the snapshot run
// finishes, at which point ownership passes to the streaming reader. Callers that need a point-in-time view for building an
// Offset must call Snapshot() to get an immutable copy.
type SourceInfo struct {
	Coordinate BinlogCoordinate
	Marker     SnapshotMarker
}

// Snapshot returns an immutable copy of the current state, suitable
// for embedding into a ChangeEvent's Offset.
func (s *SourceInfo) Snapshot() Offset {
	return Offset{
		File:     s.Coordinate.File,
		Pos:      s.Coordinate.Position,
		GTIDSet:  s.Coordinate.GTIDSet,
		Snapshot: s.Marker,
	}
}

// Row is an ordered tuple of column values, one per column of the
// table it was read from, in the column order returned by the server.
// A nil entry represents SQL NULL, which is distinct from any other
// zero value a column's type might hold.
type Row []any

// SchemaChange is a DDL-carrying event produced by the schema model
// whenever step 6 rebuilds in-memory schema from the live server.
type SchemaChange struct {
	Database        string
	DDL             string
	TimestampMillis int64
}

// EventKind distinguishes the two ways the record maker can construct
// a ChangeEvent from the same row: a synthetic "read" (the row existed
// before the snapshot began) or a synthetic "insert"/"create" (the row
// is being introduced to the downstream system for the first time).
// The two differ only in the ChangeEvent's Kind field; the key/value
// construction is identical.
type EventKind int

const (
	// EventRead tags an event produced while dumping existing rows
	// under the snapshot's MVCC view.
	EventRead EventKind = iota
	// EventCreate tags an event produced the same way, but labeled as
	// an insert for downstream systems that distinguish the two.
	EventCreate
)

// ChangeEvent is a single row-level change (or schema change) ready to
// hand to the downstream sink.
type ChangeEvent struct {
	SourcePartition ident.TableID
	Offset          Offset
	Topic           string
	Key             json.RawMessage
	KeySchema       string
	Value           json.RawMessage
	ValueSchema     string
	Kind            EventKind
}

// ColData holds SQL column metadata for a single table column.
type ColData struct {
	Name    string
	Primary bool
	Type    string
}

// Table is the in-memory representation of one source table's schema,
// owned exclusively by the schema model (component C3).
type Table struct {
	ID      ident.TableID
	Columns []ColData
}

// PrimaryKeyColumns returns the subset of Columns flagged Primary, in
// declaration order.
func (t *Table) PrimaryKeyColumns() []ColData {
	var ret []ColData
	for _, c := range t.Columns {
		if c.Primary {
			ret = append(ret, c)
		}
	}
	return ret
}

// Product identifies the kind of server a PoolInfo is connected to.
// The snapshot core only ever talks to a MySQL SourcePool; the enum
// carries a zero value distinct from ProductMySQL so a PoolInfo that
// was never populated is still distinguishable from one that is.
type Product int

// Supported products.
const (
	ProductUnknown Product = iota
	ProductMySQL
)

// PoolInfo describes a database connection pool and what it is
// connected to.
type PoolInfo struct {
	ConnectionString string
	Product          Product
	Version          string
}

// Info returns the PoolInfo when embedded.
func (i *PoolInfo) Info() *PoolInfo { return i }

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// SourcePool is the injection point for a connection to the MySQL
// server being snapshotted.
type SourcePool struct {
	*sql.DB
	PoolInfo
	_ noCopy
}

