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

// Package record builds typed ChangeEvents from a table schema and a
// raw row tuple (component C4). The two constructors, Read and Create,
// differ only in the EventKind tag they attach; no interface hierarchy
// is needed for what is, at bottom, a two-variant choice (spec §9,
// design note on dynamic dispatch).
package record

import (
	"context"
	"encoding/json"

	"github.com/mysql-cdc/snapshot-core/internal/source/mysnap/filter"
	"github.com/mysql-cdc/snapshot-core/internal/types"
	"github.com/pkg/errors"
)

// Sink is the narrow interface the record maker needs from whatever
// holds the produced event -- the buffered last-record queue (C5) in
// production, a slice-recording fake in tests. Enqueue may block; it
// must return a CancellationError-shaped error if ctx is canceled or
// the queue observes the orchestrator's stop signal while blocked
// (spec §4.4).
type Sink interface {
	Enqueue(ctx context.Context, event types.ChangeEvent) error
}

// Maker constructs ChangeEvents for a single table, bound to the
// table's current schema and the active column filter.
type Maker struct {
	Table       *types.Table
	Filter      *filter.Set
	TopicPrefix string
}

// New constructs a Maker for table, filtered by filterSet.
func New(table *types.Table, filterSet *filter.Set, topicPrefix string) *Maker {
	return &Maker{Table: table, Filter: filterSet, TopicPrefix: topicPrefix}
}

// Read delivers row to sink as a synthetic "read" event: the row
// existed before the snapshot began. ts is the uniform,
// snapshot-start wall-clock value shared by every event in the run;
// per spec §9(c), no per-row ordinal is attached.
func (m *Maker) Read(
	ctx context.Context, sink Sink, row types.Row, ts int64, offset types.Offset,
) error {
	return m.record(ctx, sink, row, ts, offset, types.EventRead)
}

// Create delivers row to sink as a synthetic "insert" event, otherwise
// identical to Read.
func (m *Maker) Create(
	ctx context.Context, sink Sink, row types.Row, ts int64, offset types.Offset,
) error {
	return m.record(ctx, sink, row, ts, offset, types.EventCreate)
}

func (m *Maker) record(
	ctx context.Context, sink Sink, row types.Row, ts int64, offset types.Offset, kind types.EventKind,
) error {
	if len(row) != len(m.Table.Columns) {
		return errors.Errorf(
			"table %s has %d columns, but row has %d values",
			m.Table.ID.Raw(), len(m.Table.Columns), len(row))
	}

	key, err := m.buildKey(row)
	if err != nil {
		return err
	}
	value, err := m.buildValue(row, ts)
	if err != nil {
		return err
	}

	event := types.ChangeEvent{
		SourcePartition: m.Table.ID,
		Offset:          offset,
		Topic:           m.TopicPrefix + "." + m.Table.ID.Raw(),
		Key:             key,
		Value:           value,
		Kind:            kind,
	}
	return sink.Enqueue(ctx, event)
}

func (m *Maker) buildKey(row types.Row) (json.RawMessage, error) {
	pk := m.Table.PrimaryKeyColumns()
	values := make([]any, 0, len(pk))
	for _, col := range pk {
		idx := m.columnIndex(col.Name)
		if idx < 0 {
			return nil, errors.Errorf("primary key column %s not found in row", col.Name)
		}
		values = append(values, row[idx])
	}
	return json.Marshal(values)
}

func (m *Maker) buildValue(row types.Row, ts int64) (json.RawMessage, error) {
	obj := make(map[string]any, len(m.Table.Columns))
	for i, col := range m.Table.Columns {
		if m.Filter != nil && !m.Filter.ColumnFilter(m.Table.ID, col.Name) {
			continue
		}
		obj[col.Name] = row[i]
	}
	obj["__ts_ms"] = ts
	return json.Marshal(obj)
}

func (m *Maker) columnIndex(name string) int {
	for i, col := range m.Table.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}
