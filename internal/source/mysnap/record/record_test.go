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

package record

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mysql-cdc/snapshot-core/internal/source/mysnap/filter"
	"github.com/mysql-cdc/snapshot-core/internal/types"
	"github.com/mysql-cdc/snapshot-core/internal/util/ident"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	events []types.ChangeEvent
}

func (f *fakeSink) Enqueue(_ context.Context, event types.ChangeEvent) error {
	f.events = append(f.events, event)
	return nil
}

func testTable() *types.Table {
	return &types.Table{
		ID: ident.NewTableID("", "app", "users"),
		Columns: []types.ColData{
			{Name: "id", Primary: true, Type: "int"},
			{Name: "email", Type: "varchar(255)"},
			{Name: "password_hash", Type: "varchar(255)"},
		},
	}
}

func TestRecordReadBuildsKeyAndValue(t *testing.T) {
	r := require.New(t)

	table := testTable()
	filterSet, err := filter.Compile(filter.Config{
		Column: filter.Lists{Exclude: []string{"app\\.users\\.password_hash"}},
	})
	r.NoError(err)

	maker := New(table, filterSet, "mysql")
	sink := &fakeSink{}

	offset := types.Offset{File: "binlog.000001", Pos: 42, Snapshot: types.SnapshotInProgress}
	row := types.Row{int64(1), "alice@example.com", "hunter2hash"}

	r.NoError(maker.Read(context.Background(), sink, row, 1700000000000, offset))
	r.Len(sink.events, 1)

	event := sink.events[0]
	r.Equal(types.EventRead, event.Kind)
	r.Equal("mysql.app.users", event.Topic)
	r.Equal(offset, event.Offset)

	var key []any
	r.NoError(json.Unmarshal(event.Key, &key))
	r.Equal([]any{float64(1)}, key)

	var value map[string]any
	r.NoError(json.Unmarshal(event.Value, &value))
	r.Equal("alice@example.com", value["email"])
	r.NotContains(value, "password_hash")
	r.Equal(float64(1700000000000), value["__ts_ms"])
}

func TestRecordCreateTagsEventKind(t *testing.T) {
	r := require.New(t)
	table := testTable()
	maker := New(table, nil, "mysql")
	sink := &fakeSink{}

	row := types.Row{int64(2), "bob@example.com", "hash"}
	r.NoError(maker.Create(context.Background(), sink, row, 1700000000000, types.Offset{}))
	r.Len(sink.events, 1)
	r.Equal(types.EventCreate, sink.events[0].Kind)
}

func TestRecordRejectsMismatchedRowWidth(t *testing.T) {
	r := require.New(t)
	table := testTable()
	maker := New(table, nil, "mysql")
	sink := &fakeSink{}

	err := maker.Read(context.Background(), sink, types.Row{1}, 0, types.Offset{})
	r.Error(err)
	r.Empty(sink.events)
}

func TestRecordNilFilterIncludesAllColumns(t *testing.T) {
	r := require.New(t)
	table := testTable()
	maker := New(table, nil, "mysql")
	sink := &fakeSink{}

	row := types.Row{int64(3), "carol@example.com", "hash"}
	r.NoError(maker.Read(context.Background(), sink, row, 0, types.Offset{}))

	var value map[string]any
	r.NoError(json.Unmarshal(sink.events[0].Value, &value))
	r.Contains(value, "password_hash")
}
