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

// Package logical contains the small set of interfaces shared by every
// source dialect -- a one-shot backfill (the snapshot core implemented
// in internal/source/mysnap) or a continuous reader (the
// binlog-streaming subsystem, out of scope for this repository) -- and
// the downstream sink that consumes the Messages they produce.
package logical

import (
	"context"

	"github.com/mysql-cdc/snapshot-core/internal/types"
	"github.com/mysql-cdc/snapshot-core/internal/util/stamp"
)

// A Message is either a schema-change or a data event. Rather than an
// interface hierarchy with per-kind implementations, a single tagged
// variant with two constructors is enough: the snapshot "recorder" is
// polymorphic only over {data, schema}, so there's nothing for
// dynamic dispatch to buy us here.
type Message struct {
	Schema *types.SchemaChange
	Data   *types.ChangeEvent
}

// NewSchemaMessage wraps a schema-change event.
func NewSchemaMessage(change types.SchemaChange) Message {
	return Message{Schema: &change}
}

// NewDataMessage wraps a row-level change event.
func NewDataMessage(event types.ChangeEvent) Message {
	return Message{Data: &event}
}

// IsSchema reports whether m carries a schema-change event.
func (m Message) IsSchema() bool { return m.Schema != nil }

// State is the read-only view of a running loop that Dialects and
// Events implementations are given so that they can poll for
// cancellation and inspect the current consistent point without
// reaching into the loop's internals.
type State interface {
	// GetConsistentPoint returns the dialect-specific Stamp
	// representing how far the loop has progressed, along with a
	// channel that is closed the next time it changes.
	GetConsistentPoint() (stamp.Stamp, <-chan struct{})

	// Stopping returns a channel that is closed once cooperative
	// shutdown has been requested. Every blocking operation performed
	// on behalf of a loop must select on this channel.
	Stopping() <-chan struct{}
}

// A Dialect knows how to continuously read from some source and
// deliver Messages to a channel. It is the seam the (out-of-scope)
// binlog-streaming reader occupies; the snapshot core does not
// implement it.
type Dialect interface {
	// ReadInto streams Messages onto ch until ctx is canceled, state
	// reports Stopping, or an unrecoverable error occurs.
	ReadInto(ctx context.Context, ch chan<- Message, state State) error

	// ZeroStamp returns the Stamp value representing "no progress has
	// been made yet," used when a loop starts cold.
	ZeroStamp() stamp.Stamp
}

// A Backfiller performs a single, one-shot pass over existing data,
// emitting Messages onto ch and returning once the pass is complete,
// canceled, or failed. The snapshot core's orchestrator is a
// Backfiller.
type Backfiller interface {
	BackfillInto(ctx context.Context, ch chan<- Message, state State) error
}

// Events is the downstream sink's receiving contract. Implementations
// may block on OnData/OnSchemaChange to apply backpressure; the caller
// must observe State.Stopping() while blocked and propagate a
// CancellationError rather than hang forever.
type Events interface {
	// OnSchemaChange delivers a DDL-carrying event. Schema events for
	// a given table always precede that table's data events.
	OnSchemaChange(ctx context.Context, change types.SchemaChange) error

	// OnData delivers a single row-level change event.
	OnData(ctx context.Context, event types.ChangeEvent) error

	// Flush is invoked after the terminal event of a run has been
	// delivered (for a snapshot, that's the one event carrying
	// types.SnapshotLast). Implementations that buffer internally
	// must ensure everything is visible to downstream readers before
	// returning.
	Flush(ctx context.Context) error

	// Stopping mirrors State.Stopping so that an Events implementation
	// can also observe cooperative shutdown requests originating on
	// the sink side (e.g. the HTTP client serving poll() disconnects).
	Stopping() <-chan struct{}
}
