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

// Package sinktest holds test doubles standing in for the downstream
// sink that would otherwise consume the snapshot core's output; its
// RecordingEvents plays the role the teacher's serialEvents plays in
// its own package, but records rather than applies.
package sinktest

import (
	"context"
	"sync"

	"github.com/mysql-cdc/snapshot-core/internal/source/logical"
	"github.com/mysql-cdc/snapshot-core/internal/types"
)

var _ logical.Events = (*RecordingEvents)(nil)

// RecordingEvents is a logical.Events implementation that appends
// every schema change and data event it receives to an in-memory log,
// in delivery order, for assertions in tests. It never errors unless
// FailAfter has been configured.
type RecordingEvents struct {
	mu struct {
		sync.Mutex
		schema    []types.SchemaChange
		data      []types.ChangeEvent
		flushes   int
		delivered int
	}

	stopping chan struct{}

	// FailAfter, if positive, causes the Nth call across
	// OnSchemaChange and OnData combined, and every call after it, to
	// return FailErr instead of recording the event. Zero means never
	// fail.
	FailAfter int
	FailErr   error
}

// NewRecordingEvents constructs an empty RecordingEvents.
func NewRecordingEvents() *RecordingEvents {
	return &RecordingEvents{stopping: make(chan struct{})}
}

// OnSchemaChange implements logical.Events.
func (r *RecordingEvents) OnSchemaChange(_ context.Context, change types.SchemaChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.maybeFailLocked(); err != nil {
		return err
	}
	r.mu.schema = append(r.mu.schema, change)
	return nil
}

// OnData implements logical.Events.
func (r *RecordingEvents) OnData(_ context.Context, event types.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.maybeFailLocked(); err != nil {
		return err
	}
	r.mu.data = append(r.mu.data, event)
	return nil
}

// Flush implements logical.Events.
func (r *RecordingEvents) Flush(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mu.flushes++
	return nil
}

// Stopping implements logical.Events. Call Stop to close the channel
// it returns.
func (r *RecordingEvents) Stopping() <-chan struct{} { return r.stopping }

// Stop closes the channel returned by Stopping, simulating the sink
// side observing a cooperative shutdown request. It is idempotent.
func (r *RecordingEvents) Stop() {
	select {
	case <-r.stopping:
	default:
		close(r.stopping)
	}
}

// Schema returns a copy of every schema change recorded so far, in
// delivery order.
func (r *RecordingEvents) Schema() []types.SchemaChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]types.SchemaChange, len(r.mu.schema))
	copy(ret, r.mu.schema)
	return ret
}

// Data returns a copy of every data event recorded so far, in delivery
// order.
func (r *RecordingEvents) Data() []types.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]types.ChangeEvent, len(r.mu.data))
	copy(ret, r.mu.data)
	return ret
}

// Flushes reports how many times Flush has been called.
func (r *RecordingEvents) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mu.flushes
}

func (r *RecordingEvents) maybeFailLocked() error {
	if r.FailAfter <= 0 {
		return nil
	}
	r.mu.delivered++
	if r.mu.delivered >= r.FailAfter {
		return r.FailErr
	}
	return nil
}
