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

// Package queue implements the buffered last-record hold needed to
// rewrite the final snapshot event's marker without reordering events
// (component C5). The trick is a one-element pipeline: the most
// recently enqueued event is always held back rather than delivered
// immediately, so that when the scan finishes, Flush can rewrite that
// held event's Offset.Snapshot marker to LAST before it is delivered. Every
// earlier event was already delivered with an InProgress marker the
// moment the next one arrived.
package queue

import (
	"context"
	"sync"

	"github.com/mysql-cdc/snapshot-core/internal/source/mysnap/errs"
	"github.com/mysql-cdc/snapshot-core/internal/types"
)

// Downstream receives events in order, one at a time. OnData may block
// to apply backpressure; it must return promptly once ctx is canceled.
type Downstream interface {
	OnData(ctx context.Context, event types.ChangeEvent) error
}

// Queue holds at most one event in memory, deferring its delivery
// until either another event arrives (in which case the held event is
// delivered unmodified) or Flush is called (in which case it is
// delivered after a caller-supplied rewrite).
type Queue struct {
	downstream Downstream
	stopping   <-chan struct{}

	mu    sync.Mutex
	held  *types.ChangeEvent
	valid bool
}

// New constructs a Queue that delivers to downstream. stopping, if
// non-nil, is polled while a call is blocked on downstream.OnData so
// that a pending Enqueue or Flush can unwind promptly when the reader
// is asked to stop (spec §5, cancellation promptness).
func New(downstream Downstream, stopping <-chan struct{}) *Queue {
	return &Queue{downstream: downstream, stopping: stopping}
}

// Enqueue accepts event, delivering whatever event was previously held
// (if any) to the downstream first. It never delivers event itself;
// that happens on the next Enqueue or on Flush.
func (q *Queue) Enqueue(ctx context.Context, event types.ChangeEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.valid {
		if err := q.deliver(ctx, *q.held); err != nil {
			return err
		}
	}
	if q.held == nil {
		q.held = new(types.ChangeEvent)
	}
	*q.held = event
	q.valid = true
	return nil
}

// Flush applies transform to the currently held event, if any, and
// delivers it. transform is the orchestrator's hook for stamping the
// final row of the final table with SnapshotLast (spec §4.7). Flush is
// a no-op if nothing is held, which is the case when every scanned
// table was empty.
func (q *Queue) Flush(ctx context.Context, transform func(*types.ChangeEvent)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.valid {
		return nil
	}
	if transform != nil {
		transform(q.held)
	}
	event := *q.held
	q.valid = false
	q.held = nil
	return q.deliver(ctx, event)
}

// deliver calls downstream.OnData, translating context cancellation or
// an observed stop signal into errs.ErrCanceled. q.mu is held by the
// caller for the duration, matching the single-producer,
// single-in-flight-delivery discipline the orchestrator relies on.
func (q *Queue) deliver(ctx context.Context, event types.ChangeEvent) error {
	select {
	case <-ctx.Done():
		return errs.ErrCanceled
	default:
	}
	if q.stopping != nil {
		select {
		case <-q.stopping:
			return errs.ErrCanceled
		default:
		}
	}
	if err := q.downstream.OnData(ctx, event); err != nil {
		if ctx.Err() != nil {
			return errs.ErrCanceled
		}
		return err
	}
	return nil
}
