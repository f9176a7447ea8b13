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

package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/mysql-cdc/snapshot-core/internal/source/mysnap/errs"
	"github.com/mysql-cdc/snapshot-core/internal/types"
	"github.com/stretchr/testify/require"
)

type recordingDownstream struct {
	delivered []types.ChangeEvent
	failOn    int
	failErr   error
}

func (d *recordingDownstream) OnData(_ context.Context, event types.ChangeEvent) error {
	if d.failOn > 0 && len(d.delivered)+1 == d.failOn {
		return d.failErr
	}
	d.delivered = append(d.delivered, event)
	return nil
}

func evt(topic string) types.ChangeEvent {
	return types.ChangeEvent{Topic: topic}
}

func TestQueueHoldsBackMostRecentEvent(t *testing.T) {
	r := require.New(t)
	down := &recordingDownstream{}
	q := New(down, nil)

	r.NoError(q.Enqueue(context.Background(), evt("a")))
	r.Empty(down.delivered, "first event must be held, not delivered")

	r.NoError(q.Enqueue(context.Background(), evt("b")))
	r.Len(down.delivered, 1)
	r.Equal("a", down.delivered[0].Topic)

	r.NoError(q.Enqueue(context.Background(), evt("c")))
	r.Len(down.delivered, 2)
	r.Equal("b", down.delivered[1].Topic)
}

func TestQueueFlushDeliversHeldEventWithTransform(t *testing.T) {
	r := require.New(t)
	down := &recordingDownstream{}
	q := New(down, nil)

	r.NoError(q.Enqueue(context.Background(), evt("only")))
	r.Empty(down.delivered)

	err := q.Flush(context.Background(), func(e *types.ChangeEvent) {
		e.Offset.Snapshot = types.SnapshotLast
	})
	r.NoError(err)
	r.Len(down.delivered, 1)
	r.Equal(types.SnapshotLast, down.delivered[0].Offset.Snapshot)
}

func TestQueueFlushNoopWhenEmpty(t *testing.T) {
	r := require.New(t)
	down := &recordingDownstream{}
	q := New(down, nil)

	called := false
	r.NoError(q.Flush(context.Background(), func(*types.ChangeEvent) { called = true }))
	r.False(called)
	r.Empty(down.delivered)
}

func TestQueueFlushOnlyEverStampsOneEventWithLast(t *testing.T) {
	r := require.New(t)
	down := &recordingDownstream{}
	q := New(down, nil)

	for _, topic := range []string{"a", "b", "c"} {
		r.NoError(q.Enqueue(context.Background(), evt(topic)))
	}
	r.NoError(q.Flush(context.Background(), func(e *types.ChangeEvent) {
		e.Offset.Snapshot = types.SnapshotLast
	}))

	r.Len(down.delivered, 3)
	for _, e := range down.delivered[:2] {
		r.NotEqual(types.SnapshotLast, e.Offset.Snapshot)
	}
	r.Equal(types.SnapshotLast, down.delivered[2].Offset.Snapshot)
}

func TestQueueEnqueuePropagatesDownstreamFailure(t *testing.T) {
	r := require.New(t)
	boom := errors.New("boom")
	down := &recordingDownstream{failOn: 1, failErr: boom}
	q := New(down, nil)

	r.NoError(q.Enqueue(context.Background(), evt("a")))
	err := q.Enqueue(context.Background(), evt("b"))
	r.ErrorIs(err, boom)
}

func TestQueueDeliverObservesStoppingChannel(t *testing.T) {
	r := require.New(t)
	down := &recordingDownstream{}
	stopping := make(chan struct{})
	close(stopping)

	q := New(down, stopping)
	r.NoError(q.Enqueue(context.Background(), evt("a")))

	err := q.Enqueue(context.Background(), evt("b"))
	r.ErrorIs(err, errs.ErrCanceled)
}

func TestQueueDeliverObservesCanceledContext(t *testing.T) {
	r := require.New(t)
	down := &recordingDownstream{}
	q := New(down, nil)

	ctx, cancel := context.WithCancel(context.Background())
	r.NoError(q.Enqueue(ctx, evt("a")))
	cancel()

	err := q.Enqueue(ctx, evt("b"))
	r.ErrorIs(err, errs.ErrCanceled)
}
