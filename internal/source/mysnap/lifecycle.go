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

package mysnap

import (
	"context"
	"sync"
	"time"

	"github.com/mysql-cdc/snapshot-core/internal/source/logical"
	"github.com/mysql-cdc/snapshot-core/internal/source/mysnap/errs"
	"github.com/mysql-cdc/snapshot-core/internal/util/notify"
	"github.com/mysql-cdc/snapshot-core/internal/util/stamp"
	"github.com/mysql-cdc/snapshot-core/internal/util/stopper"
)

// State is the Reader's lifecycle state (spec §5): a one-shot run
// moves CREATED -> RUNNING -> {STOPPING -> STOPPED, FAILED}. There is
// no path back to an earlier state; a Reader is used once.
type State int

// Reader lifecycle states.
const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Reader owns one run of the Orchestrator's snapshot protocol and
// exposes it as a Message stream plus the cooperative-cancellation
// lifecycle spec §5 describes.
type Reader struct {
	orchestrator *Orchestrator

	mu      sync.Mutex
	state   notify.Var[State]
	lastErr notify.Var[error]
	stop    *stopper.Context
	ch      chan logical.Message
}

// NewReader constructs a Reader bound to orchestrator, in state
// CREATED.
func NewReader(orchestrator *Orchestrator) *Reader {
	r := &Reader{orchestrator: orchestrator}
	r.state.Set(StateCreated)
	return r
}

// State returns the Reader's current lifecycle state.
func (r *Reader) State() State {
	s, _ := r.state.Get()
	return s
}

// Err returns the error that moved the Reader into StateFailed, or nil
// if it never failed.
func (r *Reader) Err() error {
	err, _ := r.lastErr.Get()
	return err
}

// loopState adapts the Reader's cancellation signal to the
// logical.State interface the Orchestrator expects. The snapshot core
// is one-shot, so GetConsistentPoint's update channel never fires;
// once streaming takes over downstream of this package, it is that
// reader's State implementation that matters, not this one's.
type loopState struct {
	point    notify.Var[stamp.Stamp]
	stopping <-chan struct{}
}

func (s *loopState) GetConsistentPoint() (stamp.Stamp, <-chan struct{}) { return s.point.Get() }
func (s *loopState) Stopping() <-chan struct{}                          { return s.stopping }

// Start transitions CREATED -> RUNNING and launches the Orchestrator's
// backfill pass in a background goroutine, returning the channel
// Messages arrive on. Calling Start on a Reader that is not in state
// CREATED returns an error; a Reader runs at most once.
func (r *Reader) Start(ctx context.Context) (<-chan logical.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur := r.State(); cur != StateCreated {
		return nil, errs.NewFatalError("reader has already been started", nil)
	}

	r.stop = stopper.WithContext(ctx)
	r.ch = make(chan logical.Message, r.orchestrator.Config.MaxQueueSize)
	r.state.Set(StateRunning)

	loop := &loopState{stopping: r.stop.Stopping()}
	r.stop.Go(func() error {
		err := r.orchestrator.BackfillInto(r.stop, r.ch, loop)

		r.mu.Lock()
		defer r.mu.Unlock()
		switch {
		case err == nil, errs.IsCancellationError(err):
			r.state.Set(StateStopped)
		default:
			r.lastErr.Set(err)
			r.state.Set(StateFailed)
		}
		// Closed only once the outcome is recorded, so a caller that
		// drains the channel sees the final State and Err.
		close(r.ch)
		return err
	})

	return r.ch, nil
}

// Poll receives the next Message from the run, blocking until one
// arrives, the run ends (ok is false), or ctx is done.
func (r *Reader) Poll(ctx context.Context) (msg logical.Message, ok bool, err error) {
	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()
	if ch == nil {
		return logical.Message{}, false, errs.NewFatalError("reader has not been started", nil)
	}
	select {
	case msg, ok = <-ch:
		return msg, ok, nil
	case <-ctx.Done():
		return logical.Message{}, false, ctx.Err()
	}
}

// Stop requests cooperative shutdown, transitioning RUNNING ->
// STOPPING and waiting up to grace for the in-flight backfill to
// observe the request and return before forcibly canceling its
// context. Stop is idempotent and safe to call from any state: on a
// Reader that was never started, it moves straight to STOPPED; on one
// already STOPPED or FAILED, it does nothing.
func (r *Reader) Stop(grace time.Duration) {
	r.mu.Lock()
	cur := r.State()
	switch cur {
	case StateCreated:
		r.state.Set(StateStopped)
		r.mu.Unlock()
		return
	case StateStopped, StateFailed, StateStopping:
		r.mu.Unlock()
		return
	}
	r.state.Set(StateStopping)
	stop := r.stop
	r.mu.Unlock()

	stop.Stop(grace)
}
