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

package logical

import (
	"context"
	"math/rand"

	"github.com/mysql-cdc/snapshot-core/internal/types"
	"github.com/pkg/errors"
)

// ErrChaos is the error that will be injected by the WithChaos wrappers
// in this package.
var ErrChaos = errors.New("chaos")

// WithChaos returns a wrapper around a Backfiller that, with
// probability prob, fails a BackfillInto call with ErrChaos before
// delegating; errors are injected at that one point only. delegate is
// returned unwrapped if prob is less than or equal to zero.
func WithChaos(delegate Backfiller, prob float32) Backfiller {
	if prob <= 0 {
		return delegate
	}
	return &chaosBackfiller{delegate: delegate, prob: prob}
}

// This could include a *rand.Rand, but as soon as we start calling
// methods from multiple goroutines, there's no hope of repeatable
// behavior.
type chaosBackfiller struct {
	delegate Backfiller
	prob     float32
}

var _ Backfiller = (*chaosBackfiller)(nil)

func (d *chaosBackfiller) BackfillInto(ctx context.Context, ch chan<- Message, state State) error {
	if rand.Float32() < d.prob {
		return doChaos("BackfillInto")
	}
	return d.delegate.BackfillInto(ctx, ch, state)
}

// WithEventsChaos wraps an Events implementation so that OnData,
// OnSchemaChange, and Flush calls randomly fail, simulating
// backpressure-induced sink errors. delegate is returned unwrapped if
// prob is less than or equal to zero.
func WithEventsChaos(delegate Events, prob float32) Events {
	if prob <= 0 {
		return delegate
	}
	return &chaosEvents{delegate: delegate, prob: prob}
}

type chaosEvents struct {
	// Don't embed, so the compiler catches new Events methods that
	// this wrapper forgets to forward.
	delegate Events
	prob     float32
}

var _ Events = (*chaosEvents)(nil)

func (e *chaosEvents) OnData(ctx context.Context, event types.ChangeEvent) error {
	if rand.Float32() < e.prob {
		return doChaos("OnData")
	}
	return e.delegate.OnData(ctx, event)
}

func (e *chaosEvents) OnSchemaChange(ctx context.Context, change types.SchemaChange) error {
	if rand.Float32() < e.prob {
		return doChaos("OnSchemaChange")
	}
	return e.delegate.OnSchemaChange(ctx, change)
}

func (e *chaosEvents) Flush(ctx context.Context) error {
	if rand.Float32() < e.prob {
		return doChaos("Flush")
	}
	return e.delegate.Flush(ctx)
}

func (e *chaosEvents) Stopping() <-chan struct{} {
	return e.delegate.Stopping()
}

// doChaos is a convenient place to set a breakpoint.
func doChaos(msg string) error {
	return errors.WithMessage(ErrChaos, msg)
}
