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

// Package stopper provides a context.Context wrapper that implements
// cooperative cancellation: callers poll Stopping() at well-defined
// points instead of relying on forcible goroutine termination.
package stopper

import (
	"context"
	"sync"
	"time"
)

// A Context extends context.Context with a cooperative stop signal and
// a wait group for goroutines spawned through Go. Stopping a Context
// never cancels it outright; Stop also cancels the underlying
// context after the grace period elapses, or immediately if all
// goroutines return first.
type Context struct {
	context.Context

	cancel func()

	mu struct {
		sync.Mutex
		stopping chan struct{}
		stopped  bool
	}
	wg sync.WaitGroup
}

// WithContext creates a new stopper Context whose cancellation is
// derived from the parent.
func WithContext(parent context.Context) *Context {
	inner, cancel := context.WithCancel(parent)
	ret := &Context{Context: inner, cancel: cancel}
	ret.mu.stopping = make(chan struct{})
	return ret
}

// Go launches fn in a new goroutine tracked by the Context's wait
// group. The error, if any, is discarded; callers that need to observe
// failures should report them through some other channel.
func (c *Context) Go(fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = fn()
	}()
}

// Stopping returns a channel that is closed once Stop has been called.
// It is safe to call Stopping from multiple goroutines and to select
// on it repeatedly.
func (c *Context) Stopping() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mu.stopping
}

// Stop requests cooperative shutdown: Stopping() is closed immediately,
// and the underlying context is canceled once all goroutines launched
// via Go have returned, or once the grace period elapses, whichever
// comes first. Stop is idempotent.
func (c *Context) Stop(grace time.Duration) {
	c.mu.Lock()
	if c.mu.stopped {
		c.mu.Unlock()
		return
	}
	c.mu.stopped = true
	close(c.mu.stopping)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
	}
	c.cancel()
}
