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

// Package notify contains a minimal generic value that can be watched
// for updates without polling.
package notify

import "sync"

// A Var holds a value of type T and a channel that is closed each time
// the value changes, allowing callers to wake up on updates instead of
// polling. The zero Var is ready to use.
type Var[T any] struct {
	mu struct {
		sync.Mutex
		value   T
		updated chan struct{}
	}
}

// Get returns the current value along with a channel that will be
// closed the next time Set is called.
func (v *Var[T]) Get() (T, <-chan struct{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mu.updated == nil {
		v.mu.updated = make(chan struct{})
	}
	return v.mu.value, v.mu.updated
}

// Set updates the value and wakes any goroutine waiting on a channel
// returned by a previous call to Get.
func (v *Var[T]) Set(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mu.value = value
	if v.mu.updated != nil {
		close(v.mu.updated)
	}
	v.mu.updated = make(chan struct{})
}
