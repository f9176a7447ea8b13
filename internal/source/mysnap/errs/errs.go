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

// Package errs defines the snapshot core's error taxonomy (spec §7), in
// its own leaf package so that every component -- probe, schema,
// record, queue, and the orchestrator itself -- can construct and
// recognize these errors without creating an import cycle back through
// the top-level mysnap package.
package errs

import "github.com/pkg/errors"

// ConfigError indicates that the snapshot configuration is invalid or
// internally contradictory (e.g. mutually exclusive include/exclude
// lists set on the same dimension, a negative queue size). It is
// always reported before Start is called.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

// NewConfigError constructs a ConfigError.
func NewConfigError(msg string) error { return &ConfigError{msg: msg} }

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// PreconditionError indicates the server cannot satisfy the
// invariants a snapshot requires: binlog disabled, or a required
// grant missing.
type PreconditionError struct {
	msg string
}

func (e *PreconditionError) Error() string { return e.msg }

// NewPreconditionError constructs a PreconditionError.
func NewPreconditionError(msg string) error { return &PreconditionError{msg: msg} }

// IsPreconditionError reports whether err is (or wraps) a
// PreconditionError.
func IsPreconditionError(err error) bool {
	var target *PreconditionError
	return errors.As(err, &target)
}

// TransientError indicates a single table's (or database's) metadata
// read failed in a way that is safe to recover from by skipping that
// one entity; it never aborts the whole snapshot.
type TransientError struct {
	msg   string
	cause error
}

func (e *TransientError) Error() string { return e.msg }
func (e *TransientError) Unwrap() error { return e.cause }

// NewTransientError constructs a TransientError wrapping cause.
func NewTransientError(msg string, cause error) error {
	return &TransientError{msg: msg, cause: cause}
}

// IsTransientError reports whether err is (or wraps) a TransientError.
func IsTransientError(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

// FatalError indicates that lock acquisition, transaction start, or a
// mid-table row scan failed such that the snapshot cannot continue. It
// triggers rollback, unlock, and propagation to the reader's failure
// channel.
type FatalError struct {
	msg   string
	cause error
}

func (e *FatalError) Error() string { return e.msg }
func (e *FatalError) Unwrap() error { return e.cause }

// NewFatalError constructs a FatalError wrapping cause.
func NewFatalError(msg string, cause error) error {
	return &FatalError{msg: msg, cause: cause}
}

// IsFatalError reports whether err is (or wraps) a FatalError.
func IsFatalError(err error) bool {
	var target *FatalError
	return errors.As(err, &target)
}

// CancellationError indicates that a cooperative stop request was
// observed. It triggers rollback, but the reader reports STOPPED
// rather than FAILED.
type CancellationError struct{}

func (e *CancellationError) Error() string { return "snapshot canceled" }

// ErrCanceled is the singleton CancellationError value; cancellation
// carries no additional context, so there's no need to allocate more
// than one.
var ErrCanceled = &CancellationError{}

// IsCancellationError reports whether err is (or wraps) a
// CancellationError.
func IsCancellationError(err error) bool {
	var target *CancellationError
	return errors.As(err, &target)
}
