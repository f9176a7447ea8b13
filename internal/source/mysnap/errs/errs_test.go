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

package errs

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestErrorKindsAreMutuallyExclusive(t *testing.T) {
	r := require.New(t)

	cases := []error{
		NewConfigError("bad config"),
		NewPreconditionError("binlog disabled"),
		NewTransientError("skip table", nil),
		NewFatalError("lock lost", nil),
		ErrCanceled,
	}

	checks := []func(error) bool{
		IsConfigError, IsPreconditionError, IsTransientError, IsFatalError, IsCancellationError,
	}

	for i, err := range cases {
		for j, check := range checks {
			if i == j {
				r.True(check(err), "case %d should match its own predicate", i)
			} else {
				r.False(check(err), "case %d should not match predicate %d", i, j)
			}
		}
	}
}

func TestTransientAndFatalErrorsWrapCause(t *testing.T) {
	r := require.New(t)
	cause := fmt.Errorf("connection reset")

	transient := NewTransientError("could not read table", cause)
	r.True(IsTransientError(transient))
	r.ErrorIs(transient, cause)

	fatal := NewFatalError("lock lost", cause)
	r.True(IsFatalError(fatal))
	r.ErrorIs(fatal, cause)
}

func TestIsHelpersSeeThroughWrapping(t *testing.T) {
	r := require.New(t)
	wrapped := errors.Wrap(NewConfigError("bad config"), "preflight failed")
	r.True(IsConfigError(wrapped))
}

func TestErrCanceledIsASingleton(t *testing.T) {
	r := require.New(t)
	r.Same(ErrCanceled, ErrCanceled)
	r.Equal("snapshot canceled", ErrCanceled.Error())
}
