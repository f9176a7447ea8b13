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
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	r := require.New(t)
	r.Equal("CREATED", StateCreated.String())
	r.Equal("RUNNING", StateRunning.String())
	r.Equal("STOPPING", StateStopping.String())
	r.Equal("STOPPED", StateStopped.String())
	r.Equal("FAILED", StateFailed.String())
	r.Equal("UNKNOWN", State(99).String())
}

func TestNewReaderStartsCreated(t *testing.T) {
	r := require.New(t)
	o, _ := newMockOrchestrator(t)
	reader := NewReader(o)
	r.Equal(StateCreated, reader.State())
	r.NoError(reader.Err())
}

func TestReaderStopBeforeStartMovesToStopped(t *testing.T) {
	r := require.New(t)
	o, _ := newMockOrchestrator(t)
	reader := NewReader(o)

	reader.Stop(time.Second)
	r.Equal(StateStopped, reader.State())
}

func TestReaderStopIsIdempotent(t *testing.T) {
	r := require.New(t)
	o, _ := newMockOrchestrator(t)
	reader := NewReader(o)

	reader.Stop(time.Second)
	reader.Stop(time.Second)
	r.Equal(StateStopped, reader.State())
}

func TestReaderPollBeforeStartErrors(t *testing.T) {
	r := require.New(t)
	o, _ := newMockOrchestrator(t)
	reader := NewReader(o)

	_, _, err := reader.Poll(context.Background())
	r.Error(err)
}

func TestReaderRunsToCompletionAndReportsStopped(t *testing.T) {
	r := require.New(t)
	o, mock := newMockOrchestrator(t)
	o.Config.Mode = ModeSchemaOnly

	expectSessionSetupThroughLock(mock)
	mock.ExpectExec("UNLOCK TABLES").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	reader := NewReader(o)
	ch, err := reader.Start(context.Background())
	r.NoError(err)

	var sawSchema bool
	for msg := range ch {
		if msg.IsSchema() {
			sawSchema = true
		}
	}
	r.True(sawSchema)

	require.Eventually(t, func() bool {
		return reader.State() == StateStopped
	}, time.Second, 5*time.Millisecond)
	r.NoError(reader.Err())
}

func TestReaderStartTwiceFails(t *testing.T) {
	r := require.New(t)
	o, mock := newMockOrchestrator(t)
	o.Config.Mode = ModeSchemaOnly

	expectSessionSetupThroughLock(mock)
	mock.ExpectExec("UNLOCK TABLES").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	reader := NewReader(o)
	_, err := reader.Start(context.Background())
	r.NoError(err)

	_, err = reader.Start(context.Background())
	r.Error(err)
}
