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
	"testing"

	"github.com/mysql-cdc/snapshot-core/internal/source/mysnap/errs"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DSN:          "user:pass@tcp(127.0.0.1:3306)/",
		Mode:         ModeInitial,
		MaxQueueSize: 8192,
		MaxBatchSize: 100,
	}
}

func TestPreflightFillsDefaults(t *testing.T) {
	r := require.New(t)
	cfg := validConfig()
	r.NoError(cfg.Preflight())
	r.NotZero(cfg.ServerID)
	r.GreaterOrEqual(cfg.ServerID, uint32(5400))
	r.Less(cfg.ServerID, uint32(6400))
	r.Equal(DefaultRequiredGrants, cfg.RequiredGrants)
	r.Equal("mysql", cfg.TopicPrefix)
}

func TestPreflightRejectsMissingDSN(t *testing.T) {
	r := require.New(t)
	cfg := validConfig()
	cfg.DSN = ""
	err := cfg.Preflight()
	r.True(errs.IsConfigError(err))
}

func TestPreflightRejectsMalformedDSN(t *testing.T) {
	r := require.New(t)
	cfg := validConfig()
	cfg.DSN = "not a dsn at all :::"
	err := cfg.Preflight()
	r.True(errs.IsConfigError(err))
}

func TestPreflightRejectsUnknownMode(t *testing.T) {
	r := require.New(t)
	cfg := validConfig()
	cfg.Mode = "sometimes"
	err := cfg.Preflight()
	r.True(errs.IsConfigError(err))
}

func TestPreflightRejectsBatchSizeNotLessThanQueueSize(t *testing.T) {
	r := require.New(t)
	cfg := validConfig()
	cfg.MaxQueueSize = 100
	cfg.MaxBatchSize = 100
	err := cfg.Preflight()
	r.True(errs.IsConfigError(err))
}

func TestPreflightRejectsInvalidFilterConfig(t *testing.T) {
	r := require.New(t)
	cfg := validConfig()
	cfg.Filter.Table.Include = []string{"a.b"}
	cfg.Filter.Table.Exclude = []string{"c.d"}
	err := cfg.Preflight()
	r.True(errs.IsConfigError(err))
}

func TestPreflightPreservesExplicitServerID(t *testing.T) {
	r := require.New(t)
	cfg := validConfig()
	cfg.ServerID = 42
	r.NoError(cfg.Preflight())
	r.Equal(uint32(42), cfg.ServerID)
}

func TestActivatesSnapshotAndSchemaOnly(t *testing.T) {
	r := require.New(t)
	cfg := validConfig()

	cfg.Mode = ModeSchemaOnly
	r.True(cfg.ActivatesSnapshot())
	r.True(cfg.SchemaOnly())

	cfg.Mode = ModeInitial
	r.True(cfg.ActivatesSnapshot())
	r.False(cfg.SchemaOnly())
}
