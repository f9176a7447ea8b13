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

package filter

import (
	"testing"

	"github.com/mysql-cdc/snapshot-core/internal/util/ident"
	"github.com/stretchr/testify/require"
)

func TestIgnoreBuiltin(t *testing.T) {
	r := require.New(t)
	set, err := Compile(Config{IgnoreBuiltin: true})
	r.NoError(err)

	r.False(set.DatabaseFilter("mysql"))
	r.False(set.DatabaseFilter("information_schema"))
	r.True(set.DatabaseFilter("app"))
}

func TestDatabaseIncludeExclude(t *testing.T) {
	r := require.New(t)

	include, err := Compile(Config{Database: Lists{Include: []string{"app", "billing"}}})
	r.NoError(err)
	r.True(include.DatabaseFilter("app"))
	r.True(include.DatabaseFilter("billing"))
	r.False(include.DatabaseFilter("other"))

	exclude, err := Compile(Config{Database: Lists{Exclude: []string{"scratch"}}})
	r.NoError(err)
	r.True(exclude.DatabaseFilter("app"))
	r.False(exclude.DatabaseFilter("scratch"))
}

func TestMutuallyExclusiveListsRejected(t *testing.T) {
	r := require.New(t)
	_, err := Compile(Config{Table: Lists{Include: []string{"a.b"}, Exclude: []string{"c.d"}}})
	r.Error(err)
}

func TestTableFilterRespectsDatabaseFilter(t *testing.T) {
	r := require.New(t)
	set, err := Compile(Config{
		Database: Lists{Exclude: []string{"scratch"}},
		Table:    Lists{Include: []string{"app\\.users", "scratch\\.anything"}},
	})
	r.NoError(err)

	r.True(set.TableFilter(ident.NewTableID("", "app", "users")))
	r.False(set.TableFilter(ident.NewTableID("", "scratch", "anything")))
}

func TestColumnFilter(t *testing.T) {
	r := require.New(t)
	set, err := Compile(Config{Column: Lists{Exclude: []string{"app\\.users\\.password_hash"}}})
	r.NoError(err)

	id := ident.NewTableID("", "app", "users")
	r.True(set.ColumnFilter(id, "email"))
	r.False(set.ColumnFilter(id, "password_hash"))
}

func TestGTIDSourceFilter(t *testing.T) {
	r := require.New(t)
	set, err := Compile(Config{GTIDSource: Lists{Include: []string{"3E11FA47-71CA-11E1-9E33-C80AA9429562"}}})
	r.NoError(err)

	r.True(set.GTIDSourceFilter("3E11FA47-71CA-11E1-9E33-C80AA9429562"))
	r.False(set.GTIDSourceFilter("other-uuid"))
}

func TestAnchoredMatching(t *testing.T) {
	r := require.New(t)
	set, err := Compile(Config{Database: Lists{Include: []string{"app"}}})
	r.NoError(err)

	// A POSIX-anchored pattern must not match as a substring.
	r.False(set.DatabaseFilter("appendix"))
	r.False(set.DatabaseFilter("myapp"))
}
