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

package schema

import (
	"testing"

	"github.com/mysql-cdc/snapshot-core/internal/util/ident"
	"github.com/stretchr/testify/require"
)

func TestParseCreateTableSimple(t *testing.T) {
	r := require.New(t)
	ddl := "CREATE TABLE `users` (\n" +
		"  `id` int NOT NULL,\n" +
		"  `email` varchar(255) DEFAULT NULL,\n" +
		"  `created_at` timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP,\n" +
		"  PRIMARY KEY (`id`)\n" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"

	cols, err := ParseCreateTable(ddl)
	r.NoError(err)
	r.Len(cols, 3)
	r.Equal("id", cols[0].Name)
	r.True(cols[0].Primary)
	r.Equal("email", cols[1].Name)
	r.False(cols[1].Primary)
	r.Equal("created_at", cols[2].Name)
}

func TestParseCreateTableCompositeKeyAndIndexes(t *testing.T) {
	r := require.New(t)
	ddl := "CREATE TABLE `order_items` (\n" +
		"  `order_id` int NOT NULL,\n" +
		"  `line_no` int NOT NULL,\n" +
		"  `price` decimal(10,2) NOT NULL,\n" +
		"  PRIMARY KEY (`order_id`,`line_no`),\n" +
		"  KEY `idx_price` (`price`)\n" +
		") ENGINE=InnoDB"

	cols, err := ParseCreateTable(ddl)
	r.NoError(err)
	r.Len(cols, 3)
	r.True(cols[0].Primary)
	r.True(cols[1].Primary)
	r.False(cols[2].Primary)
	r.Equal("decimal(10,2) NOT NULL", cols[2].Type)
}

func TestParseCreateTableNoColumns(t *testing.T) {
	r := require.New(t)
	_, err := ParseCreateTable("not a create table statement")
	r.Error(err)
}

func TestSetVariablesDDL(t *testing.T) {
	r := require.New(t)
	r.Equal("", SetVariablesDDL(nil))
	r.Equal("", SetVariablesDDL(map[string]string{"unrelated": "x"}))

	ddl := SetVariablesDDL(map[string]string{
		"character_set_server": "utf8mb4",
		"collation_server":     "utf8mb4_general_ci",
	})
	r.Contains(ddl, "@@GLOBAL.character_set_server = 'utf8mb4'")
	r.Contains(ddl, "@@GLOBAL.collation_server = 'utf8mb4_general_ci'")
}

func TestCreateDatabaseDDL(t *testing.T) {
	r := require.New(t)
	drop, create, use := CreateDatabaseDDL("app")
	r.Equal("DROP DATABASE IF EXISTS `app`", drop)
	r.Equal("CREATE DATABASE `app`", create)
	r.Equal("USE `app`", use)
}

func TestModelPutAndDropTable(t *testing.T) {
	r := require.New(t)
	m := New(false)
	id := ident.NewTableID("", "app", "users")
	m.PutTable(NewTableFromColumns(id, nil))

	_, ok := m.TableFor(id)
	r.True(ok)

	m.DropTable(id)
	_, ok = m.TableFor(id)
	r.False(ok)
}

func TestModelApplyDDLRespectsEmitFlag(t *testing.T) {
	r := require.New(t)

	var calls int
	emitter := func(string, string) error {
		calls++
		return nil
	}

	silent := New(false)
	r.NoError(silent.ApplyDDL("app", "USE `app`", emitter))
	r.Equal(0, calls)

	loud := New(true)
	r.NoError(loud.ApplyDDL("app", "USE `app`", emitter))
	r.Equal(1, calls)

	r.NoError(loud.ApplyDDL("app", "", emitter))
	r.Equal(1, calls)
}
