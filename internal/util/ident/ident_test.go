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

package ident

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableIDStringAndRaw(t *testing.T) {
	r := require.New(t)
	id := NewTableID("", "app", "users")
	r.Equal("`app`.`users`", id.String())
	r.Equal("app.users", id.Raw())

	noSchema := NewTableID("", "", "users")
	r.Equal("`users`", noSchema.String())
	r.Equal("users", noSchema.Raw())
}

func TestTableIDEqualTreatsEmptySchemaAsWildcard(t *testing.T) {
	r := require.New(t)
	withSchema := NewTableID("", "app", "users")
	withoutSchema := NewTableID("", "", "users")

	r.True(withSchema.Equal(withoutSchema))
	r.True(withoutSchema.Equal(withSchema))
	r.False(withSchema.Equal(NewTableID("", "other", "users")))
	r.False(withSchema.Equal(NewTableID("", "app", "orders")))
}

func TestSchemaStringAndTable(t *testing.T) {
	r := require.New(t)
	s := NewSchema("", "app")
	r.Equal("`app`", s.String())
	r.Equal("app", s.Raw())

	id := s.Table("users")
	r.Equal(NewTableID("", "app", "users"), id)
}
