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

// Package probe is a pure reader over a source MySQL connection
// (component C2): it issues the metadata SHOW/SELECT commands the
// orchestrator needs and returns typed results, without mutating any
// server or in-memory state itself.
package probe

import (
	"context"
	"database/sql"
	"strings"

	"github.com/mysql-cdc/snapshot-core/internal/types"
	"github.com/pkg/errors"
)

// TransientError wraps a SQLException-equivalent encountered while
// probing; the orchestrator decides whether the failure is
// recoverable (e.g. a phantom database at step 5) or fatal.
type TransientError struct {
	msg   string
	cause error
}

func (e *TransientError) Error() string { return e.msg }
func (e *TransientError) Unwrap() error { return e.cause }

func transientf(cause error, format string, args ...any) error {
	return &TransientError{msg: errors.Errorf(format, args...).Error(), cause: cause}
}

// IsTransient reports whether err is (or wraps) a probe TransientError.
func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

// Querier is implemented by *sql.DB, *sql.Conn, and *sql.Tx -- whatever
// connection the orchestrator currently holds open.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Conn)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// Probe reads server metadata over a Querier.
type Probe struct {
	db Querier
}

// New constructs a Probe bound to db.
func New(db Querier) *Probe {
	return &Probe{db: db}
}

// ReadCatalogNames returns the full set of database names visible to
// the current user via SHOW DATABASES.
func (p *Probe) ReadCatalogNames(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, transientf(err, "SHOW DATABASES failed")
	}
	defer rows.Close()

	var ret []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, transientf(err, "scanning SHOW DATABASES row")
		}
		ret = append(ret, name)
	}
	return ret, errors.WithStack(rows.Err())
}

// ReadAllTableNames returns every base table in the named database via
// SHOW TABLES IN. MySQL occasionally surfaces things that are not
// really databases (e.g. stray directories such as "lost+found"); a
// failure here is always a TransientError, letting the caller decide
// to skip the database with a warning (spec §4.6 step 5).
func (p *Probe) ReadAllTableNames(ctx context.Context, database string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, "SHOW TABLES IN `"+database+"`")
	if err != nil {
		return nil, transientf(err, "SHOW TABLES IN %s failed", database)
	}
	defer rows.Close()

	var ret []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, transientf(err, "scanning SHOW TABLES row for %s", database)
		}
		ret = append(ret, name)
	}
	if err := rows.Err(); err != nil {
		return nil, transientf(err, "iterating SHOW TABLES rows for %s", database)
	}
	return ret, nil
}

// ReadCreateTable returns the DDL statement that recreates the named
// table, via SHOW CREATE TABLE.
func (p *Probe) ReadCreateTable(ctx context.Context, database, table string) (string, error) {
	row := p.db.QueryRowContext(ctx, "SHOW CREATE TABLE `"+database+"`.`"+table+"`")
	var name, ddl string
	if err := row.Scan(&name, &ddl); err != nil {
		return "", transientf(err, "SHOW CREATE TABLE %s.%s failed", database, table)
	}
	return ddl, nil
}

// EstimatedRowCount reports the server's own estimate of a table's row
// count via SHOW TABLE STATUS LIKE, used to decide whether step 8
// should use a streaming cursor.
func (p *Probe) EstimatedRowCount(ctx context.Context, database, table string) (int64, error) {
	rows, err := p.db.QueryContext(ctx, "SHOW TABLE STATUS LIKE '"+table+"'", )
	_ = database // USE <db> is expected to have already been issued by the caller.
	if err != nil {
		return 0, transientf(err, "SHOW TABLE STATUS LIKE %s failed", table)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, transientf(err, "reading SHOW TABLE STATUS columns")
	}
	rowsIdx := -1
	for i, c := range cols {
		if strings.EqualFold(c, "Rows") {
			rowsIdx = i
			break
		}
	}
	if rowsIdx < 0 || !rows.Next() {
		return 0, nil
	}
	dest := make([]any, len(cols))
	var count sql.NullInt64
	for i := range dest {
		if i == rowsIdx {
			dest[i] = &count
		} else {
			dest[i] = new(sql.RawBytes)
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return 0, transientf(err, "scanning SHOW TABLE STATUS row for %s", table)
	}
	return count.Int64, nil
}

// ReadCharsetSystemVariables reads the character-set-related system
// variables that step 6 replays as a database-agnostic SET statement.
func (p *Probe) ReadCharsetSystemVariables(ctx context.Context) (map[string]string, error) {
	rows, err := p.db.QueryContext(ctx, "SHOW VARIABLES WHERE Variable_name IN "+
		"('character_set_server','collation_server')")
	if err != nil {
		return nil, transientf(err, "SHOW VARIABLES failed")
	}
	defer rows.Close()

	ret := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, transientf(err, "scanning SHOW VARIABLES row")
		}
		ret[name] = value
	}
	return ret, errors.WithStack(rows.Err())
}

// ReadBinlogCoordinate captures the server's current binlog position
// via SHOW MASTER STATUS. Per spec §4.2, an empty result means the
// binlog is disabled and the caller must fail with a
// PreconditionError; this function signals that case by returning
// ErrBinlogDisabled.
var ErrBinlogDisabled = errors.New("binlog is disabled on the source server")

func (p *Probe) ReadBinlogCoordinate(ctx context.Context) (types.BinlogCoordinate, error) {
	rows, err := p.db.QueryContext(ctx, "SHOW MASTER STATUS")
	if err != nil {
		return types.BinlogCoordinate{}, transientf(err, "SHOW MASTER STATUS failed")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return types.BinlogCoordinate{}, transientf(err, "reading SHOW MASTER STATUS columns")
	}
	if !rows.Next() {
		return types.BinlogCoordinate{}, ErrBinlogDisabled
	}

	dest := make([]any, len(cols))
	var file string
	var pos uint32
	var gtidSet sql.NullString
	for i, c := range cols {
		switch strings.ToLower(c) {
		case "file":
			dest[i] = &file
		case "position":
			dest[i] = &pos
		case "executed_gtid_set":
			dest[i] = &gtidSet
		default:
			dest[i] = new(sql.RawBytes)
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return types.BinlogCoordinate{}, transientf(err, "scanning SHOW MASTER STATUS row")
	}
	return types.BinlogCoordinate{File: file, Position: pos, GTIDSet: gtidSet.String}, nil
}

// ReadUserGrants returns the current user's grants via SHOW GRANTS, in
// the textual form MySQL reports them.
func (p *Probe) ReadUserGrants(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, "SHOW GRANTS")
	if err != nil {
		return nil, transientf(err, "SHOW GRANTS failed")
	}
	defer rows.Close()

	var ret []string
	for rows.Next() {
		var grant string
		if err := rows.Scan(&grant); err != nil {
			return nil, transientf(err, "scanning SHOW GRANTS row")
		}
		ret = append(ret, grant)
	}
	return ret, errors.WithStack(rows.Err())
}

// HasGrants reports whether every privilege named in required appears,
// case-insensitively, in some line of grants (or the line grants ALL
// PRIVILEGES).
func HasGrants(grants []string, required []string) bool {
	joined := strings.ToUpper(strings.Join(grants, "\n"))
	if strings.Contains(joined, "ALL PRIVILEGES") {
		return true
	}
	for _, req := range required {
		if !strings.Contains(joined, strings.ToUpper(req)) {
			return false
		}
	}
	return true
}
