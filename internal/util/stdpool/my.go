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

// Package stdpool creates standardized database connection pools.
package stdpool

import (
	"database/sql"
	sqldriver "database/sql/driver"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/mysql-cdc/snapshot-core/internal/types"
	"github.com/mysql-cdc/snapshot-core/internal/util/stopper"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// OpenMySQLSource opens the connection pool used to snapshot (and,
// afterward, stream binlog events from) the source server. The pool is
// closed automatically when ctx stops.
func OpenMySQLSource(ctx *stopper.Context, dsn string, waitForStartup bool) (*types.SourcePool, error) {
	log.WithField("dsn", redactDSN(dsn)).Info("opening source connection pool")

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	ret := &types.SourcePool{
		DB: db,
		PoolInfo: types.PoolInfo{
			ConnectionString: dsn,
			Product:          types.ProductMySQL,
		},
	}

	ctx.Go(func() error {
		<-ctx.Stopping()
		if err := ret.Close(); err != nil {
			log.WithError(errors.WithStack(err)).Warn("could not close source connection pool")
		}
		return nil
	})

ping:
	if err := ret.PingContext(ctx); err != nil {
		if waitForStartup && isMySQLStartupError(err) {
			log.WithError(err).Info("waiting for source database to become ready")
			select {
			case <-ctx.Done():
				return nil, errors.WithStack(ctx.Err())
			case <-time.After(10 * time.Second):
				goto ping
			}
		}
		return nil, errors.Wrap(err, "could not ping the source database")
	}

	if err := ret.QueryRowContext(ctx, "SELECT VERSION()").Scan(&ret.Version); err != nil {
		return nil, errors.Wrap(err, "could not query source server version")
	}
	log.Infof("connected to source server, version %s", ret.Version)
	return ret, nil
}

// isMySQLStartupError reports whether err is the kind of connection
// failure that resolves itself once the server finishes starting up.
func isMySQLStartupError(err error) bool {
	switch err {
	case sqldriver.ErrBadConn:
		return true
	default:
		return false
	}
}

// redactDSN hides the password component of a go-sql-driver/mysql DSN
// before it is logged.
func redactDSN(dsn string) string {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "<unparseable dsn>"
	}
	cfg.Passwd = "REDACTED"
	return cfg.FormatDSN()
}
