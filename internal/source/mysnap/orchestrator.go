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

// Package mysnap implements the MySQL snapshot core: a single, dedicated
// connection drives a ten-step protocol that pins a consistent view of
// the source server, rebuilds schema as synthetic DDL, scans every
// matching table, and hands the resulting stream of events to a
// downstream sink with the final row carrying a LAST marker.
package mysnap

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mysql-cdc/snapshot-core/internal/source/logical"
	"github.com/mysql-cdc/snapshot-core/internal/source/mysnap/errs"
	"github.com/mysql-cdc/snapshot-core/internal/source/mysnap/filter"
	"github.com/mysql-cdc/snapshot-core/internal/source/mysnap/metrics"
	"github.com/mysql-cdc/snapshot-core/internal/source/mysnap/probe"
	"github.com/mysql-cdc/snapshot-core/internal/source/mysnap/queue"
	"github.com/mysql-cdc/snapshot-core/internal/source/mysnap/record"
	"github.com/mysql-cdc/snapshot-core/internal/source/mysnap/schema"
	"github.com/mysql-cdc/snapshot-core/internal/types"
	"github.com/mysql-cdc/snapshot-core/internal/util/ident"
	"github.com/mysql-cdc/snapshot-core/internal/util/msort"
)

// concurrentListingLimit bounds how many separate connections the
// orchestrator opens while enumerating tables across databases in
// step 5. Those reads are plain metadata lookups, consistent for the
// whole server for as long as the global read lock is held, so unlike
// the row scan in step 8 they don't need to share the snapshot
// transaction's connection.
const concurrentListingLimit = 8

// progressReportInterval is how often, in rows, a table scan still in
// flight reports its progress metric.
const progressReportInterval = 10000

// Orchestrator drives the snapshot protocol described in SPEC_FULL.md
// §4.6 over a single dedicated connection. It implements
// logical.Backfiller; the loop that owns a Message channel calls
// BackfillInto once per run.
type Orchestrator struct {
	Config *Config
	Pool   *types.SourcePool
	Filter *filter.Set
	Schema *schema.Model
	Log    *log.Entry
}

var _ logical.Backfiller = (*Orchestrator)(nil)

// New constructs an Orchestrator. cfg must already have passed
// Preflight.
func New(cfg *Config, pool *types.SourcePool) (*Orchestrator, error) {
	filterSet, err := filter.Compile(cfg.Filter)
	if err != nil {
		return nil, errs.NewConfigError(err.Error())
	}
	return &Orchestrator{
		Config: cfg,
		Pool:   pool,
		Filter: filterSet,
		Schema: schema.New(true),
		Log:    log.WithField("component", "mysnap"),
	}, nil
}

// BackfillInto adapts the orchestrator's push-style event delivery
// onto ch and records the run's terminal outcome.
func (o *Orchestrator) BackfillInto(
	ctx context.Context, ch chan<- logical.Message, state logical.State,
) error {
	events := &chanEvents{ch: ch, stopping: state.Stopping()}
	err := o.run(ctx, events, state)
	switch {
	case err == nil:
		metrics.IncRun(metrics.OutcomeCompleted)
	case errs.IsCancellationError(err):
		metrics.IncRun(metrics.OutcomeCanceled)
	default:
		metrics.IncRun(metrics.OutcomeFailed)
	}
	return err
}

// chanEvents adapts the push-style logical.Events contract (which the
// record maker and buffered queue are written against) onto a Message
// channel, the shape logical.Backfiller requires.
type chanEvents struct {
	ch       chan<- logical.Message
	stopping <-chan struct{}
}

func (c *chanEvents) OnSchemaChange(ctx context.Context, change types.SchemaChange) error {
	return c.send(ctx, logical.NewSchemaMessage(change))
}

func (c *chanEvents) OnData(ctx context.Context, event types.ChangeEvent) error {
	return c.send(ctx, logical.NewDataMessage(event))
}

func (c *chanEvents) Flush(context.Context) error { return nil }

func (c *chanEvents) Stopping() <-chan struct{} { return c.stopping }

func (c *chanEvents) send(ctx context.Context, msg logical.Message) error {
	select {
	case c.ch <- msg:
		return nil
	case <-ctx.Done():
		return errs.ErrCanceled
	case <-c.stopping:
		return errs.ErrCanceled
	}
}

// run performs one complete pass through the ten-step protocol.
func (o *Orchestrator) run(ctx context.Context, events logical.Events, state logical.State) error {
	// Step 0: session setup. One dedicated connection is held for the
	// entire run; every later step that needs transactional
	// consistency issues its statements through this same connection.
	conn, err := o.Pool.Conn(ctx)
	if err != nil {
		return errs.NewFatalError("acquiring a dedicated connection", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET autocommit=0"); err != nil {
		return errs.NewFatalError("disabling autocommit", err)
	}
	if _, err := conn.ExecContext(ctx, "SET SESSION TRANSACTION ISOLATION LEVEL REPEATABLE READ"); err != nil {
		return errs.NewFatalError("setting session isolation level", err)
	}

	probeConn := probe.New(conn)
	grants, err := probeConn.ReadUserGrants(ctx)
	if err != nil {
		return errs.NewFatalError("reading user grants", err)
	}
	if !probe.HasGrants(grants, o.Config.RequiredGrants) {
		return errs.NewPreconditionError(
			"source user is missing one or more required grants: " +
				strings.Join(o.Config.RequiredGrants, ", "))
	}

	if err := o.checkCanceled(state); err != nil {
		return err
	}

	// Step 1: open a consistent transaction before any lock is taken,
	// so its REPEATABLE READ view is pinned no later than the lock.
	if _, err := conn.ExecContext(ctx, "START TRANSACTION WITH CONSISTENT SNAPSHOT"); err != nil {
		return errs.NewFatalError("starting consistent transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			// Best effort: the connection is about to be closed anyway,
			// but an explicit rollback avoids relying on driver-level
			// cleanup semantics for an aborted transaction.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := o.checkCanceled(state); err != nil {
		return err
	}

	// Step 2: global read lock.
	if _, err := conn.ExecContext(ctx, "FLUSH TABLES WITH READ LOCK"); err != nil {
		return errs.NewFatalError("acquiring the global read lock", err)
	}
	lockStart := time.Now()
	unlocked := false
	unlock := func() {
		if unlocked {
			return
		}
		unlocked = true
		metrics.ObserveLockHeld(time.Since(lockStart))
		_, _ = conn.ExecContext(context.Background(), "UNLOCK TABLES")
	}
	defer unlock()

	if err := o.checkCanceled(state); err != nil {
		return err
	}

	// Step 3: binlog coordinate capture, while the lock guarantees no
	// writes are landing between this read and the transaction's view.
	coord, err := probeConn.ReadBinlogCoordinate(ctx)
	if err != nil {
		if errors.Is(err, probe.ErrBinlogDisabled) {
			return errs.NewPreconditionError("binary logging is disabled on the source server")
		}
		return errs.NewFatalError("capturing the binlog coordinate", err)
	}
	if normalized, err := o.normalizeGTIDSet(coord.GTIDSet); err != nil {
		o.Log.WithError(err).Warn("could not normalize GTID set; passing it through unparsed")
	} else {
		coord.GTIDSet = normalized
	}
	sourceInfo := &types.SourceInfo{Coordinate: coord, Marker: types.SnapshotInProgress}
	// Every data event of the run carries this one snapshot-start
	// timestamp.
	snapshotTS := schema.NowMillis()

	// Steps 4 and 5: database / table enumeration. Metadata reads are
	// consistent for the whole server as long as the lock is held,
	// regardless of which connection issues them, so this step is
	// allowed to fan out across a small pool of extra connections.
	if err := o.checkCanceled(state); err != nil {
		return err
	}
	tables, err := o.enumerateTables(ctx)
	if err != nil {
		return err
	}

	if err := o.checkCanceled(state); err != nil {
		return err
	}

	// Step 6: schema rebuild via synthetic DDL.
	makers, err := o.rebuildSchema(ctx, conn, probeConn, events, tables)
	if err != nil {
		return err
	}

	if err := o.checkCanceled(state); err != nil {
		return err
	}

	// Step 7: early lock release, if minimal locking is enabled. The
	// transaction's REPEATABLE READ view, not the lock, is what keeps
	// the table scan consistent from here on.
	if o.Config.MinimalLocks {
		unlock()
	}

	if o.Config.SchemaOnly() {
		committed = true
		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			return errs.NewFatalError("committing schema-only snapshot", err)
		}
		return events.Flush(ctx)
	}

	// Step 8: table scan.
	q := queue.New(events, state.Stopping())
	for _, id := range tables {
		maker, ok := makers[id.Raw()]
		if !ok {
			continue // Schema read for this table failed earlier; already logged.
		}
		if err := o.checkCanceled(state); err != nil {
			return err
		}
		if err := o.scanTable(ctx, conn, probeConn, maker, id, sourceInfo, snapshotTS, q, state); err != nil {
			return err
		}
	}

	// Step 9: release the lock if it's still held (MinimalLocks was
	// false).
	unlock()

	// Step 10: rewrite the final event's marker to LAST, then commit.
	if err := q.Flush(ctx, func(event *types.ChangeEvent) {
		event.Offset.Snapshot = types.SnapshotLast
	}); err != nil {
		return err
	}

	committed = true
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return errs.NewFatalError("committing snapshot transaction", err)
	}
	return events.Flush(ctx)
}

// enumerateTables lists every table in every database that passes the
// configured filters, fanning out the per-database SHOW TABLES IN
// calls across a bounded pool of connections.
func (o *Orchestrator) enumerateTables(ctx context.Context) ([]ident.TableID, error) {
	listConn, err := o.Pool.Conn(ctx)
	if err != nil {
		return nil, errs.NewFatalError("acquiring a connection to list databases", err)
	}
	defer listConn.Close()

	databases, err := probe.New(listConn).ReadCatalogNames(ctx)
	if err != nil {
		return nil, errs.NewFatalError("enumerating databases", err)
	}
	databases = msort.UniqueStrings(databases)

	var mu sync.Mutex
	var tables []ident.TableID

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrentListingLimit)
	for _, db := range databases {
		db := db
		if !o.Filter.DatabaseFilter(db) {
			continue
		}
		g.Go(func() error {
			c, err := o.Pool.Conn(gctx)
			if err != nil {
				return errs.NewFatalError("acquiring a connection to list tables in "+db, err)
			}
			defer c.Close()

			names, err := probe.New(c).ReadAllTableNames(gctx, db)
			if err != nil {
				o.Log.WithError(err).WithField("database", db).
					Warn("skipping database: could not list tables")
				return nil
			}
			var found []ident.TableID
			for _, name := range names {
				id := ident.NewSchema("", db).Table(name)
				if o.Filter.TableFilter(id) {
					found = append(found, id)
				}
			}
			mu.Lock()
			tables = append(tables, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errs.NewFatalError("enumerating tables", err)
	}

	tables = msort.UniqueTableIDs(tables)
	sort.Slice(tables, func(i, j int) bool { return tables[i].Raw() < tables[j].Raw() })
	return tables, nil
}

// rebuildSchema issues the synthetic DDL of step 6, in the order the
// downstream schema registry needs to converge on the exact
// post-snapshot schema regardless of what it already knew about:
// the database-agnostic charset SET statement; a DROP TABLE IF EXISTS
// for every table the schema model previously knew about or this run
// just discovered; a DROP DATABASE IF EXISTS for every database the
// model knew about that is no longer readable; and finally, per
// newly discovered database, a DROP+CREATE+USE bundle followed by
// each table's CREATE TABLE, building a record.Maker for every table
// whose DDL could be read and parsed.
func (o *Orchestrator) rebuildSchema(
	ctx context.Context, conn *sql.Conn, probeConn *probe.Probe,
	events logical.Events, tables []ident.TableID,
) (map[string]*record.Maker, error) {
	if vars, err := probeConn.ReadCharsetSystemVariables(ctx); err != nil {
		o.Log.WithError(err).Warn("could not read charset system variables")
	} else if ddl := schema.SetVariablesDDL(vars); ddl != "" {
		if err := o.emitDDL(ctx, events, "", ddl); err != nil {
			return nil, err
		}
	}

	byDatabase := make(map[string][]ident.TableID)
	for _, id := range tables {
		byDatabase[id.Schema] = append(byDatabase[id.Schema], id)
	}
	databases := make([]string, 0, len(byDatabase))
	for db := range byDatabase {
		databases = append(databases, db)
	}
	sort.Strings(databases)

	// Capture what the model knew before this run starts dropping
	// anything: step 6.3 needs to compare against databases that were
	// known prior to this run, not whatever remains after 6.2 empties
	// the per-table catalog.
	knownDatabases := o.Schema.KnownDatabases()
	sort.Strings(knownDatabases)

	dropTables := msort.UniqueTableIDs(append(append([]ident.TableID{}, o.Schema.KnownTables()...), tables...))
	sort.Slice(dropTables, func(i, j int) bool { return dropTables[i].Raw() < dropTables[j].Raw() })
	for _, id := range dropTables {
		o.Schema.DropTable(id)
		if err := o.emitDDL(ctx, events, id.Schema, schema.DropTableDDL(id)); err != nil {
			return nil, err
		}
	}

	discovered := make(map[string]bool, len(databases))
	for _, db := range databases {
		discovered[db] = true
	}
	for _, db := range knownDatabases {
		if discovered[db] {
			continue
		}
		o.Schema.DropDatabase(db)
		if err := o.emitDDL(ctx, events, db, schema.DropDatabaseDDL(db)); err != nil {
			return nil, err
		}
	}

	makers := make(map[string]*record.Maker, len(tables))
	for _, db := range databases {
		drop, create, use := schema.CreateDatabaseDDL(db)
		for _, ddl := range []string{drop, create, use} {
			if err := o.emitDDL(ctx, events, db, ddl); err != nil {
				return nil, err
			}
		}
		if _, err := conn.ExecContext(ctx, "USE "+ident.NewSchema("", db).String()); err != nil {
			return nil, errs.NewFatalError("selecting database "+db, err)
		}

		for _, id := range byDatabase[db] {
			ddl, err := probeConn.ReadCreateTable(ctx, id.Schema, id.Table)
			if err != nil {
				o.Log.WithError(err).WithField("table", id.Raw()).
					Warn("skipping table: could not read schema")
				continue
			}
			cols, err := schema.ParseCreateTable(ddl)
			if err != nil {
				o.Log.WithError(err).WithField("table", id.Raw()).
					Warn("skipping table: could not parse schema")
				continue
			}
			table := schema.NewTableFromColumns(id, cols)
			o.Schema.PutTable(table)
			if err := o.emitDDL(ctx, events, db, ddl); err != nil {
				return nil, err
			}
			makers[id.Raw()] = record.New(table, o.Filter, o.Config.TopicPrefix)
		}
	}
	return makers, nil
}

// emitDDL passes ddl through the schema model's ApplyDDL, which
// delivers it to events as a SchemaChange if emission is enabled. It
// does not change the catalog; callers make the matching catalog
// change (PutTable, DropTable, DropDatabase) themselves.
func (o *Orchestrator) emitDDL(ctx context.Context, events logical.Events, database, ddl string) error {
	if ddl == "" {
		return nil
	}
	return o.Schema.ApplyDDL(database, ddl, func(db, stmt string) error {
		return events.OnSchemaChange(ctx, types.SchemaChange{
			Database:        db,
			DDL:             stmt,
			TimestampMillis: schema.NowMillis(),
		})
	})
}

// scanTable performs step 8 for a single table: it chooses a streaming
// or buffered cursor based on the server's own row-count estimate,
// reads every row, and builds+enqueues a ChangeEvent for each one.
func (o *Orchestrator) scanTable(
	ctx context.Context, conn *sql.Conn, probeConn *probe.Probe,
	maker *record.Maker, id ident.TableID, sourceInfo *types.SourceInfo,
	ts int64, q *queue.Queue, state logical.State,
) error {
	start := time.Now()

	if _, err := conn.ExecContext(ctx, "USE "+ident.NewSchema("", id.Schema).String()); err != nil {
		return errs.NewFatalError("selecting database for "+id.Raw(), err)
	}

	estimate, err := probeConn.EstimatedRowCount(ctx, id.Schema, id.Table)
	if err != nil {
		o.Log.WithError(err).WithField("table", id.Raw()).
			Warn("row-count estimate unavailable; defaulting to a streaming cursor")
		estimate = o.Config.MinRowCountToStreamResults
	}
	stream := estimate >= o.Config.MinRowCountToStreamResults

	rows, err := conn.QueryContext(ctx, "SELECT * FROM "+id.String())
	if err != nil {
		metrics.IncScanError(id.Schema, id.Table)
		return errs.NewFatalError("scanning "+id.Raw(), err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		metrics.IncScanError(id.Schema, id.Table)
		return errs.NewFatalError("reading column list for "+id.Raw(), err)
	}

	process := func(row types.Row, count int64) error {
		offset := sourceInfo.Snapshot()
		var recErr error
		if o.Config.EventKind == types.EventCreate {
			recErr = maker.Create(ctx, q, row, ts, offset)
		} else {
			recErr = maker.Read(ctx, q, row, ts, offset)
		}
		if recErr != nil {
			return recErr
		}
		if count%progressReportInterval == 0 {
			metrics.ObserveScanProgress(id.Schema, id.Table, count)
		}
		if count%int64(o.Config.MaxBatchSize) == 0 {
			return o.checkCanceled(state)
		}
		return nil
	}

	var count int64
	if stream {
		for rows.Next() {
			row, err := scanRow(rows, len(cols))
			if err != nil {
				metrics.IncScanError(id.Schema, id.Table)
				return errs.NewFatalError("scanning row from "+id.Raw(), err)
			}
			count++
			if err := process(row, count); err != nil {
				metrics.IncScanError(id.Schema, id.Table)
				return err
			}
		}
	} else {
		var buffered []types.Row
		for rows.Next() {
			row, err := scanRow(rows, len(cols))
			if err != nil {
				metrics.IncScanError(id.Schema, id.Table)
				return errs.NewFatalError("scanning row from "+id.Raw(), err)
			}
			buffered = append(buffered, row)
		}
		rows.Close()
		for _, row := range buffered {
			count++
			if err := process(row, count); err != nil {
				metrics.IncScanError(id.Schema, id.Table)
				return err
			}
		}
	}
	if err := rows.Err(); err != nil {
		metrics.IncScanError(id.Schema, id.Table)
		return errs.NewFatalError("iterating rows from "+id.Raw(), err)
	}

	metrics.ObserveTableScan(id.Schema, id.Table, count, time.Since(start))
	return nil
}

// scanRow reads one row of width n into a types.Row, preserving SQL
// NULL as a nil entry.
func scanRow(rows *sql.Rows, n int) (types.Row, error) {
	dest := make([]any, n)
	raw := make([]sql.RawBytes, n)
	for i := range dest {
		dest[i] = &raw[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	row := make(types.Row, n)
	for i, b := range raw {
		if b == nil {
			continue
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		row[i] = string(cp)
	}
	return row, nil
}

// checkCanceled reports errs.ErrCanceled if state has observed a
// cooperative stop request.
func (o *Orchestrator) checkCanceled(state logical.State) error {
	select {
	case <-state.Stopping():
		return errs.ErrCanceled
	default:
		return nil
	}
}

// normalizeGTIDSet parses raw with the go-mysql-org/go-mysql GTID
// representation, drops any source UUID the GTID-source filter
// excludes, and renders the result back to its canonical string form
// for handoff to binlog streaming.
func (o *Orchestrator) normalizeGTIDSet(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	set, err := gomysql.ParseMysqlGTIDSet(raw)
	if err != nil {
		return "", errors.Wrap(err, "parsing GTID set")
	}
	mysqlSet, ok := set.(*gomysql.MysqlGTIDSet)
	if !ok {
		return set.String(), nil
	}
	for sourceUUID := range mysqlSet.Sets {
		if !o.Filter.GTIDSourceFilter(sourceUUID) {
			delete(mysqlSet.Sets, sourceUUID)
		}
	}
	return mysqlSet.String(), nil
}
