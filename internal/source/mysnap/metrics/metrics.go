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

// Package metrics exposes the snapshot core's Prometheus
// instrumentation (component C8), following the same promauto,
// per-table-label pattern the teacher uses for its staging-store
// metrics.
package metrics

import (
	"time"

	"github.com/mysql-cdc/snapshot-core/internal/util/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tablesScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mysnap_snapshot_tables_total",
		Help: "the number of tables fully scanned by a snapshot run",
	}, metrics.TableLabels)

	rowsScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mysnap_snapshot_rows_total",
		Help: "the number of rows read and enqueued for a table during a snapshot run",
	}, metrics.TableLabels)

	scanDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mysnap_snapshot_scan_duration_seconds",
		Help:    "the length of time it took to fully scan a table",
		Buckets: metrics.LatencyBuckets,
	}, metrics.TableLabels)

	scanErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mysnap_snapshot_scan_errors_total",
		Help: "the number of times a table scan ended in a TransientError or FatalError",
	}, metrics.TableLabels)

	scanProgress = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mysnap_snapshot_scan_progress_rows",
		Help: "the number of rows read so far for a table whose scan is still in flight",
	}, metrics.TableLabels)

	lockHeldDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mysnap_snapshot_lock_held_duration_seconds",
		Help:    "the length of time the global read lock was held during a snapshot run",
		Buckets: metrics.LatencyBuckets,
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mysnap_snapshot_runs_total",
		Help: "the number of snapshot runs, labeled by terminal outcome",
	}, []string{"outcome"})
)

// ObserveTableScan records a completed table scan.
func ObserveTableScan(database, table string, rows int64, elapsed time.Duration) {
	tablesScanned.WithLabelValues(database, table).Inc()
	rowsScanned.WithLabelValues(database, table).Add(float64(rows))
	scanDurations.WithLabelValues(database, table).Observe(elapsed.Seconds())
	scanProgress.DeleteLabelValues(database, table)
}

// ObserveScanProgress reports that a table scan still in flight has
// read rows so far. Callers emit this periodically, not per-row.
func ObserveScanProgress(database, table string, rows int64) {
	scanProgress.WithLabelValues(database, table).Set(float64(rows))
}

// IncScanError records that a table's scan ended in an error.
func IncScanError(database, table string) {
	scanErrors.WithLabelValues(database, table).Inc()
}

// ObserveLockHeld records the duration the global read lock was held.
func ObserveLockHeld(elapsed time.Duration) {
	lockHeldDuration.Observe(elapsed.Seconds())
}

// Outcomes recorded by IncRun.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
)

// IncRun records a snapshot run's terminal outcome.
func IncRun(outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
}
