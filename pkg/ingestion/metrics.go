// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIngestion holds Prometheus metrics for the ingestion subsystem.
type metricsIngestion struct {
	once sync.Once

	// Discovery
	filesDiscovered prometheus.Counter
	filesSkipped    prometheus.Counter

	// Parse
	filesParsed prometheus.Counter
	filesFailed prometheus.Counter

	// Commit
	docsAdded     prometheus.Counter
	docsUpdated   prometheus.Counter
	docsUnchanged prometheus.Counter
	docsRemoved   prometheus.Counter

	// Vector index
	vectorUpserts  prometheus.Counter
	vectorDeletes  prometheus.Counter
	vectorFailures prometheus.Counter

	// Deferred references
	unresolvedRefs prometheus.Gauge

	// Durations
	discoveryDuration prometheus.Histogram
	parseDuration     prometheus.Histogram
	commitDuration    prometheus.Histogram
	resolveDuration   prometheus.Histogram
	totalDuration     prometheus.Histogram
}

var ingMetrics metricsIngestion

func (m *metricsIngestion) init() {
	m.once.Do(func() {
		m.filesDiscovered = prometheus.NewCounter(prometheus.CounterOpts{Name: "traceai_ing_files_discovered_total", Help: "Files matched by discovery globs"})
		m.filesSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "traceai_ing_files_skipped_total", Help: "Entries skipped during discovery and admission"})

		m.filesParsed = prometheus.NewCounter(prometheus.CounterOpts{Name: "traceai_ing_files_parsed_total", Help: "Files parsed successfully"})
		m.filesFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "traceai_ing_files_failed_total", Help: "Files that failed to parse or commit"})

		m.docsAdded = prometheus.NewCounter(prometheus.CounterOpts{Name: "traceai_ing_documents_added_total", Help: "Documents committed for the first time"})
		m.docsUpdated = prometheus.NewCounter(prometheus.CounterOpts{Name: "traceai_ing_documents_updated_total", Help: "Documents re-committed with a changed content hash"})
		m.docsUnchanged = prometheus.NewCounter(prometheus.CounterOpts{Name: "traceai_ing_documents_unchanged_total", Help: "No-op commits (content hash unchanged)"})
		m.docsRemoved = prometheus.NewCounter(prometheus.CounterOpts{Name: "traceai_ing_documents_removed_total", Help: "Documents removed after their files disappeared"})

		m.vectorUpserts = prometheus.NewCounter(prometheus.CounterOpts{Name: "traceai_ing_vector_upserts_total", Help: "Node embeddings upserted into the vector index"})
		m.vectorDeletes = prometheus.NewCounter(prometheus.CounterOpts{Name: "traceai_ing_vector_deletes_total", Help: "Node embeddings deleted from the vector index"})
		m.vectorFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "traceai_ing_vector_failures_total", Help: "Vector index operations that failed (surfaced as warnings)"})

		m.unresolvedRefs = prometheus.NewGauge(prometheus.GaugeOpts{Name: "traceai_ing_unresolved_references", Help: "Deferred references still unresolved after the latest run"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		m.discoveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "traceai_ing_discovery_seconds", Help: "Duration of the discovery stage", Buckets: buckets})
		m.parseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "traceai_ing_parse_seconds", Help: "Wall time of the parse/commit pipeline", Buckets: buckets})
		m.commitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "traceai_ing_commit_seconds", Help: "Time spent inside the serial committer", Buckets: buckets})
		m.resolveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "traceai_ing_resolve_seconds", Help: "Duration of the deferred-reference resolution pass", Buckets: buckets})
		m.totalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "traceai_ing_total_seconds", Help: "Total run duration", Buckets: buckets})

		prometheus.MustRegister(
			m.filesDiscovered, m.filesSkipped,
			m.filesParsed, m.filesFailed,
			m.docsAdded, m.docsUpdated, m.docsUnchanged, m.docsRemoved,
			m.vectorUpserts, m.vectorDeletes, m.vectorFailures,
			m.unresolvedRefs,
			m.discoveryDuration, m.parseDuration, m.commitDuration, m.resolveDuration, m.totalDuration,
		)
	})
}

// recordRun pushes one finished report into the counters.
func (m *metricsIngestion) recordRun(r *RunReport) {
	m.filesDiscovered.Add(float64(r.FilesDiscovered))
	m.filesSkipped.Add(float64(r.FilesSkipped))
	m.filesParsed.Add(float64(r.FilesParsed))
	m.filesFailed.Add(float64(r.FilesFailed))

	m.docsAdded.Add(float64(r.DocumentsAdded))
	m.docsUpdated.Add(float64(r.DocumentsUpdated))
	m.docsUnchanged.Add(float64(r.DocumentsUnchanged))
	m.docsRemoved.Add(float64(r.DocumentsRemoved))

	m.unresolvedRefs.Set(float64(len(r.Unresolved)))

	m.discoveryDuration.Observe(r.Durations.Discovery.Seconds())
	m.parseDuration.Observe(r.Durations.Parse.Seconds())
	m.commitDuration.Observe(r.Durations.Commit.Seconds())
	m.resolveDuration.Observe(r.Durations.Resolve.Seconds())
	m.totalDuration.Observe(r.Durations.Total.Seconds())
}
