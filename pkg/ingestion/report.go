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
	"fmt"
	"sort"
	"time"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/graph"
)

// FileError records one file that could not be ingested: where it was,
// what kind of error stopped it, and the message for humans.
type FileError struct {
	Path    string      `json:"path"`
	Kind    errors.Kind `json:"kind"`
	Message string      `json:"message"`
}

// RunDurations breaks a run down by stage. Parse is the wall time of the
// parse/commit pipeline; Commit is the time spent inside the serial
// committer and therefore overlaps Parse.
type RunDurations struct {
	Discovery time.Duration `json:"discovery_ns"`
	Parse     time.Duration `json:"parse_ns"`
	Commit    time.Duration `json:"commit_ns"`
	Resolve   time.Duration `json:"resolve_ns"`
	Total     time.Duration `json:"total_ns"`
}

// RunReport summarizes one ingestion run.
//
// File counters cover the discovery and parse stages; document counters
// cover graph commits. A file that parses but fails to commit counts as
// failed, not parsed. Failures never abort the run, so a report can show
// both committed documents and failures side by side.
type RunReport struct {
	RunID     string    `json:"run_id"`
	Root      string    `json:"root"`
	StartedAt time.Time `json:"started_at"`

	FilesDiscovered int            `json:"files_discovered"`
	FilesSkipped    int            `json:"files_skipped"`
	FilesParsed     int            `json:"files_parsed"`
	FilesFailed     int            `json:"files_failed"`
	SkipReasons     map[string]int `json:"skip_reasons,omitempty"`

	DocumentsAdded     int `json:"documents_added"`
	DocumentsUpdated   int `json:"documents_updated"`
	DocumentsUnchanged int `json:"documents_unchanged"`
	DocumentsRemoved   int `json:"documents_removed"`

	NodesAdded    int `json:"nodes_added"`
	NodesUpdated  int `json:"nodes_updated"`
	NodesRemoved  int `json:"nodes_removed"`
	EdgesAdded    int `json:"edges_added"`
	EdgesRemoved  int `json:"edges_removed"`
	VectorUpserts int `json:"vector_upserts"`

	Failures   []FileError           `json:"failures,omitempty"`
	Warnings   []string              `json:"warnings,omitempty"`
	Unresolved []graph.UnresolvedRef `json:"unresolved,omitempty"`

	Durations RunDurations `json:"durations"`
}

// PartialFailure reports whether some files failed while the run as a
// whole completed. The CLI maps it to exit code 4.
func (r *RunReport) PartialFailure() bool {
	return r.FilesFailed > 0
}

// Changed reports whether the run mutated the graph or the vector index.
// A re-run over an unchanged tree returns false.
func (r *RunReport) Changed() bool {
	return r.DocumentsAdded > 0 || r.DocumentsUpdated > 0 || r.DocumentsRemoved > 0
}

func (r *RunReport) addFailure(path string, err error) {
	r.FilesFailed++
	r.Failures = append(r.Failures, FileError{
		Path:    path,
		Kind:    errors.KindOf(err),
		Message: err.Error(),
	})
}

func (r *RunReport) addWarning(path, note string) {
	r.Warnings = append(r.Warnings, fmt.Sprintf("%s: %s", path, note))
}

// finalize sorts failures and warnings so reports are deterministic
// regardless of worker scheduling.
func (r *RunReport) finalize() {
	sort.Slice(r.Failures, func(i, j int) bool {
		return r.Failures[i].Path < r.Failures[j].Path
	})
	sort.Strings(r.Warnings)
}
