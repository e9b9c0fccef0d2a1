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

// Package ingestion turns a directory of ETL artifacts into graph and
// vector state.
//
// The Coordinator owns the only write path into the graph and the vector
// index: parsers run in parallel, commits are serial, and the vector
// index is updated strictly after the corresponding graph commit so that
// semantic search never returns an id the graph cannot resolve.
//
// # Pipeline Overview
//
// A run moves through five stages:
//
//  1. Discovery: walk the root and match glob patterns (doublestar
//     syntax) against root-relative paths
//  2. Admission: keep files the parser registry supports, count the rest
//  3. Parse: up to MaxConcurrentParsers workers parse admitted files
//  4. Commit: a single committer applies results in arrival order to the
//     graph, then mirrors each commit into the vector index
//  5. Resolve: one pass over the deferred-reference table; leftovers
//     surface in the report
//
// Failures in one file never abort a run: they are collected into the
// RunReport and the remaining files commit normally. Re-running over an
// unchanged tree is a no-op end to end: every document reports unchanged
// and the vector index receives no writes.
//
// # Quick Start
//
//	coord, err := ingestion.New(
//	    parser.NewRegistry(),
//	    graph.New(logger),
//	    vector.NewMemoryIndex(embedding.NewMockProvider(embedding.DefaultDimensions), logger),
//	    ingestion.Options{Root: "./etl", Patterns: []string{"**/*.dtsx"}},
//	    logger,
//	)
//	if err != nil {
//	    return err
//	}
//
//	report, err := coord.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("ingested %d documents (%d failures)\n",
//	    report.DocumentsAdded, report.FilesFailed)
//
// # Watch Mode
//
// Watch keeps the graph in step with a changing tree: filesystem events
// are debounced, documents whose files vanished are removed, and the
// pipeline re-runs. Because commits are idempotent by content hash, a
// noisy editor costs one cheap no-op run rather than a rebuild.
package ingestion
