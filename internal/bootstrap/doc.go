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

// Package bootstrap opens TraceAI workspaces.
//
// A workspace is the engine state behind one persist directory: the
// lineage graph, the vector index bound to its embedding provider, and
// the parser registry. Every CLI command opens a workspace first and
// works through it.
//
// # Opening
//
//	ws, err := bootstrap.Open(bootstrap.Options{Config: cfg}, logger)
//	if err != nil {
//	    return err
//	}
//	defer ws.Close()
//
// Open is idempotent. A fresh directory starts with an empty graph; a
// directory with a previous snapshot reloads it along with the SQLite
// vector store, so queries survive process restarts.
//
// # Persistence layout
//
// Inside persist_dir (default .traceai):
//
//   - graph.json: versioned graph snapshot, written by Workspace.Save
//   - vectors.db: SQLite vector store, written through on every commit
//
// Ephemeral workspaces (Options.Ephemeral, the --no-persist path) hold
// everything in memory and never create the directory.
package bootstrap
