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

// Package contract bounds the inputs accepted by the TraceAI tool surface.
//
// Every operation exposed to an external planner validates its inputs here
// before touching the graph or the vector index, so oversized names, absurd
// traversal depths and runaway result limits are rejected uniformly with
// field-level InvalidArgument errors instead of being discovered deep inside
// a query.
//
// # Limits
//
//   - Entity and component names: MaxNameBytes (default 512 bytes)
//   - Semantic search text: MaxTextBytes (default 8 KiB)
//   - Search result count k: MaxK (default 100)
//   - Traversal depth: MaxDepth (default 64)
//   - Query result limit: MaxLimit (default 1000)
//
// # Configuration via Environment
//
// Each limit can be raised or lowered per deployment without a rebuild:
//
//	export TRACEAI_MAX_NAME_BYTES=1024
//	export TRACEAI_MAX_TEXT_BYTES=16384
//	export TRACEAI_MAX_K=250
//	export TRACEAI_MAX_DEPTH=32
//	export TRACEAI_MAX_LIMIT=5000
//
// Unset or unparsable variables fall back to the defaults.
package contract
