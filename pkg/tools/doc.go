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

// Package tools is the stable operation surface an external planner calls
// to interrogate an ingested ETL landscape.
//
// Six operations cover the questions that matter when changing a data
// pipeline: what exists (GraphQuery, GraphStats), where data comes from and
// goes to (TraceLineage), who breaks when a table changes (AnalyzeImpact),
// what runs before or because of a step (FindDependencies), and what is
// relevant to a loosely worded question (SemanticSearch). Every operation
// takes a typed request, works on a consistent graph snapshot captured at
// call time, and returns structured values rather than prose so callers can
// build on the results mechanically.
//
// # Quick Start
//
// Wrap an ingested graph and its vector index in a Service:
//
//	svc, err := tools.NewService(g, index, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	impact, err := svc.AnalyzeImpact(ctx, tools.AnalyzeImpactRequest{
//		Entity: "Customer",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, r := range impact.Readers {
//		fmt.Println(r.Name)
//	}
//
// # Operations
//
//   - GraphQuery: find nodes by kind, name substring or exact id
//   - TraceLineage: recursive upstream/downstream data flow for an entity
//   - AnalyzeImpact: one-hop readers and writers of an entity
//   - FindDependencies: execution-order and call closure of a component
//   - SemanticSearch: embedding similarity over node text surfaces
//   - GraphStats: node/edge counts by kind and document type
//
// # Errors
//
// Failures carry a Kind from internal/errors: InvalidArgument for inputs
// that fail the contract bounds, UnknownEntity for names and ids the graph
// does not have (with near-miss suggestions where possible), LimitExceeded
// when a traversal is truncated. The partial, Truncated-flagged result is
// still returned alongside a LimitExceeded error.
//
// # MCP
//
// RunMCP exposes the same six operations as Model Context Protocol tools
// over stdio for planners that speak MCP; see mcp.go. Inputs and outputs
// are the same request/response structs, validated identically.
package tools
