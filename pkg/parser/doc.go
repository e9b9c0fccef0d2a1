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

// Package parser normalizes heterogeneous ETL artifacts into the TraceAI
// intermediate representation.
//
// Six formats are supported, each behind the same Parser interface:
//
//   - SSIS packages (.dtsx): XML task graphs with connection managers
//   - COBOL programs (.cbl, .cob): fixed-form source with embedded SQL
//   - JCL batch jobs (.jcl): 80-column job control cards
//   - JSON pipeline configs (.json): shape-classified generic configs
//   - Excel workbooks (.xlsx): sheets, defined names, formula references
//   - CSV lineage maps (.csv): source/target mapping rows
//
// Parsers are pure functions of file bytes: no shared mutable state, safe
// for concurrent use on distinct paths, and deterministic (parsing the same
// bytes twice yields equal ParsedDocuments). Dispatch happens through a
// Registry assembled once at startup.
//
// # Failure Policy
//
// A parser either fails fatally with a MalformedInput error (no document),
// or succeeds, possibly partially, recording what it could not extract in
// ParsedDocument.Warnings. Partial documents are committed; the warnings
// surface in the ingestion run report.
package parser
