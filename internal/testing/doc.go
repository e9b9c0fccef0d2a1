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

// Package testing provides shared test helpers for TraceAI packages.
//
// Domain packages keep their own in-package fixtures; this package
// covers the pieces that cross package boundaries: quiet loggers,
// graph/index setup with registered cleanup, a seeded document commit,
// and sample source artifacts for tests that ingest real files.
//
// # Quick Start
//
//	func TestMyFeature(t *testing.T) {
//	    g := testing.SetupTestGraph(t)
//	    idx := testing.SetupTestIndex(t)
//	    docID := testing.SeedDocument(t, g, "/etl/jobs/cust001.cbl", "CUST001")
//
//	    // g resolves docID; idx is empty and closes itself
//	}
//
// # Sample trees
//
// Tests that run the full pipeline write a real directory:
//
//	root := testing.WriteSampleTree(t)
//	// root now holds a COBOL program, the JCL job that calls it,
//	// a JSON pipeline config, and a CSV lineage map
//
// The COBOL and JCL samples are linked: the JCL's STEP1 executes
// PGM=CUST001, so ingesting the whole tree exercises deferred CALLS
// resolution.
package testing
