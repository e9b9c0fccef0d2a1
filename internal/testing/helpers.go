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

package testing

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/kraklabs/traceai/pkg/embedding"
	"github.com/kraklabs/traceai/pkg/graph"
	"github.com/kraklabs/traceai/pkg/ir"
	"github.com/kraklabs/traceai/pkg/vector"
)

// DiscardLogger returns a logger that drops everything. Tests pass it to
// constructors so assertion failures stay readable.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SetupTestGraph creates an empty lineage graph with a quiet logger.
//
// Example:
//
//	g := testing.SetupTestGraph(t)
//	testing.SeedDocument(t, g, "/etl/jobs/cust001.cbl", "CUST001")
func SetupTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	return graph.New(DiscardLogger())
}

// SetupTestIndex creates an in-memory vector index over the mock
// embedding provider. The index is closed when the test finishes.
func SetupTestIndex(t *testing.T) vector.Index {
	t.Helper()
	idx := vector.NewMemoryIndex(embedding.NewMockProvider(32), DiscardLogger())
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

// SeedDocument commits a minimal parsed document to the graph: one
// component that reads CUSTOMER-FILE and writes CUSTMAST. Returns the
// document ID.
//
// Example:
//
//	g := testing.SetupTestGraph(t)
//	docID := testing.SeedDocument(t, g, "/etl/jobs/cust001.cbl", "CUST001")
//	snap := g.Snapshot()
//	// snap now resolves docID and both entities
func SeedDocument(t *testing.T, g *graph.Graph, path, name string) string {
	t.Helper()

	docID := ir.DocumentID(path)
	compID := ir.ComponentID(docID, name)
	readEntity := ir.DataEntity{
		ID:         ir.DataEntityID(ir.EntityDataset, "CUSTOMER-FILE"),
		Name:       "CUSTOMER-FILE",
		EntityType: ir.EntityDataset,
		Confidence: ir.ConfidenceExact,
	}
	writeEntity := ir.DataEntity{
		ID:         ir.DataEntityID(ir.EntityDataset, "CUSTMAST"),
		Name:       "CUSTMAST",
		EntityType: ir.EntityDataset,
		Confidence: ir.ConfidenceExact,
	}

	doc := &ir.ParsedDocument{
		Document: ir.Document{
			ID:          docID,
			Name:        name,
			Kind:        ir.DocCOBOL,
			SourcePath:  ir.NormalizePath(path),
			ContentHash: ir.ContentHash([]byte(name)),
		},
		Components:   []ir.Component{{ID: compID, Name: name, ComponentType: "program"}},
		DataEntities: []ir.DataEntity{readEntity, writeEntity},
		Dependencies: []ir.Dependency{
			{FromID: docID, ToID: compID, Kind: ir.DepContains},
			{FromID: compID, ToID: readEntity.ID, Kind: ir.DepReadsFrom},
			{FromID: compID, ToID: writeEntity.ID, Kind: ir.DepWritesTo},
		},
	}

	if _, err := g.AddDocument(context.Background(), doc); err != nil {
		t.Fatalf("failed to seed document %s: %v", path, err)
	}
	return docID
}

// Sample source artifacts for tests that exercise real parsing. One per
// line-oriented format; XLSX fixtures are binary and live in testdata
// directories instead.
const (
	// SampleCOBOL is a small customer-master program: reads
	// CUSTOMER-FILE, writes CUSTMAST.
	SampleCOBOL = `       IDENTIFICATION DIVISION.
       PROGRAM-ID. CUST001.
       ENVIRONMENT DIVISION.
       INPUT-OUTPUT SECTION.
       FILE-CONTROL.
           SELECT CUSTOMER-FILE ASSIGN TO 'CUSTIN'
               ORGANIZATION IS SEQUENTIAL.
           SELECT CUSTMAST ASSIGN TO CUSTOUT.
       DATA DIVISION.
       WORKING-STORAGE SECTION.
       01  CUSTOMER-RECORD.
           05  CUST-ID              PIC 9(8).
           05  CUST-NAME            PIC X(40).
       PROCEDURE DIVISION.
       MAIN-CONTROL.
           PERFORM PROCESS-CUSTOMERS
           STOP RUN.
       PROCESS-CUSTOMERS.
           READ CUSTOMER-FILE
           WRITE CUSTMAST.
`

	// SampleJCL runs the SampleCOBOL program, so ingesting both files
	// resolves the deferred CALLS edge from STEP1 to CUST001.
	SampleJCL = `//DAILYCUS JOB (ACCT123),'CUSTOMER MASTER UPDATE',CLASS=A
//STEP1    EXEC PGM=CUST001
//CUSTIN   DD DSN=CUSTOMER.INPUT.MASTER,DISP=SHR
//CUSTOUT  DD DSN=CUSTMAST,
//             DISP=(NEW,CATLG,DELETE)
`

	// SampleJSON is a pipeline config with jobs and tables.
	SampleJSON = `{
  "name": "customer_refresh",
  "connections": {
    "warehouse": "Server=dwhsql01;Database=Warehouse"
  },
  "tables": [
    {"name": "staging.customers", "columns": ["id", "email"]},
    {"name": "dim_customer", "columns": ["id", "email", "valid_from"]}
  ],
  "jobs": [
    {"name": "build_dim", "source": "staging.customers", "target": "dim_customer"}
  ]
}
`

	// SampleCSV is a two-row lineage map.
	SampleCSV = `source_table,target_table,transformation_logic
landing.customer_extract,staging.customers,trim and dedupe
staging.customers,dim_customer,SCD2 merge
`
)

// WriteSampleTree writes the four sample artifacts into a fresh temp
// directory laid out like a small ETL estate and returns its root.
//
// Layout:
//
//	programs/cust001.cbl
//	jobs/daily_batch.jcl
//	configs/pipeline.json
//	docs/lineage.csv
func WriteSampleTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	WriteFile(t, root, "programs/cust001.cbl", SampleCOBOL)
	WriteFile(t, root, "jobs/daily_batch.jcl", SampleJCL)
	WriteFile(t, root, "configs/pipeline.json", SampleJSON)
	WriteFile(t, root, "docs/lineage.csv", SampleCSV)
	return root
}

// WriteFile writes content under root at the slash-separated relative
// path, creating directories as needed.
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
	return path
}
