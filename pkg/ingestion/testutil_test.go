package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/traceai/pkg/embedding"
	"github.com/kraklabs/traceai/pkg/graph"
	"github.com/kraklabs/traceai/pkg/parser"
	"github.com/kraklabs/traceai/pkg/vector"
)

// The fixture tree mirrors a small heterogeneous ETL estate: a COBOL
// program, the JCL job that runs it (deferred CALLS target), a JSON
// pipeline config and a CSV lineage map.

const cobolProgram = `       IDENTIFICATION DIVISION.
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

const jclJob = `//DAILYCUS JOB (ACCT123),'CUSTOMER MASTER UPDATE',CLASS=A
//STEP1    EXEC PGM=CUST001
//CUSTIN   DD DSN=CUSTOMER.INPUT.MASTER,DISP=SHR
//CUSTOUT  DD DSN=CUSTMAST,
//             DISP=(NEW,CATLG,DELETE)
`

const jsonPipeline = `{
  "name": "customer_refresh",
  "description": "Refreshes customer dimensions from the staging layer",
  "connections": {
    "warehouse": "Server=dwhsql01;Database=Warehouse"
  },
  "tables": [
    {"name": "staging.customers", "columns": ["id", "email"]},
    {"name": "dim_customer", "columns": ["id", "email", "valid_from"]}
  ],
  "jobs": [
    {
      "name": "build_dim",
      "source": "staging.customers",
      "target": "dim_customer"
    }
  ]
}
`

const csvLineage = `source_table,target_table,transformation_logic
landing.customer_extract,staging.customers,trim and dedupe
staging.customers,dim_customer,SCD2 merge
`

// testTree returns the standard four-format fixture tree, keyed by
// root-relative slash path.
func testTree() map[string]string {
	return map[string]string{
		"programs/cust001.cbl":  cobolProgram,
		"jobs/daily_batch.jcl":  jclJob,
		"configs/pipeline.json": jsonPipeline,
		"docs/lineage.csv":      csvLineage,
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestCoordinator wires a coordinator over a memory index and a fresh
// graph, with a short watch debounce so tests stay fast.
func newTestCoordinator(t *testing.T, root string, mutate ...func(*Options)) (*Coordinator, *graph.Graph, vector.Index) {
	t.Helper()
	logger := quietLogger()
	g := graph.New(logger)
	idx := vector.NewMemoryIndex(embedding.NewMockProvider(32), logger)
	opts := Options{Root: root, Debounce: 50 * time.Millisecond}
	for _, f := range mutate {
		f(&opts)
	}
	c, err := New(parser.NewRegistry(), g, idx, opts, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return c, g, idx
}

// failingIndex rejects every upsert; deletes and searches pass through.
type failingIndex struct {
	vector.Index
}

func (f *failingIndex) Upsert(ctx context.Context, id, text string, metadata map[string]string) error {
	return fmt.Errorf("upsert rejected for %s", id)
}

// cancelOnUpsert cancels the run's context when the committer performs
// its first vector upsert, after at least one graph commit succeeded.
type cancelOnUpsert struct {
	vector.Index
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelOnUpsert) Upsert(ctx context.Context, id, text string, metadata map[string]string) error {
	err := c.Index.Upsert(ctx, id, text, metadata)
	c.once.Do(c.cancel)
	return err
}
