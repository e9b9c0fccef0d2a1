package tools

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/traceai/pkg/embedding"
	"github.com/kraklabs/traceai/pkg/graph"
	"github.com/kraklabs/traceai/pkg/ir"
	"github.com/kraklabs/traceai/pkg/vector"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDocument(path, name string, kind ir.DocumentKind, content string) ir.Document {
	return ir.Document{
		ID:          ir.DocumentID(path),
		Name:        name,
		Kind:        kind,
		SourcePath:  ir.NormalizePath(path),
		ContentHash: ir.ContentHash([]byte(content)),
	}
}

func component(docID, name, ctype string) ir.Component {
	return ir.Component{ID: ir.ComponentID(docID, name), Name: name, ComponentType: ctype}
}

func datasetEntity(name string) ir.DataEntity {
	return ir.DataEntity{
		ID:         ir.DataEntityID(ir.EntityDataset, name),
		Name:       name,
		EntityType: ir.EntityDataset,
		Confidence: ir.ConfidenceExact,
	}
}

func contains(docID string, toIDs ...string) []ir.Dependency {
	deps := make([]ir.Dependency, 0, len(toIDs))
	for _, to := range toIDs {
		deps = append(deps, ir.Dependency{FromID: docID, ToID: to, Kind: ir.DepContains})
	}
	return deps
}

// warehousePackage: two tasks read the Customer table, one writes it, and
// extract precedes merge.
func warehousePackage() *ir.ParsedDocument {
	d := testDocument("/etl/warehouse.dtsx", "warehouse", ir.DocSSIS, "warehouse v1")
	extract := component(d.ID, "ExtractCustomers", "data_flow")
	merge := component(d.ID, "MergeToWarehouse", "data_flow")
	agg := component(d.ID, "AggregateSales", "data_flow")
	customer := ir.DataEntity{
		ID:         ir.DataEntityID(ir.EntityTable, "Customer"),
		Name:       "Customer",
		EntityType: ir.EntityTable,
		Confidence: ir.ConfidenceHeuristic,
	}

	deps := contains(d.ID, extract.ID, merge.ID, agg.ID)
	deps = append(deps,
		ir.Dependency{FromID: extract.ID, ToID: customer.ID, Kind: ir.DepReadsFrom},
		ir.Dependency{FromID: agg.ID, ToID: customer.ID, Kind: ir.DepReadsFrom},
		ir.Dependency{FromID: merge.ID, ToID: customer.ID, Kind: ir.DepWritesTo},
		ir.Dependency{FromID: extract.ID, ToID: merge.ID, Kind: ir.DepPrecedes},
	)
	return &ir.ParsedDocument{
		Document:     d,
		Components:   []ir.Component{extract, merge, agg},
		DataEntities: []ir.DataEntity{customer},
		Dependencies: deps,
	}
}

// custProgram: COBOL program CUST001 reads CUSTOMER-FILE, writes CUSTMAST.
func custProgram() *ir.ParsedDocument {
	d := testDocument("/etl/jobs/cust001.cbl", "CUST001", ir.DocCOBOL, "cust001 v1")
	prog := component(d.ID, "CUST001", "program")
	in := datasetEntity("CUSTOMER-FILE")
	out := datasetEntity("CUSTMAST")

	deps := contains(d.ID, prog.ID)
	deps = append(deps,
		ir.Dependency{FromID: prog.ID, ToID: in.ID, Kind: ir.DepReadsFrom},
		ir.Dependency{FromID: prog.ID, ToID: out.ID, Kind: ir.DepWritesTo},
	)
	return &ir.ParsedDocument{
		Document:     d,
		Components:   []ir.Component{prog},
		DataEntities: []ir.DataEntity{in, out},
		Dependencies: deps,
	}
}

// nightlyJob: JCL step running CUST001 against the master dataset, with a
// deferred program reference that resolves once the COBOL document lands.
func nightlyJob() *ir.ParsedDocument {
	d := testDocument("/etl/jobs/nightly.jcl", "NIGHTLY", ir.DocJCL, "nightly v1")
	step := component(d.ID, "STEP1", "step")
	in := datasetEntity("CUSTOMER.INPUT.MASTER")
	out := datasetEntity("CUSTMAST")

	deps := contains(d.ID, step.ID)
	deps = append(deps,
		ir.Dependency{FromID: step.ID, ToID: in.ID, Kind: ir.DepReadsFrom},
		ir.Dependency{FromID: step.ID, ToID: out.ID, Kind: ir.DepWritesTo},
		ir.Dependency{FromID: step.ID, ToID: "CUST001", Kind: ir.DepCalls, Deferred: true},
	)
	return &ir.ParsedDocument{
		Document:     d,
		Components:   []ir.Component{step},
		DataEntities: []ir.DataEntity{in, out},
		Dependencies: deps,
	}
}

// newTestService builds a Service over the three-document fixture graph
// with every node surface indexed, the way the ingestion committer leaves
// things.
func newTestService(t *testing.T) (*Service, *graph.Graph, vector.Index) {
	t.Helper()
	ctx := context.Background()
	logger := discardLogger()

	g := graph.New(logger)
	for _, pd := range []*ir.ParsedDocument{warehousePackage(), custProgram(), nightlyJob()} {
		_, err := g.AddDocument(ctx, pd)
		require.NoError(t, err)
	}
	require.Empty(t, g.ResolveDeferredReferences())

	idx := vector.NewMemoryIndex(embedding.NewMockProvider(32), logger)
	t.Cleanup(func() { _ = idx.Close() })

	snap := g.Snapshot()
	nodes, err := snap.FindNodes("", "", 0)
	require.NoError(t, err)
	for _, n := range nodes {
		require.NoError(t, idx.Upsert(ctx, n.ID, n.TextSurface(), n.Metadata()))
	}

	svc, err := NewService(g, idx, logger)
	require.NoError(t, err)
	return svc, g, idx
}

func matchNames(matches []SearchMatch) []string {
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.Name)
	}
	return names
}

func lineageNames(nodes []graph.LineageNode) []string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	return names
}

func plainNames(nodes []graph.Node) []string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	return names
}
