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

package graph

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/traceai/pkg/ir"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGraph() *Graph {
	return New(discardLogger())
}

func addDoc(t *testing.T, g *Graph, pd *ir.ParsedDocument) *CommitReport {
	t.Helper()
	rep, err := g.AddDocument(context.Background(), pd)
	require.NoError(t, err)
	return rep
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

func tableEntity(name string, conf ir.Confidence) ir.DataEntity {
	schema, _ := ir.NormalizeEntityName(ir.EntityTable, name)
	return ir.DataEntity{
		ID:         ir.DataEntityID(ir.EntityTable, name),
		Name:       name,
		EntityType: ir.EntityTable,
		Schema:     schema,
		Confidence: conf,
	}
}

func contains(docID string, toIDs ...string) []ir.Dependency {
	deps := make([]ir.Dependency, 0, len(toIDs))
	for _, to := range toIDs {
		deps = append(deps, ir.Dependency{FromID: docID, ToID: to, Kind: ir.DepContains})
	}
	return deps
}

// warehousePackage is a three-task package: two tasks read the Customer
// table and one writes it.
func warehousePackage() *ir.ParsedDocument {
	d := testDocument("/etl/warehouse.dtsx", "warehouse", ir.DocSSIS, "warehouse v1")
	extract := component(d.ID, "ExtractCustomers", "data_flow")
	merge := component(d.ID, "MergeToWarehouse", "data_flow")
	agg := component(d.ID, "AggregateSales", "data_flow")
	customer := tableEntity("Customer", ir.ConfidenceHeuristic)

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

// custProgram is a COBOL program CUST001 reading CUSTOMER-FILE and
// writing CUSTMAST.
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

// nightlyJob is a JCL job whose only step runs CUST001 against the
// master dataset. The program reference is deferred: it resolves once
// the COBOL document lands.
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

// precedenceCycle wires three jobs into a PRECEDES loop A -> B -> C -> A.
func precedenceCycle() *ir.ParsedDocument {
	d := testDocument("/etl/pipeline.json", "pipeline", ir.DocJSON, "pipeline v1")
	a := component(d.ID, "A", "etl_job")
	b := component(d.ID, "B", "etl_job")
	c := component(d.ID, "C", "etl_job")

	deps := contains(d.ID, a.ID, b.ID, c.ID)
	deps = append(deps,
		ir.Dependency{FromID: a.ID, ToID: b.ID, Kind: ir.DepPrecedes},
		ir.Dependency{FromID: b.ID, ToID: c.ID, Kind: ir.DepPrecedes},
		ir.Dependency{FromID: c.ID, ToID: a.ID, Kind: ir.DepPrecedes},
	)
	return &ir.ParsedDocument{
		Document:     d,
		Components:   []ir.Component{a, b, c},
		Dependencies: deps,
	}
}

func nodeNames(nodes []LineageNode) []string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	return names
}

func plainNames(nodes []Node) []string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	return names
}

func hasGraphEdge(s *Snapshot, from, to string, kind ir.DependencyKind) bool {
	for _, d := range s.OutEdges(from) {
		if d.ToID == to && d.Kind == kind {
			return true
		}
	}
	return false
}
