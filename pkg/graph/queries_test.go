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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/ir"
)

func TestSnapshot_AnalyzeImpact(t *testing.T) {
	g := testGraph()
	addDoc(t, g, warehousePackage())
	s := g.Snapshot()

	res, err := s.AnalyzeImpact("Customer")
	require.NoError(t, err)
	assert.Equal(t, []string{"AggregateSales", "ExtractCustomers"}, plainNames(res.Readers))
	assert.Equal(t, []string{"MergeToWarehouse"}, plainNames(res.Writers))
	assert.Equal(t, 3, res.Total)

	// Lookup is case-insensitive and strips table qualifiers.
	lower, err := s.AnalyzeImpact("customer")
	require.NoError(t, err)
	assert.Equal(t, res.Total, lower.Total)
	qualified, err := s.AnalyzeImpact("dbo.Customer")
	require.NoError(t, err)
	assert.Equal(t, res.Total, qualified.Total)
}

func TestSnapshot_AnalyzeImpactUnknown(t *testing.T) {
	g := testGraph()
	addDoc(t, g, custProgram())
	addDoc(t, g, nightlyJob())
	s := g.Snapshot()

	_, err := s.AnalyzeImpact("CUSTOMER")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindUnknownEntity))

	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Contains(t, e.Fix, "CUSTOMER-FILE")
	assert.Contains(t, e.Fix, "CUSTOMER.INPUT.MASTER")
}

func TestSnapshot_TraceLineageUpstream(t *testing.T) {
	g := testGraph()
	addDoc(t, g, nightlyJob())
	addDoc(t, g, custProgram())
	s := g.Snapshot()

	res, err := s.TraceLineage(context.Background(), "CUSTMAST", DirectionUpstream, 5)
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Empty(t, res.Downstream)

	depths := make(map[string]int, len(res.Upstream))
	for _, n := range res.Upstream {
		depths[n.Name] = n.Depth
	}
	assert.Equal(t, 0, depths["CUSTMAST"])
	assert.Equal(t, 1, depths["CUST001"], "the writing program is one hop out")
	assert.Equal(t, 1, depths["STEP1"], "the writing job step is one hop out")
	assert.Equal(t, 2, depths["CUSTOMER-FILE"])
	assert.Equal(t, 2, depths["CUSTOMER.INPUT.MASTER"])
	assert.Len(t, res.Upstream, 5)
}

func TestSnapshot_TraceLineageDownstream(t *testing.T) {
	g := testGraph()
	addDoc(t, g, custProgram())
	s := g.Snapshot()

	res, err := s.TraceLineage(context.Background(), "CUSTOMER-FILE", DirectionDownstream, 5)
	require.NoError(t, err)
	names := nodeNames(res.Downstream)
	assert.Equal(t, []string{"CUSTOMER-FILE", "CUST001", "CUSTMAST"}, names)
	assert.Empty(t, res.Upstream)
}

func TestSnapshot_TraceLineageDepthZero(t *testing.T) {
	g := testGraph()
	addDoc(t, g, custProgram())
	s := g.Snapshot()

	res, err := s.TraceLineage(context.Background(), "CUSTMAST", DirectionBoth, 0)
	require.NoError(t, err)
	require.Len(t, res.Upstream, 1)
	require.Len(t, res.Downstream, 1)
	assert.Equal(t, "CUSTMAST", res.Upstream[0].Name)
	assert.Equal(t, 0, res.Upstream[0].Depth)
}

func TestSnapshot_TraceLineageValidation(t *testing.T) {
	g := testGraph()
	addDoc(t, g, custProgram())
	s := g.Snapshot()

	_, err := s.TraceLineage(context.Background(), "CUSTMAST", "sideways", 5)
	assert.True(t, errors.IsKind(err, errors.KindInvalidArgument))

	_, err = s.TraceLineage(context.Background(), "CUSTMAST", DirectionBoth, -1)
	assert.True(t, errors.IsKind(err, errors.KindInvalidArgument))

	_, err = s.TraceLineage(context.Background(), "NO-SUCH-FILE", DirectionBoth, 5)
	assert.True(t, errors.IsKind(err, errors.KindUnknownEntity))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.TraceLineage(ctx, "CUSTMAST", DirectionBoth, 5)
	assert.True(t, errors.IsKind(err, errors.KindCancelled))
}

func TestSnapshot_TraceLineageTruncated(t *testing.T) {
	g := testGraph()
	g.visitCap = 2
	addDoc(t, g, warehousePackage())
	s := g.Snapshot()

	res, err := s.TraceLineage(context.Background(), "Customer", DirectionBoth, 5)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindLimitExceeded))
	require.NotNil(t, res, "partial results come back with the error")
	assert.True(t, res.Truncated)
	assert.LessOrEqual(t, len(res.Upstream)+len(res.Downstream), 2)
}

func TestSnapshot_ComponentDependencies(t *testing.T) {
	g := testGraph()
	addDoc(t, g, precedenceCycle())
	s := g.Snapshot()

	docID := ir.DocumentID("/etl/pipeline.json")
	aID := ir.ComponentID(docID, "A")

	res, err := s.ComponentDependencies(context.Background(), aID, DirectionDownstream, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, nodeNames(res.Downstream),
		"cycle must terminate with each component exactly once")
	assert.False(t, res.Truncated)

	up, err := s.ComponentDependencies(context.Background(), aID, DirectionUpstream, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B"}, nodeNames(up.Upstream))
	assert.Equal(t, 1, up.Upstream[0].Depth)
	assert.Equal(t, 2, up.Upstream[1].Depth)
}

func TestSnapshot_ComponentDependenciesCallLeaf(t *testing.T) {
	g := testGraph()
	addDoc(t, g, custProgram())
	addDoc(t, g, nightlyJob())
	s := g.Snapshot()

	stepID := ir.ComponentID(ir.DocumentID("/etl/jobs/nightly.jcl"), "STEP1")
	res, err := s.ComponentDependencies(context.Background(), stepID, DirectionDownstream, 5)
	require.NoError(t, err)
	require.Len(t, res.Downstream, 1)
	assert.Equal(t, NodeDocument, res.Downstream[0].Kind, "a resolved call lands on the document")
	assert.Equal(t, "CUST001", res.Downstream[0].Name)
}

func TestSnapshot_ComponentDependenciesUnknown(t *testing.T) {
	g := testGraph()
	addDoc(t, g, precedenceCycle())
	s := g.Snapshot()

	_, err := s.ComponentDependencies(context.Background(), "doc:x/Nope", DirectionBoth, 5)
	assert.True(t, errors.IsKind(err, errors.KindUnknownEntity))

	// An entity id is not a component id.
	custmast := ir.DataEntityID(ir.EntityDataset, "CUSTMAST")
	_, err = s.ComponentDependencies(context.Background(), custmast, DirectionBoth, 5)
	assert.True(t, errors.IsKind(err, errors.KindUnknownEntity))
}

func TestSnapshot_PathsBetween(t *testing.T) {
	g := testGraph()
	addDoc(t, g, warehousePackage())
	s := g.Snapshot()

	docID := ir.DocumentID("/etl/warehouse.dtsx")
	extract := ir.ComponentID(docID, "ExtractCustomers")
	customer := ir.DataEntityID(ir.EntityTable, "Customer")

	paths, err := s.PathsBetween(context.Background(), extract, customer, 4)
	require.NoError(t, err)
	require.Len(t, paths, 2, "direct read plus the route through MergeToWarehouse")
	assert.Len(t, paths[0].Nodes, 2)
	assert.Len(t, paths[1].Nodes, 3)
	assert.Equal(t, "MergeToWarehouse", paths[1].Nodes[1].Name)

	// maxLen bounds the edge count.
	short, err := s.PathsBetween(context.Background(), extract, customer, 1)
	require.NoError(t, err)
	require.Len(t, short, 1)
}

func TestSnapshot_PathsBetweenEdgeCases(t *testing.T) {
	g := testGraph()
	addDoc(t, g, precedenceCycle())
	s := g.Snapshot()

	docID := ir.DocumentID("/etl/pipeline.json")
	aID := ir.ComponentID(docID, "A")
	cID := ir.ComponentID(docID, "C")

	paths, err := s.PathsBetween(context.Background(), aID, cID, 5)
	require.NoError(t, err)
	require.Len(t, paths, 1, "the cycle must not produce non-simple paths")
	assert.Equal(t, []string{"A", "B", "C"}, plainNames(paths[0].Nodes))

	self, err := s.PathsBetween(context.Background(), aID, aID, 5)
	require.NoError(t, err)
	require.Len(t, self, 1)
	assert.Len(t, self[0].Nodes, 1)

	_, err = s.PathsBetween(context.Background(), aID, "doc:x/missing", 5)
	assert.True(t, errors.IsKind(err, errors.KindUnknownEntity))

	_, err = s.PathsBetween(context.Background(), aID, cID, 0)
	assert.True(t, errors.IsKind(err, errors.KindInvalidArgument))
}

func TestSnapshot_FindNodes(t *testing.T) {
	g := testGraph()
	addDoc(t, g, warehousePackage())
	s := g.Snapshot()

	comps, err := s.FindNodes(NodeComponent, "customers", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ExtractCustomers"}, plainNames(comps))

	limited, err := s.FindNodes(NodeComponent, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	_, err = s.FindNodes("pipeline", "", 0)
	assert.True(t, errors.IsKind(err, errors.KindInvalidArgument))

	// Components sort ahead of documents in the stable output order.
	hits := s.FindByName("warehouse")
	assert.Equal(t, []string{"MergeToWarehouse", "warehouse"}, plainNames(hits))
}

func TestSnapshot_DocumentCatalog(t *testing.T) {
	g := testGraph()
	addDoc(t, g, warehousePackage())
	addDoc(t, g, custProgram())
	addDoc(t, g, nightlyJob())
	s := g.Snapshot()

	rows := s.DocumentCatalog("", "", 0)
	require.Len(t, rows, 3)
	assert.Equal(t, "CUST001", rows[0].Name)
	assert.Equal(t, "NIGHTLY", rows[1].Name)
	assert.Equal(t, "warehouse", rows[2].Name)

	wh := rows[2]
	assert.Equal(t, ir.DocSSIS, wh.Kind)
	assert.Equal(t, 3, wh.Components)
	assert.Equal(t, 1, wh.DataEntities)
	assert.Zero(t, wh.DataSources)
	assert.Zero(t, wh.Parameters)
	assert.False(t, wh.ParsedAt.IsZero())

	jcl := s.DocumentCatalog(ir.DocJCL, "", 0)
	require.Len(t, jcl, 1)
	assert.Equal(t, "NIGHTLY", jcl[0].Name)
	assert.Equal(t, 2, jcl[0].DataEntities)

	byName := s.DocumentCatalog("", "cust", 0)
	require.Len(t, byName, 1)
	assert.Equal(t, "CUST001", byName[0].Name)

	assert.Len(t, s.DocumentCatalog("", "", 2), 2)
	assert.Empty(t, s.DocumentCatalog("PARQUET", "", 0))
}
