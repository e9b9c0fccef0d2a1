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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/traceai/pkg/graph"
)

// TestSetupTestGraph verifies a fresh graph starts empty.
func TestSetupTestGraph(t *testing.T) {
	g := SetupTestGraph(t)
	require.NotNil(t, g)
	assert.Zero(t, g.Snapshot().Stats().Nodes, "should start with no nodes")
}

// TestSeedDocument verifies the seeded commit is resolvable.
func TestSeedDocument(t *testing.T) {
	g := SetupTestGraph(t)

	docID := SeedDocument(t, g, "/etl/jobs/cust001.cbl", "CUST001")

	snap := g.Snapshot()
	_, ok := snap.NodeByID(docID)
	require.True(t, ok, "document node should exist")

	stats := snap.Stats()
	assert.Equal(t, 1, stats.NodesByKind[graph.NodeDocument])
	assert.Equal(t, 1, stats.NodesByKind[graph.NodeComponent])
	assert.Equal(t, 2, stats.NodesByKind[graph.NodeDataEntity])
}

// TestSeedDocumentInterning verifies two seeded documents share the
// entity nodes instead of duplicating them.
func TestSeedDocumentInterning(t *testing.T) {
	g := SetupTestGraph(t)

	SeedDocument(t, g, "/etl/jobs/cust001.cbl", "CUST001")
	SeedDocument(t, g, "/etl/jobs/cust002.cbl", "CUST002")

	stats := g.Snapshot().Stats()
	assert.Equal(t, 2, stats.NodesByKind[graph.NodeDocument])
	assert.Equal(t, 2, stats.NodesByKind[graph.NodeDataEntity], "CUSTOMER-FILE and CUSTMAST intern across documents")
}

// TestSetupTestIndex verifies the index starts empty and accepts writes.
func TestSetupTestIndex(t *testing.T) {
	idx := SetupTestIndex(t)
	require.NotNil(t, idx)
	assert.Zero(t, idx.Len())

	require.NoError(t, idx.Upsert(context.Background(), "ent:x", "customer master table", nil))
	assert.Equal(t, 1, idx.Len())
}

// TestWriteSampleTree verifies the layout and that the linked COBOL/JCL
// pair is present.
func TestWriteSampleTree(t *testing.T) {
	root := WriteSampleTree(t)

	for _, rel := range []string{
		"programs/cust001.cbl",
		"jobs/daily_batch.jcl",
		"configs/pipeline.json",
		"docs/lineage.csv",
	} {
		_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		assert.NoError(t, err, rel)
	}

	jcl, err := os.ReadFile(filepath.Join(root, "jobs", "daily_batch.jcl"))
	require.NoError(t, err)
	assert.Contains(t, string(jcl), "PGM=CUST001", "JCL must call the COBOL sample")
}
