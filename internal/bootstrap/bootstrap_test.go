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

package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/traceai/internal/config"
	"github.com/kraklabs/traceai/internal/errors"
	traceaitest "github.com/kraklabs/traceai/internal/testing"
	"github.com/kraklabs/traceai/pkg/parser"
)

// mockConfig avoids config.Default() so ambient TRACEAI_* variables
// cannot steer test workspaces.
func mockConfig(persistDir string) *config.Config {
	return &config.Config{
		PersistDir: persistDir,
		Embeddings: config.Embeddings{Provider: "mock"},
	}
}

func open(t *testing.T, opts Options) *Workspace {
	t.Helper()
	ws, err := Open(opts, traceaitest.DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func TestOpen_FreshWorkspace(t *testing.T) {
	persist := filepath.Join(t.TempDir(), ".traceai")
	ws := open(t, Options{Config: mockConfig(persist)})

	assert.Equal(t, persist, ws.PersistDir)
	assert.DirExists(t, persist)
	assert.Equal(t, filepath.Join(persist, GraphFileName), ws.GraphPath())
	assert.Zero(t, ws.Graph.Snapshot().Stats().Nodes)
	assert.Zero(t, ws.Index.Len())

	_, ok := ws.Registry.ParserFor("pkg.dtsx")
	assert.True(t, ok, "default registry covers all six formats")
}

func TestOpen_RelativePersistDirAnchorsAtDir(t *testing.T) {
	dir := t.TempDir()
	ws := open(t, Options{Config: mockConfig(".traceai"), Dir: dir})

	assert.Equal(t, filepath.Join(dir, ".traceai"), ws.PersistDir)
}

func TestOpen_ReopenLoadsState(t *testing.T) {
	persist := filepath.Join(t.TempDir(), ".traceai")
	cfg := mockConfig(persist)

	ws1, err := Open(Options{Config: cfg}, traceaitest.DiscardLogger())
	require.NoError(t, err)
	docID := traceaitest.SeedDocument(t, ws1.Graph, "/etl/jobs/cust001.cbl", "CUST001")
	require.NoError(t, ws1.Index.Upsert(context.Background(), docID, "customer master program", nil))
	require.NoError(t, ws1.Save())
	require.NoError(t, ws1.Close())

	ws2 := open(t, Options{Config: cfg})
	_, ok := ws2.Graph.Snapshot().NodeByID(docID)
	assert.True(t, ok, "graph snapshot survives reopen")
	assert.Equal(t, 1, ws2.Index.Len(), "vector store survives reopen")
}

func TestOpen_Ephemeral(t *testing.T) {
	persist := filepath.Join(t.TempDir(), ".traceai")
	ws := open(t, Options{Config: mockConfig(persist), Ephemeral: true})

	assert.Empty(t, ws.PersistDir)
	assert.Empty(t, ws.GraphPath())
	assert.NoError(t, ws.Save(), "save is a no-op without a persist dir")
	assert.NoDirExists(t, persist, "ephemeral workspaces never touch disk")
}

func TestOpen_FreeFormCOBOL(t *testing.T) {
	cfg := mockConfig("")
	cfg.FreeFormCOBOL = true
	ws := open(t, Options{Config: cfg, Ephemeral: true})

	p, ok := ws.Registry.ParserFor("report.cbl")
	require.True(t, ok)
	cobol, ok := p.(*parser.COBOLParser)
	require.True(t, ok)
	assert.True(t, cobol.FreeForm)

	_, ok = ws.Registry.ParserFor("pkg.dtsx")
	assert.True(t, ok, "custom registry still covers the other formats")
}

func TestOpen_UnknownProvider(t *testing.T) {
	cfg := mockConfig("")
	cfg.Embeddings.Provider = "quantum"

	_, err := Open(Options{Config: cfg, Ephemeral: true}, traceaitest.DiscardLogger())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidArgument))
}

func TestOpen_CorruptSnapshotFails(t *testing.T) {
	persist := filepath.Join(t.TempDir(), ".traceai")
	require.NoError(t, os.MkdirAll(persist, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(persist, GraphFileName), []byte("not json"), 0o600))

	_, err := Open(Options{Config: mockConfig(persist)}, traceaitest.DiscardLogger())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindMalformedInput))
}
