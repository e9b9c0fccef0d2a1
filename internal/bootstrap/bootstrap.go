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
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kraklabs/traceai/internal/config"
	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/embedding"
	"github.com/kraklabs/traceai/pkg/graph"
	"github.com/kraklabs/traceai/pkg/parser"
	"github.com/kraklabs/traceai/pkg/vector"
)

const (
	// GraphFileName is the graph snapshot inside the persist directory.
	GraphFileName = "graph.json"

	// VectorFileName is the SQLite vector store inside the persist
	// directory.
	VectorFileName = "vectors.db"
)

// Options configures workspace opening.
type Options struct {
	// Config supplies workspace settings. Nil uses config.Default().
	Config *config.Config

	// Dir anchors a relative persist_dir. Empty uses the working
	// directory.
	Dir string

	// Ephemeral skips all persistence: a fresh graph and an in-memory
	// vector index, nothing touches disk. Used by --no-persist and by
	// one-shot MCP sessions over already-ingested trees.
	Ephemeral bool
}

// Workspace bundles the opened engine state: the graph, the vector
// index bound to its embedding provider, and the parser registry.
// Close releases the vector store; Save publishes the graph snapshot.
type Workspace struct {
	Graph    *graph.Graph
	Index    vector.Index
	Provider embedding.Provider
	Registry *parser.Registry

	// PersistDir is the resolved absolute persistence directory, empty
	// for ephemeral workspaces.
	PersistDir string

	logger *slog.Logger
}

// Open initializes or reopens a workspace. Opening is idempotent: a
// missing persist directory is created, an existing graph snapshot and
// vector store are reloaded, and a fresh directory starts empty.
func Open(opts Options, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	provider, err := embedding.NewProviderFromConfig(cfg.EmbeddingConfig(), logger)
	if err != nil {
		return nil, errors.NewInvalidArgument("embeddings", err.Error())
	}

	ws := &Workspace{
		Provider: provider,
		Registry: newRegistry(cfg),
		logger:   logger,
	}

	if opts.Ephemeral {
		ws.Graph = graph.New(logger)
		ws.Index = vector.NewMemoryIndex(provider, logger)
		applyNodeCap(ws.Graph, cfg)
		logger.Debug("bootstrap.workspace.ephemeral", "provider", provider.Name())
		return ws, nil
	}

	persistDir, err := resolvePersistDir(cfg.PersistDir, opts.Dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(persistDir, 0o750); err != nil {
		return nil, errors.NewInvalidArgument("persist_dir", err.Error())
	}
	ws.PersistDir = persistDir

	graphPath := filepath.Join(persistDir, GraphFileName)
	if _, statErr := os.Stat(graphPath); statErr == nil {
		g, loadErr := graph.Load(graphPath, logger)
		if loadErr != nil {
			return nil, loadErr
		}
		ws.Graph = g
	} else {
		ws.Graph = graph.New(logger)
	}
	applyNodeCap(ws.Graph, cfg)

	idx, err := vector.NewSQLiteIndex(filepath.Join(persistDir, VectorFileName), provider, logger)
	if err != nil {
		return nil, err
	}
	ws.Index = idx

	logger.Info("bootstrap.workspace.open",
		"persist_dir", persistDir,
		"provider", provider.Name(),
		"graph_nodes", ws.Graph.Snapshot().Stats().Nodes,
		"index_entries", idx.Len(),
	)
	return ws, nil
}

// GraphPath returns where Save publishes the snapshot, empty for
// ephemeral workspaces.
func (w *Workspace) GraphPath() string {
	if w.PersistDir == "" {
		return ""
	}
	return filepath.Join(w.PersistDir, GraphFileName)
}

// Save publishes the graph snapshot. Ephemeral workspaces no-op so
// callers need not branch. Vector upserts write through on commit and
// need no save step.
func (w *Workspace) Save() error {
	path := w.GraphPath()
	if path == "" {
		return nil
	}
	return w.Graph.Save(path)
}

// Close releases the vector store. The graph is memory-only state and
// has nothing to release.
func (w *Workspace) Close() error {
	if w.Index == nil {
		return nil
	}
	return w.Index.Close()
}

// resolvePersistDir makes the persist directory absolute, anchoring
// relative paths at dir (or the working directory).
func resolvePersistDir(persistDir, dir string) (string, error) {
	if persistDir == "" {
		persistDir = config.DefaultPersistDir
	}
	if filepath.IsAbs(persistDir) {
		return filepath.Clean(persistDir), nil
	}
	base := dir
	if base == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", errors.NewInternal("resolve working directory", err)
		}
		base = cwd
	}
	return filepath.Join(base, persistDir), nil
}

// newRegistry assembles the parser set, honoring the free-form COBOL
// switch. The default registry covers everything else.
func newRegistry(cfg *config.Config) *parser.Registry {
	if !cfg.FreeFormCOBOL {
		return parser.NewRegistry()
	}
	r := parser.NewEmptyRegistry()
	cobol := parser.NewCOBOLParser()
	cobol.FreeForm = true
	for _, p := range []parser.Parser{
		parser.NewSSISParser(),
		cobol,
		parser.NewJCLParser(),
		parser.NewJSONParser(),
		parser.NewExcelParser(),
		parser.NewCSVParser(),
	} {
		if err := r.Register(p); err != nil {
			panic("parser registry: " + err.Error())
		}
	}
	return r
}

func applyNodeCap(g *graph.Graph, cfg *config.Config) {
	if cfg.NodeCap > 0 {
		g.SetVisitCap(cfg.NodeCap)
	}
}
