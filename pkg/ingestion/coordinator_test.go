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

package ingestion

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/embedding"
	"github.com/kraklabs/traceai/pkg/graph"
	"github.com/kraklabs/traceai/pkg/ir"
	"github.com/kraklabs/traceai/pkg/parser"
	"github.com/kraklabs/traceai/pkg/vector"
)

func TestNew_Validation(t *testing.T) {
	logger := quietLogger()
	reg := parser.NewRegistry()
	g := graph.New(logger)
	idx := vector.NewMemoryIndex(embedding.NewMockProvider(16), logger)

	cases := []struct {
		name string
		call func() error
	}{
		{"nil registry", func() error {
			_, err := New(nil, g, idx, Options{Root: "."}, logger)
			return err
		}},
		{"nil graph", func() error {
			_, err := New(reg, nil, idx, Options{Root: "."}, logger)
			return err
		}},
		{"nil index", func() error {
			_, err := New(reg, g, nil, Options{Root: "."}, logger)
			return err
		}},
		{"empty root", func() error {
			_, err := New(reg, g, idx, Options{}, logger)
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindInvalidArgument))
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c, _, _ := newTestCoordinator(t, t.TempDir(), func(o *Options) {
		o.MaxConcurrentParsers = 0
		o.MaxFileSize = 0
		o.Debounce = 0
	})
	assert.Equal(t, DefaultMaxConcurrentParsers, c.opts.MaxConcurrentParsers)
	assert.Equal(t, int64(DefaultMaxFileSize), c.opts.MaxFileSize)
	assert.Equal(t, DefaultDebounce, c.opts.Debounce)
}

func TestRun_MultiFormatTree(t *testing.T) {
	root := t.TempDir()
	files := testTree()
	files["README.txt"] = "not an ETL artifact"
	files[".hidden/secret.cbl"] = cobolProgram
	writeTree(t, root, files)

	c, g, idx := newTestCoordinator(t, root)
	report, err := c.Run(context.Background())
	require.NoError(t, err)

	_, parseErr := uuid.Parse(report.RunID)
	assert.NoError(t, parseErr, "run id is a UUID")

	assert.Equal(t, 5, report.FilesDiscovered, "four artifacts plus the txt")
	assert.Equal(t, 4, report.FilesParsed)
	assert.Equal(t, 0, report.FilesFailed)
	assert.Equal(t, 1, report.SkipReasons["unsupported"])
	assert.Equal(t, 1, report.SkipReasons["excluded_dir"])
	assert.Equal(t, 4, report.DocumentsAdded)
	assert.False(t, report.PartialFailure())
	assert.Empty(t, report.Unresolved, "the only PGM target exists")
	assert.Positive(t, report.Durations.Total)

	// The deferred CALLS reference from the JCL step resolved to the
	// COBOL program's document node.
	jclDoc := ir.DocumentID(filepath.Join(root, "jobs/daily_batch.jcl"))
	cobolDoc := ir.DocumentID(filepath.Join(root, "programs/cust001.cbl"))
	stepID := ir.ComponentID(jclDoc, "STEP1")

	snap := g.Snapshot()
	called := false
	for _, d := range snap.OutEdges(stepID) {
		if d.ToID == cobolDoc && d.Kind == ir.DepCalls {
			called = true
		}
	}
	assert.True(t, called, "STEP1 must call CUST001 after resolution")

	// Every graph node got an embedding; interned nodes may have been
	// upserted once per referencing document.
	stats := snap.Stats()
	assert.Equal(t, stats.Nodes, idx.Len())
	assert.GreaterOrEqual(t, report.VectorUpserts, stats.Nodes)
}

func TestRun_SecondRunIsNoOp(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, testTree())

	c, g, idx := newTestCoordinator(t, root)
	first, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, first.DocumentsAdded)

	version := g.Version()
	entries := idx.Len()

	second, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, second.Changed())
	assert.Equal(t, 0, second.DocumentsAdded)
	assert.Equal(t, 0, second.DocumentsUpdated)
	assert.Equal(t, 4, second.DocumentsUnchanged)
	assert.Equal(t, 0, second.VectorUpserts)
	assert.Equal(t, 0, second.NodesAdded+second.NodesUpdated+second.NodesRemoved)
	assert.Equal(t, version, g.Version(), "no-op runs must not version the graph")
	assert.Equal(t, entries, idx.Len())
}

func TestRun_ChangedFileCommitsAsUpdate(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, testTree())

	c, _, _ := newTestCoordinator(t, root)
	_, err := c.Run(context.Background())
	require.NoError(t, err)

	changed := cobolProgram + "       CLEANUP.\n           CLOSE CUSTOMER-FILE.\n"
	writeTree(t, root, map[string]string{"programs/cust001.cbl": changed})

	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.DocumentsUpdated)
	assert.Equal(t, 3, report.DocumentsUnchanged)
	assert.Equal(t, 0, report.DocumentsAdded)
	assert.True(t, report.Changed())
	assert.Positive(t, report.VectorUpserts)
}

func TestRun_PartialFailure(t *testing.T) {
	root := t.TempDir()
	files := testTree()
	files["broken/bad.dtsx"] = `<DTS:Executable xmlns:DTS="www.microsoft.com/SqlServer/Dts"`
	files["broken/bad.json"] = `{"name": `
	writeTree(t, root, files)

	c, _, _ := newTestCoordinator(t, root)
	report, err := c.Run(context.Background())
	require.NoError(t, err, "failures never abort the run")

	assert.True(t, report.PartialFailure())
	assert.Equal(t, 2, report.FilesFailed)
	assert.Equal(t, 4, report.FilesParsed)
	assert.Equal(t, 4, report.DocumentsAdded)

	require.Len(t, report.Failures, 2)
	assert.Equal(t, "broken/bad.dtsx", report.Failures[0].Path, "failures sorted by path")
	assert.Equal(t, "broken/bad.json", report.Failures[1].Path)
	for _, f := range report.Failures {
		assert.Equal(t, errors.KindMalformedInput, f.Kind)
		assert.NotEmpty(t, f.Message)
	}
}

func TestRun_EmptyTree(t *testing.T) {
	c, g, idx := newTestCoordinator(t, t.TempDir())
	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.FilesDiscovered)
	assert.Equal(t, 0, report.DocumentsAdded)
	assert.False(t, report.Changed())
	assert.Empty(t, report.Unresolved)
	assert.Equal(t, 0, g.Snapshot().Stats().Nodes)
	assert.Equal(t, 0, idx.Len())
}

func TestRun_PatternsFilterDiscovery(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, testTree())

	c, _, _ := newTestCoordinator(t, root, func(o *Options) {
		o.Patterns = []string{"*.cbl"}
	})
	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.FilesDiscovered, "bare patterns match base names at any depth")
	assert.Equal(t, 1, report.DocumentsAdded)
	assert.Empty(t, report.SkipReasons)
}

func TestRun_InvalidPattern(t *testing.T) {
	c, _, _ := newTestCoordinator(t, t.TempDir(), func(o *Options) {
		o.Patterns = []string{"jobs/[", "**/*.jcl"}
	})
	_, err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidArgument))
}

func TestRun_MissingRoot(t *testing.T) {
	c, _, _ := newTestCoordinator(t, filepath.Join(t.TempDir(), "nope"))
	_, err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidArgument))
}

func TestRun_FileOverSizeCapSkipped(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, testTree())

	c, _, _ := newTestCoordinator(t, root, func(o *Options) {
		o.MaxFileSize = 10
	})
	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.FilesDiscovered)
	assert.Equal(t, 4, report.SkipReasons["too_large"])
	assert.Equal(t, 0, report.FilesParsed)
	assert.Equal(t, 0, report.DocumentsAdded)
}

func TestRun_VectorFailuresAreWarnings(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, testTree())

	logger := quietLogger()
	g := graph.New(logger)
	mem := vector.NewMemoryIndex(embedding.NewMockProvider(16), logger)
	c, err := New(parser.NewRegistry(), g, &failingIndex{Index: mem}, Options{Root: root}, logger)
	require.NoError(t, err)

	report, err := c.Run(context.Background())
	require.NoError(t, err, "a degraded index never fails the run")

	assert.Equal(t, 4, report.DocumentsAdded)
	assert.Equal(t, 0, report.FilesFailed)
	assert.False(t, report.PartialFailure())
	assert.Equal(t, 0, report.VectorUpserts)
	assert.NotEmpty(t, report.Warnings)
	assert.Equal(t, 0, mem.Len())
}

func TestRun_CancelledMidRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	writeTree(t, root, testTree())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := quietLogger()
	g := graph.New(logger)
	mem := vector.NewMemoryIndex(embedding.NewMockProvider(16), logger)
	idx := &cancelOnUpsert{Index: mem, cancel: cancel}
	c, err := New(parser.NewRegistry(), g, idx, Options{Root: root, MaxConcurrentParsers: 1}, logger)
	require.NoError(t, err)

	report, err := c.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindCancelled))
	require.NotNil(t, report, "partial report survives cancellation")

	committed := report.DocumentsAdded + report.DocumentsUpdated
	assert.GreaterOrEqual(t, committed, 1, "at least the commit that triggered the cancel")
	assert.Less(t, committed, 4, "cancellation stopped the run early")
	assert.Equal(t, committed, len(g.Snapshot().DocumentCatalog("", "", 0)),
		"committed documents remain durable")
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, testTree())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, _, _ := newTestCoordinator(t, root)
	_, err := c.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindCancelled))
}
