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
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/graph"
	"github.com/kraklabs/traceai/pkg/ir"
	"github.com/kraklabs/traceai/pkg/parser"
	"github.com/kraklabs/traceai/pkg/vector"
)

const (
	// DefaultMaxConcurrentParsers bounds CPU-heavy parse work.
	DefaultMaxConcurrentParsers = 10

	// DefaultMaxFileSize rejects files larger than 64 MiB. ETL artifacts
	// beyond that are almost always exports that belong elsewhere.
	DefaultMaxFileSize = 64 << 20

	// DefaultDebounce is how long watch mode waits after the last
	// filesystem event before re-running ingestion.
	DefaultDebounce = 2 * time.Second
)

// Options configures a Coordinator.
type Options struct {
	// Root is the directory to ingest. Required.
	Root string

	// Patterns are doublestar globs applied to slash-separated paths
	// relative to Root. A pattern without a slash matches base names at
	// any depth. Empty means every supported file under Root.
	Patterns []string

	// MaxConcurrentParsers bounds the parse worker pool. Zero or
	// negative selects DefaultMaxConcurrentParsers.
	MaxConcurrentParsers int

	// MaxFileSize skips files above this many bytes. Zero or negative
	// selects DefaultMaxFileSize.
	MaxFileSize int64

	// NodeCap, when positive, overrides the graph's traversal budget.
	NodeCap int

	// Debounce is the watch-mode quiet period. Zero or negative selects
	// DefaultDebounce.
	Debounce time.Duration
}

// Coordinator drives one directory tree through the pipeline: discovery,
// admission, bounded-parallel parse, serial commit into the graph and
// vector index, and a final deferred-reference resolution pass.
//
// The graph and the vector index are mutated only by the committer, so a
// Coordinator must not be shared across concurrent Run calls. Queries may
// run in parallel with an ongoing run; they see whole commits or nothing.
type Coordinator struct {
	registry *parser.Registry
	graph    *graph.Graph
	index    vector.Index
	opts     Options
	root     string // absolute form of opts.Root
	logger   *slog.Logger
}

// New validates the wiring and applies option defaults. A nil logger
// falls back to slog.Default().
func New(registry *parser.Registry, g *graph.Graph, index vector.Index, opts Options, logger *slog.Logger) (*Coordinator, error) {
	if registry == nil {
		return nil, errors.NewInvalidArgument("registry", "must not be nil")
	}
	if g == nil {
		return nil, errors.NewInvalidArgument("graph", "must not be nil")
	}
	if index == nil {
		return nil, errors.NewInvalidArgument("index", "must not be nil")
	}
	if opts.Root == "" {
		return nil, errors.NewInvalidArgument("root", "must not be empty")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, errors.NewInvalidArgument("root", err.Error())
	}
	if opts.MaxConcurrentParsers <= 0 {
		opts.MaxConcurrentParsers = DefaultMaxConcurrentParsers
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry: registry,
		graph:    g,
		index:    index,
		opts:     opts,
		root:     root,
		logger:   logger,
	}, nil
}

// Run executes one ingestion pass and returns its report.
//
// Parse and commit failures are collected into the report and never abort
// the run; callers decide via PartialFailure. Cancellation returns the
// partial report together with a Cancelled or DeadlineExceeded error:
// documents committed before the cancel remain in the graph.
func (c *Coordinator) Run(ctx context.Context) (*RunReport, error) {
	ingMetrics.init()
	start := time.Now()
	report := &RunReport{
		RunID:     uuid.NewString(),
		Root:      c.opts.Root,
		StartedAt: start.UTC(),
	}

	if c.opts.NodeCap > 0 {
		c.graph.SetVisitCap(c.opts.NodeCap)
	}

	c.logger.Info("ingest.start",
		"run_id", report.RunID,
		"root", c.root,
		"patterns", c.opts.Patterns,
		"workers", c.opts.MaxConcurrentParsers)

	// Step 1+2: walk the tree, match globs, admit supported files.
	stepStart := time.Now()
	disc, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}
	report.FilesDiscovered = disc.discovered
	report.FilesSkipped = disc.skipped()
	if len(disc.skips) > 0 {
		report.SkipReasons = disc.skips
	}
	report.Durations.Discovery = time.Since(stepStart)
	c.logger.Info("ingest.step.discovery",
		"duration", report.Durations.Discovery,
		"discovered", disc.discovered,
		"admitted", len(disc.files),
		"skipped", report.FilesSkipped)

	// Step 3+4: parse in parallel, commit serially in arrival order.
	stepStart = time.Now()
	if len(disc.files) > 0 {
		c.runPipeline(ctx, disc.files, report)
	}
	report.Durations.Parse = time.Since(stepStart)
	c.logger.Info("ingest.step.parse",
		"duration", report.Durations.Parse,
		"parsed", report.FilesParsed,
		"failed", report.FilesFailed)

	if err := errors.FromContext(ctx); err != nil {
		report.Durations.Total = time.Since(start)
		report.finalize()
		c.logger.Warn("ingest.cancelled",
			"run_id", report.RunID,
			"committed", report.DocumentsAdded+report.DocumentsUpdated,
			"err", err)
		return report, err
	}

	// Step 5: one resolution pass over the deferred-reference table.
	stepStart = time.Now()
	report.Unresolved = c.graph.ResolveDeferredReferences()
	report.Durations.Resolve = time.Since(stepStart)

	report.Durations.Total = time.Since(start)
	report.finalize()
	ingMetrics.recordRun(report)

	c.logger.Info("ingest.complete",
		"run_id", report.RunID,
		"duration", report.Durations.Total,
		"added", report.DocumentsAdded,
		"updated", report.DocumentsUpdated,
		"unchanged", report.DocumentsUnchanged,
		"failed", report.FilesFailed,
		"unresolved", len(report.Unresolved))
	return report, nil
}

// parseResult is one worker's output, consumed by the committer.
type parseResult struct {
	path string
	doc  *ir.ParsedDocument
	err  error
}

// runPipeline fans admitted paths out to parse workers and funnels their
// results into this goroutine, which is the single committer. Queue depth
// is bounded at twice the worker count so discovery cannot outrun parsing
// without bound.
func (c *Coordinator) runPipeline(ctx context.Context, files []string, report *RunReport) {
	workers := c.opts.MaxConcurrentParsers
	if workers > len(files) {
		workers = len(files)
	}
	paths := make(chan string, 2*workers)
	results := make(chan parseResult, 2*workers)

	// Documents already in the graph commit as updates, everything else
	// as adds. Captured before the first commit of this run.
	existing := make(map[string]bool)
	for _, row := range c.graph.Snapshot().DocumentCatalog("", "", 0) {
		existing[row.ID] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(paths)
		for _, path := range files {
			select {
			case paths <- path:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for path := range paths {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				parseStart := time.Now()
				doc, err := c.parseOne(gctx, path)
				c.logger.Debug("ingest.parse",
					"path", c.relPath(path),
					"duration", time.Since(parseStart),
					"ok", err == nil)
				select {
				case results <- parseResult{path: path, doc: doc, err: err}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(results)
	}()

	for res := range results {
		if ctx.Err() != nil {
			continue // drain; Run reports the cancellation
		}
		commitStart := time.Now()
		c.commitOne(ctx, res, report, existing)
		report.Durations.Commit += time.Since(commitStart)
	}
	// Workers only return errors on cancellation, which Run checks after
	// the pipeline drains.
	<-waitErr
}

func (c *Coordinator) parseOne(ctx context.Context, path string) (*ir.ParsedDocument, error) {
	p, ok := c.registry.ParserFor(path)
	if !ok {
		// Admission filtered unsupported files; this guards against the
		// file changing between discovery and parse.
		return nil, errors.NewUnsupportedFormat(path)
	}
	return p.Parse(ctx, path)
}

// commitOne applies one parse result: the graph commit first, then the
// vector index, so semantic search never returns an id the graph lacks.
func (c *Coordinator) commitOne(ctx context.Context, res parseResult, report *RunReport, existing map[string]bool) {
	rel := c.relPath(res.path)
	if res.err != nil {
		report.addFailure(rel, res.err)
		c.logger.Warn("ingest.parse_error",
			"path", rel,
			"kind", errors.KindOf(res.err),
			"err", res.err)
		return
	}

	rep, err := c.graph.AddDocument(ctx, res.doc)
	if err != nil {
		report.addFailure(rel, err)
		c.logger.Warn("ingest.commit_error", "path", rel, "err", err)
		return
	}
	report.FilesParsed++
	for _, w := range res.doc.Warnings {
		report.addWarning(rel, w)
	}

	if rep.NoOp {
		report.DocumentsUnchanged++
		return
	}
	if existing[rep.DocumentID] {
		report.DocumentsUpdated++
	} else {
		report.DocumentsAdded++
		existing[rep.DocumentID] = true
	}
	report.NodesAdded += rep.NodesAdded
	report.NodesUpdated += rep.NodesUpdated
	report.NodesRemoved += rep.NodesRemoved
	report.EdgesAdded += rep.EdgesAdded
	report.EdgesRemoved += rep.EdgesRemoved

	c.syncVectors(ctx, rep, report)
}

// syncVectors mirrors one commit into the vector index. Failures degrade
// search, not the graph, so they surface as warnings and a metric rather
// than failing the file.
func (c *Coordinator) syncVectors(ctx context.Context, rep *graph.CommitReport, report *RunReport) {
	snap := c.graph.Snapshot()
	for _, id := range rep.RemovedIDs {
		if err := c.index.Delete(ctx, id); err != nil {
			report.addWarning(id, "vector delete failed: "+err.Error())
			ingMetrics.vectorFailures.Inc()
			c.logger.Warn("ingest.vector_delete", "id", id, "err", err)
			continue
		}
		ingMetrics.vectorDeletes.Inc()
	}
	for _, id := range rep.UpsertIDs {
		n, ok := snap.NodeByID(id)
		if !ok {
			continue
		}
		if err := c.index.Upsert(ctx, id, n.TextSurface(), n.Metadata()); err != nil {
			report.addWarning(id, "vector upsert failed: "+err.Error())
			ingMetrics.vectorFailures.Inc()
			c.logger.Warn("ingest.vector_upsert", "id", id, "err", err)
			continue
		}
		report.VectorUpserts++
		ingMetrics.vectorUpserts.Inc()
	}
}

// relPath renders a path relative to the ingest root for reports and
// logs, falling back to the input when it lies outside the root.
func (c *Coordinator) relPath(path string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
