// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/ir"
)

// Watch performs an initial run, then re-runs ingestion whenever files
// under the root change, debounced by Options.Debounce. Files that
// disappear have their documents removed before the re-run. onRun, when
// non-nil, receives every completed report including the initial one.
//
// Watch blocks until ctx is canceled and then returns nil; any other
// error from the initial run or the watcher itself is returned as is.
func (c *Coordinator) Watch(ctx context.Context, onRun func(*RunReport)) error {
	report, err := c.Run(ctx)
	if err != nil {
		return err
	}
	if onRun != nil {
		onRun(report)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewInternal("starting filesystem watcher", err)
	}
	defer watcher.Close()

	dirs := c.addWatches(watcher, c.root)
	c.logger.Info("watch.start",
		"root", c.root,
		"dirs", dirs,
		"debounce", c.opts.Debounce)

	var timer *time.Timer
	var timerCh <-chan time.Time // nil while no re-run is pending
	gone := make(map[string]bool) // paths removed or renamed away since the last run

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !c.handleEvent(watcher, event, gone) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(c.opts.Debounce)
			timerCh = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watch.error", "err", err)

		case <-timerCh:
			timerCh = nil
			removed := c.removeMissing(ctx, gone)
			gone = make(map[string]bool)

			report, err := c.Run(ctx)
			if err != nil {
				if errors.IsKind(err, errors.KindCancelled) || errors.IsKind(err, errors.KindDeadlineExceeded) {
					return nil
				}
				c.logger.Warn("watch.run_error", "err", err)
				continue
			}
			report.DocumentsRemoved += removed
			if onRun != nil {
				onRun(report)
			}
		}
	}
}

// handleEvent classifies one filesystem event and reports whether it
// should arm the re-run timer. Directory creations extend the watch; file
// events count only when the path matches the configured patterns and a
// parser exists for its extension.
func (c *Coordinator) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event, gone map[string]bool) bool {
	path := event.Name
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		if event.Op&fsnotify.Create == 0 || skipDirName(filepath.Base(path)) {
			return false
		}
		// Files may land in the new directory before its watch exists;
		// the debounced full re-run picks them up.
		dirs := c.addWatches(watcher, path)
		c.logger.Debug("watch.add_dir", "path", c.relPath(path), "dirs", dirs)
		return true
	}

	if !c.watchableFile(path) {
		return false
	}
	c.logger.Debug("watch.event", "path", c.relPath(path), "op", event.Op.String())
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		gone[path] = true
	} else {
		delete(gone, path) // recreated before the debounce fired
	}
	return true
}

// watchableFile applies the discovery rules to a single path: pattern
// match on the root-relative form plus a registered parser. It must work
// for paths that no longer exist, so it never stats.
func (c *Coordinator) watchableFile(path string) bool {
	rel, err := filepath.Rel(c.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	patterns := c.opts.Patterns
	if len(patterns) == 0 {
		patterns = []string{"**/*"}
	}
	if !matchAny(patterns, filepath.ToSlash(rel)) {
		return false
	}
	_, ok := c.registry.ParserFor(path)
	return ok
}

// removeMissing unloads documents whose files vanished. Paths that exist
// again (rename back, editor save cycles) are left alone.
func (c *Coordinator) removeMissing(ctx context.Context, gone map[string]bool) int {
	if len(gone) == 0 {
		return 0
	}
	paths := make([]string, 0, len(gone))
	for path := range gone {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	removed := 0
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			continue
		}
		rep, ok := c.graph.RemoveDocument(ir.DocumentID(path))
		if !ok {
			continue
		}
		removed++
		ingMetrics.docsRemoved.Inc()
		for _, id := range rep.RemovedIDs {
			if err := c.index.Delete(ctx, id); err != nil {
				ingMetrics.vectorFailures.Inc()
				c.logger.Warn("ingest.vector_delete", "id", id, "err", err)
				continue
			}
			ingMetrics.vectorDeletes.Inc()
		}
		c.logger.Info("watch.removed",
			"path", c.relPath(path),
			"nodes", rep.NodesRemoved,
			"edges", rep.EdgesRemoved)
	}
	return removed
}

// addWatches registers root and every non-excluded directory below it.
func (c *Coordinator) addWatches(watcher *fsnotify.Watcher, root string) int {
	count := 0
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && skipDirName(entry.Name()) {
			return fs.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			c.logger.Warn("watch.add", "path", path, "err", err)
			return nil
		}
		count++
		return nil
	})
	return count
}
