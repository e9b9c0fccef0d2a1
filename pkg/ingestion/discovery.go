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
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kraklabs/traceai/internal/errors"
)

// excludedDirs are never descended into. Hidden directories are excluded
// as well; these cover the common junk names that are not dot-prefixed.
var excludedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"bin":          true,
	"obj":          true,
}

// skipDirName reports whether discovery and watch should stay out of a
// directory with this base name.
func skipDirName(name string) bool {
	return excludedDirs[name] || strings.HasPrefix(name, ".")
}

// discovery is the outcome of the walk and admission stages: the admitted
// files in sorted order plus per-reason skip counts.
type discovery struct {
	root       string // absolute
	files      []string
	discovered int
	skips      map[string]int
}

func (d *discovery) skip(reason string) {
	d.skips[reason]++
}

func (d *discovery) skipped() int {
	n := 0
	for _, c := range d.skips {
		n += c
	}
	return n
}

// discover walks the root, matches the configured glob patterns against
// slash-separated paths relative to the root, dedupes by absolute path and
// admits files the parser registry has a parser for.
//
// A pattern containing no slash matches against base names at any depth,
// so "*.dtsx" finds packages anywhere under the root. Walk errors skip the
// affected entry and are counted, never fatal; cancellation is.
func (c *Coordinator) discover(ctx context.Context) (*discovery, error) {
	root, err := filepath.Abs(c.opts.Root)
	if err != nil {
		return nil, errors.NewInvalidArgument("root", err.Error())
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.NewInvalidArgument("root", "cannot stat "+c.opts.Root+": "+err.Error())
	}
	if !info.IsDir() {
		return nil, errors.NewInvalidArgument("root", c.opts.Root+" is not a directory")
	}

	patterns := c.opts.Patterns
	if len(patterns) == 0 {
		patterns = []string{"**/*"}
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.NewInvalidArgument("pattern", "invalid glob pattern: "+p)
		}
	}

	d := &discovery{root: root, skips: make(map[string]int)}
	seen := make(map[string]bool)

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			c.logger.Warn("ingest.walk", "path", path, "err", err)
			d.skip("walk_error")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if entry.IsDir() {
			if path == root {
				return nil
			}
			if skipDirName(entry.Name()) {
				d.skip("excluded_dir")
				return fs.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			d.skip("irregular")
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			c.logger.Warn("ingest.walk", "path", path, "err", err)
			d.skip("walk_error")
			return nil
		}
		if !matchAny(patterns, filepath.ToSlash(rel)) {
			return nil
		}
		if seen[path] {
			d.skip("duplicate")
			return nil
		}
		seen[path] = true
		d.discovered++

		fi, err := entry.Info()
		if err != nil {
			c.logger.Warn("ingest.walk", "path", path, "err", err)
			d.skip("walk_error")
			return nil
		}
		if fi.Size() > c.opts.MaxFileSize {
			c.logger.Warn("ingest.skip",
				"path", rel,
				"reason", "too_large",
				"size", fi.Size(),
				"max", c.opts.MaxFileSize)
			d.skip("too_large")
			return nil
		}
		if _, ok := c.registry.ParserFor(path); !ok {
			d.skip("unsupported")
			return nil
		}

		d.files = append(d.files, path)
		return nil
	})
	if walkErr != nil {
		if err := errors.FromContext(ctx); err != nil {
			return nil, err
		}
		return nil, errors.NewInternal("walking "+c.opts.Root, walkErr)
	}

	sort.Strings(d.files)
	return d, nil
}

// matchAny applies gitignore-style pattern semantics: a pattern with a
// slash matches the root-relative path, a pattern without one matches the
// base name at any depth. Patterns were validated up front.
func matchAny(patterns []string, rel string) bool {
	base := rel
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		base = rel[i+1:]
	}
	for _, p := range patterns {
		target := rel
		if !strings.Contains(p, "/") {
			target = base
		}
		if ok, _ := doublestar.Match(p, target); ok {
			return true
		}
	}
	return false
}
