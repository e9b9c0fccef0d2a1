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

package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/ir"
)

// Parser converts one source artifact into the intermediate representation.
// Implementations are stateless and safe for concurrent use.
type Parser interface {
	// Parse reads the file at path and extracts a ParsedDocument.
	// Fatal failures return a MalformedInput error and no document;
	// recoverable extraction problems are recorded as document warnings.
	Parse(ctx context.Context, path string) (*ir.ParsedDocument, error)

	// Extensions returns the file extensions this parser claims,
	// lowercase with the leading dot (".dtsx").
	Extensions() []string

	// Kind reports the document kind this parser produces.
	Kind() ir.DocumentKind

	// Validate is a cheap header sniff: does this file plausibly match
	// the format? Used by the coordinator to skip files without paying
	// full parse cost. False negatives skip files; keep it permissive.
	Validate(path string) bool
}

// Ensure implementations satisfy the interface.
var _ Parser = (*SSISParser)(nil)
var _ Parser = (*COBOLParser)(nil)
var _ Parser = (*JCLParser)(nil)
var _ Parser = (*JSONParser)(nil)
var _ Parser = (*ExcelParser)(nil)
var _ Parser = (*CSVParser)(nil)

// Registry maps file extensions to parsers. It is assembled once at
// startup and read-only thereafter, so lookups need no locking.
type Registry struct {
	byExt map[string]Parser
}

// NewRegistry returns a registry preloaded with all six format parsers.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Parser)}
	// Registration conflicts among the built-in six would be a
	// programming error; panic loudly instead of returning err.
	for _, p := range []Parser{
		NewSSISParser(),
		NewCOBOLParser(),
		NewJCLParser(),
		NewJSONParser(),
		NewExcelParser(),
		NewCSVParser(),
	} {
		if err := r.Register(p); err != nil {
			panic(fmt.Sprintf("parser registry: %v", err))
		}
	}
	return r
}

// NewEmptyRegistry returns a registry with no parsers, for callers that
// assemble a custom set.
func NewEmptyRegistry() *Registry {
	return &Registry{byExt: make(map[string]Parser)}
}

// Register wires a parser under each of its extensions. A conflicting
// extension fails with a Conflict error and leaves the registry unchanged.
func (r *Registry) Register(p Parser) error {
	exts := p.Extensions()
	for _, ext := range exts {
		key := strings.ToLower(ext)
		if prev, ok := r.byExt[key]; ok {
			return errors.NewConflict(fmt.Sprintf(
				"extension %q already registered to %s parser", key, prev.Kind()))
		}
	}
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = p
	}
	return nil
}

// ParserFor dispatches by file extension, case-insensitively
// (.CBL and .cbl resolve to the same parser).
func (r *Registry) ParserFor(path string) (Parser, bool) {
	p, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return p, ok
}

// Validate reports whether the file at path plausibly matches its
// extension's format. Unregistered extensions validate false.
func (r *Registry) Validate(path string) bool {
	p, ok := r.ParserFor(path)
	if !ok {
		return false
	}
	return p.Validate(path)
}

// Extensions returns every registered extension, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
