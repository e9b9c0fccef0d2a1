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

package parser

import (
	"fmt"

	"github.com/kraklabs/traceai/pkg/ir"
)

// docAccum accumulates IR entities while a parser walks one file. It
// interns DataSources and DataEntities by ID so a table mentioned by five
// SQL statements appears once, and dedupes edges on (from, to, kind).
type docAccum struct {
	doc        ir.Document
	components []ir.Component
	sources    map[string]ir.DataSource
	entities   map[string]ir.DataEntity
	params     []ir.Parameter
	deps       map[string]ir.Dependency
	warnings   []string
}

func newDocAccum(doc ir.Document) *docAccum {
	return &docAccum{
		doc:      doc,
		sources:  make(map[string]ir.DataSource),
		entities: make(map[string]ir.DataEntity),
		deps:     make(map[string]ir.Dependency),
	}
}

// addComponent appends a component and its CONTAINS edge from the document.
func (a *docAccum) addComponent(c ir.Component) {
	a.components = append(a.components, c)
	a.addDep(ir.Dependency{FromID: a.doc.ID, ToID: c.ID, Kind: ir.DepContains})
}

// addParameter appends a parameter and its CONTAINS edge from the document.
func (a *docAccum) addParameter(p ir.Parameter) {
	a.params = append(a.params, p)
	a.addDep(ir.Dependency{FromID: a.doc.ID, ToID: p.ID, Kind: ir.DepContains})
}

// internSource records a DataSource, keeping the first occurrence when the
// same (kind, locator) identity repeats within the file.
func (a *docAccum) internSource(s ir.DataSource) ir.DataSource {
	if prev, ok := a.sources[s.ID]; ok {
		return prev
	}
	a.sources[s.ID] = s
	return s
}

// internEntity records a DataEntity. A later exact-confidence sighting
// upgrades an earlier heuristic one, and columns stick once discovered.
func (a *docAccum) internEntity(e ir.DataEntity) ir.DataEntity {
	prev, ok := a.entities[e.ID]
	if !ok {
		a.entities[e.ID] = e
		return e
	}
	if prev.Confidence == ir.ConfidenceHeuristic && e.Confidence == ir.ConfidenceExact {
		if len(e.Columns) == 0 {
			e.Columns = prev.Columns
		}
		a.entities[e.ID] = e
		return e
	}
	if len(prev.Columns) == 0 && len(e.Columns) > 0 {
		prev.Columns = e.Columns
		a.entities[e.ID] = prev
	}
	return a.entities[e.ID]
}

// addDep records an edge. Edge identity is (from, to, kind); repeats keep
// the first occurrence's properties.
func (a *docAccum) addDep(d ir.Dependency) {
	key := d.FromID + "\x00" + d.ToID + "\x00" + string(d.Kind)
	if _, ok := a.deps[key]; ok {
		return
	}
	a.deps[key] = d
}

func (a *docAccum) warnf(format string, args ...any) {
	a.warnings = append(a.warnings, fmt.Sprintf(format, args...))
}

// build assembles the final ParsedDocument in deterministic order.
func (a *docAccum) build() *ir.ParsedDocument {
	p := &ir.ParsedDocument{
		Document:   a.doc,
		Components: a.components,
		Parameters: a.params,
		Warnings:   a.warnings,
	}
	for _, s := range a.sources {
		p.DataSources = append(p.DataSources, s)
	}
	for _, e := range a.entities {
		p.DataEntities = append(p.DataEntities, e)
	}
	for _, d := range a.deps {
		p.Dependencies = append(p.Dependencies, d)
	}
	p.SortStable()
	return p
}
