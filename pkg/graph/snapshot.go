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
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/ir"
)

// Snapshot is an immutable, consistent view of the graph at one version.
//
// It shares node and adjacency storage with the live graph: the writer
// replaces slices and node values instead of mutating them in place, so a
// published snapshot never observes a partial commit. Snapshots of an
// unchanged graph are cached and free.
type Snapshot struct {
	version uint64

	nodes     map[string]Node
	out       map[string][]ir.Dependency
	in        map[string][]ir.Dependency
	nameIndex map[string][]string
	docShared map[string][]string

	// order holds every node ID sorted by (kind, name, id); scans over it
	// make query output deterministic without re-sorting.
	order []string

	edgeCount   int
	nodesByKind map[NodeKind]int
	edgesByKind map[ir.DependencyKind]int
	docsByKind  map[ir.DocumentKind]int

	visitCap int
}

// Snapshot returns a consistent read view of the graph. The cached
// snapshot is reused while the graph version is unchanged.
func (g *Graph) Snapshot() *Snapshot {
	g.snapMu.Lock()
	defer g.snapMu.Unlock()

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.snap != nil && g.snap.version == g.version {
		return g.snap
	}

	s := &Snapshot{
		version:     g.version,
		nodes:       maps.Clone(g.nodes),
		out:         maps.Clone(g.out),
		in:          maps.Clone(g.in),
		nameIndex:   maps.Clone(g.nameIndex),
		docShared:   maps.Clone(g.docShared),
		edgeCount:   len(g.edges),
		nodesByKind: maps.Clone(g.nodesByKind),
		edgesByKind: maps.Clone(g.edgesByKind),
		docsByKind:  maps.Clone(g.docsByKind),
		visitCap:    g.visitCap,
	}

	s.order = make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		s.order = append(s.order, id)
	}
	sort.Slice(s.order, func(i, j int) bool {
		return lessNodes(s.nodes[s.order[i]], s.nodes[s.order[j]])
	})

	g.snap = s
	return s
}

// Version reports the graph version this snapshot was taken at.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// =============================================================================
// STATS AND LOOKUP
// =============================================================================

// Stats summarizes graph size by node kind, edge kind and document type.
type Stats struct {
	Nodes          int                       `json:"nodes"`
	Edges          int                       `json:"edges"`
	NodesByKind    map[NodeKind]int          `json:"nodes_by_kind"`
	EdgesByKind    map[ir.DependencyKind]int `json:"edges_by_kind"`
	ByDocumentType map[ir.DocumentKind]int   `json:"by_document_type"`
}

// Stats returns size counters. O(1): the builder maintains them.
func (s *Snapshot) Stats() Stats {
	st := Stats{
		Nodes:          len(s.nodes),
		Edges:          s.edgeCount,
		NodesByKind:    make(map[NodeKind]int),
		EdgesByKind:    make(map[ir.DependencyKind]int),
		ByDocumentType: make(map[ir.DocumentKind]int),
	}
	for k, n := range s.nodesByKind {
		if n > 0 {
			st.NodesByKind[k] = n
		}
	}
	for k, n := range s.edgesByKind {
		if n > 0 {
			st.EdgesByKind[k] = n
		}
	}
	for k, n := range s.docsByKind {
		if n > 0 {
			st.ByDocumentType[k] = n
		}
	}
	return st
}

// NodeByID returns the node with the exact ID.
func (s *Snapshot) NodeByID(id string) (Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// OutEdges returns the edges leaving a node, sorted by (to, kind).
func (s *Snapshot) OutEdges(id string) []ir.Dependency {
	return sortedEdges(s.out[id], func(d ir.Dependency) string { return d.ToID })
}

// InEdges returns the edges arriving at a node, sorted by (from, kind).
func (s *Snapshot) InEdges(id string) []ir.Dependency {
	return sortedEdges(s.in[id], func(d ir.Dependency) string { return d.FromID })
}

func sortedEdges(deps []ir.Dependency, endpoint func(ir.Dependency) string) []ir.Dependency {
	if len(deps) == 0 {
		return nil
	}
	out := append([]ir.Dependency(nil), deps...)
	sort.Slice(out, func(i, j int) bool {
		if endpoint(out[i]) != endpoint(out[j]) {
			return endpoint(out[i]) < endpoint(out[j])
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// FindNodes scans nodes in (kind, name, id) order. An empty kind matches
// every kind; nameSubstring matches case-insensitively; limit <= 0 means
// unlimited.
func (s *Snapshot) FindNodes(kind NodeKind, nameSubstring string, limit int) ([]Node, error) {
	if kind != "" && !ValidNodeKind(kind) {
		return nil, errors.NewInvalidArgument("kind", "unknown node kind: "+string(kind))
	}
	needle := strings.ToLower(nameSubstring)

	var results []Node
	for _, id := range s.order {
		n := s.nodes[id]
		if kind != "" && n.Kind != kind {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(n.Name), needle) {
			continue
		}
		results = append(results, n)
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// FindByName is the unfiltered convenience form of FindNodes.
func (s *Snapshot) FindByName(pattern string) []Node {
	nodes, _ := s.FindNodes("", pattern, 0)
	return nodes
}

// =============================================================================
// DOCUMENT CATALOG
// =============================================================================

// DocumentSummary is one catalog row: a document plus the size of its
// owned and referenced subgraph.
type DocumentSummary struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Kind         ir.DocumentKind `json:"kind"`
	SourcePath   string          `json:"source_path"`
	Components   int             `json:"components"`
	DataSources  int             `json:"data_sources"`
	DataEntities int             `json:"data_entities"`
	Parameters   int             `json:"parameters"`
	ParsedAt     time.Time       `json:"parsed_at"`
}

// DocumentCatalog lists ingested documents sorted by (name, id). An empty
// kind matches every document type; unknown kinds simply match nothing.
// namePattern is a case-insensitive substring; limit <= 0 means unlimited.
func (s *Snapshot) DocumentCatalog(kind ir.DocumentKind, namePattern string, limit int) []DocumentSummary {
	type counts struct{ components, parameters int }
	owned := make(map[string]*counts)
	for id, n := range s.nodes {
		var docID string
		switch n.Kind {
		case NodeComponent, NodeParameter:
			docID = id[:strings.Index(id, "/")]
		default:
			continue
		}
		c := owned[docID]
		if c == nil {
			c = &counts{}
			owned[docID] = c
		}
		if n.Kind == NodeComponent {
			c.components++
		} else {
			c.parameters++
		}
	}

	needle := strings.ToLower(namePattern)
	var rows []DocumentSummary
	for _, id := range s.order {
		n := s.nodes[id]
		if n.Kind != NodeDocument {
			continue
		}
		doc := n.Document
		if kind != "" && doc.Kind != kind {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(doc.Name), needle) {
			continue
		}
		row := DocumentSummary{
			ID:         doc.ID,
			Name:       doc.Name,
			Kind:       doc.Kind,
			SourcePath: doc.SourcePath,
			ParsedAt:   doc.ParsedAt,
		}
		if c := owned[id]; c != nil {
			row.Components = c.components
			row.Parameters = c.parameters
		}
		for _, sid := range s.docShared[id] {
			switch {
			case strings.HasPrefix(sid, "src:"):
				row.DataSources++
			case strings.HasPrefix(sid, "ent:"):
				row.DataEntities++
			}
		}
		rows = append(rows, row)
		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows
}
