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
	"context"
	"sort"
	"strings"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/ir"
)

// Direction selects which way a traversal walks.
type Direction string

const (
	DirectionUpstream   Direction = "upstream"
	DirectionDownstream Direction = "downstream"
	DirectionBoth       Direction = "both"
)

func validDirection(d Direction) bool {
	switch d {
	case DirectionUpstream, DirectionDownstream, DirectionBoth:
		return true
	}
	return false
}

// LineageNode is one traversal hit with its distance from the start layer.
type LineageNode struct {
	Node
	Depth int `json:"depth"`
}

// LineageResult holds the answer to a lineage trace. Start nodes appear
// at depth 0 in each requested direction.
type LineageResult struct {
	Entity     string        `json:"entity"`
	Direction  Direction     `json:"direction"`
	Upstream   []LineageNode `json:"upstream,omitempty"`
	Downstream []LineageNode `json:"downstream,omitempty"`
	Truncated  bool          `json:"truncated,omitempty"`
}

// TraceLineage walks data flow from every entity or source whose
// normalized name matches. Upstream alternates entity <- writer <- its
// reads <- ...; downstream mirrors through readers. Depth counts edge
// hops from the start layer; maxDepth 0 returns only the start nodes.
//
// The traversal shares one node-visit budget across both directions; when
// it runs out the partial result is returned with Truncated set alongside
// a LimitExceeded error.
func (s *Snapshot) TraceLineage(ctx context.Context, entity string, dir Direction, maxDepth int) (*LineageResult, error) {
	if !validDirection(dir) {
		return nil, errors.NewInvalidArgument("direction", `must be "upstream", "downstream" or "both"`)
	}
	if maxDepth < 0 {
		return nil, errors.NewInvalidArgument("max_depth", "must be >= 0")
	}
	start := s.startNodes(entity)
	if len(start) == 0 {
		return nil, errors.NewUnknownEntity(entity, s.suggest(entity))
	}

	res := &LineageResult{Entity: entity, Direction: dir}
	budget := s.visitCap

	if dir == DirectionUpstream || dir == DirectionBoth {
		nodes, truncated, err := s.walkLineage(ctx, start, DirectionUpstream, maxDepth, &budget)
		if err != nil {
			return nil, err
		}
		res.Upstream = nodes
		res.Truncated = res.Truncated || truncated
	}
	if dir == DirectionDownstream || dir == DirectionBoth {
		nodes, truncated, err := s.walkLineage(ctx, start, DirectionDownstream, maxDepth, &budget)
		if err != nil {
			return nil, err
		}
		res.Downstream = nodes
		res.Truncated = res.Truncated || truncated
	}
	if res.Truncated {
		return res, errors.NewLimitExceeded("lineage traversal", s.visitCap)
	}
	return res, nil
}

// walkLineage runs the BFS for one direction. Layers are visited in
// sorted node-ID order so results are deterministic regardless of map
// iteration. The budget decrements per visited node and is shared with
// the caller's other direction.
func (s *Snapshot) walkLineage(ctx context.Context, start []string, dir Direction, maxDepth int, budget *int) ([]LineageNode, bool, error) {
	visited := make(map[string]bool, len(start))
	var out []LineageNode
	frontier := make([]string, 0, len(start))
	for _, id := range start {
		if *budget <= 0 {
			return out, true, nil
		}
		*budget--
		visited[id] = true
		out = append(out, LineageNode{Node: s.nodes[id], Depth: 0})
		frontier = append(frontier, id)
	}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		if err := errors.FromContext(ctx); err != nil {
			return nil, false, err
		}
		var next []string
		for _, id := range frontier {
			for _, nb := range s.lineageStep(id, dir) {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				next = append(next, nb)
			}
		}
		sort.Strings(next)
		for _, id := range next {
			if *budget <= 0 {
				return out, true, nil
			}
			*budget--
			out = append(out, LineageNode{Node: s.nodes[id], Depth: depth})
		}
		frontier = next
	}
	return out, false, nil
}

// lineageStep expands one node along data-flow edges. Entities and
// sources step to the components that write (upstream) or read
// (downstream) them; components and documents step to the entities they
// read (upstream) or write (downstream). Documents walk like components
// because some formats attach document-level reads ahead of any step.
func (s *Snapshot) lineageStep(id string, dir Direction) []string {
	var next []string
	switch s.nodes[id].Kind {
	case NodeDataEntity, NodeDataSource:
		want := ir.DepWritesTo
		if dir == DirectionDownstream {
			want = ir.DepReadsFrom
		}
		for _, d := range s.in[id] {
			if d.Kind == want {
				next = append(next, d.FromID)
			}
		}
	case NodeComponent, NodeDocument:
		want := ir.DepReadsFrom
		if dir == DirectionDownstream {
			want = ir.DepWritesTo
		}
		for _, d := range s.out[id] {
			if d.Kind == want {
				next = append(next, d.ToID)
			}
		}
	}
	return next
}

// startNodes resolves an entity name to node IDs via the folded name
// index, falling back to the last dotted segment so "staging.customers"
// finds the interned "customers" entity.
func (s *Snapshot) startNodes(name string) []string {
	key := foldName(name)
	ids := s.nameIndex[key]
	if len(ids) == 0 {
		if i := strings.LastIndex(key, "."); i >= 0 {
			ids = s.nameIndex[key[i+1:]]
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return sorted
}

// suggest returns up to five display names that contain, or are contained
// in, the missed lookup. Rough, but enough to catch case and qualifier
// slips.
func (s *Snapshot) suggest(name string) []string {
	key := foldName(name)
	if key == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for k, ids := range s.nameIndex {
		if !strings.Contains(k, key) && !strings.Contains(key, k) {
			continue
		}
		for _, id := range ids {
			display := s.nodes[id].Name
			if _, ok := seen[display]; ok {
				continue
			}
			seen[display] = struct{}{}
			out = append(out, display)
		}
	}
	sort.Strings(out)
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

// =============================================================================
// IMPACT
// =============================================================================

// ImpactResult lists the components one hop from an entity.
type ImpactResult struct {
	Entity  string `json:"entity"`
	Readers []Node `json:"readers"`
	Writers []Node `json:"writers"`
	Total   int    `json:"total"`
}

// AnalyzeImpact reports the direct blast radius of changing an entity:
// every component reading it and every component writing it. O(degree)
// over the reverse adjacency.
func (s *Snapshot) AnalyzeImpact(entity string) (*ImpactResult, error) {
	start := s.startNodes(entity)
	if len(start) == 0 {
		return nil, errors.NewUnknownEntity(entity, s.suggest(entity))
	}

	readers := make(map[string]Node)
	writers := make(map[string]Node)
	for _, id := range start {
		for _, d := range s.in[id] {
			switch d.Kind {
			case ir.DepReadsFrom:
				readers[d.FromID] = s.nodes[d.FromID]
			case ir.DepWritesTo:
				writers[d.FromID] = s.nodes[d.FromID]
			}
		}
	}

	res := &ImpactResult{
		Entity:  entity,
		Readers: sortNodeSet(readers),
		Writers: sortNodeSet(writers),
	}
	res.Total = len(res.Readers) + len(res.Writers)
	return res, nil
}

func sortNodeSet(set map[string]Node) []Node {
	out := make([]Node, 0, len(set))
	for _, n := range set {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return lessNodes(out[i], out[j]) })
	return out
}

// =============================================================================
// CONTROL-FLOW DEPENDENCIES
// =============================================================================

// DependencyResult holds the PRECEDES/CALLS closure around a component.
type DependencyResult struct {
	ComponentID string        `json:"component_id"`
	Upstream    []LineageNode `json:"upstream,omitempty"`
	Downstream  []LineageNode `json:"downstream,omitempty"`
	Truncated   bool          `json:"truncated,omitempty"`
}

// ComponentDependencies walks execution-order and call edges from a
// component. Each node appears at most once per direction, at its
// shortest distance, and the start component is excluded, so cycles
// through the start terminate cleanly. Documents reached through
// resolved call references are included as leaves.
func (s *Snapshot) ComponentDependencies(ctx context.Context, componentID string, dir Direction, maxDepth int) (*DependencyResult, error) {
	if !validDirection(dir) {
		return nil, errors.NewInvalidArgument("direction", `must be "upstream", "downstream" or "both"`)
	}
	if maxDepth < 0 {
		return nil, errors.NewInvalidArgument("max_depth", "must be >= 0")
	}
	n, ok := s.nodes[componentID]
	if !ok || n.Kind != NodeComponent {
		return nil, errors.NewUnknownComponent(componentID)
	}

	res := &DependencyResult{ComponentID: componentID}
	budget := s.visitCap

	if dir == DirectionUpstream || dir == DirectionBoth {
		nodes, truncated, err := s.walkDeps(ctx, componentID, DirectionUpstream, maxDepth, &budget)
		if err != nil {
			return nil, err
		}
		res.Upstream = nodes
		res.Truncated = res.Truncated || truncated
	}
	if dir == DirectionDownstream || dir == DirectionBoth {
		nodes, truncated, err := s.walkDeps(ctx, componentID, DirectionDownstream, maxDepth, &budget)
		if err != nil {
			return nil, err
		}
		res.Downstream = nodes
		res.Truncated = res.Truncated || truncated
	}
	if res.Truncated {
		return res, errors.NewLimitExceeded("dependency traversal", s.visitCap)
	}
	return res, nil
}

func (s *Snapshot) walkDeps(ctx context.Context, startID string, dir Direction, maxDepth int, budget *int) ([]LineageNode, bool, error) {
	visited := map[string]bool{startID: true}
	frontier := []string{startID}
	var out []LineageNode

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		if err := errors.FromContext(ctx); err != nil {
			return nil, false, err
		}
		var next []string
		for _, id := range frontier {
			for _, nb := range s.depStep(id, dir) {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				next = append(next, nb)
			}
		}
		sort.Strings(next)
		for _, id := range next {
			if *budget <= 0 {
				return out, true, nil
			}
			*budget--
			out = append(out, LineageNode{Node: s.nodes[id], Depth: depth})
		}
		frontier = next
	}
	return out, false, nil
}

func (s *Snapshot) depStep(id string, dir Direction) []string {
	var next []string
	if dir == DirectionUpstream {
		for _, d := range s.in[id] {
			if d.Kind == ir.DepPrecedes || d.Kind == ir.DepCalls {
				next = append(next, d.FromID)
			}
		}
		return next
	}
	for _, d := range s.out[id] {
		if d.Kind == ir.DepPrecedes || d.Kind == ir.DepCalls {
			next = append(next, d.ToID)
		}
	}
	return next
}

// =============================================================================
// PATHS
// =============================================================================

// DefaultPathCap bounds how many paths PathsBetween returns.
const DefaultPathCap = 100

// Path is one directed walk through the graph, endpoints included.
type Path struct {
	Nodes []Node `json:"nodes"`
}

// PathsBetween enumerates simple directed paths from one node to another,
// following edges of any kind, up to maxLen edges long. Results come back
// shortest first, ties broken by concatenated node IDs, capped at
// DefaultPathCap. The expansion budget mirrors the traversal cap; running
// out returns the paths found so far with a LimitExceeded error.
func (s *Snapshot) PathsBetween(ctx context.Context, fromID, toID string, maxLen int) ([]Path, error) {
	if _, ok := s.nodes[fromID]; !ok {
		return nil, errors.NewUnknownComponent(fromID)
	}
	if _, ok := s.nodes[toID]; !ok {
		return nil, errors.NewUnknownComponent(toID)
	}
	if maxLen < 1 {
		return nil, errors.NewInvalidArgument("max_len", "must be >= 1")
	}
	if fromID == toID {
		return []Path{{Nodes: []Node{s.nodes[fromID]}}}, nil
	}

	budget := s.visitCap
	truncated := false
	var found [][]string
	queue := [][]string{{fromID}}

	for len(queue) > 0 && !truncated {
		if err := errors.FromContext(ctx); err != nil {
			return nil, err
		}
		walk := queue[0]
		queue = queue[1:]
		if len(walk)-1 >= maxLen {
			continue
		}
		for _, nb := range s.sortedNeighbors(walk[len(walk)-1]) {
			if budget <= 0 {
				truncated = true
				break
			}
			budget--
			if containsID(walk, nb) {
				continue
			}
			next := make([]string, len(walk)+1)
			copy(next, walk)
			next[len(walk)] = nb
			if nb == toID {
				found = append(found, next)
				if len(found) >= DefaultPathCap {
					queue = nil
					break
				}
				continue
			}
			queue = append(queue, next)
		}
	}

	sort.Slice(found, func(i, j int) bool {
		if len(found[i]) != len(found[j]) {
			return len(found[i]) < len(found[j])
		}
		return strings.Join(found[i], "\x00") < strings.Join(found[j], "\x00")
	})

	paths := make([]Path, 0, len(found))
	for _, ids := range found {
		nodes := make([]Node, len(ids))
		for i, id := range ids {
			nodes[i] = s.nodes[id]
		}
		paths = append(paths, Path{Nodes: nodes})
	}
	if truncated {
		return paths, errors.NewLimitExceeded("path search", s.visitCap)
	}
	return paths, nil
}

// sortedNeighbors returns the deduped, sorted successor IDs of a node
// across every edge kind.
func (s *Snapshot) sortedNeighbors(id string) []string {
	deps := s.out[id]
	if len(deps) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(deps))
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		if _, ok := seen[d.ToID]; ok {
			continue
		}
		seen[d.ToID] = struct{}{}
		out = append(out, d.ToID)
	}
	sort.Strings(out)
	return out
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
