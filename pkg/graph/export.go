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

package graph

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/kraklabs/traceai/pkg/ir"
)

// jsonExport is the {nodes, edges} document WriteJSON emits.
type jsonExport struct {
	Nodes []Node          `json:"nodes"`
	Edges []ir.Dependency `json:"edges"`
}

// sortedEdges returns every edge in (source, target, kind) order. Both
// export formats share this ordering so diffs between exports of the
// same graph stay meaningful.
func (s *Snapshot) sortedEdges() []ir.Dependency {
	edges := make([]ir.Dependency, 0, s.edgeCount)
	for _, id := range s.order {
		edges = append(edges, s.out[id]...)
	}
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		if a.ToID != b.ToID {
			return a.ToID < b.ToID
		}
		return a.Kind < b.Kind
	})
	return edges
}

// WriteJSON serializes the snapshot as one JSON document carrying every
// node with its payload plus every edge. Nodes come in (kind, name, id)
// order, edges in (source, target, kind) order, matching WriteGraphML.
func (s *Snapshot) WriteJSON(w io.Writer) error {
	doc := jsonExport{
		Nodes: make([]Node, 0, len(s.order)),
		Edges: s.sortedEdges(),
	}
	for _, id := range s.order {
		doc.Nodes = append(doc.Nodes, s.nodes[id])
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
