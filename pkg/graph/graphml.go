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
	"encoding/xml"
	"io"
)

// graphmlNS is the GraphML schema namespace most visualization tools
// (yEd, Gephi, Cytoscape) expect.
const graphmlNS = "http://graphml.graphdrawing.org/xmlns"

type graphmlKey struct {
	ID       string `xml:"id,attr"`
	For      string `xml:"for,attr"`
	AttrName string `xml:"attr.name,attr"`
	AttrType string `xml:"attr.type,attr"`
}

type graphmlData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

type graphmlNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphmlData `xml:"data"`
}

type graphmlEdge struct {
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphmlData `xml:"data"`
}

type graphmlGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphmlNode `xml:"node"`
	Edges       []graphmlEdge `xml:"edge"`
}

type graphmlDoc struct {
	XMLName xml.Name     `xml:"graphml"`
	Xmlns   string       `xml:"xmlns,attr"`
	Keys    []graphmlKey `xml:"key"`
	Graph   graphmlGraph `xml:"graph"`
}

// WriteGraphML serializes the snapshot for external graph tooling.
// Nodes carry their kind and display name, edges their dependency kind.
// Output is deterministic: nodes in (kind, name, id) order, edges sorted
// by (source, target, kind).
func (s *Snapshot) WriteGraphML(w io.Writer) error {
	doc := graphmlDoc{
		Xmlns: graphmlNS,
		Keys: []graphmlKey{
			{ID: "d0", For: "node", AttrName: "kind", AttrType: "string"},
			{ID: "d1", For: "node", AttrName: "name", AttrType: "string"},
			{ID: "d2", For: "edge", AttrName: "kind", AttrType: "string"},
		},
		Graph: graphmlGraph{
			ID:          "traceai",
			EdgeDefault: "directed",
			Nodes:       make([]graphmlNode, 0, len(s.order)),
		},
	}

	for _, id := range s.order {
		n := s.nodes[id]
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphmlNode{
			ID: n.ID,
			Data: []graphmlData{
				{Key: "d0", Value: string(n.Kind)},
				{Key: "d1", Value: n.Name},
			},
		})
	}
	edges := s.sortedEdges()
	doc.Graph.Edges = make([]graphmlEdge, 0, len(edges))
	for _, d := range edges {
		doc.Graph.Edges = append(doc.Graph.Edges, graphmlEdge{
			Source: d.FromID,
			Target: d.ToID,
			Data:   []graphmlData{{Key: "d2", Value: string(d.Kind)}},
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
