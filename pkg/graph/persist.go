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
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/ir"
)

// SchemaVersion is the on-disk snapshot format version. Readers accept
// files written by this version or older.
const SchemaVersion = 1

// snapshotFile is the persisted graph: enough to rebuild every index.
// DocumentRefs carries the shared-node ownership that node IDs alone
// cannot reconstruct (interned nodes have no document prefix).
type snapshotFile struct {
	SchemaVersion  int                 `json:"schema_version"`
	CreatedAt      time.Time           `json:"created_at"`
	DocumentHashes map[string]string   `json:"document_hashes"`
	Nodes          []Node              `json:"nodes"`
	Edges          []ir.Dependency     `json:"edges"`
	DocumentRefs   map[string][]string `json:"document_refs"`
	Deferred       []deferredRef       `json:"deferred,omitempty"`
}

// Save writes the graph to path as JSON, atomically: the file is staged
// in the same directory and renamed into place, so a crash mid-write
// never corrupts an existing snapshot.
func (g *Graph) Save(path string) error {
	g.mu.RLock()
	file := snapshotFile{
		SchemaVersion:  SchemaVersion,
		CreatedAt:      time.Now().UTC(),
		DocumentHashes: make(map[string]string, len(g.docHashes)),
		Nodes:          make([]Node, 0, len(g.nodes)),
		Edges:          make([]ir.Dependency, 0, len(g.edges)),
		DocumentRefs:   make(map[string][]string, len(g.docShared)),
		Deferred:       append([]deferredRef(nil), g.deferred...),
	}
	for id, hash := range g.docHashes {
		file.DocumentHashes[id] = hash
	}
	for _, n := range g.nodes {
		file.Nodes = append(file.Nodes, n)
	}
	for _, d := range g.edges {
		file.Edges = append(file.Edges, d)
	}
	for docID, shared := range g.docShared {
		file.DocumentRefs[docID] = append([]string(nil), shared...)
	}
	g.mu.RUnlock()

	sort.Slice(file.Nodes, func(i, j int) bool { return lessNodes(file.Nodes[i], file.Nodes[j]) })
	sort.Slice(file.Edges, func(i, j int) bool {
		a, b := file.Edges[i], file.Edges[j]
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		if a.ToID != b.ToID {
			return a.ToID < b.ToID
		}
		return a.Kind < b.Kind
	})

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewInternal("create snapshot directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".graph-*.json")
	if err != nil {
		return errors.NewInternal("stage snapshot file", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(file); err != nil {
		tmp.Close()
		return errors.NewInternal("encode snapshot", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.NewInternal("sync snapshot", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewInternal("close snapshot", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.NewInternal("publish snapshot", err)
	}

	g.logger.Info("graph.save",
		"path", path,
		"nodes", len(file.Nodes),
		"edges", len(file.Edges),
		"documents", len(file.DocumentHashes))
	return nil
}

// Load reads a snapshot written by Save and rebuilds a graph with all
// indexes reconstructed. Files from newer schema versions are rejected;
// older ones load as-is.
func Load(path string, logger *slog.Logger) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewInternal("read snapshot", err)
	}
	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.NewMalformedInput(path, "snapshot is not valid JSON", err)
	}
	if file.SchemaVersion > SchemaVersion {
		return nil, errors.NewMalformedInput(path, "snapshot written by a newer version", nil)
	}

	g := New(logger)
	rep := &CommitReport{}
	for _, n := range file.Nodes {
		if !ValidNodeKind(n.Kind) || !payloadMatches(n) {
			return nil, errors.NewMalformedInput(path, "node "+n.ID+" has no payload for kind "+string(n.Kind), nil)
		}
		g.nodes[n.ID] = n
		g.nodesByKind[n.Kind]++
		switch n.Kind {
		case NodeDocument:
			g.docsByKind[n.Document.Kind]++
			key := foldName(n.Name)
			g.docNames[n.ID] = key
			g.docsByName[key] = append(g.docsByName[key], n.ID)
		case NodeComponent, NodeParameter:
			slash := strings.Index(n.ID, "/")
			if slash < 0 {
				return nil, errors.NewMalformedInput(path, "owned node "+n.ID+" has no document prefix", nil)
			}
			docID := n.ID[:slash]
			g.docOwned[docID] = append(g.docOwned[docID], n.ID)
		case NodeDataSource, NodeDataEntity:
			g.addNameIndex(n)
		}
	}
	for docID, shared := range file.DocumentRefs {
		g.docShared[docID] = append([]string(nil), shared...)
		for _, sid := range shared {
			g.refs[sid]++
		}
	}
	for _, d := range file.Edges {
		g.insertEdge(d, rep)
	}
	for id, hash := range file.DocumentHashes {
		g.docHashes[id] = hash
	}
	g.deferred = append(g.deferred, file.Deferred...)

	g.logger.Info("graph.load",
		"path", path,
		"schema_version", file.SchemaVersion,
		"nodes", len(file.Nodes),
		"edges", rep.EdgesAdded,
		"documents", len(file.DocumentHashes))
	return g, nil
}

// payloadMatches checks that exactly the payload for the node's kind is
// present, the invariant every query dereferences without checking.
func payloadMatches(n Node) bool {
	switch n.Kind {
	case NodeDocument:
		return n.Document != nil
	case NodeComponent:
		return n.Component != nil
	case NodeDataSource:
		return n.DataSource != nil
	case NodeDataEntity:
		return n.DataEntity != nil
	case NodeParameter:
		return n.Parameter != nil
	}
	return false
}
