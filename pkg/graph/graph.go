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

// Package graph maintains the typed multigraph that TraceAI builds from
// parsed documents and the query engine that answers lineage, impact and
// dependency questions over it.
//
// The graph is a single-writer structure: all mutation flows through
// AddDocument, RemoveDocument and ResolveDeferredReferences, serialized by
// a writer lock. Readers never touch the live graph; they take a Snapshot,
// an immutable consistent view that stays valid while commits continue.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/ir"
)

// NodeKind identifies which entity a graph node wraps.
type NodeKind string

const (
	NodeDocument   NodeKind = "document"
	NodeComponent  NodeKind = "component"
	NodeDataSource NodeKind = "data_source"
	NodeDataEntity NodeKind = "data_entity"
	NodeParameter  NodeKind = "parameter"
)

// ValidNodeKind reports whether k names one of the five node kinds.
func ValidNodeKind(k NodeKind) bool {
	switch k {
	case NodeDocument, NodeComponent, NodeDataSource, NodeDataEntity, NodeParameter:
		return true
	}
	return false
}

// Node is one vertex of the multigraph. Exactly one payload pointer is
// set, matching Kind. Payloads are immutable once committed: updates
// replace the whole Node value, never write through the pointer, which is
// what lets snapshots share node maps with the live graph.
type Node struct {
	ID   string   `json:"id"`
	Kind NodeKind `json:"kind"`
	Name string   `json:"name"`

	Document   *ir.Document   `json:"document,omitempty"`
	Component  *ir.Component  `json:"component,omitempty"`
	DataSource *ir.DataSource `json:"data_source,omitempty"`
	DataEntity *ir.DataEntity `json:"data_entity,omitempty"`
	Parameter  *ir.Parameter  `json:"parameter,omitempty"`
}

// TextSurface returns the embedding text for the node's payload.
func (n Node) TextSurface() string {
	switch n.Kind {
	case NodeDocument:
		return n.Document.TextSurface()
	case NodeComponent:
		return n.Component.TextSurface()
	case NodeDataSource:
		return n.DataSource.TextSurface()
	case NodeDataEntity:
		return n.DataEntity.TextSurface()
	case NodeParameter:
		return n.Parameter.TextSurface()
	}
	return n.Name
}

// Metadata returns the vector-index metadata attached to the node's
// embedding, the keys semantic search filters match against.
func (n Node) Metadata() map[string]string {
	return map[string]string{
		"kind": string(n.Kind),
		"name": n.Name,
	}
}

// lessNodes is the deterministic (kind, name, id) ordering used for every
// returned node set.
func lessNodes(a, b Node) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

// CommitReport summarizes the effect of one AddDocument or RemoveDocument
// call. UpsertIDs and RemovedIDs drive the vector index: the committer
// embeds every upserted node and deletes every removed one.
type CommitReport struct {
	DocumentID   string `json:"document_id"`
	NoOp         bool   `json:"no_op,omitempty"`
	NodesAdded   int    `json:"nodes_added"`
	NodesUpdated int    `json:"nodes_updated"`
	NodesRemoved int    `json:"nodes_removed"`
	EdgesAdded   int    `json:"edges_added"`
	EdgesRemoved int    `json:"edges_removed"`

	UpsertIDs  []string `json:"-"`
	RemovedIDs []string `json:"-"`
}

// UnresolvedRef describes a deferred CALLS edge whose target document is
// still missing after a resolution pass.
type UnresolvedRef struct {
	DocumentID string `json:"document_id"`
	FromID     string `json:"from_id"`
	Target     string `json:"target"`
	Reason     string `json:"reason"`
}

// deferredRef is one row of the deferred-reference side table. Resolved
// rows keep their provenance so that removing the target document re-queues
// the reference instead of losing it.
type deferredRef struct {
	DocumentID string            `json:"document_id"`
	FromID     string            `json:"from_id"`
	Kind       ir.DependencyKind `json:"kind"`
	Target     string            `json:"target"`
	Properties map[string]string `json:"properties,omitempty"`
	Resolved   bool              `json:"resolved,omitempty"`
	TargetDoc  string            `json:"target_document_id,omitempty"`
}

// DefaultVisitCap bounds how many nodes a single traversal may visit
// before returning a truncated result with a LimitExceeded error.
const DefaultVisitCap = 100_000

// Graph is the single-writer typed multigraph.
//
// Edge identity is (from, to, kind); parallel edges of different kinds are
// allowed. DataSource and DataEntity nodes are interned across documents
// and reference-counted; Document, Component and Parameter nodes are owned
// by their document and replaced wholesale on re-ingest.
type Graph struct {
	mu     sync.RWMutex
	logger *slog.Logger

	version uint64
	nodes   map[string]Node
	out     map[string][]ir.Dependency // adjacency by FromID
	in      map[string][]ir.Dependency // adjacency by ToID
	edges   map[string]ir.Dependency   // identity set keyed by from\x00to\x00kind

	docHashes map[string]string   // document ID -> content hash
	docOwned  map[string][]string // document ID -> owned component/parameter node IDs
	docShared map[string][]string // document ID -> interned source/entity node IDs
	docNames  map[string]string   // document ID -> folded name (reverse of docsByName)
	refs      map[string]int      // shared node ID -> referencing document count

	docsByName map[string][]string // folded document name -> document IDs
	nameIndex  map[string][]string // folded entity/source name -> node IDs

	deferred []deferredRef

	nodesByKind map[NodeKind]int
	edgesByKind map[ir.DependencyKind]int
	docsByKind  map[ir.DocumentKind]int

	visitCap int

	snapMu sync.Mutex
	snap   *Snapshot
}

// New creates an empty graph. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		logger:      logger,
		nodes:       make(map[string]Node),
		out:         make(map[string][]ir.Dependency),
		in:          make(map[string][]ir.Dependency),
		edges:       make(map[string]ir.Dependency),
		docHashes:   make(map[string]string),
		docOwned:    make(map[string][]string),
		docShared:   make(map[string][]string),
		docNames:    make(map[string]string),
		refs:        make(map[string]int),
		docsByName:  make(map[string][]string),
		nameIndex:   make(map[string][]string),
		nodesByKind: make(map[NodeKind]int),
		edgesByKind: make(map[ir.DependencyKind]int),
		docsByKind:  make(map[ir.DocumentKind]int),
		visitCap:    DefaultVisitCap,
	}
}

// Version returns the commit counter. It increments on every effective
// mutation and is what snapshot caching keys on.
func (g *Graph) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// SetVisitCap overrides the traversal node budget. Zero or negative
// restores the default. Snapshots taken afterwards pick up the new cap.
func (g *Graph) SetVisitCap(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n <= 0 {
		n = DefaultVisitCap
	}
	if n != g.visitCap {
		g.visitCap = n
		g.version++
	}
}

// =============================================================================
// COMMIT
// =============================================================================

// AddDocument commits one parsed document atomically.
//
// Re-ingesting the same (document ID, content hash) pair is a no-op.
// A changed hash replaces the document's owned Components, Parameters and
// Dependencies; shared DataSource/DataEntity nodes are reconciled by
// refcount. Deferred CALLS references are queued in the side table, and
// every commit retries resolution of all pending references so that
// ingest order does not matter.
func (g *Graph) AddDocument(ctx context.Context, pd *ir.ParsedDocument) (*CommitReport, error) {
	if pd == nil {
		return nil, errors.NewInvalidArgument("document", "nil parsed document")
	}
	if err := errors.FromContext(ctx); err != nil {
		return nil, err
	}
	// Parsers guarantee self-consistency; a violation here is a bug, not
	// bad user input.
	if err := pd.Validate(); err != nil {
		return nil, errors.NewInternal("parsed document violates the self-consistency contract", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	docID := pd.Document.ID
	if hash, ok := g.docHashes[docID]; ok && hash == pd.Document.ContentHash {
		return &CommitReport{DocumentID: docID, NoOp: true}, nil
	}

	rep := &CommitReport{DocumentID: docID}
	_, existed := g.nodes[docID]
	if existed {
		g.evictDocument(docID, rep)
	}

	doc := pd.Document
	doc.ParsedAt = time.Now().UTC()
	docNode := Node{ID: doc.ID, Kind: NodeDocument, Name: doc.Name, Document: &doc}
	g.nodes[docID] = docNode
	if existed {
		rep.NodesUpdated++
	} else {
		g.nodesByKind[NodeDocument]++
		rep.NodesAdded++
	}
	g.docsByKind[doc.Kind]++
	rep.UpsertIDs = append(rep.UpsertIDs, docID)

	key := foldName(doc.Name)
	g.docNames[docID] = key
	g.docsByName[key] = append(g.docsByName[key], docID)

	owned := make([]string, 0, len(pd.Components)+len(pd.Parameters))
	for i := range pd.Components {
		c := pd.Components[i]
		g.insertNode(Node{ID: c.ID, Kind: NodeComponent, Name: c.Name, Component: &c}, rep)
		owned = append(owned, c.ID)
	}
	for i := range pd.Parameters {
		p := pd.Parameters[i]
		g.insertNode(Node{ID: p.ID, Kind: NodeParameter, Name: p.Name, Parameter: &p}, rep)
		owned = append(owned, p.ID)
	}
	g.docOwned[docID] = owned

	shared := make([]string, 0, len(pd.DataSources)+len(pd.DataEntities))
	for i := range pd.DataSources {
		s := pd.DataSources[i]
		g.internSource(s, rep)
		shared = append(shared, s.ID)
	}
	for i := range pd.DataEntities {
		e := pd.DataEntities[i]
		g.internEntity(e, rep)
		shared = append(shared, e.ID)
	}
	g.docShared[docID] = shared
	g.docHashes[docID] = doc.ContentHash

	for _, d := range pd.Dependencies {
		if d.Deferred {
			g.deferred = append(g.deferred, deferredRef{
				DocumentID: docID,
				FromID:     d.FromID,
				Kind:       d.Kind,
				Target:     d.ToID,
				Properties: d.Properties,
			})
			continue
		}
		g.insertEdge(d, rep)
	}

	g.retryDeferred(rep)
	g.version++

	rep.RemovedIDs = subtractIDs(rep.RemovedIDs, rep.UpsertIDs)
	g.logger.Debug("graph.commit",
		"document", docID,
		"name", doc.Name,
		"nodes_added", rep.NodesAdded,
		"nodes_updated", rep.NodesUpdated,
		"nodes_removed", rep.NodesRemoved,
		"edges_added", rep.EdgesAdded,
		"edges_removed", rep.EdgesRemoved)
	return rep, nil
}

// RemoveDocument unloads a document: its owned nodes, every edge touching
// them or the document node, and any zero-refcount shared nodes it was the
// last referrer of. Resolved deferred references from other documents that
// targeted this one are re-queued as pending. Returns false when the
// document is not in the graph.
func (g *Graph) RemoveDocument(docID string) (*CommitReport, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[docID]
	if !ok || node.Kind != NodeDocument {
		return nil, false
	}

	rep := &CommitReport{DocumentID: docID}
	g.evictDocument(docID, rep)

	// Inbound CALLS from other documents dangle once the target is gone.
	// Their deferred provenance goes back to pending so a later re-ingest
	// of this document restores the edges.
	g.removeEdgesTouching(docID, rep)
	for i := range g.deferred {
		if g.deferred[i].Resolved && g.deferred[i].TargetDoc == docID {
			g.deferred[i].Resolved = false
			g.deferred[i].TargetDoc = ""
		}
	}

	delete(g.nodes, docID)
	g.nodesByKind[NodeDocument]--
	rep.NodesRemoved++
	rep.RemovedIDs = append(rep.RemovedIDs, docID)
	delete(g.docHashes, docID)

	g.version++
	g.logger.Debug("graph.remove",
		"document", docID,
		"nodes_removed", rep.NodesRemoved,
		"edges_removed", rep.EdgesRemoved)
	return rep, true
}

// ResolveDeferredReferences retries every pending deferred reference and
// returns the ones that remain unresolved, with the reason.
func (g *Graph) ResolveDeferredReferences() []UnresolvedRef {
	g.mu.Lock()
	defer g.mu.Unlock()

	rep := &CommitReport{}
	g.retryDeferred(rep)
	if rep.EdgesAdded > 0 {
		g.version++
	}

	var unresolved []UnresolvedRef
	for _, ref := range g.deferred {
		if ref.Resolved {
			continue
		}
		_, reason := g.resolveTarget(ref)
		unresolved = append(unresolved, UnresolvedRef{
			DocumentID: ref.DocumentID,
			FromID:     ref.FromID,
			Target:     ref.Target,
			Reason:     reason,
		})
	}
	sort.Slice(unresolved, func(i, j int) bool {
		a, b := unresolved[i], unresolved[j]
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		return a.Target < b.Target
	})

	g.logger.Info("graph.resolve",
		"resolved_edges", rep.EdgesAdded,
		"unresolved", len(unresolved))
	return unresolved
}

// =============================================================================
// COMMIT INTERNALS (callers hold g.mu)
// =============================================================================

// evictDocument removes a document's owned nodes and edges and drops its
// shared references, leaving the document node itself in place for the
// caller to replace or delete.
func (g *Graph) evictDocument(docID string, rep *CommitReport) {
	for _, id := range g.docOwned[docID] {
		node, ok := g.nodes[id]
		if !ok {
			continue
		}
		g.removeEdgesTouching(id, rep)
		delete(g.nodes, id)
		g.nodesByKind[node.Kind]--
		rep.NodesRemoved++
		rep.RemovedIDs = append(rep.RemovedIDs, id)
	}
	delete(g.docOwned, docID)

	// The document's own edges (CONTAINS, USES, pre-step reads) go too;
	// inbound edges from other documents survive an update.
	for _, d := range append([]ir.Dependency(nil), g.out[docID]...) {
		g.removeEdge(d, rep)
	}

	for _, sid := range g.docShared[docID] {
		g.refs[sid]--
		if g.refs[sid] > 0 {
			continue
		}
		delete(g.refs, sid)
		if node, ok := g.nodes[sid]; ok {
			delete(g.nodes, sid)
			g.nodesByKind[node.Kind]--
			g.dropNameIndex(node)
			rep.NodesRemoved++
			rep.RemovedIDs = append(rep.RemovedIDs, sid)
		}
	}
	delete(g.docShared, docID)

	if node, ok := g.nodes[docID]; ok {
		g.docsByKind[node.Document.Kind]--
	}
	g.dropDocName(docID)

	kept := g.deferred[:0]
	for _, ref := range g.deferred {
		if ref.DocumentID != docID {
			kept = append(kept, ref)
		}
	}
	g.deferred = kept
}

// insertNode adds an owned node (component or parameter).
func (g *Graph) insertNode(n Node, rep *CommitReport) {
	g.nodes[n.ID] = n
	g.nodesByKind[n.Kind]++
	rep.NodesAdded++
	rep.UpsertIDs = append(rep.UpsertIDs, n.ID)
}

// internSource records a shared DataSource, bumping the refcount when the
// node already exists. The first sighting's attributes win.
func (g *Graph) internSource(s ir.DataSource, rep *CommitReport) {
	if _, ok := g.nodes[s.ID]; ok {
		g.refs[s.ID]++
		return
	}
	n := Node{ID: s.ID, Kind: NodeDataSource, Name: s.Name, DataSource: &s}
	g.nodes[s.ID] = n
	g.nodesByKind[NodeDataSource]++
	g.refs[s.ID] = 1
	g.addNameIndex(n)
	rep.NodesAdded++
	rep.UpsertIDs = append(rep.UpsertIDs, s.ID)
}

// internEntity records a shared DataEntity. Cross-document sightings merge
// the same way sightings within one file do: an exact-confidence sighting
// upgrades a heuristic one, and columns stick once discovered.
func (g *Graph) internEntity(e ir.DataEntity, rep *CommitReport) {
	prev, ok := g.nodes[e.ID]
	if !ok {
		n := Node{ID: e.ID, Kind: NodeDataEntity, Name: e.Name, DataEntity: &e}
		g.nodes[e.ID] = n
		g.nodesByKind[NodeDataEntity]++
		g.refs[e.ID] = 1
		g.addNameIndex(n)
		rep.NodesAdded++
		rep.UpsertIDs = append(rep.UpsertIDs, e.ID)
		return
	}
	g.refs[e.ID]++

	merged := *prev.DataEntity
	changed := false
	if merged.Confidence == ir.ConfidenceHeuristic && e.Confidence == ir.ConfidenceExact {
		cols := merged.Columns
		merged = e
		if len(merged.Columns) == 0 {
			merged.Columns = cols
		}
		changed = true
	} else if len(merged.Columns) == 0 && len(e.Columns) > 0 {
		merged.Columns = e.Columns
		changed = true
	}
	if !changed {
		return
	}
	g.dropNameIndex(prev)
	n := Node{ID: e.ID, Kind: NodeDataEntity, Name: merged.Name, DataEntity: &merged}
	g.nodes[e.ID] = n
	g.addNameIndex(n)
	rep.NodesUpdated++
	rep.UpsertIDs = append(rep.UpsertIDs, e.ID)
}

// insertEdge adds an edge unless the (from, to, kind) identity exists.
func (g *Graph) insertEdge(d ir.Dependency, rep *CommitReport) {
	key := edgeKey(d.FromID, d.ToID, d.Kind)
	if _, ok := g.edges[key]; ok {
		return
	}
	g.edges[key] = d
	g.out[d.FromID] = append(g.out[d.FromID], d)
	g.in[d.ToID] = append(g.in[d.ToID], d)
	g.edgesByKind[d.Kind]++
	rep.EdgesAdded++
}

// removeEdge deletes one edge and repairs both adjacency lists.
func (g *Graph) removeEdge(d ir.Dependency, rep *CommitReport) {
	key := edgeKey(d.FromID, d.ToID, d.Kind)
	if _, ok := g.edges[key]; !ok {
		return
	}
	delete(g.edges, key)
	g.out[d.FromID] = filterEdges(g.out[d.FromID], d)
	g.in[d.ToID] = filterEdges(g.in[d.ToID], d)
	g.edgesByKind[d.Kind]--
	rep.EdgesRemoved++
}

// removeEdgesTouching deletes every edge with id as either endpoint.
func (g *Graph) removeEdgesTouching(id string, rep *CommitReport) {
	for _, d := range append([]ir.Dependency(nil), g.out[id]...) {
		g.removeEdge(d, rep)
	}
	for _, d := range append([]ir.Dependency(nil), g.in[id]...) {
		g.removeEdge(d, rep)
	}
	delete(g.out, id)
	delete(g.in, id)
}

// retryDeferred attempts to resolve every pending deferred reference,
// inserting a concrete edge per success.
func (g *Graph) retryDeferred(rep *CommitReport) {
	for i := range g.deferred {
		ref := &g.deferred[i]
		if ref.Resolved {
			continue
		}
		targetDoc, _ := g.resolveTarget(*ref)
		if targetDoc == "" {
			continue
		}
		g.insertEdge(ir.Dependency{
			FromID:     ref.FromID,
			ToID:       targetDoc,
			Kind:       ref.Kind,
			Properties: ref.Properties,
		}, rep)
		ref.Resolved = true
		ref.TargetDoc = targetDoc
	}
}

// resolveTarget finds the document a deferred reference points at.
//
// Bare program names can collide across large trees, so resolution is
// scoped: documents in the referring document's directory win; otherwise
// the name must be globally unique. Ambiguous names stay unresolved and
// surface in the run report.
func (g *Graph) resolveTarget(ref deferredRef) (docID, reason string) {
	candidates := g.docsByName[foldName(ref.Target)]
	switch len(candidates) {
	case 0:
		return "", fmt.Sprintf("no document named %q", ref.Target)
	case 1:
		return candidates[0], ""
	}

	ownerDir := ""
	if owner, ok := g.nodes[ref.DocumentID]; ok {
		ownerDir = path.Dir(owner.Document.SourcePath)
	}
	var local []string
	for _, id := range candidates {
		if cand, ok := g.nodes[id]; ok && path.Dir(cand.Document.SourcePath) == ownerDir {
			local = append(local, id)
		}
	}
	if len(local) == 1 {
		return local[0], ""
	}
	return "", fmt.Sprintf("ambiguous name %q: matches %d documents", ref.Target, len(candidates))
}

// addNameIndex registers a shared node under its folded name for lineage
// and impact lookups.
func (g *Graph) addNameIndex(n Node) {
	key := foldName(n.Name)
	if key == "" {
		return
	}
	g.nameIndex[key] = append(g.nameIndex[key], n.ID)
}

// dropNameIndex removes one node from the name index.
func (g *Graph) dropNameIndex(n Node) {
	key := foldName(n.Name)
	ids := g.nameIndex[key]
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != n.ID {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		delete(g.nameIndex, key)
		return
	}
	g.nameIndex[key] = kept
}

// dropDocName removes a document from the name lookup table.
func (g *Graph) dropDocName(docID string) {
	key, ok := g.docNames[docID]
	if !ok {
		return
	}
	delete(g.docNames, docID)
	ids := g.docsByName[key]
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != docID {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		delete(g.docsByName, key)
		return
	}
	g.docsByName[key] = kept
}

// =============================================================================
// HELPERS
// =============================================================================

func edgeKey(from, to string, kind ir.DependencyKind) string {
	return from + "\x00" + to + "\x00" + string(kind)
}

// filterEdges removes the edge matching d's identity from a fresh slice,
// leaving the original backing array untouched for live snapshots.
func filterEdges(edges []ir.Dependency, d ir.Dependency) []ir.Dependency {
	kept := make([]ir.Dependency, 0, len(edges))
	for _, e := range edges {
		if e.FromID == d.FromID && e.ToID == d.ToID && e.Kind == d.Kind {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// foldName canonicalizes a name for case-insensitive lookup: lowercase
// with internal whitespace collapsed, the same folding entity IDs use.
func foldName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func subtractIDs(ids, drop []string) []string {
	if len(ids) == 0 || len(drop) == 0 {
		return ids
	}
	set := make(map[string]struct{}, len(drop))
	for _, id := range drop {
		set[id] = struct{}{}
	}
	kept := ids[:0]
	for _, id := range ids {
		if _, ok := set[id]; !ok {
			kept = append(kept, id)
		}
	}
	return kept
}
