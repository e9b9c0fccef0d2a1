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

// Package ir defines the intermediate representation shared by every
// TraceAI parser and consumed by the graph builder.
//
// Entity kinds:
//   - Document: one source artifact (a .dtsx package, a COBOL program, ...)
//   - Component: a unit of work inside a Document (task, paragraph, step, sheet)
//   - DataSource: a connection or endpoint used for I/O
//   - DataEntity: a logical data container (table, record, dataset) in lineage
//   - Parameter: a named variable scoped to its Document
//   - Dependency: a typed edge between any of the above
//
// All IDs are deterministic and stable across re-runs for idempotency.
package ir

import (
	"fmt"
	"sort"
	"time"
)

// DocumentKind identifies the source format a Document was parsed from.
type DocumentKind string

const (
	DocSSIS  DocumentKind = "SSIS"
	DocCOBOL DocumentKind = "COBOL"
	DocJCL   DocumentKind = "JCL"
	DocJSON  DocumentKind = "JSON_CONFIG"
	DocExcel DocumentKind = "EXCEL"
	DocCSV   DocumentKind = "CSV_LINEAGE"
)

// SourceKind classifies a DataSource endpoint.
type SourceKind string

const (
	SourceDB      SourceKind = "db"
	SourceFile    SourceKind = "file"
	SourceDataset SourceKind = "dataset"
	SourceFTP     SourceKind = "ftp"
	SourceHTTP    SourceKind = "http"
	SourceUnknown SourceKind = "unknown"
)

// EntityType classifies a DataEntity container.
type EntityType string

const (
	EntityTable   EntityType = "table"
	EntityRecord  EntityType = "record"
	EntitySheet   EntityType = "sheet"
	EntityRange   EntityType = "range"
	EntityDataset EntityType = "dataset"
)

// Confidence marks how a DataEntity was discovered. Entities lifted out of
// SQL text by regex scanning are heuristic; entities declared structurally
// (a WORKING-STORAGE record, an Excel table) are exact.
type Confidence string

const (
	ConfidenceExact     Confidence = "exact"
	ConfidenceHeuristic Confidence = "heuristic"
)

// DependencyKind is the closed set of edge types in the knowledge graph.
type DependencyKind string

const (
	DepContains  DependencyKind = "CONTAINS"
	DepPrecedes  DependencyKind = "PRECEDES"
	DepReadsFrom DependencyKind = "READS_FROM"
	DepWritesTo  DependencyKind = "WRITES_TO"
	DepCalls     DependencyKind = "CALLS"
	DepUses      DependencyKind = "USES"
)

// Document represents one parsed source artifact.
//
// ParsedAt is stamped by the graph builder at commit time, not by parsers,
// so that parsing the same bytes twice yields identical ParsedDocuments.
type Document struct {
	ID          string            `json:"id"`          // Deterministic: doc:<hash(normalized abs path)>
	Name        string            `json:"name"`        // Logical name (package name, PROGRAM-ID, job name)
	Kind        DocumentKind      `json:"kind"`        // Source format
	SourcePath  string            `json:"source_path"` // Normalized absolute path
	ContentHash string            `json:"content_hash"`
	ParsedAt    time.Time         `json:"parsed_at,omitzero"`
	Description string            `json:"description,omitempty"`
	Custom      map[string]string `json:"custom,omitempty"` // Format-specific attributes
}

// Component is a unit of work inside a Document: an SSIS task, a COBOL
// paragraph, a JCL step, a JSON job, an Excel sheet.
type Component struct {
	ID            string `json:"id"`   // document_id + "/" + local name
	Name          string `json:"name"` // Local name within the document
	ComponentType string `json:"component_type"`
	Description   string `json:"description,omitempty"`
	SourceExcerpt string `json:"source_excerpt,omitempty"`
}

// DataSource is a connection or endpoint: a DB connection string, a
// mainframe dataset DSN, a file path.
type DataSource struct {
	ID         string            `json:"id"` // Deterministic: src:<hash(kind|normalized locator)>
	Name       string            `json:"name"`
	Kind       SourceKind        `json:"kind"`
	Locator    string            `json:"locator"` // Connection string, DSN, or path
	Properties map[string]string `json:"properties,omitempty"`
}

// Column is one field of a DataEntity (a table column, a PIC clause).
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type,omitempty"`
}

// DataEntity is a logical data container participating in lineage:
// a table, a COBOL 01-level record, an Excel range, a dataset member.
// Equal normalized names intern to the same node across documents.
type DataEntity struct {
	ID         string            `json:"id"` // Deterministic: ent:<hash(normalized name)>
	Name       string            `json:"name"`
	EntityType EntityType        `json:"entity_type"`
	Schema     string            `json:"schema,omitempty"` // Stripped qualifier, kept for display
	Columns    []Column          `json:"columns,omitempty"`
	Confidence Confidence        `json:"confidence,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Parameter is a named variable owned by a Document (SSIS variable,
// JCL symbolic, JSON config value, Excel defined name).
type Parameter struct {
	ID       string `json:"id"` // document_id + "/var/" + namespace + "." + name
	Name     string `json:"name"`
	DataType string `json:"data_type,omitempty"`
	Value    string `json:"value,omitempty"`
}

// Dependency is a typed edge. When Deferred is set, ToID carries the bare
// name of a Document that may not exist yet; the builder resolves it on
// commit and retries on every later commit until the target appears.
type Dependency struct {
	FromID     string            `json:"from_id"`
	ToID       string            `json:"to_id"`
	Kind       DependencyKind    `json:"kind"`
	Deferred   bool              `json:"deferred,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ParsedDocument is the aggregate a parser hands to the graph builder.
type ParsedDocument struct {
	Document     Document     `json:"document"`
	Components   []Component  `json:"components,omitempty"`
	DataSources  []DataSource `json:"data_sources,omitempty"`
	DataEntities []DataEntity `json:"data_entities,omitempty"`
	Parameters   []Parameter  `json:"parameters,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	Warnings     []string     `json:"warnings,omitempty"` // Partial-parse notes, never fatal
}

// Validate checks the self-consistency contract: every dependency endpoint
// must reference an ID defined inside this ParsedDocument, except deferred
// targets, which name a Document instead of a node.
func (p *ParsedDocument) Validate() error {
	ids := make(map[string]struct{}, 1+len(p.Components)+len(p.DataSources)+len(p.DataEntities)+len(p.Parameters))
	ids[p.Document.ID] = struct{}{}
	for _, c := range p.Components {
		ids[c.ID] = struct{}{}
	}
	for _, s := range p.DataSources {
		ids[s.ID] = struct{}{}
	}
	for _, e := range p.DataEntities {
		ids[e.ID] = struct{}{}
	}
	for _, v := range p.Parameters {
		ids[v.ID] = struct{}{}
	}
	for i, d := range p.Dependencies {
		if d.FromID == "" || d.ToID == "" {
			return fmt.Errorf("dependency %d: empty endpoint (%q -> %q)", i, d.FromID, d.ToID)
		}
		if _, ok := ids[d.FromID]; !ok {
			return fmt.Errorf("dependency %d: from_id %q not defined in document %s", i, d.FromID, p.Document.ID)
		}
		if d.Deferred {
			continue
		}
		if _, ok := ids[d.ToID]; !ok {
			return fmt.Errorf("dependency %d: to_id %q not defined in document %s", i, d.ToID, p.Document.ID)
		}
	}
	return nil
}

// SortStable orders every slice in place by ID (dependencies by endpoint
// triple) so that two semantically equal ParsedDocuments compare equal.
func (p *ParsedDocument) SortStable() {
	sort.Slice(p.Components, func(i, j int) bool { return p.Components[i].ID < p.Components[j].ID })
	sort.Slice(p.DataSources, func(i, j int) bool { return p.DataSources[i].ID < p.DataSources[j].ID })
	sort.Slice(p.DataEntities, func(i, j int) bool { return p.DataEntities[i].ID < p.DataEntities[j].ID })
	sort.Slice(p.Parameters, func(i, j int) bool { return p.Parameters[i].ID < p.Parameters[j].ID })
	sort.Slice(p.Dependencies, func(i, j int) bool {
		a, b := p.Dependencies[i], p.Dependencies[j]
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		if a.ToID != b.ToID {
			return a.ToID < b.ToID
		}
		return a.Kind < b.Kind
	})
}
