// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package ir

import "strings"

// Text surfaces are what the vector index embeds for each node kind.
// They are derived, never stored in the graph, and must be stable for
// unchanged nodes so re-ingestion does not churn the index.

// TextSurface returns the embedding text for a Document: name, kind and
// description.
func (d *Document) TextSurface() string {
	return joinSurface(d.Name, string(d.Kind), d.Description)
}

// TextSurface returns the embedding text for a Component: name, type,
// description and source excerpt.
func (c *Component) TextSurface() string {
	return joinSurface(c.Name, c.ComponentType, c.Description, c.SourceExcerpt)
}

// TextSurface returns the embedding text for a DataSource: its locator.
func (s *DataSource) TextSurface() string {
	return joinSurface(s.Name, s.Locator)
}

// TextSurface returns the embedding text for a DataEntity: the qualified
// name plus column names when known.
func (e *DataEntity) TextSurface() string {
	name := e.Name
	if e.Schema != "" {
		name = e.Schema + "." + e.Name
	}
	cols := make([]string, 0, len(e.Columns))
	for _, c := range e.Columns {
		cols = append(cols, c.Name)
	}
	return joinSurface(name, string(e.EntityType), strings.Join(cols, " "))
}

// TextSurface returns the embedding text for a Parameter: name and value.
func (v *Parameter) TextSurface() string {
	return joinSurface(v.Name, v.Value)
}

func joinSurface(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
