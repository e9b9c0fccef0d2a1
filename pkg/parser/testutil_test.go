package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/traceai/pkg/ir"
)

// mustParse parses a fixture and asserts the document's internal
// consistency contract holds.
func mustParse(t *testing.T, p Parser, path string) *ir.ParsedDocument {
	t.Helper()
	doc, err := p.Parse(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.NoError(t, doc.Validate(), "parsed document must be self-consistent")
	return doc
}

func componentByName(t *testing.T, doc *ir.ParsedDocument, name string) ir.Component {
	t.Helper()
	for _, c := range doc.Components {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no component named %q in %s", name, doc.Document.ID)
	return ir.Component{}
}

func entityByName(t *testing.T, doc *ir.ParsedDocument, name string) ir.DataEntity {
	t.Helper()
	for _, e := range doc.DataEntities {
		if e.Name == name {
			return e
		}
	}
	t.Fatalf("no data entity named %q in %s", name, doc.Document.ID)
	return ir.DataEntity{}
}

func sourceByName(t *testing.T, doc *ir.ParsedDocument, name string) ir.DataSource {
	t.Helper()
	for _, s := range doc.DataSources {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no data source named %q in %s", name, doc.Document.ID)
	return ir.DataSource{}
}

func hasEdge(doc *ir.ParsedDocument, fromID, toID string, kind ir.DependencyKind) bool {
	for _, d := range doc.Dependencies {
		if d.FromID == fromID && d.ToID == toID && d.Kind == kind {
			return true
		}
	}
	return false
}

func edgeBetween(t *testing.T, doc *ir.ParsedDocument, fromID, toID string, kind ir.DependencyKind) ir.Dependency {
	t.Helper()
	for _, d := range doc.Dependencies {
		if d.FromID == fromID && d.ToID == toID && d.Kind == kind {
			return d
		}
	}
	t.Fatalf("no %s edge %s -> %s in %s", kind, fromID, toID, doc.Document.ID)
	return ir.Dependency{}
}

// edgesFrom collects the dependencies of one kind leaving a node.
func edgesFrom(doc *ir.ParsedDocument, fromID string, kind ir.DependencyKind) []ir.Dependency {
	var out []ir.Dependency
	for _, d := range doc.Dependencies {
		if d.FromID == fromID && d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
