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

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/kraklabs/traceai/internal/ui"
	"github.com/kraklabs/traceai/pkg/graph"
	"github.com/kraklabs/traceai/pkg/ingestion"
	"github.com/kraklabs/traceai/pkg/tools"
)

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"short value unchanged", "CUSTMAST", "CUSTMAST"},
		{"empty value unchanged", "", ""},
		{
			"sixty chars unchanged",
			strings.Repeat("x", 60),
			strings.Repeat("x", 60),
		},
		{
			"long value truncated with ellipsis",
			strings.Repeat("x", 61),
			strings.Repeat("x", 57) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatCell(tt.input); got != tt.want {
				t.Errorf("formatCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRenderNodeTable(t *testing.T) {
	nodes := []graph.Node{
		{ID: "entity:dataset:CUSTMAST", Kind: graph.NodeDataEntity, Name: "CUSTMAST"},
		{ID: "component:/etl/cust001.cbl#CUST001", Kind: graph.NodeComponent, Name: "CUST001"},
	}

	var buf bytes.Buffer
	renderNodeTable(&buf, nodes, 2)
	out := buf.String()

	if !strings.Contains(out, "KIND") || !strings.Contains(out, "NAME") || !strings.Contains(out, "ID") {
		t.Errorf("missing headers in output:\n%s", out)
	}
	if !strings.Contains(out, "CUSTMAST") {
		t.Errorf("missing node name in output:\n%s", out)
	}
	if !strings.Contains(out, "(2 nodes)") {
		t.Errorf("missing row count footer in output:\n%s", out)
	}
}

func TestRenderNodeTable_Truncation(t *testing.T) {
	nodes := []graph.Node{
		{ID: "entity:dataset:A", Kind: graph.NodeDataEntity, Name: "A"},
	}

	var buf bytes.Buffer
	renderNodeTable(&buf, nodes, 42)
	out := buf.String()

	if !strings.Contains(out, "(1 of 42 nodes") {
		t.Errorf("expected limit notice, got:\n%s", out)
	}
	if !strings.Contains(out, "--limit") {
		t.Errorf("expected hint to raise --limit, got:\n%s", out)
	}
}

func TestRenderMatchTable(t *testing.T) {
	matches := []tools.SearchMatch{
		{ID: "component:/etl/a.dtsx#Extract", Score: 0.9231, Kind: graph.NodeComponent, Name: "ExtractCustomers"},
		{ID: "entity:table:dbo.customer", Score: 0.4, Kind: graph.NodeDataEntity, Name: "dbo.Customer"},
	}

	var buf bytes.Buffer
	renderMatchTable(&buf, matches)
	out := buf.String()

	if !strings.Contains(out, "SCORE") {
		t.Errorf("missing SCORE header:\n%s", out)
	}
	if !strings.Contains(out, "0.923") {
		t.Errorf("score should print with three decimals:\n%s", out)
	}
	if !strings.Contains(out, "(2 matches)") {
		t.Errorf("missing match count footer:\n%s", out)
	}
}

func TestRenderDocumentTable(t *testing.T) {
	t.Run("empty catalog", func(t *testing.T) {
		var buf bytes.Buffer
		renderDocumentTable(&buf, nil)
		if !strings.Contains(buf.String(), "No documents ingested.") {
			t.Errorf("expected empty-catalog message, got:\n%s", buf.String())
		}
	})

	t.Run("rows and footer", func(t *testing.T) {
		docs := []graph.DocumentSummary{
			{
				ID:           "doc:/etl/warehouse.dtsx",
				Name:         "warehouse",
				Kind:         "ssis",
				SourcePath:   "/etl/warehouse.dtsx",
				Components:   3,
				DataEntities: 1,
				ParsedAt:     time.Now(),
			},
		}

		var buf bytes.Buffer
		renderDocumentTable(&buf, docs)
		out := buf.String()

		if !strings.Contains(out, "warehouse") || !strings.Contains(out, "ssis") {
			t.Errorf("missing document row:\n%s", out)
		}
		if !strings.Contains(out, "(1 documents)") {
			t.Errorf("missing document count footer:\n%s", out)
		}
	})
}

func TestRenderLineageNodes(t *testing.T) {
	ui.InitColors(true)

	nodes := []graph.LineageNode{
		{Node: graph.Node{ID: "entity:dataset:CUSTMAST", Kind: graph.NodeDataEntity, Name: "CUSTMAST"}, Depth: 0},
		{Node: graph.Node{ID: "component:/etl/cust001.cbl#CUST001", Kind: graph.NodeComponent, Name: "CUST001"}, Depth: 1},
	}

	var buf bytes.Buffer
	renderLineageNodes(&buf, nodes)
	out := buf.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "[0] CUSTMAST (data_entity)") {
		t.Errorf("unexpected depth-0 line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "[1] CUST001 (component)") {
		t.Errorf("unexpected depth-1 line: %q", lines[1])
	}
	if !strings.HasPrefix(lines[1], strings.Repeat(" ", 4)) {
		t.Errorf("depth 1 should be indented deeper than depth 0: %q", lines[1])
	}
}

func TestRenderRunReport(t *testing.T) {
	report := &ingestion.RunReport{
		RunID:           "run-1",
		Root:            "/etl",
		FilesDiscovered: 5,
		FilesParsed:     4,
		FilesFailed:     1,
		FilesSkipped:    1,
		SkipReasons:     map[string]int{"too_large": 1},
		DocumentsAdded:  4,
		NodesAdded:      12,
		EdgesAdded:      9,
		VectorUpserts:   12,
		Failures: []ingestion.FileError{
			{Path: "/etl/broken.dtsx", Message: "XML parsing failed"},
		},
		Durations: ingestion.RunDurations{
			Discovery: 10 * time.Millisecond,
			Parse:     200 * time.Millisecond,
			Total:     250 * time.Millisecond,
		},
	}

	var buf bytes.Buffer
	renderRunReport(&buf, report, "/etl/.traceai/graph.json")
	out := buf.String()

	for _, want := range []string{
		"=== Ingest Complete ===",
		"Files Discovered: 5",
		"Files Parsed: 4",
		"Files Skipped: 1",
		"Documents: 4 added, 0 updated, 0 unchanged, 0 removed",
		"too_large: 1",
		"/etl/broken.dtsx: XML parsing failed",
		"Graph stored in: /etl/.traceai/graph.json",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderRunReport_EphemeralOmitsGraphPath(t *testing.T) {
	report := &ingestion.RunReport{Root: "/etl", FilesDiscovered: 1, FilesParsed: 1, DocumentsAdded: 1}

	var buf bytes.Buffer
	renderRunReport(&buf, report, "")
	if strings.Contains(buf.String(), "Graph stored in") {
		t.Errorf("ephemeral run should not print a graph path:\n%s", buf.String())
	}
}
