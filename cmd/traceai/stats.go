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
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/internal/output"
	"github.com/kraklabs/traceai/internal/ui"
	"github.com/kraklabs/traceai/pkg/graph"
	"github.com/kraklabs/traceai/pkg/tools"
)

// runStats executes the 'stats' CLI command, showing graph size counters
// or, with --documents, the catalog of ingested documents.
//
// Examples:
//
//	traceai stats
//	traceai stats --documents
//	traceai stats --json
func runStats(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	documents := fs.Bool("documents", false, "List ingested documents instead of counters")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: traceai stats [options]

Description:
  Show node and edge counts by kind and by source document type, the
  graph version and the vector index size. With --documents, list every
  ingested document with its extraction counts instead.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	logger := newLogger(globals)

	ws, svc, err := openService(configPath, logger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = ws.Close() }()

	if *documents {
		docs := ws.Graph.Snapshot().DocumentCatalog("", "", 0)
		if globals.JSON {
			if err := output.JSON(map[string]any{"documents": docs, "count": len(docs)}); err != nil {
				errors.FatalError(err, globals.JSON)
			}
			return
		}
		renderDocumentTable(os.Stdout, docs)
		return
	}

	res, err := svc.GraphStats(context.Background(), tools.GraphStatsRequest{})
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(res); err != nil {
			errors.FatalError(err, globals.JSON)
		}
		return
	}
	printStats(res)
}

// printStats renders the counters in sorted kind order so repeated runs
// diff cleanly.
func printStats(res *tools.GraphStatsResult) {
	ui.Header("Graph Statistics")
	fmt.Printf("%s %s\n", ui.Label("Nodes:"), ui.CountText(res.Nodes))
	fmt.Printf("%s %s\n", ui.Label("Edges:"), ui.CountText(res.Edges))
	fmt.Printf("%s %d\n", ui.Label("Graph Version:"), res.GraphVersion)
	fmt.Printf("%s %s\n", ui.Label("Index Entries:"), ui.CountText(res.IndexEntries))

	if len(res.NodesByKind) > 0 {
		ui.SubHeader("Nodes by kind:")
		for _, kind := range sortedKeys(res.NodesByKind) {
			fmt.Printf("  %-12s %d\n", kind, res.NodesByKind[kind])
		}
	}
	if len(res.EdgesByKind) > 0 {
		ui.SubHeader("Edges by kind:")
		for _, kind := range sortedKeys(res.EdgesByKind) {
			fmt.Printf("  %-12s %d\n", kind, res.EdgesByKind[kind])
		}
	}
	if len(res.ByDocumentType) > 0 {
		ui.SubHeader("Documents by type:")
		for _, kind := range sortedKeys(res.ByDocumentType) {
			fmt.Printf("  %-12s %d\n", kind, res.ByDocumentType[kind])
		}
	}

	if res.Nodes == 0 {
		fmt.Println()
		fmt.Println(emptyGraphHint)
	}
}

// sortedKeys returns the map's keys in lexical order.
func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// renderDocumentTable prints the document catalog as an aligned table.
func renderDocumentTable(w io.Writer, docs []graph.DocumentSummary) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents ingested.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tCOMPONENTS\tSOURCES\tENTITIES\tPARAMS\tPATH")
	fmt.Fprintln(tw, "---\t---\t---\t---\t---\t---\t---")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			formatCell(d.Name),
			d.Kind,
			d.Components,
			d.DataSources,
			d.DataEntities,
			d.Parameters,
			formatCell(d.SourcePath))
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n(%d documents)\n", len(docs))
}
