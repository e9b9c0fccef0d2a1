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
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/internal/output"
	"github.com/kraklabs/traceai/pkg/graph"
	"github.com/kraklabs/traceai/pkg/tools"
)

// runQuery executes the 'query' CLI command, finding graph nodes by
// kind, name substring or exact id.
//
// The positional argument is a case-insensitive name substring. An --id
// lookup wins over the other filters, mirroring the MCP graph_query
// tool, and node ids printed here feed 'traceai deps' and
// 'traceai paths'.
//
// Command-specific flags:
//   - --kind: Filter by node kind
//   - --id: Look up one node by exact id
//   - --limit: Maximum nodes to return
//
// Examples:
//
//	traceai query customer
//	traceai query --kind data_entity
//	traceai query --id "component:/etl/cust001.cbl#CUST001"
func runQuery(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	kind := fs.String("kind", "", `Node kind filter: "document", "component", "data_source", "data_entity" or "parameter"`)
	id := fs.String("id", "", "Exact node id lookup; other filters are ignored when set")
	limit := fs.Int("limit", 0, "Maximum nodes to return (0 = default 100)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: traceai query [options] [name-substring]

Description:
  Find graph nodes by kind and case-insensitive name substring, or look
  one up by exact id. Output order is deterministic (kind, name, id).
  Use this to resolve names into the component ids that 'traceai deps'
  and 'traceai paths' take.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Every node whose name contains "customer"
  traceai query customer

  # All data entities
  traceai query --kind data_entity

  # The components of one COBOL program, as JSON
  traceai query CUST001 --kind component --json
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	name := ""
	if fs.NArg() > 0 {
		name = fs.Arg(0)
	}
	if name == "" && *kind == "" && *id == "" {
		fs.Usage()
		errors.FatalError(errors.NewInvalidArgument("query",
			"provide a name substring, --kind or --id"), globals.JSON)
	}

	logger := newLogger(globals)

	ws, svc, err := openService(configPath, logger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = ws.Close() }()

	res, err := svc.GraphQuery(context.Background(), tools.GraphQueryRequest{
		Kind:          *kind,
		NameSubstring: name,
		ID:            *id,
		Limit:         *limit,
	})
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(res); err != nil {
			errors.FatalError(err, globals.JSON)
		}
		return
	}

	if len(res.Nodes) == 0 {
		fmt.Println("No matching nodes.")
		if ws.Graph.Snapshot().Stats().Nodes == 0 {
			fmt.Println(emptyGraphHint)
		}
		return
	}
	renderNodeTable(os.Stdout, res.Nodes, res.Total)
}

// renderNodeTable prints nodes as an aligned table. total counts every
// match, so total > len(nodes) means the limit cut the list short.
func renderNodeTable(w io.Writer, nodes []graph.Node, total int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tID")
	fmt.Fprintln(tw, "---\t---\t---")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", n.Kind, formatCell(n.Name), n.ID)
	}
	_ = tw.Flush()

	if total > len(nodes) {
		fmt.Fprintf(w, "\n(%d of %d nodes; raise --limit to see more)\n", len(nodes), total)
		return
	}
	fmt.Fprintf(w, "\n(%d nodes)\n", len(nodes))
}

// formatCell truncates long values so tables stay readable.
func formatCell(s string) string {
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}
