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
	"strings"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/internal/output"
	"github.com/kraklabs/traceai/internal/ui"
	"github.com/kraklabs/traceai/pkg/tools"
)

// runSearch executes the 'search' CLI command: embedding similarity over
// node text surfaces, for when exact names are unknown.
//
// All positional arguments are joined into one query string, so quoting
// multi-word queries is optional.
//
// Command-specific flags:
//   - -k, --results: Number of matches to return
//   - --kind: Restrict matches to one node kind
//
// Examples:
//
//	traceai search customer address validation
//	traceai search "monthly revenue" --kind component -k 5
func runSearch(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	k := fs.IntP("results", "k", 0, "Number of matches to return (0 = default 10)")
	kind := fs.String("kind", "", "Restrict matches to one node kind")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: traceai search [options] <text>...

Description:
  Find graph nodes by meaning. The query is embedded with the
  configured provider and compared against every node's text surface;
  matches come back by decreasing similarity. Every returned id
  resolves via 'traceai query --id'.

  With the default mock embedding provider, scores reflect token
  overlap rather than semantics. Configure ollama or openai in
  traceai.yaml for real embeddings.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Which components deal with customer addresses?
  traceai search customer address --kind component

  # Top three matches as JSON
  traceai search "revenue aggregation" -k 3 --json
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() == 0 {
		fs.Usage()
		errors.FatalError(errors.NewInvalidArgument("text", "search requires query text"), globals.JSON)
	}
	text := strings.Join(fs.Args(), " ")

	var filter map[string]string
	if *kind != "" {
		filter = map[string]string{"kind": *kind}
	}

	logger := newLogger(globals)

	ws, svc, err := openService(configPath, logger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = ws.Close() }()

	res, err := svc.SemanticSearch(context.Background(), tools.SemanticSearchRequest{
		Text:   text,
		K:      *k,
		Filter: filter,
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

	if len(res.Matches) == 0 {
		fmt.Println("No matches.")
		if ws.Graph.Snapshot().Stats().Nodes == 0 {
			fmt.Println(emptyGraphHint)
		}
		return
	}
	ui.Header("Search: " + res.Query)
	renderMatchTable(os.Stdout, res.Matches)
}

// renderMatchTable prints similarity hits as an aligned table, best
// match first.
func renderMatchTable(w io.Writer, matches []tools.SearchMatch) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tKIND\tNAME\tID")
	fmt.Fprintln(tw, "---\t---\t---\t---")
	for _, m := range matches {
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\n", m.Score, m.Kind, formatCell(m.Name), m.ID)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n(%d matches)\n", len(matches))
}
