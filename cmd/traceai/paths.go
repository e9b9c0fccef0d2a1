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
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/internal/output"
	"github.com/kraklabs/traceai/internal/ui"
)

// runPaths executes the 'paths' CLI command, enumerating simple directed
// paths between two graph nodes across edges of any kind.
//
// Paths answer "how exactly does A influence B" after trace or impact
// showed that it does. Both arguments are exact node ids; shortest paths
// print first.
//
// Command-specific flags:
//   - --max-len: Maximum path length in edges
//
// Examples:
//
//	traceai paths "component:/etl/a.jcl#STEP1" "entity:dataset:CUSTMAST"
func runPaths(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("paths", flag.ExitOnError)
	maxLen := fs.Int("max-len", 6, "Maximum path length in edges")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: traceai paths [options] <from-id> <to-id>

Description:
  Enumerate simple directed paths from one node to another, following
  edges of any kind up to --max-len hops. Shortest paths come first.
  Use this to see the concrete route behind a lineage or impact answer.

  Both arguments are exact node ids; resolve names with
  'traceai query' first.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # How does the nightly job end up writing the master file?
  traceai paths "component:/etl/jobs/nightly.jcl#STEP1" "entity:dataset:CUSTMAST"

  # Allow longer routes
  traceai paths <from> <to> --max-len 10
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 2 {
		fs.Usage()
		errors.FatalError(errors.NewInvalidArgument("ids", "paths requires a from-id and a to-id"), globals.JSON)
	}
	fromID, toID := fs.Arg(0), fs.Arg(1)

	logger := newLogger(globals)

	ws, _, err := openService(configPath, logger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = ws.Close() }()

	snap := ws.Graph.Snapshot()
	paths, err := snap.PathsBetween(context.Background(), fromID, toID, *maxLen)
	truncated := err != nil && errors.IsKind(err, errors.KindLimitExceeded)
	if err != nil && !truncated {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		doc := map[string]any{
			"from":      fromID,
			"to":        toID,
			"paths":     paths,
			"count":     len(paths),
			"truncated": truncated,
		}
		if err := output.JSON(doc); err != nil {
			errors.FatalError(err, globals.JSON)
		}
		return
	}

	ui.Header(fmt.Sprintf("Paths from %s to %s", fromID, toID))
	if len(paths) == 0 {
		fmt.Printf("No paths within %d hops.\n", *maxLen)
		return
	}
	for _, p := range paths {
		names := make([]string, 0, len(p.Nodes))
		for _, n := range p.Nodes {
			names = append(names, n.Name)
		}
		fmt.Println("  " + ui.JoinPath(names))
	}
	fmt.Printf("\n(%d paths)\n", len(paths))
	if truncated {
		ui.Warning("search budget exhausted; more paths may exist")
	}
}
