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
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/internal/ui"
)

// runExport executes the 'export' CLI command, dumping the whole graph
// for external tooling. JSON carries full node payloads; GraphML carries
// kinds and names for visualization in yEd, Gephi or Cytoscape.
//
// Output is deterministic, so exports of the same graph diff cleanly.
//
// Command-specific flags:
//   - --format: "json" or "graphml"
//   - -o, --out: Write to a file instead of stdout
//
// Examples:
//
//	traceai export > graph.json
//	traceai export --format graphml -o graph.graphml
func runExport(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "json", `Output format: "json" or "graphml"`)
	out := fs.StringP("out", "o", "", "Write to a file instead of stdout")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: traceai export [options]

Description:
  Dump the lineage graph. The JSON form holds every node with its full
  payload plus every edge; the GraphML form is for graph visualization
  tools. Node and edge ordering is deterministic across runs.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Full graph as JSON on stdout
  traceai export

  # GraphML for yEd or Gephi
  traceai export --format graphml -o graph.graphml
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *format != "json" && *format != "graphml" {
		errors.FatalError(errors.NewInvalidArgument("format", `must be "json" or "graphml"`), globals.JSON)
	}

	logger := newLogger(globals)

	ws, _, err := openService(configPath, logger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = ws.Close() }()

	var w io.Writer = os.Stdout
	var file *os.File
	if *out != "" {
		file, err = os.Create(*out)
		if err != nil {
			errors.FatalError(errors.NewInvalidArgument("out", err.Error()), globals.JSON)
		}
		w = file
	}

	snap := ws.Graph.Snapshot()
	switch *format {
	case "json":
		err = snap.WriteJSON(w)
	case "graphml":
		err = snap.WriteGraphML(w)
	}
	if file != nil {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		errors.FatalError(errors.NewInternal("exporting graph", err), globals.JSON)
	}

	if *out != "" && !globals.Quiet {
		st := snap.Stats()
		ui.Successf("Exported %d nodes and %d edges to %s", st.Nodes, st.Edges, *out)
	}
}
