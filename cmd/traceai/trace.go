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

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/internal/output"
	"github.com/kraklabs/traceai/internal/ui"
	"github.com/kraklabs/traceai/pkg/graph"
	"github.com/kraklabs/traceai/pkg/tools"
)

// runTrace executes the 'trace' CLI command, walking data-flow edges
// from every node matching the entity name.
//
// A traversal that runs out of budget still prints what it found; the
// output is marked partial and the exit code stays 0, matching how the
// MCP tool reports truncation instead of failing.
//
// Command-specific flags:
//   - -d, --direction: upstream, downstream or both
//   - -m, --max-depth: Maximum edge hops from the entity
//
// Examples:
//
//	traceai trace CUSTMAST
//	traceai trace Customer -d upstream
//	traceai trace CUSTOMER-FILE --max-depth 3 --json
func runTrace(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("trace", flag.ExitOnError)
	direction := fs.StringP("direction", "d", "both", `Traversal direction: "upstream", "downstream" or "both"`)
	maxDepth := fs.IntP("max-depth", "m", 0, "Maximum edge hops from the entity (0 = default 8)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: traceai trace [options] <entity>

Description:
  Trace where an entity's data comes from (upstream) and where it flows
  to (downstream), across document boundaries and artifact formats.
  The entity is a table, file or dataset name, matched
  case-insensitively; dotted names fall back to the last segment.

  Unknown entities fail with near-miss suggestions. Depth counts edge
  hops from the entity itself.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Full lineage of a COBOL master file
  traceai trace CUSTMAST

  # Only where the data comes from, two hops
  traceai trace CUSTMAST -d upstream -m 2

  # Feed a script
  traceai trace Customer --json | jq '.downstream[].id'
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() == 0 {
		fs.Usage()
		errors.FatalError(errors.NewInvalidArgument("entity", "trace requires an entity name"), globals.JSON)
	}
	entity := fs.Arg(0)

	logger := newLogger(globals)

	ws, svc, err := openService(configPath, logger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = ws.Close() }()

	res, err := svc.TraceLineage(context.Background(), tools.TraceLineageRequest{
		Entity:    entity,
		Direction: *direction,
		MaxDepth:  *maxDepth,
	})
	if err != nil && !(errors.IsKind(err, errors.KindLimitExceeded) && res != nil) {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(res); err != nil {
			errors.FatalError(err, globals.JSON)
		}
		return
	}

	ui.Header("Lineage for " + res.Entity)
	if len(res.Upstream) == 0 && len(res.Downstream) == 0 {
		fmt.Println("No data-flow edges found for this entity.")
		return
	}
	if len(res.Upstream) > 0 {
		ui.SubHeader("Upstream:")
		renderLineageNodes(os.Stdout, res.Upstream)
	}
	if len(res.Downstream) > 0 {
		ui.SubHeader("Downstream:")
		renderLineageNodes(os.Stdout, res.Downstream)
	}
	if res.Truncated {
		fmt.Println()
		ui.Warning("traversal budget exhausted; results are partial")
	}
}

// renderLineageNodes prints traversal layers indented by hop distance.
// Nodes arrive in BFS order, so a depth greater than the previous line's
// reads as "reached through the node above".
func renderLineageNodes(w io.Writer, nodes []graph.LineageNode) {
	for _, n := range nodes {
		fmt.Fprintf(w, "  %s%s %s %s\n",
			strings.Repeat("  ", n.Depth),
			ui.DimText(fmt.Sprintf("[%d]", n.Depth)),
			formatCell(n.Name),
			ui.DimText("("+string(n.Kind)+")"))
	}
}
