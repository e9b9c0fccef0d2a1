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
	"github.com/kraklabs/traceai/pkg/tools"
)

// runDeps executes the 'deps' CLI command, walking execution-order and
// call edges around a component.
//
// Unlike trace and impact, deps takes an exact component id; resolve
// names with 'traceai query --kind component' first. Truncated walks
// print partial results and exit 0, same as trace.
//
// Command-specific flags:
//   - -d, --direction: upstream, downstream or both
//   - -m, --max-depth: Maximum edge hops from the component
//
// Examples:
//
//	traceai deps "component:/etl/nightly.jcl#STEP1"
//	traceai deps "component:/etl/warehouse.dtsx#MergeToWarehouse" -d upstream
func runDeps(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("deps", flag.ExitOnError)
	direction := fs.StringP("direction", "d", "both", `Traversal direction: "upstream", "downstream" or "both"`)
	maxDepth := fs.IntP("max-depth", "m", 0, "Maximum edge hops from the component (0 = default 8)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: traceai deps [options] <component-id>

Description:
  Walk execution-order (PRECEDES) and call (CALLS) edges from a
  component: what must run before it, and what runs after or because of
  it. Documents reached through resolved call references appear as
  leaves.

  The argument is an exact component id. Find one with:
    traceai query <name> --kind component

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # What does the nightly job's first step depend on?
  traceai deps "component:/etl/jobs/nightly.jcl#STEP1" -d upstream

  # Everything scheduled after a merge task
  traceai deps "component:/etl/warehouse.dtsx#MergeToWarehouse" -d downstream
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() == 0 {
		fs.Usage()
		errors.FatalError(errors.NewInvalidArgument("component_id", "deps requires a component id"), globals.JSON)
	}
	componentID := fs.Arg(0)

	logger := newLogger(globals)

	ws, svc, err := openService(configPath, logger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = ws.Close() }()

	res, err := svc.FindDependencies(context.Background(), tools.FindDependenciesRequest{
		ComponentID: componentID,
		Direction:   *direction,
		MaxDepth:    *maxDepth,
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

	ui.Header("Dependencies of " + res.ComponentID)
	if len(res.Upstream) == 0 && len(res.Downstream) == 0 {
		fmt.Println("No execution-order or call edges found for this component.")
		return
	}
	if len(res.Upstream) > 0 {
		ui.SubHeader("Runs before it (upstream):")
		renderLineageNodes(os.Stdout, res.Upstream)
	}
	if len(res.Downstream) > 0 {
		ui.SubHeader("Runs after or because of it (downstream):")
		renderLineageNodes(os.Stdout, res.Downstream)
	}
	if res.Truncated {
		fmt.Println()
		ui.Warning("traversal budget exhausted; results are partial")
	}
}
