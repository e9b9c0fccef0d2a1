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
	"github.com/kraklabs/traceai/pkg/graph"
	"github.com/kraklabs/traceai/pkg/tools"
)

// runImpact executes the 'impact' CLI command: the direct blast radius
// of changing an entity, split into readers and writers.
//
// Examples:
//
//	traceai impact CUSTMAST
//	traceai impact Customer --json
func runImpact(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("impact", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: traceai impact <entity>

Description:
  List every component that reads or writes an entity. This is the
  one-hop blast radius: the set of things to check before changing the
  entity's schema or semantics. For transitive effects use
  'traceai trace' instead.

Examples:
  # Who touches the customer master file?
  traceai impact CUSTMAST

  # Scriptable form
  traceai impact Customer --json | jq '.readers[].name'
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() == 0 {
		fs.Usage()
		errors.FatalError(errors.NewInvalidArgument("entity", "impact requires an entity name"), globals.JSON)
	}
	entity := fs.Arg(0)

	logger := newLogger(globals)

	ws, svc, err := openService(configPath, logger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = ws.Close() }()

	res, err := svc.AnalyzeImpact(context.Background(), tools.AnalyzeImpactRequest{Entity: entity})
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(res); err != nil {
			errors.FatalError(err, globals.JSON)
		}
		return
	}

	ui.Header("Impact of " + res.Entity)
	fmt.Printf("%s %s\n", ui.Label("Components affected:"), ui.CountText(res.Total))

	if res.Total == 0 {
		fmt.Println("Nothing reads or writes this entity.")
		return
	}
	if len(res.Writers) > 0 {
		ui.SubHeader("Writers:")
		printImpactNodes(res.Writers)
	}
	if len(res.Readers) > 0 {
		ui.SubHeader("Readers:")
		printImpactNodes(res.Readers)
	}
}

func printImpactNodes(nodes []graph.Node) {
	for _, n := range nodes {
		fmt.Printf("  %s %s\n", formatCell(n.Name), ui.DimText(n.ID))
	}
}
