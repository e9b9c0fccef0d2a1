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
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/traceai/internal/bootstrap"
	"github.com/kraklabs/traceai/internal/config"
	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/internal/output"
	"github.com/kraklabs/traceai/internal/ui"
	"github.com/kraklabs/traceai/pkg/ingestion"
)

// runWatch executes the 'watch' CLI command: an initial ingest pass,
// then a debounced re-ingest whenever files under the root change.
// Runs until interrupted.
//
// Command-specific flags:
//   - -p, --pattern: Restrict ingestion to matching files (repeatable)
//   - --debounce: Quiet window after a filesystem event before re-ingesting
//
// In --json mode every completed run emits one compact report line on
// stdout, so the stream can be piped into line-oriented tooling.
func runWatch(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	patterns := fs.StringArrayP("pattern", "p", nil, "Restrict ingestion to matching files (doublestar glob, repeatable)")
	debounce := fs.Duration("debounce", 0, "Quiet window after a filesystem event before re-ingesting (0 = default 2s)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: traceai watch [options] <dir>

Description:
  Ingest <dir>, then keep watching it. File saves, new files and
  deletions trigger a debounced re-ingest, so the graph and the vector
  index stay current while artifacts are being edited. Documents whose
  files vanish are removed from the graph.

  Each completed run persists the graph when it changed anything.
  Stop with Ctrl-C.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Watch an ETL tree during a migration
  traceai watch ./etl

  # Only react to COBOL changes, re-ingest quickly
  traceai watch ./etl -p "**/*.cbl" --debounce 500ms

  # One JSON report line per run
  traceai watch ./etl --json
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() == 0 {
		fs.Usage()
		errors.FatalError(errors.NewInvalidArgument("dir", "watch requires a directory argument"), globals.JSON)
	}
	root := fs.Arg(0)

	logger := newLogger(globals)

	cfg, err := config.Load(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if len(*patterns) > 0 {
		cfg.Patterns = *patterns
	}

	ws, err := bootstrap.Open(bootstrap.Options{Config: cfg, Dir: root}, logger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = ws.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	coord, err := ingestion.New(ws.Registry, ws.Graph, ws.Index, ingestion.Options{
		Root:                 root,
		Patterns:             cfg.Patterns,
		MaxConcurrentParsers: cfg.MaxConcurrentParsers,
		MaxFileSize:          cfg.MaxFileSize,
		NodeCap:              cfg.NodeCap,
		Debounce:             *debounce,
	}, logger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if !globals.Quiet {
		ui.Infof("Watching %s for changes...", root)
	}

	err = coord.Watch(ctx, func(report *ingestion.RunReport) {
		if report.Changed() {
			if saveErr := ws.Save(); saveErr != nil {
				logger.Error("watch.save", "err", saveErr)
			}
		}
		if globals.JSON {
			_ = output.JSONCompact(report)
			return
		}
		printWatchRun(report)
	})
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
}

// printWatchRun prints a one-line summary per completed run. Runs that
// changed nothing and failed nothing stay silent so an idle watch does
// not scroll the terminal.
func printWatchRun(report *ingestion.RunReport) {
	if !report.Changed() && report.FilesFailed == 0 {
		return
	}

	stamp := time.Now().Format("15:04:05")
	fmt.Printf("%s  %d parsed, %d added, %d updated, %d removed (%s)\n",
		stamp,
		report.FilesParsed,
		report.DocumentsAdded,
		report.DocumentsUpdated,
		report.DocumentsRemoved,
		report.Durations.Total.Round(time.Millisecond))

	for _, f := range report.Failures {
		ui.Warningf("%s: %s", f.Path, f.Message)
	}
}
