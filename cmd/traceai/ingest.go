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
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/traceai/internal/bootstrap"
	"github.com/kraklabs/traceai/internal/config"
	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/internal/output"
	"github.com/kraklabs/traceai/internal/ui"
	"github.com/kraklabs/traceai/pkg/ingestion"
)

// runIngest executes the 'ingest' CLI command: one pass over a directory
// tree, parsing every supported ETL artifact into the graph and vector
// index, then persisting the result.
//
// Individual file failures never abort the run. They are collected into
// the report and the process exits with code 4 so scripts can tell a
// partial ingest from a clean one.
//
// Command-specific flags:
//   - -p, --pattern: Restrict ingestion to matching files (repeatable)
//   - -w, --workers: Parse worker count
//   - --metrics-addr: Serve Prometheus metrics while the run lasts
//   - --no-persist: Parse into memory only, skip the persist directory
//
// Examples:
//
//	traceai ingest ./etl
//	traceai ingest ./etl -p "**/*.dtsx" -p "jobs/**/*.jcl"
//	traceai ingest ./etl --workers 4 --json
func runIngest(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	patterns := fs.StringArrayP("pattern", "p", nil, "Restrict ingestion to matching files (doublestar glob, repeatable)")
	workers := fs.IntP("workers", "w", 0, "Parse worker count (0 = default)")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	noPersist := fs.Bool("no-persist", false, "Parse into memory only; skip the persist directory")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: traceai ingest [options] <dir>

Description:
  Walk <dir>, parse every supported ETL artifact (SSIS .dtsx, COBOL
  .cbl/.cob, JCL .jcl, JSON .json, Excel .xlsx, CSV .csv/.tsv) and fold
  the results into the lineage graph. Re-ingesting is incremental:
  unchanged files are skipped by content hash, changed files replace
  their previous document, and files that vanished are removed.

  The graph snapshot and vector store are written to the persist
  directory (default: .traceai/ next to <dir>).

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Ingest everything supported under ./etl
  traceai ingest ./etl

  # Only COBOL sources and JCL jobs
  traceai ingest ./etl -p "**/*.cbl" -p "**/*.jcl"

  # Machine-readable run report
  traceai ingest ./etl --json

Exit Codes:
  0  every discovered file ingested
  4  run completed but some files failed to parse
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() == 0 {
		fs.Usage()
		errors.FatalError(errors.NewInvalidArgument("dir", "ingest requires a directory argument"), globals.JSON)
	}
	root := fs.Arg(0)

	logger := newLogger(globals)

	cfg, err := config.Load(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	// Flags win over the configuration file.
	if *workers > 0 {
		cfg.MaxConcurrentParsers = *workers
	}
	if len(*patterns) > 0 {
		cfg.Patterns = *patterns
	}

	ws, err := bootstrap.Open(bootstrap.Options{
		Config:    cfg,
		Dir:       root,
		Ephemeral: *noPersist,
	}, logger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = ws.Close() }()

	// Start Prometheus metrics endpoint (optional)
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	// Setup signal handling for graceful shutdown
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
	}, logger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	stop := spin(NewSpinner(NewProgressConfig(globals), "Ingesting "+root))
	report, runErr := coord.Run(ctx)
	stop()

	if runErr != nil {
		// Documents committed before a cancel stay in the graph; persist
		// them so the interrupted run is not wasted work.
		if report != nil && (errors.IsKind(runErr, errors.KindCancelled) || errors.IsKind(runErr, errors.KindDeadlineExceeded)) {
			_ = ws.Save()
		}
		errors.FatalError(runErr, globals.JSON)
	}

	if err := ws.Save(); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(report); err != nil {
			errors.FatalError(err, globals.JSON)
		}
	} else {
		renderRunReport(os.Stdout, report, ws.GraphPath())
		if report.PartialFailure() {
			ui.Warningf("%d of %d files failed to parse", report.FilesFailed, report.FilesDiscovered)
		} else {
			ui.Successf("Ingested %d documents", report.DocumentsAdded+report.DocumentsUpdated+report.DocumentsUnchanged)
		}
	}

	if report.PartialFailure() {
		os.Exit(errors.ExitPartialIngest)
	}
}

// renderRunReport prints the human-readable ingest summary.
func renderRunReport(w io.Writer, report *ingestion.RunReport, graphPath string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Ingest Complete ===")
	fmt.Fprintf(w, "Root: %s\n", report.Root)
	fmt.Fprintf(w, "Files Discovered: %d\n", report.FilesDiscovered)
	fmt.Fprintf(w, "Files Parsed: %d\n", report.FilesParsed)
	if report.FilesSkipped > 0 {
		fmt.Fprintf(w, "Files Skipped: %d\n", report.FilesSkipped)
	}
	fmt.Fprintf(w, "Documents: %d added, %d updated, %d unchanged, %d removed\n",
		report.DocumentsAdded, report.DocumentsUpdated, report.DocumentsUnchanged, report.DocumentsRemoved)
	fmt.Fprintf(w, "Nodes: %d added, %d updated, %d removed\n",
		report.NodesAdded, report.NodesUpdated, report.NodesRemoved)
	fmt.Fprintf(w, "Edges: %d added, %d removed\n", report.EdgesAdded, report.EdgesRemoved)
	fmt.Fprintf(w, "Vector Upserts: %d\n", report.VectorUpserts)
	if len(report.Unresolved) > 0 {
		fmt.Fprintf(w, "Unresolved References: %d\n", len(report.Unresolved))
	}

	if len(report.SkipReasons) > 0 {
		fmt.Fprintln(w, "\nSkipped Files:")
		reasons := make([]string, 0, len(report.SkipReasons))
		for reason := range report.SkipReasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(w, "  %s: %d\n", reason, report.SkipReasons[reason])
		}
	}

	if len(report.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, warning := range report.Warnings {
			fmt.Fprintf(w, "  %s\n", warning)
		}
	}

	if report.FilesFailed > 0 {
		fmt.Fprintln(w, "\nFailed Files:")
		for _, f := range report.Failures {
			fmt.Fprintf(w, "  %s: %s\n", f.Path, f.Message)
		}
	}

	fmt.Fprintln(w, "\nTimings:")
	fmt.Fprintf(w, "  Discovery: %s\n", report.Durations.Discovery)
	fmt.Fprintf(w, "  Parse: %s\n", report.Durations.Parse)
	fmt.Fprintf(w, "  Commit: %s\n", report.Durations.Commit)
	fmt.Fprintf(w, "  Resolve: %s\n", report.Durations.Resolve)
	fmt.Fprintf(w, "  Total: %s\n", report.Durations.Total)

	if graphPath != "" {
		fmt.Fprintf(w, "\nGraph stored in: %s\n", graphPath)
	}
	fmt.Fprintln(w)
}
