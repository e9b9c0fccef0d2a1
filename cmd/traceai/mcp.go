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
	stderrors "errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/tools"
)

// runMCPServer starts TraceAI as an MCP server speaking JSON-RPC over
// stdio. The graph and vector store are opened from the configured
// persist directory; run 'traceai ingest' beforehand so the tools have
// something to answer from.
//
// stdout belongs to the protocol, so all logging goes to stderr.
func runMCPServer(configPath string, globals GlobalFlags) {
	logger := newLogger(globals)

	ws, svc, err := openService(configPath, logger)
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

	// A cancelled context is the normal shutdown path, not a failure.
	if err := tools.RunMCP(ctx, svc, version); err != nil && !stderrors.Is(err, context.Canceled) {
		errors.FatalError(err, globals.JSON)
	}
}
