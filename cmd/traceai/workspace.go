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
	"log/slog"

	"github.com/kraklabs/traceai/internal/bootstrap"
	"github.com/kraklabs/traceai/internal/config"
	"github.com/kraklabs/traceai/pkg/tools"
)

// openService loads the configuration, opens the persisted workspace and
// wraps it in the tool service the query commands share. Callers own the
// returned workspace and must Close it.
func openService(configPath string, logger *slog.Logger) (*bootstrap.Workspace, *tools.Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	ws, err := bootstrap.Open(bootstrap.Options{Config: cfg}, logger)
	if err != nil {
		return nil, nil, err
	}

	svc, err := tools.NewService(ws.Graph, ws.Index, logger)
	if err != nil {
		_ = ws.Close()
		return nil, nil, err
	}
	return ws, svc, nil
}

// emptyGraphHint nudges first-time users toward ingest when a query runs
// against a workspace with nothing in it.
const emptyGraphHint = "The graph is empty. Run 'traceai ingest <dir>' first."
