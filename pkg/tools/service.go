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

package tools

import (
	"log/slog"
	"strings"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/graph"
	"github.com/kraklabs/traceai/pkg/vector"
)

// Default values substituted when a request leaves a field zero.
const (
	// DefaultQueryLimit caps GraphQuery results when no limit is given.
	DefaultQueryLimit = 100

	// DefaultSearchK is the match count for SemanticSearch when k is 0.
	DefaultSearchK = 10

	// DefaultTraversalDepth bounds lineage and dependency walks when no
	// depth is given.
	DefaultTraversalDepth = 8
)

// Service answers planner queries against one graph and its vector index.
// All operations are read-only and safe to call concurrently with each
// other and with an ongoing ingestion run.
type Service struct {
	graph  *graph.Graph
	index  vector.Index
	logger *slog.Logger
}

// NewService wires the tool surface to a graph and a vector index.
func NewService(g *graph.Graph, index vector.Index, logger *slog.Logger) (*Service, error) {
	if g == nil {
		return nil, errors.NewInvalidArgument("graph", "must not be nil")
	}
	if index == nil {
		return nil, errors.NewInvalidArgument("index", "must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{graph: g, index: index, logger: logger}, nil
}

// direction normalizes a request direction, defaulting empty to both.
// Unknown values pass through for the graph layer to reject, so the
// InvalidArgument detail lives in one place.
func direction(d string) graph.Direction {
	if d == "" {
		return graph.DirectionBoth
	}
	return graph.Direction(strings.ToLower(d))
}

// depthOrDefault substitutes the default traversal depth for the zero value.
func depthOrDefault(d int) int {
	if d == 0 {
		return DefaultTraversalDepth
	}
	return d
}
