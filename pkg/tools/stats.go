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
	"context"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/graph"
)

// GraphStatsRequest has no parameters; it exists so the MCP tool has a
// typed input schema.
type GraphStatsRequest struct{}

// GraphStatsResult reports graph size plus the operational counters a
// planner uses to decide whether anything is ingested at all.
type GraphStatsResult struct {
	graph.Stats
	GraphVersion uint64 `json:"graph_version"`
	IndexEntries int    `json:"index_entries"`
}

// GraphStats returns node and edge counts by kind and document type.
// O(1): the builder maintains the counters.
func (s *Service) GraphStats(ctx context.Context, _ GraphStatsRequest) (*GraphStatsResult, error) {
	if err := errors.FromContext(ctx); err != nil {
		return nil, err
	}
	snap := s.graph.Snapshot()
	return &GraphStatsResult{
		Stats:        snap.Stats(),
		GraphVersion: snap.Version(),
		IndexEntries: s.index.Len(),
	}, nil
}
