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

	"github.com/kraklabs/traceai/internal/contract"
	"github.com/kraklabs/traceai/pkg/graph"
)

// FindDependenciesRequest asks what a component depends on and what
// depends on it, through execution order and call edges.
type FindDependenciesRequest struct {
	ComponentID string `json:"component_id" jsonschema:"Exact component id, as returned by graph_query"`
	Direction   string `json:"direction,omitempty" jsonschema:"upstream, downstream or both (default both)"`
	MaxDepth    int    `json:"max_depth,omitempty" jsonschema:"Maximum edge hops from the component, default 8"`
}

// FindDependencies walks PRECEDES and CALLS edges around a component.
// Upstream holds what must run first; downstream holds what runs after or
// because of it. Truncated results come back with a LimitExceeded error,
// payload intact.
func (s *Service) FindDependencies(ctx context.Context, req FindDependenciesRequest) (*graph.DependencyResult, error) {
	if err := contract.RequireName("component_id", req.ComponentID); err != nil {
		return nil, err
	}
	if err := contract.CheckDepth(req.MaxDepth); err != nil {
		return nil, err
	}

	snap := s.graph.Snapshot()
	res, err := snap.ComponentDependencies(ctx, req.ComponentID, direction(req.Direction), depthOrDefault(req.MaxDepth))
	if res != nil {
		s.logger.Debug("tools.find_dependencies",
			"component", req.ComponentID,
			"upstream", len(res.Upstream),
			"downstream", len(res.Downstream),
			"truncated", res.Truncated)
	}
	return res, err
}
