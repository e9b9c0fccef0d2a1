// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"

	"github.com/kraklabs/traceai/internal/contract"
	"github.com/kraklabs/traceai/pkg/graph"
)

// TraceLineageRequest asks where an entity's data comes from or goes to.
type TraceLineageRequest struct {
	Entity    string `json:"entity" jsonschema:"Entity or data source name, matched case-insensitively; dotted qualifiers fall back to the last segment"`
	Direction string `json:"direction,omitempty" jsonschema:"upstream, downstream or both (default both)"`
	MaxDepth  int    `json:"max_depth,omitempty" jsonschema:"Maximum edge hops from the start layer, default 8"`
}

// TraceLineage walks data-flow edges from every node matching the entity
// name. The result lists reached nodes with their hop distance; Truncated
// reports that the traversal cap cut the walk short, in which case the
// partial result is returned together with a LimitExceeded error.
func (s *Service) TraceLineage(ctx context.Context, req TraceLineageRequest) (*graph.LineageResult, error) {
	if err := contract.RequireName("entity", req.Entity); err != nil {
		return nil, err
	}
	if err := contract.CheckDepth(req.MaxDepth); err != nil {
		return nil, err
	}

	snap := s.graph.Snapshot()
	res, err := snap.TraceLineage(ctx, req.Entity, direction(req.Direction), depthOrDefault(req.MaxDepth))
	if res != nil {
		s.logger.Debug("tools.trace_lineage",
			"entity", req.Entity,
			"direction", res.Direction,
			"upstream", len(res.Upstream),
			"downstream", len(res.Downstream),
			"truncated", res.Truncated)
	}
	return res, err
}
