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
	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/graph"
)

// GraphQueryRequest filters graph nodes. An exact id lookup wins over the
// kind/name filters when both are given.
type GraphQueryRequest struct {
	Kind          string `json:"kind,omitempty" jsonschema:"Node kind filter: document, component, data_source, data_entity or parameter"`
	NameSubstring string `json:"name_substring,omitempty" jsonschema:"Case-insensitive substring matched against node names"`
	ID            string `json:"id,omitempty" jsonschema:"Exact node id lookup; when set the other filters are ignored"`
	Limit         int    `json:"limit,omitempty" jsonschema:"Maximum nodes returned, default 100"`
}

// GraphQueryResult lists matching nodes. Total counts every match, so
// Total > len(Nodes) means the limit cut the list short.
type GraphQueryResult struct {
	Nodes []graph.Node `json:"nodes"`
	Total int          `json:"total"`
}

// GraphQuery finds nodes by exact id or by kind and name substring, in
// deterministic (kind, name, id) order.
func (s *Service) GraphQuery(ctx context.Context, req GraphQueryRequest) (*GraphQueryResult, error) {
	if err := errors.FromContext(ctx); err != nil {
		return nil, err
	}
	if err := contract.CheckLimit(req.Limit); err != nil {
		return nil, err
	}
	snap := s.graph.Snapshot()

	if req.ID != "" {
		if err := contract.RequireName("id", req.ID); err != nil {
			return nil, err
		}
		n, ok := snap.NodeByID(req.ID)
		if !ok {
			return nil, errors.NewUnknownNode(req.ID)
		}
		return &GraphQueryResult{Nodes: []graph.Node{n}, Total: 1}, nil
	}

	limit := req.Limit
	if limit == 0 {
		limit = DefaultQueryLimit
	}
	nodes, err := snap.FindNodes(graph.NodeKind(req.Kind), req.NameSubstring, 0)
	if err != nil {
		return nil, err
	}
	res := &GraphQueryResult{Nodes: nodes, Total: len(nodes)}
	if len(res.Nodes) > limit {
		res.Nodes = res.Nodes[:limit]
	}
	s.logger.Debug("tools.graph_query",
		"kind", req.Kind, "name", req.NameSubstring, "total", res.Total, "returned", len(res.Nodes))
	return res, nil
}
