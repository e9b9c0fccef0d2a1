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

// SemanticSearchRequest finds nodes by meaning rather than by identifier.
type SemanticSearchRequest struct {
	Text   string            `json:"text" jsonschema:"Natural-language query embedded and compared against node text surfaces"`
	K      int               `json:"k,omitempty" jsonschema:"Number of matches to return, default 10"`
	Filter map[string]string `json:"filter,omitempty" jsonschema:"Metadata equality filter, e.g. {\"kind\": \"component\"}"`
}

// SearchMatch is one similarity hit joined back onto its graph node.
type SearchMatch struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Kind     graph.NodeKind    `json:"kind"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SemanticSearchResult lists matches by decreasing similarity.
type SemanticSearchResult struct {
	Query   string        `json:"query"`
	Matches []SearchMatch `json:"matches"`
}

// SemanticSearch embeds the query text and returns the nearest node
// surfaces. Results are joined against a graph snapshot taken before the
// search, so every returned id resolves via GraphQuery; index entries the
// snapshot does not know (mid-delete strays) are dropped rather than
// leaked.
func (s *Service) SemanticSearch(ctx context.Context, req SemanticSearchRequest) (*SemanticSearchResult, error) {
	if err := contract.RequireText("text", req.Text); err != nil {
		return nil, err
	}
	if err := contract.CheckK(req.K); err != nil {
		return nil, err
	}
	k := req.K
	if k == 0 {
		k = DefaultSearchK
	}

	snap := s.graph.Snapshot()
	matches, err := s.index.SimilaritySearch(ctx, req.Text, k, req.Filter)
	if err != nil {
		return nil, err
	}

	res := &SemanticSearchResult{Query: req.Text, Matches: make([]SearchMatch, 0, len(matches))}
	for _, m := range matches {
		n, ok := snap.NodeByID(m.ID)
		if !ok {
			s.logger.Debug("tools.search.stale_entry", "id", m.ID)
			continue
		}
		res.Matches = append(res.Matches, SearchMatch{
			ID:       m.ID,
			Score:    m.Score,
			Kind:     n.Kind,
			Name:     n.Name,
			Metadata: m.Metadata,
		})
	}
	s.logger.Debug("tools.semantic_search", "k", k, "matches", len(res.Matches))
	return res, nil
}
