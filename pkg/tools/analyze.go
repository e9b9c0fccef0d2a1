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
	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/graph"
)

// AnalyzeImpactRequest names the entity whose blast radius to compute.
type AnalyzeImpactRequest struct {
	Entity string `json:"entity" jsonschema:"Entity or data source name, matched case-insensitively"`
}

// AnalyzeImpact reports every component that reads or writes the entity,
// the set of things to check before changing its schema. One hop, sorted
// lexicographically, O(degree).
func (s *Service) AnalyzeImpact(ctx context.Context, req AnalyzeImpactRequest) (*graph.ImpactResult, error) {
	if err := errors.FromContext(ctx); err != nil {
		return nil, err
	}
	if err := contract.RequireName("entity", req.Entity); err != nil {
		return nil, err
	}

	res, err := s.graph.Snapshot().AnalyzeImpact(req.Entity)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("tools.analyze_impact",
		"entity", req.Entity, "readers", len(res.Readers), "writers", len(res.Writers))
	return res, nil
}
