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
	"encoding/json"
	stderrors "errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/graph"
)

const serverInstructions = `TraceAI MCP server: lineage, impact and dependency intelligence over ingested ETL artifacts (SSIS, COBOL, JCL, JSON, Excel, CSV).

Start with graph_stats to see what was ingested, then graph_query to find concrete node ids. trace_lineage and analyze_impact take entity NAMES (table, file or dataset names, matched case-insensitively); find_dependencies takes a component ID from graph_query. semantic_search finds nodes by meaning when you do not know exact names.

Input bounds (name/text sizes, k, depth, limit) are configurable via TRACEAI_MAX_* environment variables in the server environment. Errors come back as structured JSON with a kind field; UnknownEntity errors include near-miss name suggestions.`

// RunMCP serves the six tool operations over stdio until the client
// disconnects or ctx is cancelled.
func RunMCP(ctx context.Context, svc *Service, version string) error {
	server := mcp.NewServer(
		&mcp.Implementation{Name: "traceai", Version: version},
		&mcp.ServerOptions{Instructions: serverInstructions},
	)
	RegisterTools(server, svc)
	svc.logger.Info("mcp.start", "version", version)
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RegisterTools adds the six operations to an MCP server. Split from
// RunMCP so tests and embedders can mount the tools on their own server.
func RegisterTools(server *mcp.Server, svc *Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "graph_query",
		Description: "Find graph nodes by kind, case-insensitive name substring, or exact id. Returns nodes in deterministic (kind, name, id) order with a total match count. Use this to resolve names into ids before calling find_dependencies.",
	}, svc.mcpGraphQuery)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trace_lineage",
		Description: "Trace where an entity's data comes from (upstream) and flows to (downstream), across document boundaries and formats. Takes an entity name, not an id. Results carry the hop distance per node; truncated=true means the traversal cap cut the walk short.",
	}, svc.mcpTraceLineage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_impact",
		Description: "List every component that reads or writes an entity, the direct blast radius of changing its schema. One hop, sorted lexicographically. Takes an entity name, not an id.",
	}, svc.mcpAnalyzeImpact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_dependencies",
		Description: "Walk execution-order (PRECEDES) and call (CALLS) edges around a component: what must run before it and what runs after or because of it. Requires an exact component id from graph_query.",
	}, svc.mcpFindDependencies)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "semantic_search",
		Description: "Find nodes by meaning using embedding similarity over node text surfaces. Use when exact names are unknown. Every returned id is guaranteed to resolve via graph_query. Optional metadata filter narrows by kind, e.g. {\"kind\": \"component\"}.",
	}, svc.mcpSemanticSearch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "graph_stats",
		Description: "Node and edge counts by kind and by source document type, plus the graph version and vector index size. Cheap; call first to see whether anything is ingested.",
	}, svc.mcpGraphStats)
}

// errResult converts a typed error into a structured MCP tool failure.
// The payload is the same JSON shape the CLI emits in --json mode, so a
// planner can branch on kind without parsing prose.
func errResult(err error) *mcp.CallToolResult {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		e = errors.NewInternal("tool call failed", err)
	}
	data, merr := json.Marshal(e.ToJSON())
	if merr != nil {
		data = []byte(`{"error":"tool call failed","kind":"Internal","exit_code":1}`)
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

// keepPartial reports whether a failed traversal still produced a payload
// worth returning: LimitExceeded comes with the truncated result attached,
// and the Truncated flag already tells the caller what happened.
func keepPartial(err error) bool {
	return errors.IsKind(err, errors.KindLimitExceeded)
}

func (s *Service) mcpGraphQuery(ctx context.Context, _ *mcp.CallToolRequest, in GraphQueryRequest) (*mcp.CallToolResult, *GraphQueryResult, error) {
	res, err := s.GraphQuery(ctx, in)
	if err != nil {
		return errResult(err), nil, nil
	}
	return nil, res, nil
}

func (s *Service) mcpTraceLineage(ctx context.Context, _ *mcp.CallToolRequest, in TraceLineageRequest) (*mcp.CallToolResult, *graph.LineageResult, error) {
	res, err := s.TraceLineage(ctx, in)
	if err != nil && !(keepPartial(err) && res != nil) {
		return errResult(err), nil, nil
	}
	return nil, res, nil
}

func (s *Service) mcpAnalyzeImpact(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeImpactRequest) (*mcp.CallToolResult, *graph.ImpactResult, error) {
	res, err := s.AnalyzeImpact(ctx, in)
	if err != nil {
		return errResult(err), nil, nil
	}
	return nil, res, nil
}

func (s *Service) mcpFindDependencies(ctx context.Context, _ *mcp.CallToolRequest, in FindDependenciesRequest) (*mcp.CallToolResult, *graph.DependencyResult, error) {
	res, err := s.FindDependencies(ctx, in)
	if err != nil && !(keepPartial(err) && res != nil) {
		return errResult(err), nil, nil
	}
	return nil, res, nil
}

func (s *Service) mcpSemanticSearch(ctx context.Context, _ *mcp.CallToolRequest, in SemanticSearchRequest) (*mcp.CallToolResult, *SemanticSearchResult, error) {
	res, err := s.SemanticSearch(ctx, in)
	if err != nil {
		return errResult(err), nil, nil
	}
	return nil, res, nil
}

func (s *Service) mcpGraphStats(ctx context.Context, _ *mcp.CallToolRequest, in GraphStatsRequest) (*mcp.CallToolResult, *GraphStatsResult, error) {
	res, err := s.GraphStats(ctx, in)
	if err != nil {
		return errResult(err), nil, nil
	}
	return nil, res, nil
}
