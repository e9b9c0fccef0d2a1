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

// Package main implements the TraceAI CLI for ingesting ETL artifacts and
// querying the resulting lineage graph.
//
// Usage:
//
//	traceai ingest <dir>          Parse ETL artifacts into the graph
//	traceai stats                 Show graph statistics
//	traceai trace <entity>        Trace data lineage for an entity
//	traceai search <text>         Semantic search over graph nodes
//	traceai --mcp                 Start as MCP server (JSON-RPC over stdio)
package main

import (
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/traceai/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	JSON    bool // Output in JSON format (for applicable commands)
	NoColor bool // Disable color output
	Quiet   bool // Suppress non-essential output (progress, info messages)
	Debug   bool // Enable debug logging
}

// newLogger builds the process logger. Logs go to stderr so stdout stays
// clean for --json documents and for the MCP stdio channel.
func newLogger(globals GlobalFlags) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case globals.Debug:
		level = slog.LevelDebug
	case globals.Quiet:
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// main parses global flags, then dispatches to a command handler or
// starts the MCP server.
//
// Global flags:
//   - --version: Display version information and exit
//   - --mcp: Start as MCP server (JSON-RPC over stdio)
//   - --config: Path to traceai.yaml configuration file
//
// Commands:
//   - ingest: Parse a directory of ETL artifacts into the graph
//   - watch: Ingest, then re-ingest on filesystem changes
//   - stats: Show graph statistics
//   - query: Find graph nodes by kind, name or id
//   - trace: Trace data lineage for an entity
//   - impact: Show the blast radius of changing an entity
//   - deps: Walk execution dependencies of a component
//   - search: Semantic search over node text surfaces
//   - paths: Enumerate paths between two nodes
//   - export: Dump the graph as JSON or GraphML
func main() {
	// Global flags with short forms
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		mcpMode     = flag.Bool("mcp", false, "Start as MCP server (JSON-RPC over stdio)")
		configPath  = flag.StringP("config", "c", "", "Path to traceai.yaml (default: search upward from the working directory)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output (progress, info messages)")
		debug       = flag.Bool("debug", false, "Enable debug logging")
	)

	// Stop parsing at the first non-flag argument (the command name) so
	// subcommand flags like "ingest --workers 4" reach the subcommand
	// parser instead of being rejected here.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `TraceAI - ETL Intelligence Engine

TraceAI parses ETL artifacts (SSIS packages, COBOL programs, JCL jobs,
JSON pipeline definitions, Excel mapping workbooks, CSV exports) into a
typed dependency graph and answers lineage, impact and dependency
questions over it. It runs as a CLI or as an MCP server for AI
assistants.

Usage:
  traceai <command> [options]

Commands:
  ingest        Parse a directory of ETL artifacts into the graph
  watch         Ingest, then re-ingest whenever files change
  stats         Show graph statistics
  query         Find graph nodes by kind, name substring or id
  trace         Trace data lineage for an entity or data source
  impact        Show readers and writers of an entity
  deps          Walk execution dependencies of a component
  search        Semantic search over node text surfaces
  paths         Enumerate paths between two graph nodes
  export        Dump the graph as JSON or GraphML
  completion    Generate shell completion script (bash|zsh|fish)

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -q, --quiet       Suppress non-essential output (progress, info messages)
  --debug           Enable debug logging
  --mcp             Start as MCP server (JSON-RPC over stdio)
  -c, --config      Path to traceai.yaml
  -V, --version     Show version and exit

Examples:
  traceai ingest ./etl               Ingest every supported file under ./etl
  traceai ingest ./etl -p "**/*.cbl" Ingest only COBOL sources
  traceai stats                      Show node and edge counts
  traceai stats --documents          List ingested documents
  traceai trace CUSTMAST             Where does CUSTMAST come from and go?
  traceai impact Customer --json     Blast radius as JSON (for scripting)
  traceai search "customer address"  Find nodes by meaning
  traceai watch ./etl                Keep the graph current while editing
  traceai --mcp                      Start as MCP server

Getting Started:
  1. Ingest your ETL tree:     traceai ingest <dir>
  2. Check what was parsed:    traceai stats --documents
  3. Trace an entity:          traceai trace <name>
  4. Run as MCP server:        traceai --mcp

Data Storage:
  The graph snapshot and vector store live in the configured persist
  directory (default: .traceai/ next to the ingest root).

Environment Variables:
  TRACEAI_CONFIG      Path to traceai.yaml
  TRACEAI_PERSIST_DIR Persist directory override
  TRACEAI_EMBEDDINGS  Embedding provider (mock, ollama, openai)
  OLLAMA_HOST         Ollama URL (default: http://localhost:11434)
  OLLAMA_EMBED_MODEL  Embedding model name

For detailed command help: traceai <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("traceai version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	// Check NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	// JSON mode auto-enables quiet to prevent progress bars corrupting
	// the JSON document on stdout.
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Quiet:   *quiet,
		Debug:   *debug,
	}

	ui.InitColors(globals.NoColor)

	// MCP mode takes precedence
	if *mcpMode {
		runMCPServer(*configPath, globals)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "ingest":
		runIngest(cmdArgs, *configPath, globals)
	case "watch":
		runWatch(cmdArgs, *configPath, globals)
	case "stats":
		runStats(cmdArgs, *configPath, globals)
	case "query":
		runQuery(cmdArgs, *configPath, globals)
	case "trace":
		runTrace(cmdArgs, *configPath, globals)
	case "impact":
		runImpact(cmdArgs, *configPath, globals)
	case "deps":
		runDeps(cmdArgs, *configPath, globals)
	case "search":
		runSearch(cmdArgs, *configPath, globals)
	case "paths":
		runPaths(cmdArgs, *configPath, globals)
	case "export":
		runExport(cmdArgs, *configPath, globals)
	case "completion":
		runCompletion(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
