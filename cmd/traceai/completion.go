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
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/traceai/internal/errors"
)

// bashCompletionTemplate is the bash completion script for TraceAI.
const bashCompletionTemplate = `#!/bin/bash

# Bash completion script for TraceAI
# Installation:
#   source <(traceai completion bash)
#   Or add to ~/.bashrc:
#   echo 'source <(traceai completion bash)' >> ~/.bashrc

_traceai_completion() {
    local cur prev commands
    commands="ingest watch stats query trace impact deps search paths export completion"

    # Current word being completed
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    # Global flags
    if [[ ${cur} == -* ]] && [ $COMP_CWORD -eq 1 ]; then
        COMPREPLY=( $(compgen -W "--version --mcp --config --json --no-color --quiet --debug" -- ${cur}) )
        return 0
    fi

    # First argument: complete commands
    if [ $COMP_CWORD -eq 1 ]; then
        COMPREPLY=( $(compgen -W "${commands}" -- ${cur}) )
        return 0
    fi

    # Command-specific flag completion
    local cmd="${COMP_WORDS[1]}"
    case "${cmd}" in
        ingest)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--pattern --workers --metrics-addr --no-persist" -- ${cur}) )
            else
                COMPREPLY=( $(compgen -d -- ${cur}) )
            fi
            ;;
        watch)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--pattern --debounce" -- ${cur}) )
            else
                COMPREPLY=( $(compgen -d -- ${cur}) )
            fi
            ;;
        stats)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--documents" -- ${cur}) )
            fi
            ;;
        query)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--kind --id --limit" -- ${cur}) )
            fi
            ;;
        trace|deps)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--direction --max-depth" -- ${cur}) )
            fi
            ;;
        search)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--results --kind" -- ${cur}) )
            fi
            ;;
        paths)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--max-len" -- ${cur}) )
            fi
            ;;
        export)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--format --out" -- ${cur}) )
            fi
            ;;
        completion)
            # Complete shell names for completion command
            if [ $COMP_CWORD -eq 2 ]; then
                COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            fi
            ;;
    esac
}

complete -F _traceai_completion traceai
`

// zshCompletionTemplate is the zsh completion script for TraceAI.
const zshCompletionTemplate = `#compdef traceai

# Zsh completion script for TraceAI
# Installation:
#   1. Ensure compinit is loaded (add to ~/.zshrc if not present):
#      autoload -U compinit; compinit
#   2. Save this script to a directory in your fpath:
#      traceai completion zsh > "${fpath[1]}/_traceai"
#   3. Reload completions:
#      rm -f ~/.zcompdump; compinit

_traceai() {
    local -a commands
    commands=(
        'ingest:Parse a directory of ETL artifacts into the graph'
        'watch:Ingest, then re-ingest whenever files change'
        'stats:Show graph statistics'
        'query:Find graph nodes by kind, name substring or id'
        'trace:Trace data lineage for an entity'
        'impact:Show readers and writers of an entity'
        'deps:Walk execution dependencies of a component'
        'search:Semantic search over node text surfaces'
        'paths:Enumerate paths between two graph nodes'
        'export:Dump the graph as JSON or GraphML'
        'completion:Generate shell completion script'
    )

    _arguments -C \
        '(- *)--version[Show version and exit]' \
        '--mcp[Start as MCP server (JSON-RPC over stdio)]' \
        '--config[Path to traceai.yaml]:config file:_files -g "*.yaml"' \
        '--json[Output in JSON format]' \
        '--no-color[Disable color output]' \
        '--quiet[Suppress non-essential output]' \
        '--debug[Enable debug logging]' \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                ingest)
                    _arguments \
                        '*--pattern[Restrict ingestion to matching files]:glob:' \
                        '--workers[Parse worker count]:workers:' \
                        '--metrics-addr[Prometheus metrics address]:address:' \
                        '--no-persist[Parse into memory only]' \
                        '1:directory:_directories'
                    ;;
                watch)
                    _arguments \
                        '*--pattern[Restrict ingestion to matching files]:glob:' \
                        '--debounce[Quiet window before re-ingesting]:duration:' \
                        '1:directory:_directories'
                    ;;
                stats)
                    _arguments \
                        '--documents[List ingested documents]'
                    ;;
                query)
                    _arguments \
                        '--kind[Node kind filter]:kind:(document component data_source data_entity parameter)' \
                        '--id[Exact node id lookup]:id:' \
                        '--limit[Maximum nodes to return]:limit:' \
                        '1:name substring:'
                    ;;
                trace)
                    _arguments \
                        '--direction[Traversal direction]:direction:(upstream downstream both)' \
                        '--max-depth[Maximum edge hops]:depth:' \
                        '1:entity name:'
                    ;;
                impact)
                    _arguments \
                        '1:entity name:'
                    ;;
                deps)
                    _arguments \
                        '--direction[Traversal direction]:direction:(upstream downstream both)' \
                        '--max-depth[Maximum edge hops]:depth:' \
                        '1:component id:'
                    ;;
                search)
                    _arguments \
                        '--results[Number of matches]:k:' \
                        '--kind[Node kind filter]:kind:(document component data_source data_entity parameter)' \
                        '*:query text:'
                    ;;
                paths)
                    _arguments \
                        '--max-len[Maximum path length in edges]:length:' \
                        '1:from id:' \
                        '2:to id:'
                    ;;
                export)
                    _arguments \
                        '--format[Output format]:format:(json graphml)' \
                        '--out[Write to a file]:file:_files'
                    ;;
                completion)
                    _arguments \
                        '1:shell:(bash zsh fish)'
                    ;;
            esac
            ;;
    esac
}

_traceai
`

// fishCompletionTemplate is the fish completion script for TraceAI.
const fishCompletionTemplate = `# Fish completion script for TraceAI
# Installation:
#   1. Load completions for current session:
#      traceai completion fish | source
#   2. Install permanently:
#      traceai completion fish > ~/.config/fish/completions/traceai.fish

# Commands
complete -c traceai -f -n "__fish_use_subcommand" -a "ingest" -d "Parse a directory of ETL artifacts into the graph"
complete -c traceai -f -n "__fish_use_subcommand" -a "watch" -d "Ingest, then re-ingest whenever files change"
complete -c traceai -f -n "__fish_use_subcommand" -a "stats" -d "Show graph statistics"
complete -c traceai -f -n "__fish_use_subcommand" -a "query" -d "Find graph nodes by kind, name substring or id"
complete -c traceai -f -n "__fish_use_subcommand" -a "trace" -d "Trace data lineage for an entity"
complete -c traceai -f -n "__fish_use_subcommand" -a "impact" -d "Show readers and writers of an entity"
complete -c traceai -f -n "__fish_use_subcommand" -a "deps" -d "Walk execution dependencies of a component"
complete -c traceai -f -n "__fish_use_subcommand" -a "search" -d "Semantic search over node text surfaces"
complete -c traceai -f -n "__fish_use_subcommand" -a "paths" -d "Enumerate paths between two graph nodes"
complete -c traceai -f -n "__fish_use_subcommand" -a "export" -d "Dump the graph as JSON or GraphML"
complete -c traceai -f -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion script"

# Global flags
complete -c traceai -l version -d "Show version and exit"
complete -c traceai -l mcp -d "Start as MCP server (JSON-RPC over stdio)"
complete -c traceai -l config -d "Path to traceai.yaml" -r
complete -c traceai -l json -d "Output in JSON format"
complete -c traceai -l no-color -d "Disable color output"
complete -c traceai -l quiet -d "Suppress non-essential output"
complete -c traceai -l debug -d "Enable debug logging"

# ingest command flags
complete -c traceai -n "__fish_seen_subcommand_from ingest" -l pattern -d "Restrict ingestion to matching files" -r
complete -c traceai -n "__fish_seen_subcommand_from ingest" -l workers -d "Parse worker count" -r
complete -c traceai -n "__fish_seen_subcommand_from ingest" -l metrics-addr -d "Prometheus metrics address" -r
complete -c traceai -n "__fish_seen_subcommand_from ingest" -l no-persist -d "Parse into memory only"

# watch command flags
complete -c traceai -n "__fish_seen_subcommand_from watch" -l pattern -d "Restrict ingestion to matching files" -r
complete -c traceai -n "__fish_seen_subcommand_from watch" -l debounce -d "Quiet window before re-ingesting" -r

# stats command flags
complete -c traceai -n "__fish_seen_subcommand_from stats" -l documents -d "List ingested documents"

# query command flags
complete -c traceai -n "__fish_seen_subcommand_from query" -l kind -d "Node kind filter" -r
complete -c traceai -n "__fish_seen_subcommand_from query" -l id -d "Exact node id lookup" -r
complete -c traceai -n "__fish_seen_subcommand_from query" -l limit -d "Maximum nodes to return" -r

# trace and deps command flags
complete -c traceai -n "__fish_seen_subcommand_from trace deps" -l direction -d "Traversal direction" -r -f -a "upstream downstream both"
complete -c traceai -n "__fish_seen_subcommand_from trace deps" -l max-depth -d "Maximum edge hops" -r

# search command flags
complete -c traceai -n "__fish_seen_subcommand_from search" -l results -d "Number of matches" -r
complete -c traceai -n "__fish_seen_subcommand_from search" -l kind -d "Node kind filter" -r

# paths command flags
complete -c traceai -n "__fish_seen_subcommand_from paths" -l max-len -d "Maximum path length in edges" -r

# export command flags
complete -c traceai -n "__fish_seen_subcommand_from export" -l format -d "Output format" -r -f -a "json graphml"
complete -c traceai -n "__fish_seen_subcommand_from export" -l out -d "Write to a file" -r

# completion command arguments
complete -c traceai -n "__fish_seen_subcommand_from completion" -f -a "bash" -d "Generate bash completion script"
complete -c traceai -n "__fish_seen_subcommand_from completion" -f -a "zsh" -d "Generate zsh completion script"
complete -c traceai -n "__fish_seen_subcommand_from completion" -f -a "fish" -d "Generate fish completion script"
`

// runCompletion executes the 'completion' CLI command, writing a
// shell-specific completion script to stdout.
//
// Usage:
//
//	traceai completion [bash|zsh|fish]
func runCompletion(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("completion", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: traceai completion <shell>

Description:
  Generate shell completion scripts for bash, zsh, or fish.

Arguments:
  shell    Shell type: bash, zsh, or fish (required)

Installation:

Bash:
  # Load completions in current shell
  source <(traceai completion bash)

  # Load completions for each session (add to ~/.bashrc)
  echo 'source <(traceai completion bash)' >> ~/.bashrc

Zsh:
  # Enable completion if not already enabled (add to ~/.zshrc)
  echo "autoload -U compinit; compinit" >> ~/.zshrc

  # Install completions permanently
  traceai completion zsh > "${fpath[1]}/_traceai"

Fish:
  # Load completions in current shell
  traceai completion fish | source

  # Install completions permanently
  traceai completion fish > ~/.config/fish/completions/traceai.fish

Notes:
  After installing completions, restart your shell or source your rc file.

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		fs.Usage()
		errors.FatalError(errors.NewInvalidArgument("shell",
			"completion requires exactly one argument: bash, zsh or fish"), globals.JSON)
	}

	switch shell := fs.Arg(0); shell {
	case "bash":
		fmt.Print(bashCompletionTemplate)
	case "zsh":
		fmt.Print(zshCompletionTemplate)
	case "fish":
		fmt.Print(fishCompletionTemplate)
	default:
		errors.FatalError(errors.NewInvalidArgument("shell",
			fmt.Sprintf("shell %q is not supported (bash, zsh or fish)", shell)), globals.JSON)
	}
}
