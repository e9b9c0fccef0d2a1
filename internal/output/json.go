// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package output provides consistent machine-readable CLI output.
//
// Every traceai command behind --json writes its result through these
// helpers, so consumers see one encoding: pretty-printed objects on
// stdout, errors as structured JSON on stderr. Human-readable output
// lives in the ui package; error construction in the errors package.
//
// # Usage
//
//	report, err := coordinator.Run(ctx)
//	if err != nil {
//	    errors.FatalError(err, jsonMode)
//	}
//	if jsonMode {
//	    _ = output.JSON(report)
//	}
package output

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/kraklabs/traceai/internal/errors"
)

// JSON writes data as pretty-printed JSON to stdout.
//
// The output is formatted with 2-space indentation. This is the
// standard format for --json output in traceai commands.
func JSON(data any) error {
	return JSONTo(os.Stdout, data)
}

// JSONTo writes data as pretty-printed JSON to the specified writer.
func JSONTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("JSON encoding failed: %w", err)
	}
	return nil
}

// JSONCompact writes data as compact JSON to stdout, one value per
// line. Watch mode streams run reports this way.
func JSONCompact(data any) error {
	return JSONCompactTo(os.Stdout, data)
}

// JSONCompactTo writes data as compact JSON to the specified writer.
func JSONCompactTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("JSON encoding failed: %w", err)
	}
	return nil
}

// JSONError writes an error as JSON to stderr.
//
// Structured errors keep their kind, cause, fix, and exit code, the
// same shape the MCP tool surface emits. Plain errors degrade to an
// Internal-kind object so consumers can always read "kind".
func JSONError(err error) error {
	return JSONErrorTo(os.Stderr, err)
}

// JSONErrorTo writes an error as JSON to the specified writer.
func JSONErrorTo(w io.Writer, err error) error {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		e = errors.NewInternal(err.Error(), err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(e.ToJSON()); encErr != nil {
		return fmt.Errorf("JSON error encoding failed: %w", encErr)
	}
	return nil
}
