// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors provides structured error handling for TraceAI.
//
// Every error that crosses a package boundary carries a Kind from a closed
// set, so callers can branch on category without string matching, plus
// three levels of human context: what went wrong (Message), why it
// happened (Cause), and how to fix it (Fix).
//
// # Usage Example
//
//	err := errors.NewUnknownEntity("CUSTMAST", []string{"CUSTMAST.DAILY"})
//	if err != nil {
//	    errors.FatalError(err, jsonMode)
//	}
//
// # Exit Codes
//
// CLI exit codes follow the ingestion contract:
//   - ExitSuccess (0): successful execution
//   - ExitInternal (1): internal or unclassified errors
//   - ExitInvalidArgument (2): bad command-line arguments or tool inputs
//   - ExitNotFound (3): lineage/impact query against an unknown entity
//   - ExitPartialIngest (4): ingestion finished but some files failed
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Kind is the closed set of error categories. Components never invent new
// kinds; anything unexpected is KindInternal.
type Kind string

const (
	KindInvalidArgument   Kind = "InvalidArgument"
	KindUnsupportedFormat Kind = "UnsupportedFormat"
	KindMalformedInput    Kind = "MalformedInput"
	KindPartialParse      Kind = "PartialParse"
	KindUnknownEntity     Kind = "UnknownEntity"
	KindLimitExceeded     Kind = "LimitExceeded"
	KindConflict          Kind = "Conflict"
	KindCancelled         Kind = "Cancelled"
	KindDeadlineExceeded  Kind = "DeadlineExceeded"
	KindInternal          Kind = "Internal"
)

// Exit codes for the CLI.
const (
	// ExitSuccess indicates successful execution.
	ExitSuccess = 0

	// ExitInternal indicates internal errors (bugs, I/O failures, anything
	// without a more specific category).
	ExitInternal = 1

	// ExitInvalidArgument indicates invalid user input (bad flags, bad
	// tool arguments, out-of-range limits).
	ExitInvalidArgument = 2

	// ExitNotFound indicates a query against an entity or component that
	// does not exist in the graph.
	ExitNotFound = 3

	// ExitPartialIngest indicates ingestion completed with some files
	// failing to parse; committed documents remain durable.
	ExitPartialIngest = 4
)

// Error is the structured error type used across TraceAI.
//
// It provides three levels of information:
//   - Message: what went wrong (user-facing description)
//   - Cause: why it happened (diagnostic information)
//   - Fix: how to fix it (actionable suggestion)
//
// Entity carries the unknown identifier for KindUnknownEntity; Fields
// carries per-field detail for KindInvalidArgument.
type Error struct {
	// Kind is the closed error category.
	Kind Kind

	// Message describes what went wrong in user-friendly language.
	Message string

	// Cause explains why the error occurred (diagnostic information).
	Cause string

	// Fix provides an actionable suggestion on how to resolve the error.
	Fix string

	// Entity is the identifier that triggered the error, when one exists.
	Entity string

	// Fields maps argument names to validation messages for input errors.
	Fields map[string]string

	// Err is the underlying error that caused this error (optional).
	Err error
}

// Error implements the error interface. If an underlying error is present,
// it appends that error's message for context.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode maps the error kind to the CLI exit code contract.
func (e *Error) ExitCode() int {
	switch e.Kind {
	case KindInvalidArgument:
		return ExitInvalidArgument
	case KindUnknownEntity:
		return ExitNotFound
	case KindPartialParse:
		return ExitPartialIngest
	default:
		return ExitInternal
	}
}

// KindOf extracts the Kind from any error. Plain errors and nil report
// KindInternal and the empty kind respectively.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// NewInvalidArgument creates an input validation error with field-level
// detail. Invalid-argument errors do not wrap underlying errors.
func NewInvalidArgument(field, message string) *Error {
	return &Error{
		Kind:    KindInvalidArgument,
		Message: fmt.Sprintf("Invalid argument %q", field),
		Cause:   message,
		Fields:  map[string]string{field: message},
	}
}

// NewUnsupportedFormat creates the error the registry reports for a file
// extension no parser claims.
func NewUnsupportedFormat(path string) *Error {
	return &Error{
		Kind:    KindUnsupportedFormat,
		Message: fmt.Sprintf("No parser registered for %q", path),
		Cause:   "The file extension does not match any supported format",
		Fix:     "Supported formats: .dtsx, .cbl, .cob, .jcl, .json, .xlsx, .csv",
		Entity:  path,
	}
}

// NewMalformedInput creates the fatal parse error: the parser could not
// extract a valid document.
func NewMalformedInput(path, cause string, err error) *Error {
	return &Error{
		Kind:    KindMalformedInput,
		Message: fmt.Sprintf("Cannot parse %q", path),
		Cause:   cause,
		Fix:     "Inspect the file; malformed inputs are skipped and reported, never committed",
		Entity:  path,
		Err:     err,
	}
}

// NewPartialIngest creates the error an ingestion run reports when some
// files failed while others committed.
func NewPartialIngest(failed, discovered int) *Error {
	return &Error{
		Kind:    KindPartialParse,
		Message: fmt.Sprintf("Ingestion completed with %d of %d files failing", failed, discovered),
		Cause:   "Some files could not be parsed; committed documents remain durable",
		Fix:     "Re-run with --debug to see per-file failures",
	}
}

// NewUnknownEntity creates the not-found error for lineage and impact
// queries, carrying near-miss suggestions when the graph has any.
func NewUnknownEntity(name string, suggestions []string) *Error {
	e := &Error{
		Kind:    KindUnknownEntity,
		Message: fmt.Sprintf("No entity named %q in the graph", name),
		Cause:   "Lineage and impact queries match DataEntity/DataSource nodes by normalized name",
		Entity:  name,
	}
	if len(suggestions) > 0 {
		e.Fix = "Did you mean: " + strings.Join(suggestions, ", ")
	} else {
		e.Fix = "Run 'traceai stats' to inspect what was ingested"
	}
	return e
}

// NewUnknownComponent creates the not-found error for dependency queries.
func NewUnknownComponent(id string) *Error {
	return &Error{
		Kind:    KindUnknownEntity,
		Message: fmt.Sprintf("No component with id %q in the graph", id),
		Cause:   "Dependency queries require an exact component id",
		Fix:     "Use graph_query to look up component ids by name",
		Entity:  id,
	}
}

// NewUnknownNode creates the not-found error for exact node id lookups.
func NewUnknownNode(id string) *Error {
	return &Error{
		Kind:    KindUnknownEntity,
		Message: fmt.Sprintf("No node with id %q in the graph", id),
		Cause:   "Exact id lookups require an id previously returned by a query",
		Fix:     "Use graph_query with name_substring to search by name instead",
		Entity:  id,
	}
}

// NewLimitExceeded creates the traversal-cap error. Callers that receive
// it alongside a result may keep the partial, truncated payload.
func NewLimitExceeded(what string, cap int) *Error {
	return &Error{
		Kind:    KindLimitExceeded,
		Message: fmt.Sprintf("%s exceeded the %d-node traversal cap", what, cap),
		Cause:   "The result was truncated to bound work on very large graphs",
		Fix:     "Narrow the query or raise node_cap in the configuration",
	}
}

// NewConflict creates the builder-internal concurrency error. It is
// resolved by commit serialization and never escapes to tool callers.
func NewConflict(message string) *Error {
	return &Error{
		Kind:    KindConflict,
		Message: message,
		Cause:   "Two commits raced on the same document",
	}
}

// NewInternal creates an internal error wrapping an unexpected failure.
func NewInternal(message string, err error) *Error {
	return &Error{
		Kind:    KindInternal,
		Message: message,
		Fix:     "This is a bug. Please report it at github.com/kraklabs/traceai/issues",
		Err:     err,
	}
}

// FromContext maps a context error to its kind. Returns nil when ctx has
// no error, so call sites can do `if err := errors.FromContext(ctx); ...`.
func FromContext(ctx context.Context) *Error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return &Error{
			Kind:    KindDeadlineExceeded,
			Message: "Operation deadline exceeded",
			Cause:   "The configured timeout elapsed before the operation finished",
			Err:     context.DeadlineExceeded,
		}
	default:
		return &Error{
			Kind:    KindCancelled,
			Message: "Operation cancelled",
			Cause:   "The caller cancelled the operation; partial state remains durable",
			Err:     ctx.Err(),
		}
	}
}

// Color definitions for error formatting.
var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format returns a formatted error message for terminal display.
//
// The output includes colored sections for Error (red/bold), Cause
// (yellow), and Fix (green). Color output respects the NO_COLOR
// environment variable and can be explicitly disabled with noColor.
//
// Example output:
//
//	Error: No entity named "CUSTMAST" in the graph
//	Cause: Lineage and impact queries match nodes by normalized name
//	Fix:   Did you mean: CUSTMAST.DAILY
//
// Empty Cause or Fix fields are omitted from the output.
func (e *Error) Format(noColor bool) string {
	// Save and restore global color state to avoid side effects
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")

	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}

	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		out.WriteString(colorCause.Sprintf("  %s: ", field))
		out.WriteString(e.Fields[field])
		out.WriteString("\n")
	}

	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}

	return out.String()
}

// ErrorJSON represents error information in JSON format for --json mode
// and the MCP tool surface.
type ErrorJSON struct {
	Error    string            `json:"error"`
	Kind     Kind              `json:"kind"`
	Cause    string            `json:"cause,omitempty"`
	Fix      string            `json:"fix,omitempty"`
	Entity   string            `json:"entity,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	ExitCode int               `json:"exit_code"`
}

// ToJSON converts the Error to a JSON-serializable structure. Empty
// fields are omitted to keep machine output clean.
func (e *Error) ToJSON() ErrorJSON {
	return ErrorJSON{
		Error:    e.Message,
		Kind:     e.Kind,
		Cause:    e.Cause,
		Fix:      e.Fix,
		Entity:   e.Entity,
		Fields:   e.Fields,
		ExitCode: e.ExitCode(),
	}
}

// FatalError prints the error and exits with the appropriate code.
//
// Structured errors render via Format() or ToJSON(); anything else prints
// a plain message and exits ExitInternal. This function never returns.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	var e *Error
	if stderrors.As(err, &e) {
		if jsonOutput {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			// Encode error is intentionally ignored since we're about to exit.
			_ = enc.Encode(e.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, e.Format(false))
		}
		os.Exit(e.ExitCode())
	}

	// Fallback for unclassified errors
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitInternal)
}
