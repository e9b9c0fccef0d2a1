// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kraklabs/traceai/internal/errors"
)

// Default input bounds for the tool surface. Each has a TRACEAI_* override.
const (
	// DefaultMaxNameBytes bounds entity names and node ids.
	DefaultMaxNameBytes = 512

	// DefaultMaxTextBytes bounds semantic search query text.
	DefaultMaxTextBytes = 8 << 10 // 8 KiB

	// DefaultMaxK bounds how many matches a semantic search may request.
	DefaultMaxK = 100

	// DefaultMaxDepth bounds lineage and dependency traversal depth.
	DefaultMaxDepth = 64

	// DefaultMaxLimit bounds how many nodes a graph query may return.
	DefaultMaxLimit = 1000
)

// envInt reads a positive integer override from the environment.
func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// MaxNameBytes returns the effective name length bound.
// Controlled via env TRACEAI_MAX_NAME_BYTES.
func MaxNameBytes() int { return envInt("TRACEAI_MAX_NAME_BYTES", DefaultMaxNameBytes) }

// MaxTextBytes returns the effective search text bound.
// Controlled via env TRACEAI_MAX_TEXT_BYTES.
func MaxTextBytes() int { return envInt("TRACEAI_MAX_TEXT_BYTES", DefaultMaxTextBytes) }

// MaxK returns the effective top-k bound for semantic search.
// Controlled via env TRACEAI_MAX_K.
func MaxK() int { return envInt("TRACEAI_MAX_K", DefaultMaxK) }

// MaxDepth returns the effective traversal depth bound.
// Controlled via env TRACEAI_MAX_DEPTH.
func MaxDepth() int { return envInt("TRACEAI_MAX_DEPTH", DefaultMaxDepth) }

// MaxLimit returns the effective result count bound for graph queries.
// Controlled via env TRACEAI_MAX_LIMIT.
func MaxLimit() int { return envInt("TRACEAI_MAX_LIMIT", DefaultMaxLimit) }

// RequireName checks a mandatory identifier field: non-empty and within
// the name byte bound.
func RequireName(field, value string) *errors.Error {
	if value == "" {
		return errors.NewInvalidArgument(field, "must not be empty")
	}
	if max := MaxNameBytes(); len(value) > max {
		return errors.NewInvalidArgument(field, fmt.Sprintf("exceeds %d bytes", max))
	}
	return nil
}

// RequireText checks a mandatory free-text field: non-empty and within
// the text byte bound.
func RequireText(field, value string) *errors.Error {
	if value == "" {
		return errors.NewInvalidArgument(field, "must not be empty")
	}
	if max := MaxTextBytes(); len(value) > max {
		return errors.NewInvalidArgument(field, fmt.Sprintf("exceeds %d bytes", max))
	}
	return nil
}

// CheckK validates a requested match count. Zero is allowed so callers can
// substitute their default.
func CheckK(k int) *errors.Error {
	if k < 0 {
		return errors.NewInvalidArgument("k", "must be >= 0")
	}
	if max := MaxK(); k > max {
		return errors.NewInvalidArgument("k", fmt.Sprintf("must be <= %d", max))
	}
	return nil
}

// CheckDepth validates a traversal depth. Zero is allowed so callers can
// substitute their default.
func CheckDepth(depth int) *errors.Error {
	if depth < 0 {
		return errors.NewInvalidArgument("max_depth", "must be >= 0")
	}
	if max := MaxDepth(); depth > max {
		return errors.NewInvalidArgument("max_depth", fmt.Sprintf("must be <= %d", max))
	}
	return nil
}

// CheckLimit validates a result count limit. Zero is allowed so callers
// can substitute their default.
func CheckLimit(limit int) *errors.Error {
	if limit < 0 {
		return errors.NewInvalidArgument("limit", "must be >= 0")
	}
	if max := MaxLimit(); limit > max {
		return errors.NewInvalidArgument("limit", fmt.Sprintf("must be <= %d", max))
	}
	return nil
}
