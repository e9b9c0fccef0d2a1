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

package vector

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/embedding"
)

// MemoryIndex keeps vectors in process memory with brute-force cosine
// search. It is the default when no persist directory is configured and
// the backing store for tests.
type MemoryIndex struct {
	provider embedding.Provider
	logger   *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool
}

// NewMemoryIndex creates an empty in-memory index backed by provider.
func NewMemoryIndex(provider embedding.Provider, logger *slog.Logger) *MemoryIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryIndex{
		provider: provider,
		logger:   logger,
		entries:  make(map[string]*entry),
	}
}

// Upsert inserts or replaces the vector for id.
func (m *MemoryIndex) Upsert(ctx context.Context, id, text string, metadata map[string]string) error {
	if id == "" {
		return errors.NewInvalidArgument("id", "must not be empty")
	}
	// Embed outside the lock: providers may do network I/O.
	vec, err := m.provider.Embed(ctx, text)
	if err != nil {
		return errors.NewInternal("embed text", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.NewInternal("upsert vector", errClosed)
	}
	m.entries[id] = &entry{id: id, text: text, metadata: cloneMetadata(metadata), vec: vec}
	return nil
}

// Delete removes id from the index.
func (m *MemoryIndex) Delete(ctx context.Context, id string) error {
	if err := errors.FromContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.NewInternal("delete vector", errClosed)
	}
	delete(m.entries, id)
	return nil
}

// SimilaritySearch returns the k entries nearest to query.
func (m *MemoryIndex) SimilaritySearch(ctx context.Context, query string, k int, filter map[string]string) ([]Match, error) {
	if k <= 0 {
		return []Match{}, nil
	}
	queryVec, err := m.provider.Embed(ctx, query)
	if err != nil {
		return nil, errors.NewInternal("embed query", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.NewInternal("similarity search", errClosed)
	}
	return searchEntries(queryVec, m.entries, k, filter), nil
}

// Rebuild replaces the entire index with entries.
func (m *MemoryIndex) Rebuild(ctx context.Context, entries []Entry) error {
	// Embed everything before taking the write lock.
	fresh := make(map[string]*entry, len(entries))
	for _, e := range entries {
		if err := errors.FromContext(ctx); err != nil {
			return err
		}
		vec, err := m.provider.Embed(ctx, e.Text)
		if err != nil {
			return errors.NewInternal("embed text", err)
		}
		fresh[e.ID] = &entry{id: e.ID, text: e.Text, metadata: cloneMetadata(e.Metadata), vec: vec}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.NewInternal("rebuild index", errClosed)
	}
	m.entries = fresh
	m.logger.Info("vector.rebuild", "entries", len(fresh))
	return nil
}

// Len reports the number of indexed entries.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close drops all entries. Further operations fail.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}
