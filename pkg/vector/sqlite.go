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

package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/embedding"
)

const createVectorsTable = `
CREATE TABLE IF NOT EXISTS vectors (
	id        TEXT PRIMARY KEY,
	text      TEXT NOT NULL,
	metadata  TEXT NOT NULL DEFAULT '{}',
	embedding BLOB NOT NULL,
	dim       INTEGER NOT NULL
)`

const upsertVectorSQL = `
INSERT OR REPLACE INTO vectors (id, text, metadata, embedding, dim)
VALUES (?, ?, ?, ?, ?)`

// SQLiteIndex persists vectors in a SQLite database so the index survives
// restarts. All rows are also cached in memory: SQLite is the durability
// layer, search never touches disk.
type SQLiteIndex struct {
	provider embedding.Provider
	logger   *slog.Logger
	db       *sql.DB
	path     string

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool
}

// NewSQLiteIndex opens, creating if needed, the vector database at path
// and loads every stored vector into the in-memory cache.
func NewSQLiteIndex(path string, provider embedding.Provider, logger *slog.Logger) (*SQLiteIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.NewInternal("create vector store directory", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewInternal("open vector store", err)
	}
	// modernc sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.NewInternal("configure vector store", err)
		}
	}

	if _, err := db.Exec(createVectorsTable); err != nil {
		_ = db.Close()
		return nil, errors.NewInternal("create vectors table", err)
	}

	idx := &SQLiteIndex{
		provider: provider,
		logger:   logger,
		db:       db,
		path:     path,
		entries:  make(map[string]*entry),
	}
	if err := idx.loadAll(); err != nil {
		_ = db.Close()
		return nil, err
	}
	idx.logger.Info("vector.open", "path", path, "entries", len(idx.entries))
	return idx, nil
}

func (s *SQLiteIndex) loadAll() error {
	rows, err := s.db.Query(`SELECT id, text, metadata, embedding FROM vectors`)
	if err != nil {
		return errors.NewInternal("load vectors", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id, text, metaJSON string
		var blob []byte
		if err := rows.Scan(&id, &text, &metaJSON, &blob); err != nil {
			return errors.NewInternal("scan vector row", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return errors.NewMalformedInput(s.path, fmt.Sprintf("vector row %q is corrupt", id), err)
		}
		md := map[string]string{}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &md); err != nil {
				return errors.NewMalformedInput(s.path, fmt.Sprintf("metadata for %q is not valid JSON", id), err)
			}
		}
		s.entries[id] = &entry{id: id, text: text, metadata: md, vec: vec}
	}
	if err := rows.Err(); err != nil {
		return errors.NewInternal("load vectors", err)
	}
	return nil
}

// Upsert inserts or replaces the vector for id, writing through to SQLite.
func (s *SQLiteIndex) Upsert(ctx context.Context, id, text string, metadata map[string]string) error {
	if id == "" {
		return errors.NewInvalidArgument("id", "must not be empty")
	}
	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		return errors.NewInternal("embed text", err)
	}
	metaJSON, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.NewInternal("upsert vector", errClosed)
	}
	if _, err := s.db.ExecContext(ctx, upsertVectorSQL, id, text, metaJSON, encodeVector(vec), len(vec)); err != nil {
		return errors.NewInternal("write vector", err)
	}
	s.entries[id] = &entry{id: id, text: text, metadata: cloneMetadata(metadata), vec: vec}
	return nil
}

// Delete removes id from the index and the database.
func (s *SQLiteIndex) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.NewInternal("delete vector", errClosed)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
		return errors.NewInternal("delete vector", err)
	}
	delete(s.entries, id)
	return nil
}

// SimilaritySearch returns the k entries nearest to query, searching the
// in-memory cache only.
func (s *SQLiteIndex) SimilaritySearch(ctx context.Context, query string, k int, filter map[string]string) ([]Match, error) {
	if k <= 0 {
		return []Match{}, nil
	}
	queryVec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, errors.NewInternal("embed query", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.NewInternal("similarity search", errClosed)
	}
	return searchEntries(queryVec, s.entries, k, filter), nil
}

// Rebuild replaces the entire index with entries in one transaction.
func (s *SQLiteIndex) Rebuild(ctx context.Context, entries []Entry) error {
	// Embed everything before taking the write lock.
	fresh := make(map[string]*entry, len(entries))
	for _, e := range entries {
		if err := errors.FromContext(ctx); err != nil {
			return err
		}
		vec, err := s.provider.Embed(ctx, e.Text)
		if err != nil {
			return errors.NewInternal("embed text", err)
		}
		fresh[e.ID] = &entry{id: e.ID, text: e.Text, metadata: cloneMetadata(e.Metadata), vec: vec}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.NewInternal("rebuild index", errClosed)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal("begin rebuild", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors`); err != nil {
		return errors.NewInternal("clear vectors", err)
	}
	for _, e := range fresh {
		metaJSON, err := encodeMetadata(e.metadata)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertVectorSQL, e.id, e.text, metaJSON, encodeVector(e.vec), len(e.vec)); err != nil {
			return errors.NewInternal("write vector", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal("commit rebuild", err)
	}

	s.entries = fresh
	s.logger.Info("vector.rebuild", "entries", len(fresh), "path", s.path)
	return nil
}

// Len reports the number of indexed entries.
func (s *SQLiteIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close flushes nothing (writes are synchronous) and closes the database.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.entries = nil
	if err := s.db.Close(); err != nil {
		return errors.NewInternal("close vector store", err)
	}
	return nil
}

// encodeMetadata renders metadata as a JSON object, never null.
func encodeMetadata(md map[string]string) (string, error) {
	if md == nil {
		md = map[string]string{}
	}
	buf, err := json.Marshal(md)
	if err != nil {
		return "", errors.NewInternal("encode metadata", err)
	}
	return string(buf), nil
}
