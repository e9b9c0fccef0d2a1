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

// Package vector provides the similarity index TraceAI searches when a
// query names things by meaning rather than by identifier.
//
// The index stores one embedding per graph node, keyed by the node ID, so
// search results join back onto the graph directly. The graph is the
// source of truth: an index can always be rebuilt from a snapshot, and
// losing it loses nothing but time.
package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"maps"
	"math"
	"sort"
)

// Match is one similarity search hit.
type Match struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Entry is one item to index, used when rebuilding from the graph.
type Entry struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Index stores embeddings keyed by graph node ID and answers top-k cosine
// similarity queries. Implementations are safe for concurrent use.
type Index interface {
	// Upsert inserts or replaces the vector for id, embedding text.
	Upsert(ctx context.Context, id, text string, metadata map[string]string) error

	// Delete removes id from the index. Unknown ids are a no-op.
	Delete(ctx context.Context, id string) error

	// SimilaritySearch embeds query and returns the k nearest entries by
	// cosine similarity, scores monotone decreasing with ties broken by
	// id. filter keeps only entries whose metadata contains every given
	// key/value pair. k <= 0 returns no matches.
	SimilaritySearch(ctx context.Context, query string, k int, filter map[string]string) ([]Match, error)

	// Rebuild replaces the entire index with entries.
	Rebuild(ctx context.Context, entries []Entry) error

	// Len reports the number of indexed entries.
	Len() int

	// Close releases resources. Operations after Close fail.
	Close() error
}

// errClosed reports use after Close.
var errClosed = fmt.Errorf("vector index is closed")

// entry is the in-memory form shared by both index implementations.
type entry struct {
	id       string
	text     string
	metadata map[string]string
	vec      []float32
}

// cosine returns the cosine similarity of a and b. Empty vectors and
// dimension mismatches (a model change between runs) score zero instead
// of failing the whole search.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// encodeVector packs vec as little-endian float32 bytes for BLOB storage.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks a little-endian float32 BLOB.
func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

// matchesFilter reports whether md contains every key/value pair in filter.
func matchesFilter(md, filter map[string]string) bool {
	for k, v := range filter {
		if md[k] != v {
			return false
		}
	}
	return true
}

// searchEntries scores every candidate against the query vector and
// returns the top k, scores monotone decreasing and ties broken by id.
func searchEntries(queryVec []float32, entries map[string]*entry, k int, filter map[string]string) []Match {
	if k <= 0 {
		return []Match{}
	}
	matches := make([]Match, 0, len(entries))
	for _, e := range entries {
		if !matchesFilter(e.metadata, filter) {
			continue
		}
		matches = append(matches, Match{
			ID:       e.id,
			Score:    cosine(queryVec, e.vec),
			Metadata: cloneMetadata(e.metadata),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func cloneMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	return maps.Clone(md)
}
