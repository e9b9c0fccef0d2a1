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

// Package embedding provides text embedding providers for the vector index.
//
// Every provider returns L2-normalized vectors, so cosine similarity
// downstream reduces to a dot product. MockProvider is deterministic and
// needs no network; it is the default so ingestion and search work fully
// offline. OllamaProvider and OpenAIProvider call their HTTP APIs.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultDimensions is the vector width of the mock provider. 384 matches
// the small sentence-transformer models commonly used for retrieval.
const DefaultDimensions = 384

// Provider generates embeddings for document and query text.
type Provider interface {
	// Embed generates an embedding vector for the given text.
	// Returns a normalized vector (L2 norm = 1.0) or an error.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the width of the vectors this provider emits.
	Dimensions() int

	// Name returns the provider identifier.
	Name() string
}

// Config selects and configures an embedding provider.
type Config struct {
	// Provider type: "mock", "ollama", "openai".
	Provider string `json:"provider"`

	// Model overrides the provider's default embedding model.
	Model string `json:"model,omitempty"`

	// BaseURL for the API endpoint.
	BaseURL string `json:"base_url,omitempty"`

	// APIKey for authenticated providers.
	APIKey string `json:"api_key,omitempty"`

	// Dimensions of the emitted vectors. Zero picks the provider default.
	Dimensions int `json:"dimensions,omitempty"`
}

// NewProviderFromConfig creates a Provider based on configuration.
// Supported providers:
//   - "mock": deterministic hash-based embeddings, no network (the default)
//   - "ollama": local Ollama server (default: http://localhost:11434)
//   - "openai": OpenAI-compatible API (requires OPENAI_API_KEY)
//
// Environment variables:
//   - OLLAMA_HOST / OLLAMA_BASE_URL: Ollama server URL
//   - OLLAMA_EMBED_MODEL: Ollama embedding model (default: nomic-embed-text)
//   - OPENAI_API_KEY: OpenAI API key
//   - OPENAI_BASE_URL: OpenAI-compatible API URL
//   - OPENAI_EMBED_MODEL: OpenAI embedding model (default: text-embedding-3-small)
func NewProviderFromConfig(cfg Config, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(cfg.Provider) {
	case "mock", "test", "":
		return NewMockProvider(cfg.Dimensions), nil

	case "ollama", "local":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_HOST")
		}
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_BASE_URL")
		}
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = os.Getenv("OLLAMA_EMBED_MODEL")
		}
		if model == "" {
			model = "nomic-embed-text"
		}
		p := NewOllamaProvider(baseURL, model, logger)
		if cfg.Dimensions > 0 {
			p.dims = cfg.Dimensions
		}
		return p, nil

	case "openai":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for openai provider")
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OPENAI_BASE_URL")
		}
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := cfg.Model
		if model == "" {
			model = os.Getenv("OPENAI_EMBED_MODEL")
		}
		if model == "" {
			model = "text-embedding-3-small"
		}
		p := NewOpenAIProvider(apiKey, baseURL, model, logger)
		if cfg.Dimensions > 0 {
			p.dims = cfg.Dimensions
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: mock, ollama, openai)", cfg.Provider)
	}
}

// =============================================================================
// MOCK PROVIDER
// =============================================================================

// MockProvider generates deterministic embeddings from a text hash. The same
// text always lands on the same vector, which keeps tests reproducible and
// lets similarity search round-trip exact matches without a model.
type MockProvider struct {
	dims int
}

// NewMockProvider creates a mock embedding provider. A non-positive
// dimension falls back to DefaultDimensions.
func NewMockProvider(dims int) *MockProvider {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &MockProvider{dims: dims}
}

func (m *MockProvider) Name() string    { return "mock" }
func (m *MockProvider) Dimensions() int { return m.dims }

// Embed derives a pseudo-random unit vector from the hash of text.
// Not semantically meaningful, but stable across runs.
func (m *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	hash := hashText(text)
	vec := make([]float32, m.dims)
	for i := range vec {
		val := float32((hash+uint64(i)*7919)%10000) / 10000.0
		vec[i] = val*2.0 - 1.0 // map to [-1, 1]
	}
	return Normalize(vec), nil
}

// hashText is djb2.
func hashText(s string) uint64 {
	var hash uint64 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint64(c)
	}
	return hash
}

// =============================================================================
// OLLAMA PROVIDER
// =============================================================================

// OllamaProvider generates embeddings using a local Ollama server.
// Supports models like nomic-embed-text, mxbai-embed-large and all-minilm.
type OllamaProvider struct {
	baseURL string
	model   string
	dims    int
	client  *http.Client
	logger  *slog.Logger
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// NewOllamaProvider creates an Ollama embedding provider.
func NewOllamaProvider(baseURL, model string, logger *slog.Logger) *OllamaProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		dims:    modelDimensions(model, 768),
		client: &http.Client{
			Timeout: 120 * time.Second, // local models may be slow on first load
		},
		logger: logger,
	}
}

func (o *OllamaProvider) Name() string    { return "ollama" }
func (o *OllamaProvider) Dimensions() int { return o.dims }

// Embed generates an embedding for the given text using the Ollama API.
func (o *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request (is Ollama running at %s?): %w", o.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ollamaErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var embedResp ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding")
	}

	vec := make([]float32, len(embedResp.Embedding))
	for i, v := range embedResp.Embedding {
		vec[i] = float32(v)
	}
	return Normalize(vec), nil
}

// =============================================================================
// OPENAI-COMPATIBLE PROVIDER
// =============================================================================

// OpenAIProvider generates embeddings using OpenAI or compatible APIs.
// Works with OpenAI, Azure OpenAI, Together AI and other /v1/embeddings
// implementations.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	model   string
	dims    int
	client  *http.Client
	logger  *slog.Logger
}

type openaiEmbedRequest struct {
	Input          string `json:"input"`
	Model          string `json:"model"`
	EncodingFormat string `json:"encoding_format,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

type openaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIProvider creates an OpenAI-compatible embedding provider.
func NewOpenAIProvider(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		dims:    modelDimensions(model, 1536),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

func (o *OpenAIProvider) Name() string    { return "openai" }
func (o *OpenAIProvider) Dimensions() int { return o.dims }

// Embed generates an embedding for the given text using the OpenAI API.
func (o *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(openaiEmbedRequest{
		Input:          text,
		Model:          o.model,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp openaiErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var embedResp openaiEmbedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(embedResp.Data) == 0 || len(embedResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai returned empty embedding")
	}

	vec := make([]float32, len(embedResp.Data[0].Embedding))
	for i, v := range embedResp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return Normalize(vec), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// Normalize scales vec in place to unit length (L2 norm = 1.0).
// Empty and all-zero vectors pass through unchanged.
func Normalize(vec []float32) []float32 {
	if len(vec) == 0 {
		return vec
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	n := float32(norm)
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

// modelDimensions maps well-known embedding models to their vector width.
func modelDimensions(model string, fallback int) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "nomic-embed-text"):
		return 768
	case strings.Contains(m, "mxbai-embed-large"):
		return 1024
	case strings.Contains(m, "all-minilm"):
		return 384
	case strings.Contains(m, "text-embedding-3-large"):
		return 3072
	case strings.Contains(m, "text-embedding-3-small"), strings.Contains(m, "text-embedding-ada"):
		return 1536
	default:
		return fallback
	}
}
