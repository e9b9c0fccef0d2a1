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

// Package config loads the optional traceai.yaml workspace configuration.
//
// TraceAI runs without any configuration file: every setting has a flag
// or a built-in default. When a traceai.yaml exists in the working
// directory (or a parent), it supplies defaults that flags still
// override. Environment variables sit between the two: they override the
// file but lose to explicit flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/embedding"
)

const (
	// FileName is the workspace configuration file, looked up in the
	// current directory and its parents.
	FileName = "traceai.yaml"

	// DefaultPersistDir is where graph snapshots and the vector store
	// live, relative to the working directory.
	DefaultPersistDir = ".traceai"

	configVersion = "1"
)

// Embeddings selects the provider that turns node text surfaces into
// vectors for semantic search.
type Embeddings struct {
	// Provider is "mock", "ollama", or "openai". Mock is deterministic
	// and needs no network, which makes it the offline default.
	Provider string `yaml:"provider"`

	// Model overrides the provider's default embedding model.
	Model string `yaml:"model,omitempty"`

	// Endpoint is the provider's base URL (Ollama host or an
	// OpenAI-compatible API).
	Endpoint string `yaml:"endpoint,omitempty"`

	// Dimensions of the emitted vectors. Zero picks the provider default.
	Dimensions int `yaml:"dimensions,omitempty"`

	// APIKey for authenticated providers. Prefer OPENAI_API_KEY over
	// writing secrets into the file.
	APIKey string `yaml:"api_key,omitempty"`
}

// Config is the traceai.yaml schema. Zero values mean "unset": the
// consuming package applies its own default, so the file only has to
// name what it changes.
type Config struct {
	Version string `yaml:"version"`

	// PersistDir holds graph.json and vectors.db.
	PersistDir string `yaml:"persist_dir"`

	// Patterns restrict ingestion to matching files (doublestar globs,
	// relative to the ingest root). Empty means every supported file.
	Patterns []string `yaml:"patterns,omitempty"`

	// MaxConcurrentParsers bounds the ingestion parse pool.
	MaxConcurrentParsers int `yaml:"max_concurrent_parsers,omitempty"`

	// MaxFileSize skips files above this many bytes during ingestion.
	MaxFileSize int64 `yaml:"max_file_size,omitempty"`

	// NodeCap overrides the graph traversal budget when positive.
	NodeCap int `yaml:"node_cap,omitempty"`

	// FreeFormCOBOL disables fixed-column slicing in the COBOL parser
	// for sources written in free format.
	FreeFormCOBOL bool `yaml:"free_form_cobol,omitempty"`

	Embeddings Embeddings `yaml:"embeddings"`
}

// Default returns the configuration TraceAI uses when no file exists.
// Environment variables are folded in so Default and Load agree on
// precedence.
func Default() *Config {
	return &Config{
		Version:    configVersion,
		PersistDir: getEnv("TRACEAI_PERSIST_DIR", DefaultPersistDir),
		Embeddings: Embeddings{
			Provider: getEnv("TRACEAI_EMBEDDINGS", "mock"),
			Model:    getEnv("OLLAMA_EMBED_MODEL", ""),
			Endpoint: getEnv("OLLAMA_HOST", ""),
		},
	}
}

// Load reads the configuration.
//
// With an explicit path the file must exist. With an empty path the
// TRACEAI_CONFIG environment variable is consulted first, then
// traceai.yaml is searched from the working directory up to the
// filesystem root; when nothing is found Load returns Default() so the
// CLI works in an unconfigured directory.
//
// Environment overrides applied after parsing:
//   - TRACEAI_PERSIST_DIR: persist directory
//   - TRACEAI_WORKERS: max concurrent parsers
//   - TRACEAI_EMBEDDINGS: embedding provider
//   - OLLAMA_HOST: embedding endpoint
//   - OLLAMA_EMBED_MODEL: embedding model
//   - OPENAI_API_KEY: embedding API key
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv("TRACEAI_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			path = findConfigFile(cwd)
		}
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the user or workspace discovery
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.NewInvalidArgument("config", fmt.Sprintf("cannot read %s: %v", path, err))
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewMalformedInput(path, "YAML parsing failed", err)
	}
	if cfg.Version == "" {
		cfg.Version = configVersion
	}
	if cfg.Version != configVersion {
		return nil, errors.NewInvalidArgument("config",
			fmt.Sprintf("version %q is not supported (expected %q)", cfg.Version, configVersion))
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories as
// needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.NewInternal("cannot encode configuration", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.NewInvalidArgument("config", fmt.Sprintf("cannot create %s: %v", dir, err))
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.NewInvalidArgument("config", fmt.Sprintf("cannot write %s: %v", path, err))
	}
	return nil
}

// Path returns the configuration file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// EmbeddingConfig maps the embeddings section onto the provider factory's
// configuration type.
func (c *Config) EmbeddingConfig() embedding.Config {
	return embedding.Config{
		Provider:   c.Embeddings.Provider,
		Model:      c.Embeddings.Model,
		BaseURL:    c.Embeddings.Endpoint,
		APIKey:     c.Embeddings.APIKey,
		Dimensions: c.Embeddings.Dimensions,
	}
}

// findConfigFile walks from dir up to the filesystem root looking for
// traceai.yaml. Returns "" when no file exists.
func findConfigFile(dir string) string {
	for {
		path := Path(dir)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("TRACEAI_PERSIST_DIR"); dir != "" {
		c.PersistDir = dir
	}
	if n := envInt("TRACEAI_WORKERS"); n > 0 {
		c.MaxConcurrentParsers = n
	}
	if p := os.Getenv("TRACEAI_EMBEDDINGS"); p != "" {
		c.Embeddings.Provider = p
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embeddings.Endpoint = host
	}
	if model := os.Getenv("OLLAMA_EMBED_MODEL"); model != "" {
		c.Embeddings.Model = model
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Embeddings.APIKey = key
	}
}

// getEnv retrieves an environment variable or returns fallback when it
// is unset or empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// envInt parses a positive integer from the environment; anything else
// reports zero so the caller keeps its current value.
func envInt(name string) int {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
