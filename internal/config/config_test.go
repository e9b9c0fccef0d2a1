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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/traceai/internal/errors"
)

// clearEnv blanks every variable the package reads so ambient shells
// cannot leak into assertions. t.Setenv restores the originals.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TRACEAI_CONFIG", "TRACEAI_PERSIST_DIR", "TRACEAI_WORKERS",
		"TRACEAI_EMBEDDINGS", "OLLAMA_HOST", "OLLAMA_EMBED_MODEL",
		"OPENAI_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	clearEnv(t)

	cfg := Default()
	assert.Equal(t, "1", cfg.Version)
	assert.Equal(t, DefaultPersistDir, cfg.PersistDir)
	assert.Equal(t, "mock", cfg.Embeddings.Provider)

	// Zero means "unset": ingestion and graph own their defaults.
	assert.Zero(t, cfg.MaxConcurrentParsers)
	assert.Zero(t, cfg.NodeCap)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, t.TempDir(), `
version: "1"
persist_dir: /var/lib/traceai
patterns:
  - "**/*.dtsx"
  - "*.cbl"
max_concurrent_parsers: 4
free_form_cobol: true
embeddings:
  provider: ollama
  model: nomic-embed-text
  endpoint: http://ollama:11434
  dimensions: 768
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/traceai", cfg.PersistDir)
	assert.Equal(t, []string{"**/*.dtsx", "*.cbl"}, cfg.Patterns)
	assert.Equal(t, 4, cfg.MaxConcurrentParsers)
	assert.True(t, cfg.FreeFormCOBOL)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, "http://ollama:11434", cfg.Embeddings.Endpoint)
	assert.Equal(t, 768, cfg.Embeddings.Dimensions)
}

func TestLoad_UnsetFieldsKeepDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, t.TempDir(), "embeddings:\n  provider: openai\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, DefaultPersistDir, cfg.PersistDir)
	assert.Equal(t, "1", cfg.Version, "missing version is treated as current")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, t.TempDir(), `
persist_dir: /from/file
max_concurrent_parsers: 4
embeddings:
  provider: ollama
`)

	t.Setenv("TRACEAI_PERSIST_DIR", "/from/env")
	t.Setenv("TRACEAI_WORKERS", "6")
	t.Setenv("TRACEAI_EMBEDDINGS", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.PersistDir)
	assert.Equal(t, 6, cfg.MaxConcurrentParsers)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, "sk-test", cfg.Embeddings.APIKey)
}

func TestLoad_GarbageWorkersEnvIgnored(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, t.TempDir(), "max_concurrent_parsers: 4\n")
	t.Setenv("TRACEAI_WORKERS", "garbage")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxConcurrentParsers)
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, t.TempDir(), "persist_dir: [\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindMalformedInput))
}

func TestLoad_WrongVersion(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, t.TempDir(), "version: \"99\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidArgument))
}

func TestLoad_ExplicitMissingPath(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidArgument))
}

func TestLoad_EnvConfigPathMustExist(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRACEAI_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidArgument))
}

func TestFindConfigFile_NearestAncestorWins(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	outer := writeConfig(t, root, "version: \"1\"\n")
	assert.Equal(t, outer, findConfigFile(nested))

	inner := writeConfig(t, filepath.Join(root, "a"), "version: \"1\"\n")
	assert.Equal(t, inner, findConfigFile(nested))
}

func TestSave_RoundTrip(t *testing.T) {
	clearEnv(t)

	cfg := Default()
	cfg.PersistDir = "/srv/traceai"
	cfg.Patterns = []string{"jobs/**"}
	cfg.NodeCap = 500
	cfg.Embeddings.Provider = "ollama"

	path := filepath.Join(t.TempDir(), "conf", FileName)
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.PersistDir, loaded.PersistDir)
	assert.Equal(t, cfg.Patterns, loaded.Patterns)
	assert.Equal(t, cfg.NodeCap, loaded.NodeCap)
	assert.Equal(t, cfg.Embeddings.Provider, loaded.Embeddings.Provider)
}

func TestEmbeddingConfig(t *testing.T) {
	cfg := &Config{Embeddings: Embeddings{
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		Endpoint:   "https://api.example.com/v1",
		Dimensions: 1536,
		APIKey:     "sk-x",
	}}

	ec := cfg.EmbeddingConfig()
	assert.Equal(t, "openai", ec.Provider)
	assert.Equal(t, "text-embedding-3-small", ec.Model)
	assert.Equal(t, "https://api.example.com/v1", ec.BaseURL)
	assert.Equal(t, 1536, ec.Dimensions)
	assert.Equal(t, "sk-x", ec.APIKey)
}
