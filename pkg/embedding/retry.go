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

package embedding

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig controls retry behavior for embedding calls.
type RetryConfig struct {
	MaxRetries     int           // total attempts, not retries after the first
	InitialBackoff time.Duration // backoff before the second attempt
	MaxBackoff     time.Duration // upper bound for any single backoff
	Multiplier     float64       // exponential growth factor
}

// DefaultRetryConfig returns the retry settings used when none are given.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
	}
}

// WithRetry wraps p so transient Embed failures are retried with
// exponential backoff and full jitter. Non-retryable errors and context
// cancellation return immediately.
func WithRetry(p Provider, cfg RetryConfig, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	// Sanity defaults so zero values cannot cause busy loops.
	def := DefaultRetryConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier <= 1.0 {
		cfg.Multiplier = def.Multiplier
	}
	return &retryProvider{inner: p, cfg: cfg, logger: logger}
}

type retryProvider struct {
	inner  Provider
	cfg    RetryConfig
	logger *slog.Logger
}

func (r *retryProvider) Name() string    { return r.inner.Name() }
func (r *retryProvider) Dimensions() int { return r.inner.Dimensions() }

func (r *retryProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		vec, err := r.inner.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == r.cfg.MaxRetries-1 {
			break
		}
		sleep := backoffWithJitter(r.cfg, attempt)
		r.logger.Warn("embedding.retry",
			"provider", r.inner.Name(),
			"attempt", attempt+1,
			"sleep_ms", sleep.Milliseconds(),
			"err", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return nil, lastErr
}

// isRetryable classifies provider errors: network trouble and HTTP 429/5xx
// are worth another attempt, everything else is not. Classification is
// text-based so providers need no shared error types.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	transient := []string{
		"timeout",
		"temporarily unavailable",
		"connection refused",
		"connection reset",
		"deadline exceeded",
		"eof",
	}
	for _, s := range transient {
		if strings.Contains(msg, s) {
			return true
		}
	}
	httpRetry := []string{"status 429", "status 500", "status 502", "status 503", "status 504"}
	for _, s := range httpRetry {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// backoffWithJitter returns exponential backoff with full jitter: a uniform
// draw from [0, min(initial*mult^attempt, max)].
func backoffWithJitter(cfg RetryConfig, attempt int) time.Duration {
	exp := float64(cfg.InitialBackoff)
	for i := 0; i < attempt; i++ {
		exp *= cfg.Multiplier
	}
	d := time.Duration(exp)
	if d > cfg.MaxBackoff {
		d = cfg.MaxBackoff
	}
	if d <= 0 {
		return cfg.InitialBackoff
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}
