// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"

	"github.com/steamgate/steamgate/pkg/logger"
)

// Config configures the storage backend.
type Config struct {
	// RedisURL selects the Redis backend when non-empty
	// (e.g. "redis://localhost:6379/0"). Empty selects in-memory storage.
	RedisURL string
}

// New creates a Store based on config. Call sites receive the interface and
// never branch on the backend in use.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.RedisURL != "" {
		logger.Info("using redis storage")
		return NewRedisStore(ctx, cfg.RedisURL)
	}

	logger.Info("using in-memory storage")
	return NewMemoryStore(), nil
}
