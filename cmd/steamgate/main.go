// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

// Command steamgate runs the Steam OIDC provider.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/steamgate/steamgate/pkg/config"
	"github.com/steamgate/steamgate/pkg/keys"
	"github.com/steamgate/steamgate/pkg/logger"
	"github.com/steamgate/steamgate/pkg/provider"
	"github.com/steamgate/steamgate/pkg/state"
	"github.com/steamgate/steamgate/pkg/steam"
	"github.com/steamgate/steamgate/pkg/storage"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		logger.Errorf("steamgate exited with error: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Initialize(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, storage.Config{RedisURL: cfg.RedisURL})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnw("failed to close storage", "error", err)
		}
	}()

	keyManager, err := keys.NewManager(cfg.JWTSecret, cfg.IssuerURL, cfg.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize signing keys: %w", err)
	}

	handler := provider.New(
		cfg,
		store,
		keyManager,
		state.NewCodec([]byte(cfg.JWTSecret)),
		steam.NewRelyingParty(cfg.IssuerURL),
		steam.NewProfileClient(cfg.SteamAPIKey),
	)

	router := chi.NewRouter()
	router.Mount(cfg.BasePath, handler.Routes())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("starting steamgate",
			"port", cfg.Port,
			"issuer", cfg.IssuerURL,
			"storage", storageBackend(cfg),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped with error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("steamgate stopped")
	return nil
}

func storageBackend(cfg *config.Config) string {
	if cfg.RedisURL != "" {
		return "redis"
	}
	return "memory"
}
