// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/steamgate/steamgate/pkg/steam"
)

const (
	healthProbeTimeout = 2 * time.Second
	healthCacheTTL     = 30 * time.Second
)

// healthChecker probes Steam reachability, caching the result so health
// polling cannot hammer the upstream.
type healthChecker struct {
	probeURL   string
	httpClient *http.Client
	group      singleflight.Group

	mu        sync.Mutex
	reachable bool
	checkedAt time.Time
}

func newHealthChecker() *healthChecker {
	return &healthChecker{
		probeURL:   steam.OpenIDURL,
		httpClient: &http.Client{Timeout: healthProbeTimeout},
	}
}

// steamReachable returns the cached probe result, refreshing it when the
// cache window has lapsed. The mutex guards only the cached fields; the
// probe round-trip runs outside it, with concurrent refreshes coalesced
// into a single upstream request.
func (hc *healthChecker) steamReachable(ctx context.Context) bool {
	hc.mu.Lock()
	if time.Since(hc.checkedAt) < healthCacheTTL {
		reachable := hc.reachable
		hc.mu.Unlock()
		return reachable
	}
	hc.mu.Unlock()

	result, _, _ := hc.group.Do("steam", func() (any, error) {
		reachable := hc.probe(ctx)

		hc.mu.Lock()
		hc.reachable = reachable
		hc.checkedAt = time.Now()
		hc.mu.Unlock()

		return reachable, nil
	})
	return result.(bool)
}

func (hc *healthChecker) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, hc.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := hc.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// healthResponse reports provider liveness and upstream reachability.
type healthResponse struct {
	Status string `json:"status"`
	Steam  string `json:"steam"`
}

// Health handles GET /health: 200 when Steam is reachable, 503 when not.
// The provider itself answering is the liveness half of the check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health.steamReachable(r.Context()) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Steam: "reachable"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Steam: "unreachable"})
}
