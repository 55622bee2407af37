// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate limit windows. The global limit covers every endpoint; the authorize
// and token limits are tighter because those endpoints mint credentials.
const (
	GlobalRateLimit     = 100
	GlobalRateWindow    = 1 * time.Minute
	AuthorizeRateLimit  = 30
	AuthorizeRateWindow = 5 * time.Minute
	TokenRateLimit      = 10
	TokenRateWindow     = 15 * time.Minute
)

// idle entries are evicted after this long without a request.
const limiterIdleTTL = 30 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token-bucket limit per client IP. The bucket refills
// at limit/window and allows bursts up to the full limit, which over any
// window admits at most 2x limit requests and steady-state exactly limit.
type RateLimiter struct {
	limit      rate.Limit
	burst      int
	trustProxy bool

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewRateLimiter creates a limiter admitting limit requests per window for
// each client IP.
func NewRateLimiter(limit int, window time.Duration, trustProxy bool) *RateLimiter {
	return &RateLimiter{
		limit:      rate.Every(window / time.Duration(limit)),
		burst:      limit,
		trustProxy: trustProxy,
		clients:    make(map[string]*clientLimiter),
	}
}

// Handler rejects over-limit requests with 429 and a Retry-After hint.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(ClientIP(r, rl.trustProxy)) {
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"temporarily_unavailable","error_description":"Rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.clients[key]
	if !ok {
		rl.prune()
		client = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = client
	}
	client.lastSeen = time.Now()
	return client.limiter.Allow()
}

// prune drops idle entries. Called with rl.mu held, only when a new client
// appears, so steady traffic from known clients never pays for it.
func (rl *RateLimiter) prune() {
	cutoff := time.Now().Add(-limiterIdleTTL)
	for key, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}
