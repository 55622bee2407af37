// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"net/http"
	"net/url"
)

// CORS restricts cross-origin access to the origins the deployment already
// trusts: the issuer itself and the origins of the registered redirect URIs.
type CORS struct {
	allowedOrigins map[string]struct{}
}

// NewCORS derives the allowed origin set from the issuer URL and the
// redirect URI allow-list. Unparseable entries are skipped.
func NewCORS(issuerURL string, redirectURIs []string) *CORS {
	allowed := make(map[string]struct{})
	for _, raw := range append([]string{issuerURL}, redirectURIs...) {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		allowed[u.Scheme+"://"+u.Host] = struct{}{}
	}
	return &CORS{allowedOrigins: allowed}
}

// Handler answers preflight requests and sets the CORS response headers for
// allowed origins. Requests from unlisted origins pass through without CORS
// headers; the browser enforces the denial.
func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if _, ok := c.allowedOrigins[origin]; ok {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Max-Age", "600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
