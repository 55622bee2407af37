// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package middleware provides the HTTP middleware shared by all endpoints:
// client address resolution, CORS, rate limiting and security headers.
package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the address of the requesting client. X-Forwarded-For
// is honored only when trustProxy is set, since anyone can send the header;
// the first entry is the originating client as recorded by the proxy.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Scheme resolves the external scheme of the request, honoring
// X-Forwarded-Proto only when trustProxy is set.
func Scheme(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			return proto
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
