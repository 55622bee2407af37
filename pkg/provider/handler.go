// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider implements the OIDC endpoints: authorize, callback,
// token, userinfo, discovery, jwks and health.
package provider

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/steamgate/steamgate/pkg/config"
	"github.com/steamgate/steamgate/pkg/keys"
	"github.com/steamgate/steamgate/pkg/middleware"
	"github.com/steamgate/steamgate/pkg/state"
	"github.com/steamgate/steamgate/pkg/steam"
	"github.com/steamgate/steamgate/pkg/storage"
)

// stateCookieName is the cookie carrying the signed authorization state
// between the authorize and callback steps.
const stateCookieName = "oidc_state"

// stateCookieMaxAge bounds how long a pending login may take.
const stateCookieMaxAge = 600

// authCodeBytes is the entropy of a minted authorization code.
const authCodeBytes = 32

// AssertionVerifier is the upstream identity boundary: it produces the
// login redirect URL and verifies the returned assertion.
type AssertionVerifier interface {
	AuthURL(callerState string) (string, error)
	VerifyAssertion(ctx context.Context, requestURL string) (string, error)
}

// ProfileFetcher resolves a Steam ID to its public profile.
type ProfileFetcher interface {
	Profile(ctx context.Context, steamID string) (*steam.Profile, error)
}

var (
	_ AssertionVerifier = (*steam.RelyingParty)(nil)
	_ ProfileFetcher    = (*steam.ProfileClient)(nil)
)

// Handler serves the provider endpoints. All dependencies are explicit;
// tests substitute the upstream boundaries with fakes.
type Handler struct {
	cfg      *config.Config
	store    storage.Store
	keys     *keys.Manager
	codec    *state.Codec
	verifier AssertionVerifier
	profiles ProfileFetcher
	health   *healthChecker

	cookieSecure bool
}

// New creates a Handler wired to the given dependencies.
func New(
	cfg *config.Config,
	store storage.Store,
	keyManager *keys.Manager,
	codec *state.Codec,
	verifier AssertionVerifier,
	profiles ProfileFetcher,
) *Handler {
	return &Handler{
		cfg:          cfg,
		store:        store,
		keys:         keyManager,
		codec:        codec,
		verifier:     verifier,
		profiles:     profiles,
		health:       newHealthChecker(),
		cookieSecure: strings.HasPrefix(cfg.IssuerURL, "https://"),
	}
}

// Routes returns the provider's router. Rate limits are tighter on the
// endpoints that mint credentials than on the rest.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	cors := middleware.NewCORS(h.cfg.IssuerURL, h.cfg.RedirectURIs)
	global := middleware.NewRateLimiter(middleware.GlobalRateLimit, middleware.GlobalRateWindow, h.cfg.TrustedProxy)
	authorize := middleware.NewRateLimiter(middleware.AuthorizeRateLimit, middleware.AuthorizeRateWindow, h.cfg.TrustedProxy)
	token := middleware.NewRateLimiter(middleware.TokenRateLimit, middleware.TokenRateWindow, h.cfg.TrustedProxy)

	r.Use(
		chimiddleware.RequestID,
		middleware.SecurityHeaders,
		cors.Handler,
		global.Handler,
	)

	r.With(authorize.Handler).Get("/authorize", h.Authorize)
	r.Get("/callback", h.Callback)
	r.With(token.Handler).Post("/token", h.Token)
	r.Get("/userinfo", h.UserInfo)
	r.Post("/userinfo", h.UserInfo)
	r.Get("/.well-known/openid-configuration", h.Discovery)
	r.Get("/jwks", h.JWKS)
	r.Get("/.well-known/jwks.json", h.JWKS)
	r.Get("/health", h.Health)

	return r
}

// newAuthCode mints an opaque authorization code: 32 random bytes,
// base64url without padding.
func newAuthCode() (string, error) {
	buf := make([]byte, authCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// setStateCookie attaches the signed state blob to the response.
func (h *Handler) setStateCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearStateCookie expires the state cookie. The cookie is single-use
// regardless of the callback outcome.
func (h *Handler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
