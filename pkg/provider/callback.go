// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"net/http"
	"net/url"
	"time"

	"github.com/steamgate/steamgate/pkg/logger"
	"github.com/steamgate/steamgate/pkg/middleware"
	"github.com/steamgate/steamgate/pkg/state"
	"github.com/steamgate/steamgate/pkg/storage"
)

// Callback handles GET /callback: Steam redirects the browser here after
// login. The signed state cookie re-establishes the original authorization
// request; the OpenID assertion in the query string is verified upstream.
//
// The cookie is cleared on every path through this handler. Failures after
// the state is authenticated redirect back to the client with
// error=access_denied; failures before that are reported directly, since
// without a verified state there is no trusted redirect target.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		writeError(w, invalidRequest("Missing authorization state"))
		return
	}
	h.clearStateCookie(w)

	authState, ok := h.codec.Verify(cookie.Value)
	if !ok {
		writeError(w, invalidRequest("Invalid authorization state"))
		return
	}

	// The allow-list may have changed while the login was pending.
	if !h.cfg.IsAllowedRedirectURI(authState.RedirectURI) {
		writeError(w, invalidRequest("redirect_uri is not registered for this client"))
		return
	}

	steamID, err := h.verifier.VerifyAssertion(r.Context(), h.externalURL(r))
	if err != nil {
		logger.Warnw("openid assertion verification failed", "error", err)
		h.redirectError(w, r, authState, "Steam authentication could not be verified")
		return
	}
	if steamID == "" {
		h.redirectError(w, r, authState, "Steam authentication was cancelled or rejected")
		return
	}

	code, err := newAuthCode()
	if err != nil {
		logger.Errorw("failed to mint authorization code", "error", err)
		writeError(w, serverError("Failed to complete authorization"))
		return
	}

	now := time.Now()
	record := &storage.AuthorizationCode{
		Code:                code,
		SteamID:             steamID,
		ClientID:            authState.ClientID,
		RedirectURI:         authState.RedirectURI,
		Nonce:               authState.Nonce,
		CodeChallenge:       authState.CodeChallenge,
		CodeChallengeMethod: authState.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(h.cfg.AuthCodeTTL),
	}
	if err := h.store.SaveAuthCode(r.Context(), record); err != nil {
		logger.Errorw("failed to store authorization code", "error", err)
		writeError(w, serverError("Failed to complete authorization"))
		return
	}

	target, err := url.Parse(authState.RedirectURI)
	if err != nil {
		writeError(w, invalidRequest("Invalid redirect_uri"))
		return
	}
	q := target.Query()
	q.Set("code", code)
	if authState.State != "" {
		q.Set("state", authState.State)
	}
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

// redirectError sends the browser back to the client with a generic
// access_denied. Upstream failure detail stays in the server log.
func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, authState *state.AuthState, description string) {
	target, err := url.Parse(authState.RedirectURI)
	if err != nil {
		writeError(w, invalidRequest("Invalid redirect_uri"))
		return
	}

	q := target.Query()
	q.Set("error", "access_denied")
	q.Set("error_description", description)
	if authState.State != "" {
		q.Set("state", authState.State)
	}
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

// externalURL reconstructs the URL Steam redirected to, as seen from
// outside any reverse proxy. The assertion's return_to must match it.
func (h *Handler) externalURL(r *http.Request) string {
	return middleware.Scheme(r, h.cfg.TrustedProxy) + "://" + r.Host + r.URL.RequestURI()
}
