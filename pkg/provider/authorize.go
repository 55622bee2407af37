// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"net/http"

	"github.com/steamgate/steamgate/pkg/logger"
	"github.com/steamgate/steamgate/pkg/state"
)

// Authorize handles GET /authorize: it validates the client's request,
// packs the flow parameters into a signed cookie and redirects the browser
// to Steam's OpenID login.
//
// Validation failures here are reported directly to the user agent, never
// redirected: the redirect URI is not yet trusted at this point.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	responseType := q.Get("response_type")

	if clientID == "" || redirectURI == "" || responseType == "" {
		writeError(w, invalidRequest("client_id, redirect_uri and response_type are required"))
		return
	}
	if clientID != h.cfg.ClientID {
		writeError(w, invalidClient("Unknown client"))
		return
	}
	if !h.cfg.IsAllowedRedirectURI(redirectURI) {
		writeError(w, invalidRequest("redirect_uri is not registered for this client"))
		return
	}
	if responseType != "code" {
		writeError(w, unsupportedResponseType("Only the authorization code flow is supported"))
		return
	}

	codeChallenge := q.Get("code_challenge")
	codeChallengeMethod := q.Get("code_challenge_method")
	if codeChallenge != "" && codeChallengeMethod != "S256" {
		writeError(w, invalidRequest("Only the S256 code_challenge_method is supported"))
		return
	}
	if codeChallenge == "" && codeChallengeMethod != "" {
		writeError(w, invalidRequest("code_challenge_method requires a code_challenge"))
		return
	}

	callerState := q.Get("state")
	signed, err := h.codec.Sign(&state.AuthState{
		State:               callerState,
		Nonce:               q.Get("nonce"),
		RedirectURI:         redirectURI,
		ClientID:            clientID,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
	})
	if err != nil {
		logger.Errorw("failed to sign authorization state", "error", err)
		writeError(w, serverError("Failed to initiate authorization"))
		return
	}

	loginURL, err := h.verifier.AuthURL(callerState)
	if err != nil {
		logger.Errorw("failed to build upstream login url", "error", err)
		writeError(w, serverError("Failed to initiate authorization"))
		return
	}

	h.setStateCookie(w, signed)
	http.Redirect(w, r, loginURL, http.StatusFound)
}
