// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/steamgate/steamgate/pkg/keys"
	"github.com/steamgate/steamgate/pkg/logger"
	"github.com/steamgate/steamgate/pkg/storage"
)

// tokenRequest is the token endpoint request body, accepted as either a
// form or JSON.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	CodeVerifier string `json:"code_verifier"`
}

// tokenResponse is the successful token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	IDToken     string `json:"id_token"`
}

// Token handles POST /token: it authenticates the client, redeems the
// authorization code exactly once, verifies PKCE and returns the ID and
// access tokens.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	req, err := parseTokenRequest(r)
	if err != nil {
		writeError(w, invalidRequest("Malformed request body"))
		return
	}

	// HTTP Basic credentials take precedence over body credentials.
	clientID, clientSecret := req.ClientID, req.ClientSecret
	if basicID, basicSecret, ok := r.BasicAuth(); ok {
		clientID, clientSecret = basicID, basicSecret
	}

	if req.GrantType != "authorization_code" {
		writeError(w, unsupportedGrantType("Only the authorization_code grant is supported"))
		return
	}
	if !h.authenticateClient(clientID, clientSecret) {
		writeError(w, invalidClient("Invalid client credentials"))
		return
	}
	if req.Code == "" {
		writeError(w, invalidRequest("code is required"))
		return
	}

	code, err := h.store.ConsumeAuthCode(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, invalidGrant("Authorization code is invalid, expired or already used"))
			return
		}
		logger.Errorw("failed to consume authorization code", "error", err)
		writeError(w, serverError("Failed to redeem authorization code"))
		return
	}

	if req.RedirectURI != "" && code.RedirectURI != req.RedirectURI {
		writeError(w, invalidGrant("redirect_uri does not match the authorization request"))
		return
	}
	if code.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			writeError(w, invalidGrant("code_verifier is required"))
			return
		}
		if oauth2.S256ChallengeFromVerifier(req.CodeVerifier) != code.CodeChallenge {
			writeError(w, invalidGrant("code_verifier does not match the code_challenge"))
			return
		}
	}

	profile, err := h.profiles.Profile(r.Context(), code.SteamID)
	if err != nil {
		logger.Errorw("failed to fetch steam profile", "steam_id", code.SteamID, "error", err)
		writeError(w, serverError("Failed to fetch user profile"))
		return
	}

	now := time.Now()
	idToken, err := h.keys.SignIDToken(&keys.IDTokenClaims{
		Issuer:            h.cfg.IssuerURL,
		Subject:           code.SteamID,
		Audience:          code.ClientID,
		ExpiresAt:         now.Add(h.cfg.AccessTokenTTL),
		IssuedAt:          now,
		Nonce:             code.Nonce,
		Name:              profile.PersonaName,
		Picture:           profile.AvatarFull,
		PreferredUsername: profile.PersonaName,
	})
	if err != nil {
		logger.Errorw("failed to sign id token", "error", err)
		writeError(w, serverError("Failed to issue tokens"))
		return
	}

	accessToken, err := h.keys.SignAccessToken(code.SteamID)
	if err != nil {
		logger.Errorw("failed to sign access token", "error", err)
		writeError(w, serverError("Failed to issue tokens"))
		return
	}

	if err := h.store.SaveAccessToken(r.Context(), &storage.AccessToken{
		Token:     accessToken,
		SteamID:   code.SteamID,
		CreatedAt: now,
		ExpiresAt: now.Add(h.cfg.AccessTokenTTL),
	}); err != nil {
		logger.Errorw("failed to store access token", "error", err)
		writeError(w, serverError("Failed to issue tokens"))
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.cfg.AccessTokenTTL.Seconds()),
		IDToken:     idToken,
	})
}

// authenticateClient compares both credential halves in constant time.
func (h *Handler) authenticateClient(clientID, clientSecret string) bool {
	idOK := subtle.ConstantTimeCompare([]byte(clientID), []byte(h.cfg.ClientID)) == 1
	secretOK := subtle.ConstantTimeCompare([]byte(clientSecret), []byte(h.cfg.ClientSecret)) == 1
	return idOK && secretOK
}

func parseTokenRequest(r *http.Request) (*tokenRequest, error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if contentType == "application/json" {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return &tokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		ClientID:     r.PostForm.Get("client_id"),
		ClientSecret: r.PostForm.Get("client_secret"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
	}, nil
}
