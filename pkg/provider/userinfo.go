// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"errors"
	"net/http"
	"strings"

	"github.com/steamgate/steamgate/pkg/logger"
	"github.com/steamgate/steamgate/pkg/storage"
)

// userInfoResponse carries the claims for the openid and profile scopes.
type userInfoResponse struct {
	Sub               string `json:"sub"`
	Name              string `json:"name,omitempty"`
	Picture           string `json:"picture,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// UserInfo handles GET/POST /userinfo. The bearer token is opaque to the
// client: validity is decided by the credential store, not by inspecting
// the token itself.
func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, invalidToken("Missing bearer token"))
		return
	}

	record, err := h.store.GetAccessToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, invalidToken("Access token is invalid or expired"))
			return
		}
		logger.Errorw("failed to look up access token", "error", err)
		writeError(w, serverError("Failed to resolve user info"))
		return
	}

	profile, err := h.profiles.Profile(r.Context(), record.SteamID)
	if err != nil {
		logger.Errorw("failed to fetch steam profile", "steam_id", record.SteamID, "error", err)
		writeError(w, serverError("Failed to fetch user profile"))
		return
	}

	writeJSON(w, http.StatusOK, userInfoResponse{
		Sub:               record.SteamID,
		Name:              profile.PersonaName,
		Picture:           profile.AvatarFull,
		PreferredUsername: profile.PersonaName,
	})
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}
