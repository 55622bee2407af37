// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steamgate/steamgate/pkg/storage"
)

// mintAccessToken plants an access token the way the token step would.
func mintAccessToken(t *testing.T, h *Handler, ttl time.Duration) string {
	t.Helper()

	token, err := h.keys.SignAccessToken(testSteamID)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, h.store.SaveAccessToken(context.Background(), &storage.AccessToken{
		Token:     token,
		SteamID:   testSteamID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}))
	return token
}

func userInfoRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestUserInfo(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	token := mintAccessToken(t, h, time.Hour)

	rec := httptest.NewRecorder()
	h.UserInfo(rec, userInfoRequest(token))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"sub": "76561198000000001",
		"name": "Gordon",
		"picture": "https://avatars.example.com/full.jpg",
		"preferred_username": "Gordon"
	}`, rec.Body.String())
}

func TestUserInfoMissingToken(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.UserInfo(rec, userInfoRequest(""))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_token")
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestUserInfoUnknownToken(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.UserInfo(rec, userInfoRequest("not-a-real-token"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_token")
}

func TestUserInfoRevokedToken(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	token := mintAccessToken(t, h, time.Hour)
	require.NoError(t, h.store.DeleteAccessToken(context.Background(), token))

	rec := httptest.NewRecorder()
	h.UserInfo(rec, userInfoRequest(token))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_token")
}

func TestUserInfoProfileFetchFailure(t *testing.T) {
	t.Parallel()

	h, _, profiles := newTestHandler(t)
	token := mintAccessToken(t, h, time.Hour)
	profiles.err = assert.AnError

	rec := httptest.NewRecorder()
	h.UserInfo(rec, userInfoRequest(token))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "server_error")
}
