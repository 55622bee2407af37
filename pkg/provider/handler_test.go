// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steamgate/steamgate/pkg/config"
	"github.com/steamgate/steamgate/pkg/keys"
	"github.com/steamgate/steamgate/pkg/state"
	"github.com/steamgate/steamgate/pkg/steam"
	"github.com/steamgate/steamgate/pkg/storage"
)

const (
	testClientID     = "test-client"
	testClientSecret = "test-secret"
	testIssuer       = "https://auth.example.com"
	testRedirectURI  = "https://game.example.com/callback"
	testSteamID      = "76561198000000001"
)

// fakeVerifier stands in for the Steam OpenID relying party.
type fakeVerifier struct {
	steamID   string
	verifyErr error

	lastRequestURL string
}

func (f *fakeVerifier) AuthURL(callerState string) (string, error) {
	u := "https://steamcommunity.com/openid/login"
	if callerState != "" {
		u += "?state=" + url.QueryEscape(callerState)
	}
	return u, nil
}

func (f *fakeVerifier) VerifyAssertion(_ context.Context, requestURL string) (string, error) {
	f.lastRequestURL = requestURL
	return f.steamID, f.verifyErr
}

// fakeProfiles stands in for the Steam Web API profile client.
type fakeProfiles struct {
	profiles map[string]*steam.Profile
	err      error
}

func (f *fakeProfiles) Profile(_ context.Context, steamID string) (*steam.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	profile, ok := f.profiles[steamID]
	if !ok {
		return nil, steam.ErrProfileNotFound
	}
	return profile, nil
}

func testConfig() *config.Config {
	return &config.Config{
		SteamAPIKey:    "test-api-key",
		ClientID:       testClientID,
		ClientSecret:   testClientSecret,
		IssuerURL:      testIssuer,
		RedirectURIs:   []string{testRedirectURI},
		JWTSecret:      strings.Repeat("0", 32),
		AccessTokenTTL: time.Hour,
		AuthCodeTTL:    5 * time.Minute,
	}
}

// newTestHandler wires a Handler to a memory store and fake upstreams.
func newTestHandler(t *testing.T) (*Handler, *fakeVerifier, *fakeProfiles) {
	t.Helper()

	cfg := testConfig()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	keyManager, err := keys.NewManager(cfg.JWTSecret, cfg.IssuerURL, cfg.AccessTokenTTL)
	require.NoError(t, err)

	verifier := &fakeVerifier{steamID: testSteamID}
	profiles := &fakeProfiles{profiles: map[string]*steam.Profile{
		testSteamID: {
			SteamID:     testSteamID,
			PersonaName: "Gordon",
			AvatarFull:  "https://avatars.example.com/full.jpg",
		},
	}}

	h := New(cfg, store, keyManager, state.NewCodec([]byte(cfg.JWTSecret)), verifier, profiles)
	return h, verifier, profiles
}

// signedState produces a valid state cookie value for callback tests.
func signedState(t *testing.T, h *Handler, authState *state.AuthState) string {
	t.Helper()

	blob, err := h.codec.Sign(authState)
	require.NoError(t, err)
	return blob
}
