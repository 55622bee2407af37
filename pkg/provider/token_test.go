// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/steamgate/steamgate/pkg/storage"
)

const testCodeVerifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

// mintCode plants an authorization code the way the callback step would.
func mintCode(t *testing.T, h *Handler, mutate func(*storage.AuthorizationCode)) string {
	t.Helper()

	code, err := newAuthCode()
	require.NoError(t, err)

	now := time.Now()
	record := &storage.AuthorizationCode{
		Code:        code,
		SteamID:     testSteamID,
		ClientID:    testClientID,
		RedirectURI: testRedirectURI,
		Nonce:       "caller-nonce",
		CreatedAt:   now,
		ExpiresAt:   now.Add(5 * time.Minute),
	}
	if mutate != nil {
		mutate(record)
	}
	require.NoError(t, h.store.SaveAuthCode(context.Background(), record))
	return code
}

func tokenForm(code string) url.Values {
	return url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
	}
}

func postTokenForm(h *Handler, form url.Values) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Token(rec, r)
	return rec
}

func decodeTokenResponse(t *testing.T, rec *httptest.ResponseRecorder) tokenResponse {
	t.Helper()

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestTokenRedirectURIOptional(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	form := tokenForm(mintCode(t, h, nil))
	form.Del("redirect_uri")

	rec := postTokenForm(h, form)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestTokenIssuesTokens(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	code := mintCode(t, h, nil)

	rec := postTokenForm(h, tokenForm(code))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeTokenResponse(t, rec)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.NotEmpty(t, resp.AccessToken)

	// The ID token verifies against the published JWKS and carries the
	// subject and profile claims.
	parsed, err := jwt.ParseSigned(resp.IDToken, []jose.SignatureAlgorithm{jose.EdDSA})
	require.NoError(t, err)

	var claims map[string]any
	require.NoError(t, parsed.Claims(h.keys.JWKS().Keys[0].Key, &claims))
	assert.Equal(t, testIssuer, claims["iss"])
	assert.Equal(t, testSteamID, claims["sub"])
	assert.Equal(t, "caller-nonce", claims["nonce"])
	assert.Equal(t, "Gordon", claims["name"])
	assert.Equal(t, "Gordon", claims["preferred_username"])
	assert.Equal(t, "https://avatars.example.com/full.jpg", claims["picture"])

	// The access token is retrievable from the store.
	record, err := h.store.GetAccessToken(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testSteamID, record.SteamID)
}

func TestTokenAcceptsJSONBody(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	code := mintCode(t, h, nil)

	body, err := json.Marshal(map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"redirect_uri":  testRedirectURI,
		"client_id":     testClientID,
		"client_secret": testClientSecret,
	})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(string(body)))
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Token(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestTokenBasicAuthPrecedence(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	code := mintCode(t, h, nil)

	// Correct Basic credentials beat wrong body credentials.
	form := tokenForm(code)
	form.Set("client_id", "wrong")
	form.Set("client_secret", "wrong")

	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.SetBasicAuth(testClientID, testClientSecret)
	rec := httptest.NewRecorder()
	h.Token(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestTokenBasicAuthWrongOverridesBody(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	code := mintCode(t, h, nil)

	// Wrong Basic credentials fail even when the body carries correct ones.
	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(tokenForm(code).Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.SetBasicAuth(testClientID, "wrong")
	rec := httptest.NewRecorder()
	h.Token(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_client")
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestTokenSingleUse(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	code := mintCode(t, h, nil)

	require.Equal(t, http.StatusOK, postTokenForm(h, tokenForm(code)).Code)

	rec := postTokenForm(h, tokenForm(code))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_grant")
}

func TestTokenValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mutate     func(url.Values)
		wantStatus int
		wantError  string
	}{
		{
			name:       "unsupported grant type",
			mutate:     func(f url.Values) { f.Set("grant_type", "client_credentials") },
			wantStatus: http.StatusBadRequest,
			wantError:  "unsupported_grant_type",
		},
		{
			name:       "wrong client secret",
			mutate:     func(f url.Values) { f.Set("client_secret", "wrong") },
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_client",
		},
		{
			name:       "wrong client id",
			mutate:     func(f url.Values) { f.Set("client_id", "wrong") },
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_client",
		},
		{
			name:       "missing code",
			mutate:     func(f url.Values) { f.Del("code") },
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_request",
		},
		{
			name:       "unknown code",
			mutate:     func(f url.Values) { f.Set("code", "no-such-code") },
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_grant",
		},
		{
			name:       "redirect uri mismatch",
			mutate:     func(f url.Values) { f.Set("redirect_uri", "https://game.example.com/other") },
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_grant",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, _, _ := newTestHandler(t)
			form := tokenForm(mintCode(t, h, nil))
			tt.mutate(form)

			rec := postTokenForm(h, form)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantError)
		})
	}
}

func TestTokenPKCE(t *testing.T) {
	t.Parallel()

	challenge := oauth2.S256ChallengeFromVerifier(testCodeVerifier)
	withChallenge := func(c *storage.AuthorizationCode) {
		c.CodeChallenge = challenge
		c.CodeChallengeMethod = "S256"
	}

	t.Run("matching verifier succeeds", func(t *testing.T) {
		t.Parallel()

		h, _, _ := newTestHandler(t)
		form := tokenForm(mintCode(t, h, withChallenge))
		form.Set("code_verifier", testCodeVerifier)

		assert.Equal(t, http.StatusOK, postTokenForm(h, form).Code)
	})

	t.Run("missing verifier rejected", func(t *testing.T) {
		t.Parallel()

		h, _, _ := newTestHandler(t)
		rec := postTokenForm(h, tokenForm(mintCode(t, h, withChallenge)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_grant")
	})

	t.Run("wrong verifier rejected", func(t *testing.T) {
		t.Parallel()

		h, _, _ := newTestHandler(t)
		form := tokenForm(mintCode(t, h, withChallenge))
		form.Set("code_verifier", testCodeVerifier+"x")

		rec := postTokenForm(h, form)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_grant")
	})

	t.Run("failed verification still consumes the code", func(t *testing.T) {
		t.Parallel()

		h, _, _ := newTestHandler(t)
		code := mintCode(t, h, withChallenge)

		form := tokenForm(code)
		form.Set("code_verifier", testCodeVerifier+"x")
		require.Equal(t, http.StatusBadRequest, postTokenForm(h, form).Code)

		form.Set("code_verifier", testCodeVerifier)
		rec := postTokenForm(h, form)
		assert.Contains(t, rec.Body.String(), "invalid_grant", "code must be burned by the failed attempt")
	})
}

func TestTokenProfileFetchFailure(t *testing.T) {
	t.Parallel()

	h, _, profiles := newTestHandler(t)
	profiles.err = assert.AnError

	rec := postTokenForm(h, tokenForm(mintCode(t, h, nil)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "server_error")
}
