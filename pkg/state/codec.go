// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package state signs and verifies the authorization state carried in a
// short-lived cookie between the authorize and callback steps.
//
// The blob is integrity-protected, not encrypted: the payload (redirect URI,
// client id, PKCE challenge, nonce, caller state) is not confidential. The
// HMAC lets the server verify it issued the cookie without remembering it.
package state

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// AuthState is the payload carried through the upstream redirect.
// It is held only in the signed cookie, never persisted server-side.
type AuthState struct {
	// State is the caller's opaque state parameter, echoed back unchanged.
	State string `json:"state,omitempty"`

	// Nonce is bound into the ID token when supplied.
	Nonce string `json:"nonce,omitempty"`

	// RedirectURI is the client callback the flow will return to.
	RedirectURI string `json:"redirectUri"`

	// ClientID is the client that initiated the flow.
	ClientID string `json:"clientId"`

	// CodeChallenge and CodeChallengeMethod carry the PKCE challenge.
	CodeChallenge       string `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string `json:"codeChallengeMethod,omitempty"`
}

// Codec signs and verifies state blobs with HMAC-SHA256.
type Codec struct {
	secret []byte
}

// NewCodec creates a Codec using the given signing secret.
func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret}
}

// Sign serializes the payload and returns
// "base64url(payload) + '.' + base64url(HMAC-SHA256(payload))".
func (c *Codec) Sign(payload *AuthState) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data) + "." + base64.RawURLEncoding.EncodeToString(c.mac(data)), nil
}

// Verify checks the signature and returns the decoded payload.
// Every rejection reason (wrong part count, malformed base64, bad JSON,
// signature mismatch) reports the same false result so callers cannot be
// used as an oracle for why a cookie was rejected.
func (c *Codec) Verify(blob string) (*AuthState, bool) {
	parts := strings.Split(blob, ".")
	if len(parts) != 2 {
		return nil, false
	}

	data, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, false
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, false
	}

	if !hmac.Equal(c.mac(data), sig) {
		return nil, false
	}

	var payload AuthState
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false
	}
	return &payload, true
}

func (c *Codec) mac(data []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(data)
	return mac.Sum(nil)
}
