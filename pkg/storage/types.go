// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage provides expiring, atomically consumable credential
// storage for authorization codes and access tokens.
//
// Two backends implement the same contract: in-memory (single instance) and
// Redis (multi-instance, server-side TTL). Callers must not depend on which
// backend is active.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a record is absent, expired, or already
// consumed. The causes are deliberately not distinguished.
var ErrNotFound = errors.New("record not found")

// AuthorizationCode is a single, one-time-redeemable grant minted by the
// callback step. Once consumed it is unreachable by any subsequent lookup.
type AuthorizationCode struct {
	// Code is the opaque random token used as the lookup key.
	Code string `json:"code"`

	// SteamID is the verified 64-bit Steam ID of the subject.
	SteamID string `json:"steamId"`

	// ClientID and RedirectURI bind the code to the request that minted it.
	ClientID    string `json:"clientId"`
	RedirectURI string `json:"redirectUri"`

	// Nonce is carried into the ID token when present.
	Nonce string `json:"nonce,omitempty"`

	// CodeChallenge and CodeChallengeMethod carry the PKCE challenge.
	// Only S256 is supported.
	CodeChallenge       string `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string `json:"codeChallengeMethod,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsExpired reports whether the code's lifetime has elapsed.
func (c *AuthorizationCode) IsExpired() bool {
	return !time.Now().Before(c.ExpiresAt)
}

// Validate checks that a record read back from storage has the expected
// shape. Records failing validation are treated as corrupt.
func (c *AuthorizationCode) Validate() error {
	switch {
	case c.Code == "":
		return fmt.Errorf("authorization code missing code")
	case c.SteamID == "":
		return fmt.Errorf("authorization code missing steam id")
	case c.ClientID == "":
		return fmt.Errorf("authorization code missing client id")
	case c.RedirectURI == "":
		return fmt.Errorf("authorization code missing redirect uri")
	case c.ExpiresAt.IsZero():
		return fmt.Errorf("authorization code missing expiry")
	}
	return nil
}

// AccessToken is an issued opaque bearer credential. Unlike authorization
// codes it is retrievable multiple times until expiry.
type AccessToken struct {
	// Token is the signed JWT string, used as the lookup key.
	Token string `json:"token"`

	// SteamID is the subject the token was issued for.
	SteamID string `json:"steamId"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsExpired reports whether the token's lifetime has elapsed.
func (t *AccessToken) IsExpired() bool {
	return !time.Now().Before(t.ExpiresAt)
}

// Validate checks that a record read back from storage has the expected shape.
func (t *AccessToken) Validate() error {
	switch {
	case t.Token == "":
		return fmt.Errorf("access token missing token")
	case t.SteamID == "":
		return fmt.Errorf("access token missing steam id")
	case t.ExpiresAt.IsZero():
		return fmt.Errorf("access token missing expiry")
	}
	return nil
}

// Store is the credential storage contract shared by all backends.
//
// Save operations silently skip records whose TTL has already elapsed; an
// expired record is never written. Get operations never return expired
// records: a record found expired is proactively deleted and reported as
// not found. Delete operations are idempotent.
type Store interface {
	// SaveAuthCode persists an authorization code until its expiry.
	SaveAuthCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthCode returns the code if present and unexpired.
	GetAuthCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// ConsumeAuthCode atomically retrieves and removes an authorization
	// code. At most one of any number of concurrent callers succeeds; no
	// caller can observe a retrieved-but-not-removed window.
	ConsumeAuthCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteAuthCode removes a code. Absent codes are not an error.
	DeleteAuthCode(ctx context.Context, code string) error

	// SaveAccessToken persists an access token until its expiry.
	SaveAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken returns the token if present and unexpired.
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)

	// DeleteAccessToken removes a token. Absent tokens are not an error.
	DeleteAccessToken(ctx context.Context, token string) error

	// Close releases backend resources.
	Close() error
}
