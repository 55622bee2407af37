// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package keys provides signing key management for the provider.
//
// The Ed25519 keypair is re-derived from the configured secret on every
// process start, so the JWKS is stable across restarts and across
// horizontally scaled instances without a shared key store.
package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/crypto/hkdf"
)

// KeyID identifies the single active signing key. There is no rotation;
// the key is fully determined by the configured secret.
const KeyID = "steam-oidc-key-1"

// Domain-separation labels for seed derivation. Fixed so the same secret
// used elsewhere can never yield this signing key.
const (
	hkdfSalt = "steam-oidc-provider"
	hkdfInfo = "ed25519-seed"
)

// IDTokenClaims contains the claims signed into an ID token.
// See OIDC Core Section 2 for the registered claim definitions.
type IDTokenClaims struct {
	// Issuer is the issuer identifier (iss claim).
	Issuer string

	// Subject is the subject identifier, here a 64-bit Steam ID (sub claim).
	Subject string

	// Audience is the client the token is intended for (aud claim).
	Audience string

	// ExpiresAt is the expiration time (exp claim).
	ExpiresAt time.Time

	// IssuedAt is the time the token was issued (iat claim).
	IssuedAt time.Time

	// Nonce associates the client session with the token when supplied.
	Nonce string

	// Profile display claims.
	Name              string
	Picture           string
	PreferredUsername string
}

// Manager derives the signing keypair from a secret and signs tokens.
// A constructed Manager is always ready to sign; construction failure is a
// startup error, not a per-request condition.
type Manager struct {
	signer         jose.Signer
	publicJWK      jose.JSONWebKey
	issuer         string
	accessTokenTTL time.Duration
}

// NewManager derives the Ed25519 keypair from secret and prepares the
// EdDSA signer. The same secret always yields the same keypair.
func NewManager(secret, issuer string, accessTokenTTL time.Duration) (*Manager, error) {
	seed := make([]byte, ed25519.SeedSize)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(hkdfSalt), []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, seed); err != nil {
		return nil, fmt.Errorf("failed to derive signing key seed: %w", err)
	}

	privateKey := ed25519.NewKeyFromSeed(seed)

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.EdDSA,
		Key:       jose.JSONWebKey{Key: privateKey, KeyID: KeyID},
	}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("failed to create token signer: %w", err)
	}

	return &Manager{
		signer: signer,
		publicJWK: jose.JSONWebKey{
			Key:       privateKey.Public(),
			KeyID:     KeyID,
			Algorithm: string(jose.EdDSA),
			Use:       "sig",
		},
		issuer:         issuer,
		accessTokenTTL: accessTokenTTL,
	}, nil
}

// SignIDToken produces a signed JWT carrying the supplied claims.
func (m *Manager) SignIDToken(claims *IDTokenClaims) (string, error) {
	registered := jwt.Claims{
		Issuer:   claims.Issuer,
		Subject:  claims.Subject,
		Audience: jwt.Audience{claims.Audience},
		Expiry:   jwt.NewNumericDate(claims.ExpiresAt),
		IssuedAt: jwt.NewNumericDate(claims.IssuedAt),
	}

	profile := map[string]any{
		"name":               claims.Name,
		"picture":            claims.Picture,
		"preferred_username": claims.PreferredUsername,
	}
	if claims.Nonce != "" {
		profile["nonce"] = claims.Nonce
	}

	token, err := jwt.Signed(m.signer).Claims(registered).Claims(profile).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}
	return token, nil
}

// SignAccessToken produces a signed JWT carrying only sub, iss, iat and exp.
// The token is opaque to the relying party; the credential store, not the
// embedded expiry, is the source of truth for validity.
func (m *Manager) SignAccessToken(subjectID string) (string, error) {
	now := time.Now()

	token, err := jwt.Signed(m.signer).Claims(jwt.Claims{
		Issuer:   m.issuer,
		Subject:  subjectID,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(m.accessTokenTTL)),
	}).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, nil
}

// JWKS returns the public key set for the jwks endpoint.
// The private component is never part of this output.
func (m *Manager) JWKS() *jose.JSONWebKeySet {
	return &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{m.publicJWK}}
}
