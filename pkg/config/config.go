// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the provider configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinSecretLength is the minimum length of the signing secret in bytes.
const MinSecretLength = 32

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultAccessTokenTTL = 1 * time.Hour
	DefaultAuthCodeTTL    = 5 * time.Minute
	DefaultPort           = 3000
)

// requiredVars are the environment variables without which the provider
// cannot serve traffic.
var requiredVars = []string{
	"STEAM_API_KEY",
	"CLIENT_ID",
	"CLIENT_SECRET",
	"ISSUER_URL",
	"REDIRECT_URIS",
	"JWT_SECRET",
}

// Config holds the full provider configuration.
type Config struct {
	// SteamAPIKey authenticates requests to the Steam Web API.
	SteamAPIKey string

	// ClientID and ClientSecret identify the single registered relying party.
	ClientID     string
	ClientSecret string

	// IssuerURL is the externally visible base URL of this provider,
	// including the base path. Used as the iss claim and in discovery.
	IssuerURL string

	// RedirectURIs is the allow-list of exact redirect URIs for the client.
	RedirectURIs []string

	// JWTSecret seeds the signing keypair and signs the state cookie.
	JWTSecret string

	// RedisURL selects the Redis storage backend when non-empty.
	RedisURL string

	// AccessTokenTTL and AuthCodeTTL bound credential lifetimes.
	AccessTokenTTL time.Duration
	AuthCodeTTL    time.Duration

	// Port is the TCP port the HTTP server listens on.
	Port int

	// BasePath is the normalized path prefix all endpoints are mounted under.
	// Always starts with "/" and never ends with one (except "/" itself).
	BasePath string

	// TrustedProxy enables honoring X-Forwarded-* headers from the
	// immediate upstream proxy.
	TrustedProxy bool

	// Debug enables verbose human-readable logging.
	Debug bool
}

// Load reads and validates configuration from the environment.
// It fails fast: a missing required variable or an invalid value is a
// startup error, not something to limp along with.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ACCESS_TOKEN_TTL", int(DefaultAccessTokenTTL.Seconds()))
	v.SetDefault("AUTH_CODE_TTL", int(DefaultAuthCodeTTL.Seconds()))
	v.SetDefault("PORT", DefaultPort)
	v.SetDefault("BASE_PATH", "/")

	var missing []string
	for _, name := range requiredVars {
		if v.GetString(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	redirectURIs := splitRedirectURIs(v.GetString("REDIRECT_URIS"))
	if len(redirectURIs) == 0 {
		return nil, fmt.Errorf("REDIRECT_URIS must contain at least one valid URL")
	}

	secret := v.GetString("JWT_SECRET")
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d characters long", MinSecretLength)
	}

	basePath := normalizeBasePath(v.GetString("BASE_PATH"))

	issuerURL := strings.TrimSuffix(v.GetString("ISSUER_URL"), "/")
	if basePath != "/" {
		issuerURL += basePath
	}

	return &Config{
		SteamAPIKey:    v.GetString("STEAM_API_KEY"),
		ClientID:       v.GetString("CLIENT_ID"),
		ClientSecret:   v.GetString("CLIENT_SECRET"),
		IssuerURL:      issuerURL,
		RedirectURIs:   redirectURIs,
		JWTSecret:      secret,
		RedisURL:       v.GetString("REDIS_URL"),
		AccessTokenTTL: time.Duration(v.GetInt("ACCESS_TOKEN_TTL")) * time.Second,
		AuthCodeTTL:    time.Duration(v.GetInt("AUTH_CODE_TTL")) * time.Second,
		Port:           v.GetInt("PORT"),
		BasePath:       basePath,
		TrustedProxy:   v.GetString("TRUSTED_PROXY") == "true",
		Debug:          v.GetBool("DEBUG"),
	}, nil
}

// IsAllowedRedirectURI reports whether uri exactly matches an entry in the
// configured allow-list. Matching is exact string comparison, never prefix
// or origin based.
func (c *Config) IsAllowedRedirectURI(uri string) bool {
	for _, allowed := range c.RedirectURIs {
		if allowed == uri {
			return true
		}
	}
	return false
}

func splitRedirectURIs(raw string) []string {
	var uris []string
	for _, uri := range strings.Split(raw, ",") {
		uri = strings.TrimSpace(uri)
		if uri != "" {
			uris = append(uris, uri)
		}
	}
	return uris
}

// normalizeBasePath ensures a leading slash and strips any trailing slash.
func normalizeBasePath(basePath string) string {
	if basePath == "" || basePath == "/" {
		return "/"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimSuffix(basePath, "/")
}
