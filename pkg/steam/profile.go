// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Steam Web API defaults.
const (
	DefaultAPIBaseURL     = "https://api.steampowered.com"
	DefaultProfileTimeout = 5 * time.Second
	DefaultCacheTTL       = 15 * time.Minute
	DefaultCacheMaxSize   = 10000
)

// ErrProfileNotFound is returned when the Steam Web API has no profile for
// the requested Steam ID.
var ErrProfileNotFound = errors.New("steam profile not found")

// Profile is a Steam user profile as returned by GetPlayerSummaries.
type Profile struct {
	SteamID      string `json:"steamid"`
	PersonaName  string `json:"personaname"`
	Avatar       string `json:"avatar"`
	AvatarMedium string `json:"avatarmedium"`
	AvatarFull   string `json:"avatarfull"`
	ProfileURL   string `json:"profileurl,omitempty"`
	PersonaState int    `json:"personastate,omitempty"`
}

// validate checks the API returned the fields the ID token claims need.
func (p *Profile) validate() error {
	if p.SteamID == "" {
		return fmt.Errorf("profile missing steamid")
	}
	if p.PersonaName == "" {
		return fmt.Errorf("profile missing personaname")
	}
	return nil
}

type playerSummariesResponse struct {
	Response struct {
		Players []Profile `json:"players"`
	} `json:"response"`
}

type cachedProfile struct {
	profile   *Profile
	expiresAt time.Time
}

// ProfileClient fetches Steam profiles with a bounded, time-expiring cache.
// Concurrent fetches for the same Steam ID are coalesced into one upstream
// request.
type ProfileClient struct {
	apiKey     string
	baseURL    string
	cacheTTL   time.Duration
	maxEntries int
	httpClient *http.Client

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]cachedProfile
}

// ProfileClientOption configures a ProfileClient.
type ProfileClientOption func(*ProfileClient)

// WithAPIBaseURL overrides the Steam Web API base URL. Used in tests.
func WithAPIBaseURL(baseURL string) ProfileClientOption {
	return func(c *ProfileClient) {
		c.baseURL = baseURL
	}
}

// WithCacheTTL overrides how long fetched profiles are cached.
func WithCacheTTL(ttl time.Duration) ProfileClientOption {
	return func(c *ProfileClient) {
		c.cacheTTL = ttl
	}
}

// WithProfileHTTPClient overrides the HTTP client used for API requests.
func WithProfileHTTPClient(client *http.Client) ProfileClientOption {
	return func(c *ProfileClient) {
		c.httpClient = client
	}
}

// NewProfileClient creates a ProfileClient authenticated with apiKey.
func NewProfileClient(apiKey string, opts ...ProfileClientOption) *ProfileClient {
	c := &ProfileClient{
		apiKey:     apiKey,
		baseURL:    DefaultAPIBaseURL,
		cacheTTL:   DefaultCacheTTL,
		maxEntries: DefaultCacheMaxSize,
		httpClient: &http.Client{Timeout: DefaultProfileTimeout},
		cache:      make(map[string]cachedProfile),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Profile returns the profile for steamID, from cache when fresh.
func (c *ProfileClient) Profile(ctx context.Context, steamID string) (*Profile, error) {
	if profile := c.cached(steamID); profile != nil {
		return profile, nil
	}

	result, err, _ := c.group.Do(steamID, func() (any, error) {
		profile, err := c.fetch(ctx, steamID)
		if err != nil {
			return nil, err
		}
		c.store(steamID, profile)
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Profile), nil
}

func (c *ProfileClient) cached(steamID string) *Profile {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[steamID]
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.cache, steamID)
		return nil
	}
	return entry.profile
}

// store caches a profile, pruning expired entries when the cache is full.
// If it is still full after pruning, the profile is simply not cached; the
// cache never grows past maxEntries.
func (c *ProfileClient) store(steamID string, profile *Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cache) >= c.maxEntries {
		now := time.Now()
		for key, entry := range c.cache {
			if now.After(entry.expiresAt) {
				delete(c.cache, key)
			}
		}
		if len(c.cache) >= c.maxEntries {
			return
		}
	}

	c.cache[steamID] = cachedProfile{profile: profile, expiresAt: time.Now().Add(c.cacheTTL)}
}

func (c *ProfileClient) fetch(ctx context.Context, steamID string) (*Profile, error) {
	endpoint := fmt.Sprintf("%s/ISteamUser/GetPlayerSummaries/v2/", c.baseURL)

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("steamids", steamID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("steam api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("steam api returned status %d", resp.StatusCode)
	}

	var parsed playerSummariesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("invalid steam api response: %w", err)
	}

	if len(parsed.Response.Players) == 0 {
		return nil, ErrProfileNotFound
	}

	profile := parsed.Response.Players[0]
	if err := profile.validate(); err != nil {
		return nil, fmt.Errorf("invalid steam api response: %w", err)
	}
	return &profile, nil
}
