// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package steam integrates with Steam's OpenID 2.0 login and Web API.
package steam

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Steam community OpenID 2.0 endpoint.
const (
	OpenIDURL      = "https://steamcommunity.com/openid"
	openIDLoginURL = OpenIDURL + "/login"

	openIDNamespace  = "http://specs.openid.net/auth/2.0"
	identifierSelect = "http://specs.openid.net/auth/2.0/identifier_select"
)

// DefaultVerifyTimeout bounds the check_authentication round-trip.
const DefaultVerifyTimeout = 10 * time.Second

// claimedIDPattern extracts the 64-bit Steam ID from a claimed identifier
// of the form https://steamcommunity.com/openid/id/<steamid64>.
var claimedIDPattern = regexp.MustCompile(`^https?://steamcommunity\.com/openid/id/(\d+)$`)

// RelyingParty implements stateless OpenID 2.0 verification against Steam.
//
// Stateless (check_authentication) verification asks the provider to confirm
// its own assertion signature, so no Diffie-Hellman association state is
// held between requests; any provider instance can verify any callback.
type RelyingParty struct {
	loginURL   string
	returnTo   string
	realm      string
	httpClient *http.Client
}

// RelyingPartyOption configures a RelyingParty.
type RelyingPartyOption func(*RelyingParty)

// WithLoginURL overrides the Steam OpenID login endpoint. Used in tests.
func WithLoginURL(loginURL string) RelyingPartyOption {
	return func(rp *RelyingParty) {
		rp.loginURL = loginURL
	}
}

// WithOpenIDHTTPClient overrides the HTTP client used for verification.
func WithOpenIDHTTPClient(client *http.Client) RelyingPartyOption {
	return func(rp *RelyingParty) {
		rp.httpClient = client
	}
}

// NewRelyingParty creates a RelyingParty whose return URL is
// issuerURL + "/callback" and whose realm is the issuer itself.
func NewRelyingParty(issuerURL string, opts ...RelyingPartyOption) *RelyingParty {
	rp := &RelyingParty{
		loginURL:   openIDLoginURL,
		returnTo:   issuerURL + "/callback",
		realm:      issuerURL,
		httpClient: &http.Client{Timeout: DefaultVerifyTimeout},
	}
	for _, opt := range opts {
		opt(rp)
	}
	return rp
}

// AuthURL builds the Steam checkid_setup URL the browser is redirected to.
// The caller's opaque state parameter is carried on the URL unchanged;
// Steam ignores parameters outside the openid.* namespace.
func (rp *RelyingParty) AuthURL(callerState string) (string, error) {
	u, err := url.Parse(rp.loginURL)
	if err != nil {
		return "", fmt.Errorf("invalid openid endpoint: %w", err)
	}

	q := url.Values{}
	q.Set("openid.ns", openIDNamespace)
	q.Set("openid.mode", "checkid_setup")
	q.Set("openid.return_to", rp.returnTo)
	q.Set("openid.realm", rp.realm)
	q.Set("openid.identity", identifierSelect)
	q.Set("openid.claimed_id", identifierSelect)
	if callerState != "" {
		q.Set("state", callerState)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// VerifyAssertion verifies the positive assertion carried in the callback
// request URL by replaying its signed fields to Steam with
// openid.mode=check_authentication.
//
// Returns the 64-bit Steam ID on success, an empty string with a nil error
// when the user cancelled or Steam did not confirm the signature, and an
// error for transport or protocol failures.
func (rp *RelyingParty) VerifyAssertion(ctx context.Context, requestURL string) (string, error) {
	parsed, err := url.Parse(requestURL)
	if err != nil {
		return "", fmt.Errorf("invalid callback url: %w", err)
	}
	q := parsed.Query()

	mode := q.Get("openid.mode")
	if mode == "cancel" {
		return "", nil
	}
	if mode != "id_res" {
		return "", fmt.Errorf("unexpected openid.mode %q", mode)
	}

	if err := rp.checkReturnTo(q.Get("openid.return_to")); err != nil {
		return "", err
	}

	valid, err := rp.checkAuthentication(ctx, q)
	if err != nil {
		return "", err
	}
	if !valid {
		return "", nil
	}

	match := claimedIDPattern.FindStringSubmatch(q.Get("openid.claimed_id"))
	if match == nil {
		return "", nil
	}
	return match[1], nil
}

// checkReturnTo confirms the assertion was issued for our callback URL,
// comparing scheme, host and path (the query carries the openid fields).
func (rp *RelyingParty) checkReturnTo(returnTo string) error {
	asserted, err := url.Parse(returnTo)
	if err != nil {
		return fmt.Errorf("invalid openid.return_to: %w", err)
	}
	expected, err := url.Parse(rp.returnTo)
	if err != nil {
		return fmt.Errorf("invalid configured return url: %w", err)
	}

	if asserted.Scheme != expected.Scheme || asserted.Host != expected.Host || asserted.Path != expected.Path {
		return fmt.Errorf("openid.return_to %q does not match callback url", returnTo)
	}
	return nil
}

// checkAuthentication replays the assertion fields to the provider and
// parses its key-value response for is_valid:true.
func (rp *RelyingParty) checkAuthentication(ctx context.Context, assertion url.Values) (bool, error) {
	form := url.Values{}
	for key, values := range assertion {
		if strings.HasPrefix(key, "openid.") && len(values) > 0 {
			form.Set(key, values[0])
		}
	}
	form.Set("openid.mode", "check_authentication")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rp.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := rp.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("openid verification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("openid verification returned status %d", resp.StatusCode)
	}

	fields, err := parseKeyValueForm(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to parse verification response: %w", err)
	}
	if ns := fields["ns"]; ns != "" && ns != openIDNamespace {
		return false, fmt.Errorf("unexpected response namespace %q", ns)
	}
	return fields["is_valid"] == "true", nil
}

// parseKeyValueForm parses the OpenID key-value form encoding: one
// "key:value" pair per line.
func parseKeyValueForm(r io.Reader) (map[string]string, error) {
	fields := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		fields[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return fields, nil
}
