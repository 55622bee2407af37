// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestSignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewCodec(testSecret)

	payload := &AuthState{
		State:               "caller-state",
		Nonce:               "n-abc",
		RedirectURI:         "https://app.example.com/callback",
		ClientID:            "test-client",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
	}

	blob, err := codec.Sign(payload)
	require.NoError(t, err)
	assert.Equal(t, 2, len(strings.Split(blob, ".")))

	got, ok := codec.Verify(blob)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestVerifyMinimalPayload(t *testing.T) {
	t.Parallel()

	codec := NewCodec(testSecret)

	payload := &AuthState{RedirectURI: "https://app.example.com/callback", ClientID: "test-client"}
	blob, err := codec.Sign(payload)
	require.NoError(t, err)

	got, ok := codec.Verify(blob)
	require.True(t, ok)
	assert.Empty(t, got.State)
	assert.Empty(t, got.Nonce)
	assert.Empty(t, got.CodeChallenge)
}

func TestVerifyRejectsTampering(t *testing.T) {
	t.Parallel()

	codec := NewCodec(testSecret)

	blob, err := codec.Sign(&AuthState{RedirectURI: "https://app.example.com/callback", ClientID: "c"})
	require.NoError(t, err)

	// Flip a single character in every position of the blob.
	for i := range blob {
		mutated := []byte(blob)
		if mutated[i] == 'A' {
			mutated[i] = 'B'
		} else {
			mutated[i] = 'A'
		}
		_, ok := codec.Verify(string(mutated))
		assert.False(t, ok, "mutation at index %d accepted", i)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	blob, err := NewCodec(testSecret).Sign(&AuthState{RedirectURI: "https://cb", ClientID: "c"})
	require.NoError(t, err)

	_, ok := NewCodec([]byte("another-secret-another-secret-ab")).Verify(blob)
	assert.False(t, ok)
}

func TestVerifyRejectsMalformedBlobs(t *testing.T) {
	t.Parallel()

	codec := NewCodec(testSecret)

	for _, blob := range []string{
		"",
		"no-separator",
		"a.b.c",
		"!!!.AAAA",
		"AAAA.!!!",
		".",
	} {
		_, ok := codec.Verify(blob)
		assert.False(t, ok, "blob %q accepted", blob)
	}
}
