// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sync"
	"time"
)

// timedEntry wraps a stored value together with the timer that will reclaim
// it at expiry. The timer handle is kept so a rewrite of the same key can
// cancel and replace it instead of stacking timers; a stale timer from a
// previous write must never delete a newer record.
type timedEntry[T any] struct {
	value T
	timer *time.Timer
}

// MemoryStore implements Store with in-process maps.
// Thread-safe; suitable for single-instance deployments. Expiry is enforced
// both eagerly (per-record timers bound memory growth under load) and lazily
// (reads re-check expiry before returning).
type MemoryStore struct {
	mu           sync.Mutex
	authCodes    map[string]*timedEntry[*AuthorizationCode]
	accessTokens map[string]*timedEntry[*AccessToken]
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		authCodes:    make(map[string]*timedEntry[*AuthorizationCode]),
		accessTokens: make(map[string]*timedEntry[*AccessToken]),
	}
}

// SaveAuthCode stores the code and schedules its reclamation at expiry.
// Already-expired codes are not stored.
func (s *MemoryStore) SaveAuthCode(_ context.Context, code *AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	save(s.authCodes, code.Code, code, code.ExpiresAt, &s.mu)
	return nil
}

// GetAuthCode returns the code if present and unexpired.
func (s *MemoryStore) GetAuthCode(_ context.Context, code string) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return get(s.authCodes, code)
}

// ConsumeAuthCode retrieves and removes the code in one critical section,
// so concurrent consumers of the same code see at most one success.
func (s *MemoryStore) ConsumeAuthCode(_ context.Context, code string) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := get(s.authCodes, code)
	if err != nil {
		return nil, err
	}
	remove(s.authCodes, code)
	return stored, nil
}

// DeleteAuthCode removes the code and cancels its expiry timer.
func (s *MemoryStore) DeleteAuthCode(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remove(s.authCodes, code)
	return nil
}

// SaveAccessToken stores the token and schedules its reclamation at expiry.
// Already-expired tokens are not stored.
func (s *MemoryStore) SaveAccessToken(_ context.Context, token *AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	save(s.accessTokens, token.Token, token, token.ExpiresAt, &s.mu)
	return nil
}

// GetAccessToken returns the token if present and unexpired.
func (s *MemoryStore) GetAccessToken(_ context.Context, token string) (*AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return get(s.accessTokens, token)
}

// DeleteAccessToken removes the token and cancels its expiry timer.
func (s *MemoryStore) DeleteAccessToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remove(s.accessTokens, token)
	return nil
}

// Close cancels all outstanding expiry timers.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.authCodes {
		remove(s.authCodes, key)
	}
	for key := range s.accessTokens {
		remove(s.accessTokens, key)
	}
	return nil
}

type expirable interface {
	IsExpired() bool
}

// save replaces any existing entry for key, cancelling its timer first.
// Callers must hold mu; the expiry timer re-acquires it.
func save[T expirable](entries map[string]*timedEntry[T], key string, value T, expiresAt time.Time, mu *sync.Mutex) {
	if existing, ok := entries[key]; ok {
		existing.timer.Stop()
		delete(entries, key)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}

	entry := &timedEntry[T]{value: value}
	entry.timer = time.AfterFunc(ttl, func() {
		mu.Lock()
		defer mu.Unlock()
		// Only reclaim if the key still holds this entry; a rewrite may
		// have raced with the timer firing.
		if current, ok := entries[key]; ok && current == entry {
			delete(entries, key)
		}
	})
	entries[key] = entry
}

// get returns the stored value, deleting it first if found expired.
// Callers must hold mu.
func get[T expirable](entries map[string]*timedEntry[T], key string) (T, error) {
	var zero T

	entry, ok := entries[key]
	if !ok {
		return zero, ErrNotFound
	}
	if entry.value.IsExpired() {
		remove(entries, key)
		return zero, ErrNotFound
	}
	return entry.value, nil
}

// remove deletes the entry and stops its timer. Callers must hold mu.
func remove[T expirable](entries map[string]*timedEntry[T], key string) {
	entry, ok := entries[key]
	if !ok {
		return
	}
	entry.timer.Stop()
	delete(entries, key)
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)
