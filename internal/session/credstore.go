// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package session

import (
	"context"
	"sync"
)

// CredentialStore persists the opaque pairing credential blob between
// restarts. The manager saves the blob when the network issues or
// rotates it and deletes it on logout.
type CredentialStore interface {
	// Load returns the stored blob, or (nil, nil) when none exists.
	Load(ctx context.Context) ([]byte, error)

	// Save stores the blob, replacing any previous one.
	Save(ctx context.Context, blob []byte) error

	// Delete removes the stored blob. Deleting an absent blob is not an
	// error.
	Delete(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// MemoryCredentialStore is an in-memory CredentialStore for tests and
// ephemeral deployments.
type MemoryCredentialStore struct {
	mu   sync.Mutex
	blob []byte
}

// NewMemoryCredentialStore creates an empty in-memory store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

// Load returns the stored blob, or (nil, nil) when none exists.
func (s *MemoryCredentialStore) Load(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blob == nil {
		return nil, nil
	}
	out := make([]byte, len(s.blob))
	copy(out, s.blob)
	return out, nil
}

// Save stores the blob.
func (s *MemoryCredentialStore) Save(_ context.Context, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blob = make([]byte, len(blob))
	copy(s.blob, blob)
	return nil
}

// Delete removes the stored blob.
func (s *MemoryCredentialStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blob = nil
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryCredentialStore) Close() error {
	return nil
}
