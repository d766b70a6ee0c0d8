// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package services

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/session"
)

// gcInterval is how often value-log garbage collection runs. Badger
// recommends periodic GC from exactly one goroutine.
const gcInterval = 5 * time.Minute

// CredStoreGCService runs periodic value-log garbage collection on the
// badger-backed credential store.
type CredStoreGCService struct {
	store *session.BadgerCredentialStore
}

// NewCredStoreGCService wraps the store.
func NewCredStoreGCService(store *session.BadgerCredentialStore) *CredStoreGCService {
	return &CredStoreGCService{store: store}
}

// Serve implements suture.Service.
func (s *CredStoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := s.store.RunGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logging.Warn().Err(err).Msg("Credential store GC failed")
			}
		}
	}
}

// String identifies the service in supervisor logs.
func (s *CredStoreGCService) String() string {
	return "credstore-gc"
}
