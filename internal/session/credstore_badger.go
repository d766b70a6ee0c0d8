// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// credentialKey is the single key under which the pairing blob lives.
// One session per process means one credential blob per store.
const credentialKey = "credentials:pairing"

// BadgerCredentialStore implements CredentialStore using BadgerDB for
// durable storage across restarts.
type BadgerCredentialStore struct {
	db *badger.DB
}

// NewBadgerCredentialStore wraps an open BadgerDB handle. The caller
// owns the handle's lifecycle; Close here closes it.
func NewBadgerCredentialStore(db *badger.DB) *BadgerCredentialStore {
	return &BadgerCredentialStore{db: db}
}

// OpenBadgerCredentialStore opens a BadgerDB at dir and wraps it.
func OpenBadgerCredentialStore(dir string) (*BadgerCredentialStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	return &BadgerCredentialStore{db: db}, nil
}

// Load returns the stored blob, or (nil, nil) when none exists.
func (s *BadgerCredentialStore) Load(_ context.Context) ([]byte, error) {
	var blob []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(credentialKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get credentials: %w", err)
		}

		blob, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// Save stores the blob, replacing any previous one.
func (s *BadgerCredentialStore) Save(_ context.Context, blob []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(credentialKey), blob)
	})
}

// Delete removes the stored blob.
func (s *BadgerCredentialStore) Delete(_ context.Context) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(credentialKey))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}

// RunGC runs one round of Badger value-log garbage collection. Returns
// badger.ErrNoRewrite when nothing needed collecting.
func (s *BadgerCredentialStore) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Close closes the underlying database.
func (s *BadgerCredentialStore) Close() error {
	return s.db.Close()
}
