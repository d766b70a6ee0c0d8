// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package session

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

func openTestStore(t *testing.T) *BadgerCredentialStore {
	t.Helper()
	store, err := OpenBadgerCredentialStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadgerCredentialStore: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func TestBadgerCredentialStore_RoundTrip(t *testing.T) {
	store := openTestStore(t)

	// Empty store reports no credentials, not an error.
	blob, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load on empty store: %v", err)
	}
	if blob != nil {
		t.Fatalf("Load on empty store = %q, want nil", blob)
	}

	want := []byte(`{"device":"waypost-01","keys":"opaque"}`)
	if err := store.Save(context.Background(), want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Load = %q, want %q", got, want)
	}
}

func TestBadgerCredentialStore_DeleteClears(t *testing.T) {
	store := openTestStore(t)

	if err := store.Save(context.Background(), []byte("blob")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(context.Background()); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	blob, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load after Delete: %v", err)
	}
	if blob != nil {
		t.Errorf("Load after Delete = %q, want nil", blob)
	}

	// Delete on an already-empty store is a no-op.
	if err := store.Delete(context.Background()); err != nil {
		t.Errorf("Delete on empty store: %v", err)
	}
}

func TestBadgerCredentialStore_OverwriteReplaces(t *testing.T) {
	store := openTestStore(t)

	if err := store.Save(context.Background(), []byte("first")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(context.Background(), []byte("second")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Load = %q, want %q", got, "second")
	}
}

func TestBadgerCredentialStore_RunGC(t *testing.T) {
	store := openTestStore(t)

	// A fresh store has nothing to rewrite; the only acceptable outcomes
	// are success or ErrNoRewrite.
	if err := store.RunGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		t.Errorf("RunGC: %v", err)
	}
}
