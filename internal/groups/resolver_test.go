// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package groups

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tomtom215/waypost/internal/chat"
	"github.com/tomtom215/waypost/internal/session"
)

// fakeGate simulates the session's connection gate.
type fakeGate struct {
	err error
}

func (g *fakeGate) EnsureConnected() error { return g.err }

// fakeDirectory counts refreshes so tests can observe cache behavior.
type fakeDirectory struct {
	mu       sync.Mutex
	groups   []chat.GroupInfo
	err      error
	refreshs int
}

func (d *fakeDirectory) Groups(_ context.Context) ([]chat.GroupInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshs++
	if d.err != nil {
		return nil, d.err
	}
	return d.groups, nil
}

func (d *fakeDirectory) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshs
}

var opsTeam = chat.GroupInfo{JID: "120363022@g.us", Name: "Ops Team", Participants: 5}

func TestResolve_RefreshOnMissThenCacheHit(t *testing.T) {
	dir := &fakeDirectory{groups: []chat.GroupInfo{opsTeam}}
	r := NewResolver(&fakeGate{}, dir)

	jid, err := r.Resolve(context.Background(), "Ops Team")
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	if jid != opsTeam.JID {
		t.Errorf("jid = %q, want %q", jid, opsTeam.JID)
	}
	if dir.count() != 1 {
		t.Fatalf("refreshes = %d, want 1", dir.count())
	}

	// Second lookup must come from the cache, no refresh.
	jid, err = r.Resolve(context.Background(), "Ops Team")
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if jid != opsTeam.JID {
		t.Errorf("jid = %q", jid)
	}
	if dir.count() != 1 {
		t.Errorf("refreshes = %d after cache hit, want 1", dir.count())
	}
}

func TestResolve_GroupNotFoundAfterSingleRefresh(t *testing.T) {
	dir := &fakeDirectory{groups: []chat.GroupInfo{opsTeam}}
	r := NewResolver(&fakeGate{}, dir)

	_, err := r.Resolve(context.Background(), "Unknown Team")
	if !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("err = %v, want ErrGroupNotFound", err)
	}
	if dir.count() != 1 {
		t.Errorf("refreshes = %d, want exactly 1 (refresh-on-miss once)", dir.count())
	}
}

func TestResolve_CaseSensitive(t *testing.T) {
	dir := &fakeDirectory{groups: []chat.GroupInfo{opsTeam}}
	r := NewResolver(&fakeGate{}, dir)

	if _, err := r.Resolve(context.Background(), "ops team"); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("lowercase lookup = %v, want ErrGroupNotFound (matching is case-sensitive)", err)
	}
}

func TestResolve_NotConnectedPropagates(t *testing.T) {
	dir := &fakeDirectory{groups: []chat.GroupInfo{opsTeam}}
	r := NewResolver(&fakeGate{err: session.ErrNotConnected}, dir)

	_, err := r.Resolve(context.Background(), "Ops Team")
	if !errors.Is(err, session.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if dir.count() != 0 {
		t.Errorf("directory fetched %d times while disconnected, want 0", dir.count())
	}
}

func TestResolve_RefreshErrorPropagates(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("stream closed")}
	r := NewResolver(&fakeGate{}, dir)

	if _, err := r.Resolve(context.Background(), "Ops Team"); err == nil {
		t.Fatal("expected refresh error to propagate")
	}
}

func TestListGroups_AlwaysRefreshes(t *testing.T) {
	dir := &fakeDirectory{groups: []chat.GroupInfo{opsTeam}}
	r := NewResolver(&fakeGate{}, dir)

	for i := 1; i <= 3; i++ {
		groups, err := r.ListGroups(context.Background())
		if err != nil {
			t.Fatalf("ListGroups failed: %v", err)
		}
		if len(groups) != 1 || groups[0].Name != "Ops Team" {
			t.Errorf("groups = %+v", groups)
		}
		if dir.count() != i {
			t.Errorf("refreshes = %d, want %d (ListGroups always refreshes)", dir.count(), i)
		}
	}

	if r.RefreshedAt().IsZero() {
		t.Error("RefreshedAt should be set after a refresh")
	}
}

func TestListGroups_NotConnected(t *testing.T) {
	r := NewResolver(&fakeGate{err: session.ErrNotConnected}, &fakeDirectory{})

	if _, err := r.ListGroups(context.Background()); !errors.Is(err, session.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestListGroups_SeedsResolveCache(t *testing.T) {
	dir := &fakeDirectory{groups: []chat.GroupInfo{opsTeam}}
	r := NewResolver(&fakeGate{}, dir)

	if _, err := r.ListGroups(context.Background()); err != nil {
		t.Fatal(err)
	}

	jid, err := r.Resolve(context.Background(), "Ops Team")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if jid != opsTeam.JID {
		t.Errorf("jid = %q", jid)
	}
	if dir.count() != 1 {
		t.Errorf("refreshes = %d, want 1 (listing seeds the cache)", dir.count())
	}
}
