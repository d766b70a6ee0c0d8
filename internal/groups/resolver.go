// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package groups resolves human-readable group names to network group
// identifiers (JIDs) with an on-miss refresh cache.
package groups

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/waypost/internal/chat"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/session"
)

// ErrGroupNotFound is returned when a name is absent from the directory
// even after a refresh. Not retried automatically - the cache was
// already refreshed once during resolution.
var ErrGroupNotFound = errors.New("group not found")

// Gate reports whether the session can serve directory traffic.
// Implemented by session.Manager.
type Gate interface {
	EnsureConnected() error
}

// Directory fetches the group listing from the network. Implemented by
// chat.Client.
type Directory interface {
	Groups(ctx context.Context) ([]chat.GroupInfo, error)
}

// Resolver owns the name → JID directory cache. Entries never expire on
// a timer: refresh is purely on-miss, because group membership changes
// are infrequent relative to message volume. Safe for concurrent use.
type Resolver struct {
	gate Gate
	dir  Directory

	mu          sync.RWMutex
	byName      map[string]chat.GroupInfo
	refreshedAt time.Time
}

// NewResolver creates a resolver with an empty cache.
func NewResolver(gate Gate, dir Directory) *Resolver {
	return &Resolver{
		gate:   gate,
		dir:    dir,
		byName: make(map[string]chat.GroupInfo),
	}
}

// Resolve translates a group display name to its JID. Names match
// case-sensitively, exactly as reported by the network. On a cache miss
// the directory is refreshed once; a name still absent after that fails
// with ErrGroupNotFound.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	r.mu.RLock()
	info, ok := r.byName[name]
	r.mu.RUnlock()

	if ok {
		metrics.GroupCacheHits.Inc()
		return info.JID, nil
	}

	metrics.GroupCacheMisses.Inc()

	if err := r.gate.EnsureConnected(); err != nil {
		return "", err
	}
	if err := r.refresh(ctx); err != nil {
		return "", err
	}

	r.mu.RLock()
	info, ok = r.byName[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %q", ErrGroupNotFound, name)
	}
	return info.JID, nil
}

// ListGroups forces a directory refresh and returns all entries,
// independent of Resolve's cache state.
func (r *Resolver) ListGroups(ctx context.Context) ([]chat.GroupInfo, error) {
	if err := r.gate.EnsureConnected(); err != nil {
		return nil, err
	}
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]chat.GroupInfo, 0, len(r.byName))
	for _, info := range r.byName {
		out = append(out, info)
	}
	return out, nil
}

// RefreshedAt reports when the directory was last fetched. Zero when it
// never was.
func (r *Resolver) RefreshedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshedAt
}

// refresh rebuilds the cache from the network directory.
func (r *Resolver) refresh(ctx context.Context) error {
	groups, err := r.dir.Groups(ctx)
	metrics.RecordDirectoryRefresh(err, len(groups))
	if err != nil {
		return fmt.Errorf("refresh group directory: %w", err)
	}

	byName := make(map[string]chat.GroupInfo, len(groups))
	for _, g := range groups {
		byName[g.Name] = g
	}

	r.mu.Lock()
	r.byName = byName
	r.refreshedAt = time.Now()
	r.mu.Unlock()

	logging.Debug().Int("groups", len(groups)).Msg("Group directory refreshed")
	return nil
}

// sessionGateCheck keeps the Gate contract aligned with the manager.
var _ Gate = (*session.Manager)(nil)
