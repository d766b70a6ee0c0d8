// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package session

import "errors"

var (
	// ErrNotConnected is returned by EnsureConnected when the session is
	// not in the connected state. Safe to retry once the session
	// reports connected; never retried automatically.
	ErrNotConnected = errors.New("session not connected")

	// ErrPairingRequired is returned when the session needs device
	// pairing before it can connect. Non-fatal: callers poll Status for
	// the pairing challenge.
	ErrPairingRequired = errors.New("session pairing required")
)
