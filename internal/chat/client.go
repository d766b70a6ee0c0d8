// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package chat defines the gateway's contract with the chat network and
// provides the websocket bridge implementation of it. The session
// manager drives the connection lifecycle; the dispatcher and group
// resolver use the connected client for outbound traffic.
package chat

import (
	"context"
	"time"
)

// EventType classifies connection lifecycle events emitted by a Client.
type EventType string

const (
	// EventConnected fires when the network accepts the session.
	EventConnected EventType = "connected"

	// EventDisconnected fires when the connection drops for any reason
	// other than an explicit Disconnect or Logout.
	EventDisconnected EventType = "disconnected"

	// EventPairing fires when the network requires device pairing. The
	// event carries the challenge to present to the operator.
	EventPairing EventType = "pairing"

	// EventLoggedOut fires when the network invalidates the stored
	// credentials (e.g. the account was unlinked from the phone).
	EventLoggedOut EventType = "logged_out"

	// EventCredentials fires when the network issues or rotates the
	// pairing credential blob. The session manager persists it.
	EventCredentials EventType = "credentials"
)

// Event is a connection lifecycle notification.
type Event struct {
	Type EventType

	// PairingCode is set for EventPairing.
	PairingCode string

	// Credentials is the opaque pairing blob for EventCredentials.
	Credentials []byte

	// Err is set for EventDisconnected when the drop was caused by an
	// error rather than a clean close.
	Err error
}

// GroupInfo describes one group visible to the paired account.
type GroupInfo struct {
	JID          string `json:"jid"`
	Name         string `json:"name"`
	Participants int    `json:"participants,omitempty"`
}

// Attachment is a decoded file payload ready for the wire.
type Attachment struct {
	Data     []byte `json:"data"`
	Filename string `json:"filename"`
	MIMEType string `json:"mimetype"`
}

// Message is an outbound message addressed to a group.
type Message struct {
	GroupJID   string      `json:"group_jid"`
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Receipt confirms a message handed to the network.
type Receipt struct {
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is the gateway's view of the chat network. Implementations
// must be safe for concurrent use; Send and Groups are only valid
// while the session is connected.
type Client interface {
	// Connect establishes the network session. If no valid credentials
	// exist the client emits EventPairing and keeps the transport open
	// until pairing completes or the context is canceled.
	Connect(ctx context.Context) error

	// Restore hands a previously persisted credential blob back to the
	// network for a silent reconnect. Called after Connect when stored
	// credentials exist.
	Restore(ctx context.Context, credentials []byte) error

	// Disconnect closes the session without touching credentials.
	// Idempotent.
	Disconnect() error

	// Logout terminates the session and invalidates credentials on the
	// network side. After Logout a new Connect requires pairing.
	Logout(ctx context.Context) error

	// Groups fetches the directory of groups visible to the account.
	Groups(ctx context.Context) ([]GroupInfo, error)

	// Send delivers a message to a group and returns the network receipt.
	Send(ctx context.Context, msg Message) (*Receipt, error)

	// SetEventHandler registers the callback for lifecycle events.
	// Must be called before Connect.
	SetEventHandler(fn func(Event))

	// IsConnected reports whether the transport is currently up.
	IsConnected() bool
}
