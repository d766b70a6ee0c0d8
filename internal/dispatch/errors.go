// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package dispatch

import "errors"

var (
	// ErrEmptyMessage rejects a request whose body text is empty or
	// whitespace-only.
	ErrEmptyMessage = errors.New("message body is empty")

	// ErrNoTarget rejects a request with no group identifier, no group
	// name, and no configured default.
	ErrNoTarget = errors.New("no target group resolvable")

	// ErrBadAttachment rejects an attachment that does not decode to a
	// non-empty payload.
	ErrBadAttachment = errors.New("attachment payload invalid")
)

// DeliveryError wraps a chat-client failure on a well-formed, resolved
// request. The underlying detail is logged in full; only the safe
// message string crosses the boundary.
type DeliveryError struct {
	Cause error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	if e.Cause == nil {
		return "message delivery failed"
	}
	return "message delivery failed: " + e.Cause.Error()
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *DeliveryError) Unwrap() error {
	return e.Cause
}
