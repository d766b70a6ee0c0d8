// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package models defines the request and response types crossing the
// gateway's HTTP boundary, plus the shared API response envelope.
package models

import "time"

// SendRequest is the body of POST /api/v1/send. Targeting precedence:
// GroupID beats GroupName beats the configured default group.
type SendRequest struct {
	Message    string      `json:"message" validate:"required,min=1"`
	GroupID    string      `json:"groupId" validate:"omitempty,min=1"`
	GroupName  string      `json:"groupName" validate:"omitempty,min=1"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Attachment is an optional file payload carried alongside a message.
// Content is standard base64; filename and mimetype fall back to
// configured defaults when omitted.
type Attachment struct {
	Content  string `json:"content" validate:"required,base64"`
	Filename string `json:"filename" validate:"omitempty,max=255"`
	MIMEType string `json:"mimetype" validate:"omitempty,max=255"`
}

// SendResult reports a delivered message. Target carries the resolved
// group identifier the message went to.
type SendResult struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id"`
	Target    string    `json:"target"`
	GroupName string    `json:"group_name,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// StatusResponse describes the current session as reported by
// GET /api/v1/status.
type StatusResponse struct {
	State string `json:"state"`

	// Challenge is the pairing code to complete on a phone. Present
	// only while the session is in the pairing state.
	Challenge string `json:"challenge,omitempty"`

	// ConnectedSince is set while the session is connected.
	ConnectedSince *time.Time `json:"connected_since,omitempty"`

	// LastError describes the most recent connection failure, if any.
	LastError string `json:"last_error,omitempty"`
}

// GroupSummary is one entry of the group directory listing.
type GroupSummary struct {
	Name         string `json:"name"`
	ID           string `json:"id"`
	Participants int    `json:"participants,omitempty"`
}

// GroupsResponse is the body of GET /api/v1/groups.
type GroupsResponse struct {
	Groups      []GroupSummary `json:"groups"`
	RefreshedAt time.Time      `json:"refreshed_at"`
}

// HealthResponse is the body of the liveness and readiness probes.
type HealthResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}
