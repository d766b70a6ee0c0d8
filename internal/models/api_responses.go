// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package models

import (
	"time"
)

// APIResponse represents a standardized API response wrapper used by all HTTP endpoints.
// It provides consistent structure for both successful and error responses.
//
// Status field values:
//   - "success": Request completed successfully, see Data field
//   - "error": Request failed, see Error field for details
//
// Example successful response:
//
//	{
//	  "status": "success",
//	  "data": {"message_id": "3EB0C431...", "target": "1203633...@g.us"},
//	  "metadata": {"timestamp": "2026-08-31T12:00:00Z"}
//	}
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "GROUP_NOT_FOUND",
//	    "message": "no group named \"Ops Team\" is visible to this account"
//	  },
//	  "metadata": {"timestamp": "2026-08-31T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError represents an error response with structured error details.
//
// Error codes map directly to the gateway's error taxonomy:
//   - EMPTY_MESSAGE, NO_TARGET, BAD_ATTACHMENT, VALIDATION_ERROR (400)
//   - AUTHENTICATION_ERROR (401)
//   - GROUP_NOT_FOUND (404)
//   - RATE_LIMIT_EXCEEDED (429)
//   - NOT_CONNECTED, PAIRING_REQUIRED (503)
//   - DELIVERY_FAILED, INTERNAL_ERROR (500)
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
