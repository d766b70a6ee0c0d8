// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/session"
)

// SessionService runs the session manager under supervision. Start
// failures bubble up so suture restarts the service with backoff; a
// pairing-required outcome is not a failure - the session stays up
// waiting for the operator to complete the challenge.
type SessionService struct {
	manager *session.Manager
}

// NewSessionService wraps the manager.
func NewSessionService(manager *session.Manager) *SessionService {
	return &SessionService{manager: manager}
}

// Serve implements suture.Service.
func (s *SessionService) Serve(ctx context.Context) error {
	err := s.manager.Start(ctx)
	switch {
	case err == nil:
		// Connected.
	case errors.Is(err, session.ErrPairingRequired):
		logging.Info().Msg("Session awaiting pairing confirmation, poll /api/v1/status for the challenge")
	case errors.Is(err, context.Canceled):
		return ctx.Err()
	default:
		return fmt.Errorf("session start failed: %w", err)
	}

	// The manager's own reconnect loop handles drops from here. Hold
	// the service open until shutdown.
	<-ctx.Done()

	if err := s.manager.Disconnect(); err != nil {
		logging.Warn().Err(err).Msg("Session disconnect on shutdown reported error")
	}
	return ctx.Err()
}

// String identifies the service in supervisor logs.
func (s *SessionService) String() string {
	return "chat-session"
}
