// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waypost/internal/chat"
	"github.com/tomtom215/waypost/internal/dispatch"
	"github.com/tomtom215/waypost/internal/groups"
	"github.com/tomtom215/waypost/internal/models"
	"github.com/tomtom215/waypost/internal/session"
)

// SessionReader exposes the session views the handlers need.
// Implemented by session.Manager.
type SessionReader interface {
	Status() session.Status
	EnsureConnected() error
}

// GroupLister lists the group directory. Implemented by groups.Resolver.
type GroupLister interface {
	ListGroups(ctx context.Context) ([]chat.GroupInfo, error)
	RefreshedAt() time.Time
}

// Sender executes one outbound send. Implemented by dispatch.Dispatcher.
type Sender interface {
	Send(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// Handler holds the gateway endpoint implementations.
type Handler struct {
	sessions SessionReader
	groups   GroupLister
	sender   Sender
}

// NewHandler wires the handlers to the core components.
func NewHandler(sessions SessionReader, lister GroupLister, sender Sender) *Handler {
	return &Handler{sessions: sessions, groups: lister, sender: sender}
}

// HealthLive reports process liveness. Always 200 while serving.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, http.StatusOK, models.HealthResponse{Status: "ok"})
}

// HealthReady reports readiness: the gateway is ready when the session
// can carry traffic.
func (h *Handler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	if err := h.sessions.EnsureConnected(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Status:   "error",
			Data:     models.HealthResponse{Status: "not_ready", Reason: err.Error()},
			Metadata: models.Metadata{Timestamp: time.Now()},
		})
		return
	}
	respondSuccess(w, http.StatusOK, models.HealthResponse{Status: "ready"})
}

// Status returns the session state snapshot, including the pairing
// challenge while pairing.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	st := h.sessions.Status()

	respondSuccess(w, http.StatusOK, models.StatusResponse{
		State:          st.State.String(),
		Challenge:      st.PairingCode,
		ConnectedSince: st.ConnectedSince,
		LastError:      st.LastError,
	})
}

// Groups lists the group directory, forcing a refresh.
func (h *Handler) Groups(w http.ResponseWriter, r *http.Request) {
	list, err := h.groups.ListGroups(r.Context())
	if err != nil {
		status, code := errorStatus(err)
		respondError(w, status, code, safeMessage(err), err)
		return
	}

	out := make([]models.GroupSummary, 0, len(list))
	for _, g := range list {
		out = append(out, models.GroupSummary{
			Name:         g.Name,
			ID:           g.JID,
			Participants: g.Participants,
		})
	}

	respondSuccess(w, http.StatusOK, models.GroupsResponse{
		Groups:      out,
		RefreshedAt: h.groups.RefreshedAt(),
	})
}

// Send validates and dispatches one outbound message.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req models.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "request body is not valid JSON", err)
		return
	}

	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{
			Status:   "error",
			Metadata: models.Metadata{Timestamp: time.Now()},
			Error:    apiErr,
		})
		return
	}

	dreq := dispatch.Request{
		Message:   req.Message,
		GroupJID:  req.GroupID,
		GroupName: req.GroupName,
	}
	if req.Attachment != nil {
		dreq.Attachment = &dispatch.Attachment{
			Content:  req.Attachment.Content,
			Filename: req.Attachment.Filename,
			MIMEType: req.Attachment.MIMEType,
		}
	}

	res, err := h.sender.Send(r.Context(), dreq)
	if err != nil {
		status, code := errorStatus(err)
		respondError(w, status, code, safeMessage(err), err)
		return
	}

	respondSuccess(w, http.StatusOK, models.SendResult{
		Success:   true,
		MessageID: res.MessageID,
		Target:    res.GroupJID,
		GroupName: res.GroupName,
		SentAt:    res.SentAt,
	})
}

// errorStatus maps the core error taxonomy to HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, dispatch.ErrEmptyMessage):
		return http.StatusBadRequest, "EMPTY_MESSAGE"
	case errors.Is(err, dispatch.ErrNoTarget):
		return http.StatusBadRequest, "NO_TARGET"
	case errors.Is(err, dispatch.ErrBadAttachment):
		return http.StatusBadRequest, "BAD_ATTACHMENT"
	case errors.Is(err, session.ErrNotConnected):
		return http.StatusServiceUnavailable, "NOT_CONNECTED"
	case errors.Is(err, session.ErrPairingRequired):
		return http.StatusServiceUnavailable, "PAIRING_REQUIRED"
	case errors.Is(err, groups.ErrGroupNotFound):
		return http.StatusNotFound, "GROUP_NOT_FOUND"
	default:
		return http.StatusInternalServerError, "DELIVERY_FAILED"
	}
}

// safeMessage returns the client-facing error text. Delivery failures
// keep their full detail in the logs only.
func safeMessage(err error) string {
	var de *dispatch.DeliveryError
	if errors.As(err, &de) {
		return "message delivery failed"
	}
	if status, _ := errorStatus(err); status == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
