// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package dispatch validates and executes single outbound send
// requests. The Dispatcher is the sole write path to the chat network:
// a linear validate → target → resolve → gate → attachment → send
// pipeline with no partial-success state and no implicit retry.
package dispatch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/waypost/internal/chat"
	"github.com/tomtom215/waypost/internal/groups"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/session"
)

// Request is a single outbound send. GroupJID takes precedence over
// GroupName; with neither set, the configured default group name
// applies.
type Request struct {
	Message   string
	GroupJID  string
	GroupName string

	Attachment *Attachment
}

// Attachment carries a base64-encoded payload. Filename and MIMEType
// fall back to configured defaults when empty.
type Attachment struct {
	Content  string
	Filename string
	MIMEType string
}

// Result reports a fully delivered message.
type Result struct {
	MessageID string
	GroupJID  string
	GroupName string
	SentAt    time.Time
}

// Config shapes dispatcher behavior.
type Config struct {
	// DefaultGroupName is the fallback target. Empty means requests
	// without an explicit target fail with ErrNoTarget.
	DefaultGroupName string

	// StrictOrdering serializes sends per resolved target.
	StrictOrdering bool

	// RatePerMinute throttles outbound sends. 0 disables the throttle.
	RatePerMinute int

	// AttachmentName and AttachmentMIME fill in omitted attachment
	// metadata.
	AttachmentName string
	AttachmentMIME string
}

// Resolver translates group names to JIDs. Implemented by
// groups.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// Gate reports whether the session can carry traffic. Implemented by
// session.Manager.
type Gate interface {
	EnsureConnected() error
}

// Sender delivers a message to the network. Implemented by chat.Client.
type Sender interface {
	Send(ctx context.Context, msg chat.Message) (*chat.Receipt, error)
}

// Dispatcher owns no persistent state - it orchestrates the resolver,
// the session gate, and the chat client. Safe for concurrent use.
type Dispatcher struct {
	cfg      Config
	resolver Resolver
	gate     Gate
	sender   Sender

	breaker *gobreaker.CircuitBreaker[*chat.Receipt]
	limiter *rate.Limiter

	// targetMu serializes sends per resolved JID when StrictOrdering is
	// on.
	lockMu   sync.Mutex
	targetMu map[string]*sync.Mutex
}

// NewDispatcher creates a dispatcher. The circuit breaker opens after a
// 60% failure rate over at least 10 sends and recovers through a
// half-open probe after 2 minutes; an open breaker surfaces as
// DeliveryError, never as a validation or session error.
func NewDispatcher(cfg Config, resolver Resolver, gate Gate, sender Sender) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		resolver: resolver,
		gate:     gate,
		sender:   sender,
		targetMu: make(map[string]*sync.Mutex),
	}

	if cfg.RatePerMinute > 0 {
		d.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1)
	}

	metrics.BreakerState.Set(0)
	d.breaker = gobreaker.NewCircuitBreaker[*chat.Receipt](gobreaker.Settings{
		Name:        "chat-send",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening send circuit")
			}
			return shouldTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := breakerStateString(from)
			toStr := breakerStateString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.BreakerState.Set(breakerStateFloat(to))
			metrics.BreakerTransitions.WithLabelValues(fromStr, toStr).Inc()
		},
	})

	return d
}

// Send validates and executes one send request. A send either fully
// succeeds or fails at exactly one pipeline stage; no message is ever
// partially delivered because the transport accepts text + attachment
// as one atomic unit.
func (d *Dispatcher) Send(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	res, err := d.send(ctx, req)
	metrics.RecordSend(outcomeLabel(err), time.Since(start))
	return res, err
}

func (d *Dispatcher) send(ctx context.Context, req Request) (*Result, error) {
	// Stage 1: body text.
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	// Stage 2: target determination. Identifier wins over name, name
	// over configured default.
	targetJID := req.GroupJID
	targetName := req.GroupName
	if targetJID == "" && targetName == "" {
		targetName = d.cfg.DefaultGroupName
	}
	if targetJID == "" && targetName == "" {
		return nil, ErrNoTarget
	}

	// Stage 3: name resolution. Resolver errors (GroupNotFound,
	// NotConnected during refresh) propagate unchanged.
	if targetJID == "" {
		jid, err := d.resolver.Resolve(ctx, targetName)
		if err != nil {
			return nil, err
		}
		targetJID = jid
	}

	// Stage 4: session gate.
	if err := d.gate.EnsureConnected(); err != nil {
		return nil, err
	}

	// Stage 5: attachment decode.
	attachment, err := d.decodeAttachment(req.Attachment)
	if err != nil {
		return nil, err
	}

	// Stage 6: delivery, throttled and breaker-guarded.
	if d.limiter != nil {
		waitStart := time.Now()
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, &DeliveryError{Cause: err}
		}
		metrics.SendThrottleWait.Observe(time.Since(waitStart).Seconds())
	}

	if d.cfg.StrictOrdering {
		mu := d.targetLock(targetJID)
		mu.Lock()
		defer mu.Unlock()
	}

	msg := chat.Message{
		GroupJID:   targetJID,
		Text:       req.Message,
		Attachment: attachment,
	}

	receipt, err := d.breaker.Execute(func() (*chat.Receipt, error) {
		return d.sender.Send(ctx, msg)
	})
	if err != nil {
		logging.Error().Err(err).Str("group_jid", targetJID).Msg("Send failed")
		return nil, &DeliveryError{Cause: err}
	}

	// Stage 7: result.
	sentAt := receipt.Timestamp
	if sentAt.IsZero() {
		sentAt = time.Now()
	}

	logging.Info().
		Str("group_jid", targetJID).
		Str("message_id", receipt.MessageID).
		Bool("attachment", attachment != nil).
		Msg("Message dispatched")

	return &Result{
		MessageID: receipt.MessageID,
		GroupJID:  targetJID,
		GroupName: req.GroupName,
		SentAt:    sentAt,
	}, nil
}

// decodeAttachment validates and decodes the optional attachment,
// applying configured defaults for filename and MIME type.
func (d *Dispatcher) decodeAttachment(a *Attachment) (*chat.Attachment, error) {
	if a == nil {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(a.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadAttachment, "content is not valid base64")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrBadAttachment, "content decodes to an empty payload")
	}

	filename := a.Filename
	if filename == "" {
		filename = d.cfg.AttachmentName
	}
	mimeType := a.MIMEType
	if mimeType == "" {
		mimeType = d.cfg.AttachmentMIME
	}

	return &chat.Attachment{
		Data:     data,
		Filename: filename,
		MIMEType: mimeType,
	}, nil
}

// targetLock returns the per-target mutex, creating it on first use.
// Locks are never removed: the set of targets is small and stable.
func (d *Dispatcher) targetLock(jid string) *sync.Mutex {
	d.lockMu.Lock()
	defer d.lockMu.Unlock()

	mu, ok := d.targetMu[jid]
	if !ok {
		mu = &sync.Mutex{}
		d.targetMu[jid] = mu
	}
	return mu
}

// outcomeLabel classifies a pipeline error for metrics.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "delivered"
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrNoTarget), errors.Is(err, ErrBadAttachment):
		return "validation"
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrPairingRequired):
		return "session"
	case errors.Is(err, groups.ErrGroupNotFound):
		return "resolution"
	default:
		return "delivery"
	}
}

// breakerStateString converts a gobreaker state for logs and metrics.
func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// breakerStateFloat converts a gobreaker state to a gauge value.
func breakerStateFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
