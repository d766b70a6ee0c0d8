// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package session owns the single long-lived connection to the chat
// network. The Manager drives the state machine
//
//	UNINITIALIZED → PAIRING → CONNECTED ⇄ DISCONNECTED → TERMINATED
//
// and is the only component allowed to mutate connection state. Other
// components read Status or gate operations through EnsureConnected.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/waypost/internal/chat"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
)

// State is the session connection state.
type State int

const (
	StateUninitialized State = iota
	StatePairing
	StateConnected
	StateDisconnected
	StateTerminated
)

// String returns the wire representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePairing:
		return "pairing"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Status is a non-blocking snapshot of the session.
type Status struct {
	State State

	// PairingCode is the outstanding challenge while pairing.
	PairingCode string

	// ConnectedSince is set while connected.
	ConnectedSince *time.Time

	// LastError describes the most recent connection failure.
	LastError string
}

// Config shapes the manager's timing behavior.
type Config struct {
	// PairingWait bounds how long Start waits for the session to come
	// up before reporting ErrPairingRequired.
	PairingWait time.Duration

	// ReconnectInitialDelay and ReconnectMaxDelay shape the capped
	// exponential backoff after unexpected drops.
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
}

// Manager maintains exactly one chat-network connection. All methods
// are safe for concurrent use.
type Manager struct {
	client chat.Client
	creds  CredentialStore
	cfg    Config

	mu             sync.Mutex
	state          State
	pairingCode    string
	connectedSince time.Time
	lastErr        error
	stopped        bool

	// inflight collapses concurrent Start calls into one attempt. It is
	// non-nil while an attempt runs and closed when it finishes.
	inflight chan struct{}
	startErr error

	// startNotify receives lifecycle events while a Start attempt waits
	// for the session to come up.
	startNotify chan chat.Event

	// reconnecting guards against stacking backoff loops.
	reconnecting bool

	// lifeCtx is canceled by Disconnect and stops the backoff loop.
	lifeCtx  context.Context
	lifeStop context.CancelFunc
}

// NewManager creates a manager around the given client and credential
// store. It registers itself as the client's event handler; call Start
// to begin connecting.
func NewManager(client chat.Client, creds CredentialStore, cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		client:   client,
		creds:    creds,
		cfg:      cfg,
		state:    StateUninitialized,
		lifeCtx:  ctx,
		lifeStop: cancel,
	}
	client.SetEventHandler(m.handleEvent)
	metrics.RecordSessionState(int(StateUninitialized))
	return m
}

// Start begins pairing/connection. Idempotent: returns nil immediately
// when already connected, and concurrent calls collapse into a single
// in-flight attempt whose result they all share.
//
// With stored credentials the connection comes up silently; without
// them the network issues a pairing challenge and Start returns
// ErrPairingRequired after PairingWait. That is non-fatal: the attempt
// stays live and callers poll Status for the challenge.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	if m.stopped {
		m.mu.Unlock()
		return ErrNotConnected
	}
	if m.inflight != nil {
		// Another Start is in flight - wait for its result.
		done := m.inflight
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			m.mu.Lock()
			err := m.startErr
			m.mu.Unlock()
			return err
		}
	}

	done := make(chan struct{})
	notify := make(chan chat.Event, 8)
	m.inflight = done
	m.startNotify = notify
	m.mu.Unlock()

	err := m.connect(ctx, notify)

	m.mu.Lock()
	m.startErr = err
	m.inflight = nil
	m.startNotify = nil
	m.mu.Unlock()
	close(done)

	return err
}

// connect dials the transport, restores credentials if present, and
// waits for the session to come up.
func (m *Manager) connect(ctx context.Context, notify chan chat.Event) error {
	if err := m.client.Connect(ctx); err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}

	blob, err := m.creds.Load(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load stored credentials")
	}
	if len(blob) > 0 {
		if err := m.client.Restore(ctx, blob); err != nil {
			logging.Warn().Err(err).Msg("Credential restore rejected, pairing will be required")
		}
	}

	timer := time.NewTimer(m.cfg.PairingWait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			m.mu.Lock()
			st := m.state
			m.mu.Unlock()
			if st == StateConnected {
				return nil
			}
			// Pairing outstanding (or still handshaking). The attempt
			// stays live; callers poll Status.
			return ErrPairingRequired

		case ev := <-notify:
			switch ev.Type {
			case chat.EventConnected:
				return nil
			case chat.EventDisconnected:
				if ev.Err != nil {
					return fmt.Errorf("connection lost during start: %w", ev.Err)
				}
				return ErrNotConnected
			default:
				// Pairing and credential events update state through
				// handleEvent; keep waiting.
			}
		}
	}
}

// Status returns a snapshot of the session. Never blocks.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{State: m.state}
	if m.state == StatePairing {
		st.PairingCode = m.pairingCode
	}
	if m.state == StateConnected {
		since := m.connectedSince
		st.ConnectedSince = &since
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

// EnsureConnected returns nil when the session is connected. It never
// attempts to establish a connection itself - it only gates dependent
// operations.
func (m *Manager) EnsureConnected() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateConnected:
		return nil
	case StatePairing:
		return ErrPairingRequired
	default:
		return ErrNotConnected
	}
}

// Disconnect releases the network handle and moves the session to the
// terminal state. Idempotent; safe on every exit path.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.state == StateTerminated {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	m.pairingCode = ""
	m.setStateLocked(StateTerminated)
	m.mu.Unlock()

	m.lifeStop()

	if err := m.client.Disconnect(); err != nil {
		logging.Warn().Err(err).Msg("Client disconnect reported error")
	}

	logging.Info().Msg("Session terminated")
	return nil
}

// Logout invalidates network-side credentials, clears the stored blob,
// and terminates the session. The next Start requires pairing.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.client.Logout(ctx); err != nil {
		logging.Warn().Err(err).Msg("Network logout reported error")
	}

	if err := m.creds.Delete(ctx); err != nil {
		return fmt.Errorf("delete stored credentials: %w", err)
	}

	return m.Disconnect()
}

// handleEvent updates the state machine from client lifecycle events.
// State mutation happens synchronously within the handler; no reentrant
// calls back into the client are made while holding the lock.
func (m *Manager) handleEvent(ev chat.Event) {
	m.mu.Lock()

	if m.stopped {
		m.mu.Unlock()
		return
	}

	switch ev.Type {
	case chat.EventConnected:
		m.connectedSince = time.Now()
		m.pairingCode = ""
		m.lastErr = nil
		m.setStateLocked(StateConnected)
		m.mu.Unlock()
		logging.Info().Msg("Session connected")

	case chat.EventPairing:
		m.pairingCode = ev.PairingCode
		m.setStateLocked(StatePairing)
		m.mu.Unlock()
		metrics.SessionPairings.Inc()
		logging.Info().Msg("Pairing required, challenge issued")

	case chat.EventDisconnected:
		m.lastErr = ev.Err
		m.pairingCode = ""
		m.setStateLocked(StateDisconnected)
		startLoop := !m.reconnecting
		if startLoop {
			m.reconnecting = true
		}
		m.mu.Unlock()

		logging.Warn().Err(ev.Err).Msg("Session dropped")
		if startLoop {
			go m.reconnectLoop()
		}

	case chat.EventLoggedOut:
		m.pairingCode = ""
		m.setStateLocked(StateDisconnected)
		startLoop := !m.reconnecting
		if startLoop {
			m.reconnecting = true
		}
		m.mu.Unlock()

		logging.Warn().Msg("Network invalidated credentials, clearing stored blob")
		if err := m.creds.Delete(context.Background()); err != nil {
			logging.Error().Err(err).Msg("Failed to delete stored credentials")
		}
		if startLoop {
			go m.reconnectLoop()
		}

	case chat.EventCredentials:
		m.mu.Unlock()
		if err := m.creds.Save(context.Background(), ev.Credentials); err != nil {
			logging.Error().Err(err).Msg("Failed to persist credentials")
		} else {
			logging.Debug().Msg("Credentials persisted")
		}

	default:
		m.mu.Unlock()
	}

	m.forwardToStart(ev)
}

// forwardToStart hands the event to a waiting Start attempt, if any.
func (m *Manager) forwardToStart(ev chat.Event) {
	m.mu.Lock()
	notify := m.startNotify
	m.mu.Unlock()

	if notify != nil {
		select {
		case notify <- ev:
		default:
		}
	}
}

// setStateLocked records a state transition. Caller holds m.mu.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	logging.Debug().
		Str("from", m.state.String()).
		Str("to", s.String()).
		Msg("Session state transition")
	m.state = s
	metrics.RecordSessionState(int(s))
}

// reconnectLoop retries connection establishment with capped
// exponential backoff, indefinitely, until the session connects or
// Disconnect is invoked. Drops are the only failures absorbed silently
// anywhere in the gateway; each retry is logged with its delay.
func (m *Manager) reconnectLoop() {
	defer func() {
		m.mu.Lock()
		m.reconnecting = false
		m.mu.Unlock()
	}()

	delay := m.cfg.ReconnectInitialDelay

	for {
		logging.Info().Dur("delay", delay).Msg("Scheduling reconnect attempt")
		select {
		case <-m.lifeCtx.Done():
			return
		case <-time.After(delay):
		}

		m.mu.Lock()
		if m.stopped || m.state == StateConnected {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		metrics.SessionReconnects.Inc()

		if err := m.client.Connect(m.lifeCtx); err != nil {
			logging.Error().Err(err).Dur("delay", delay).Msg("Reconnect attempt failed")
			delay *= 2
			if delay > m.cfg.ReconnectMaxDelay {
				delay = m.cfg.ReconnectMaxDelay
			}
			continue
		}

		blob, err := m.creds.Load(m.lifeCtx)
		if err != nil {
			logging.Error().Err(err).Msg("Failed to load stored credentials")
		}
		if len(blob) > 0 {
			if err := m.client.Restore(m.lifeCtx, blob); err != nil {
				logging.Warn().Err(err).Msg("Credential restore rejected during reconnect")
			}
		}

		// Transport re-established. The connected (or pairing) event
		// drives the state machine from here; a further drop spawns a
		// fresh loop.
		return
	}
}
