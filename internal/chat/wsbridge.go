// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package chat

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/waypost/internal/logging"
)

// BridgeClient implements Client over a websocket connection to the
// chat-network bridge process.
//
// Wire format: JSON frames in both directions. Requests carry a type
// and a correlation id; the bridge answers with a frame of the same id.
// Unsolicited frames with type "event" carry lifecycle notifications
// (connected, disconnected, pairing, logged_out).
//
// Key behaviors:
//   - Thread-safe request/response correlation
//   - Ping/pong keepalive (30-second interval)
//   - No automatic reconnection: on a read error the client closes the
//     transport and emits EventDisconnected; the session manager owns
//     the backoff-and-retry policy.
type BridgeClient struct {
	bridgeURL string
	token     string

	conn     *websocket.Conn
	connMu   sync.RWMutex
	stopChan chan struct{}
	wg       sync.WaitGroup

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan resultFrame

	handlerMu sync.RWMutex
	onEvent   func(Event)
}

var _ Client = (*BridgeClient)(nil)

// frame is the envelope for every message crossing the bridge socket.
type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Op      string          `json:"op,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Event fields (type == "event")
	Event       string `json:"event,omitempty"`
	PairingCode string `json:"pairing_code,omitempty"`
	Credentials []byte `json:"credentials,omitempty"`
	Reason      string `json:"reason,omitempty"`

	// Result fields (type == "result")
	OK    bool            `json:"ok,omitempty"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// resultFrame is the response half delivered to a waiting caller.
type resultFrame struct {
	ok   bool
	err  string
	data json.RawMessage
}

// NewBridgeClient creates a bridge client. Not yet connected - call
// Connect.
func NewBridgeClient(bridgeURL, token string) *BridgeClient {
	return &BridgeClient{
		bridgeURL: bridgeURL,
		token:     token,
		pending:   make(map[string]chan resultFrame),
	}
}

// SetEventHandler registers the lifecycle event callback.
func (c *BridgeClient) SetEventHandler(fn func(Event)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onEvent = fn
}

// Connect dials the bridge and starts the listener and keepalive
// goroutines. Safe for concurrent calls; a second call while connected
// is a no-op.
func (c *BridgeClient) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return nil
	}

	wsURL, err := c.buildBridgeURL()
	if err != nil {
		return fmt.Errorf("build bridge url: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("bridge dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("bridge dial: %w", err)
	}

	c.conn = conn
	c.stopChan = make(chan struct{})
	logging.Info().Str("url", c.bridgeURL).Msg("Bridge connected")

	c.wg.Add(1)
	go c.listen(conn, c.stopChan)

	c.wg.Add(1)
	go c.pingLoop(conn, c.stopChan)

	return nil
}

// buildBridgeURL converts the configured URL to ws(s) and injects the
// bridge token as a query parameter.
func (c *BridgeClient) buildBridgeURL() (string, error) {
	parsed, err := url.Parse(c.bridgeURL)
	if err != nil {
		return "", fmt.Errorf("parse bridge url: %w", err)
	}

	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}

	if c.token != "" {
		q := parsed.Query()
		q.Set("token", c.token)
		parsed.RawQuery = q.Encode()
	}

	return parsed.String(), nil
}

// listen reads frames until the connection drops or Disconnect is
// called. Responses are routed to waiting callers, events to the
// registered handler. Each Connect spawns a fresh listener bound to its
// own connection, so a reconnect never revives a stale goroutine.
func (c *BridgeClient) listen(conn *websocket.Conn, stop chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(90 * time.Second)); err != nil {
			logging.Warn().Err(err).Msg("Bridge: failed to set read deadline")
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stop:
				// Deliberate shutdown - no disconnect event.
				return
			default:
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info().Msg("Bridge closed normally")
				err = nil
			} else {
				logging.Error().Err(err).Msg("Bridge read error")
			}

			c.releaseConnection(conn)
			c.failPending(fmt.Errorf("bridge connection lost"))
			c.emit(Event{Type: EventDisconnected, Err: err})
			return
		}

		c.handleMessage(message)
	}
}

// handleMessage parses a frame and routes it.
func (c *BridgeClient) handleMessage(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		logging.Error().Err(err).Msg("Failed to parse bridge frame")
		return
	}

	switch f.Type {
	case "result":
		c.pendingMu.Lock()
		ch, ok := c.pending[f.ID]
		if ok {
			delete(c.pending, f.ID)
		}
		c.pendingMu.Unlock()

		if !ok {
			logging.Warn().Str("id", f.ID).Msg("Bridge result for unknown request")
			return
		}
		ch <- resultFrame{ok: f.OK, err: f.Error, data: f.Data}

	case "event":
		switch f.Event {
		case "connected":
			c.emit(Event{Type: EventConnected})
		case "disconnected":
			var err error
			if f.Reason != "" {
				err = fmt.Errorf("%s", f.Reason)
			}
			c.emit(Event{Type: EventDisconnected, Err: err})
		case "pairing":
			c.emit(Event{Type: EventPairing, PairingCode: f.PairingCode})
		case "logged_out":
			c.emit(Event{Type: EventLoggedOut})
		case "credentials":
			c.emit(Event{Type: EventCredentials, Credentials: f.Credentials})
		default:
			logging.Debug().Str("event", f.Event).Msg("Unknown bridge event")
		}

	default:
		logging.Debug().Str("type", f.Type).Msg("Unknown bridge frame type")
	}
}

// emit delivers an event to the registered handler, if any.
func (c *BridgeClient) emit(ev Event) {
	c.handlerMu.RLock()
	fn := c.onEvent
	c.handlerMu.RUnlock()

	if fn != nil {
		fn(ev)
	}
}

// pingLoop sends ping messages to keep the connection alive and detect
// dead peers. A failed ping closes the connection; the listener then
// observes the read error and emits the disconnect event.
func (c *BridgeClient) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				logging.Warn().Err(err).Msg("Bridge ping failed")
				_ = conn.Close()
				return
			}
		}
	}
}

// call sends a request frame and waits for its correlated result.
func (c *BridgeClient) call(ctx context.Context, op string, payload interface{}) (json.RawMessage, error) {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return nil, fmt.Errorf("bridge not connected")
	}

	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", op, err)
		}
		raw = b
	}

	id := uuid.NewString()
	req := frame{Type: "request", ID: id, Op: op, Payload: raw}

	ch := make(chan resultFrame, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := c.writeFrame(&req); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("write %s request: %w", op, err)
	}

	select {
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, ctx.Err()
	case res := <-ch:
		if !res.ok {
			return nil, fmt.Errorf("bridge %s failed: %s", op, res.err)
		}
		return res.data, nil
	}
}

// writeFrame serializes and writes one frame. gorilla/websocket allows
// a single concurrent writer, hence the mutex.
func (c *BridgeClient) writeFrame(f *frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return fmt.Errorf("bridge not connected")
	}

	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

// failPending unblocks all in-flight calls after a connection loss.
func (c *BridgeClient) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for id, ch := range c.pending {
		ch <- resultFrame{ok: false, err: err.Error()}
		delete(c.pending, id)
	}
}

// Groups fetches the group directory from the network.
func (c *BridgeClient) Groups(ctx context.Context) ([]GroupInfo, error) {
	data, err := c.call(ctx, "groups", nil)
	if err != nil {
		return nil, err
	}

	var groups []GroupInfo
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parse groups response: %w", err)
	}
	return groups, nil
}

// Send delivers a message and returns the network receipt.
func (c *BridgeClient) Send(ctx context.Context, msg Message) (*Receipt, error) {
	data, err := c.call(ctx, "send", msg)
	if err != nil {
		return nil, err
	}

	var receipt Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("parse send receipt: %w", err)
	}
	return &receipt, nil
}

// Restore hands stored credentials to the bridge for a silent reconnect.
func (c *BridgeClient) Restore(ctx context.Context, credentials []byte) error {
	payload := struct {
		Credentials []byte `json:"credentials"`
	}{Credentials: credentials}

	_, err := c.call(ctx, "restore", payload)
	return err
}

// Logout invalidates credentials on the network side, then closes the
// transport.
func (c *BridgeClient) Logout(ctx context.Context) error {
	if _, err := c.call(ctx, "logout", nil); err != nil {
		return err
	}
	return c.Disconnect()
}

// Disconnect stops the background goroutines and closes the transport.
// Idempotent.
func (c *BridgeClient) Disconnect() error {
	c.connMu.Lock()
	if c.stopChan != nil {
		select {
		case <-c.stopChan:
			// Already stopping.
		default:
			close(c.stopChan)
		}
	}
	c.connMu.Unlock()

	c.closeConnection()
	c.wg.Wait()
	c.failPending(fmt.Errorf("bridge disconnected"))
	return nil
}

// releaseConnection clears the client handle if it still points at the
// given connection, then closes it.
func (c *BridgeClient) releaseConnection(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()
	_ = conn.Close()
}

// closeConnection closes the websocket and clears the handle. Safe for
// concurrent calls.
func (c *BridgeClient) closeConnection() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
		c.conn = nil
		logging.Info().Msg("Bridge connection closed")
	}
}

// IsConnected reports whether the transport is currently up.
func (c *BridgeClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}
