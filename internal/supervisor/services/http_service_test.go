// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockServer simulates http.Server lifecycle.
type mockServer struct {
	listenErr error
	done      chan struct{}
	shutdown  bool
}

func newMockServer(listenErr error) *mockServer {
	return &mockServer{listenErr: listenErr, done: make(chan struct{})}
}

func (m *mockServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.done
	return nil
}

func (m *mockServer) Shutdown(_ context.Context) error {
	m.shutdown = true
	close(m.done)
	return nil
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	server := newMockServer(nil)
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if !server.shutdown {
		t.Error("Shutdown was not invoked")
	}
}

func TestHTTPServerService_StartupFailure(t *testing.T) {
	server := newMockServer(errors.New("bind: address already in use"))
	svc := NewHTTPServerService(server, time.Second)

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("expected startup failure to surface")
	}
}

func TestHTTPServerService_String(t *testing.T) {
	if got := NewHTTPServerService(newMockServer(nil), 0).String(); got != "http-server" {
		t.Errorf("String() = %q", got)
	}
}
