// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/waypost/internal/chat"
	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/dispatch"
	"github.com/tomtom215/waypost/internal/groups"
	"github.com/tomtom215/waypost/internal/models"
	"github.com/tomtom215/waypost/internal/session"
)

// ===================================================================================================
// Fakes
// ===================================================================================================

type fakeSession struct {
	status  session.Status
	gateErr error
}

func (s *fakeSession) Status() session.Status { return s.status }
func (s *fakeSession) EnsureConnected() error { return s.gateErr }

type fakeLister struct {
	groups []chat.GroupInfo
	err    error
}

func (l *fakeLister) ListGroups(_ context.Context) ([]chat.GroupInfo, error) {
	return l.groups, l.err
}

func (l *fakeLister) RefreshedAt() time.Time { return time.Now() }

type fakeSender struct {
	result *dispatch.Result
	err    error
	last   *dispatch.Request
}

func (s *fakeSender) Send(_ context.Context, req dispatch.Request) (*dispatch.Result, error) {
	s.last = &req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		RateLimitReqs:     1000,
		RateLimitWindow:   time.Minute,
		RateLimitDisabled: true,
		CORSOrigins:       []string{"*"},
	}
}

func newTestServer(t *testing.T, cfg config.GatewayConfig, sess *fakeSession, lister *fakeLister, sender *fakeSender) *httptest.Server {
	t.Helper()
	router := NewRouter(cfg, NewHandler(sess, lister, sender))
	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)
	return srv
}

func decodeEnvelope(t *testing.T, resp *http.Response) models.APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var env models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

// ===================================================================================================
// Status / Health
// ===================================================================================================

func TestStatusEndpoint_ReportsPairingChallenge(t *testing.T) {
	sess := &fakeSession{status: session.Status{State: session.StatePairing, PairingCode: "ABCD-1234"}}
	srv := newTestServer(t, testGatewayConfig(), sess, &fakeLister{}, &fakeSender{})

	resp, err := http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	data, _ := json.Marshal(env.Data)

	var st models.StatusResponse
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "pairing" || st.Challenge != "ABCD-1234" {
		t.Errorf("status = %+v", st)
	}
}

func TestHealthEndpoints(t *testing.T) {
	sess := &fakeSession{gateErr: session.ErrNotConnected}
	srv := newTestServer(t, testGatewayConfig(), sess, &fakeLister{}, &fakeSender{})

	resp, err := http.Get(srv.URL + "/api/v1/health/live")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("live = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/health/ready")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready while disconnected = %d, want 503", resp.StatusCode)
	}

	sess.gateErr = nil
	resp, err = http.Get(srv.URL + "/api/v1/health/ready")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready while connected = %d, want 200", resp.StatusCode)
	}
}

// ===================================================================================================
// Groups
// ===================================================================================================

func TestGroupsEndpoint(t *testing.T) {
	lister := &fakeLister{groups: []chat.GroupInfo{{JID: "120363022@g.us", Name: "Ops Team", Participants: 5}}}
	srv := newTestServer(t, testGatewayConfig(), &fakeSession{}, lister, &fakeSender{})

	resp, err := http.Get(srv.URL + "/api/v1/groups")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	data, _ := json.Marshal(env.Data)

	var gr models.GroupsResponse
	if err := json.Unmarshal(data, &gr); err != nil {
		t.Fatal(err)
	}
	if len(gr.Groups) != 1 || gr.Groups[0].Name != "Ops Team" {
		t.Errorf("groups = %+v", gr.Groups)
	}
}

func TestGroupsEndpoint_NotConnected(t *testing.T) {
	lister := &fakeLister{err: session.ErrNotConnected}
	srv := newTestServer(t, testGatewayConfig(), &fakeSession{}, lister, &fakeSender{})

	resp, err := http.Get(srv.URL + "/api/v1/groups")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env.Error == nil || env.Error.Code != "NOT_CONNECTED" {
		t.Errorf("error = %+v", env.Error)
	}
}

// ===================================================================================================
// Send
// ===================================================================================================

func postSend(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/v1/send", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestSendEndpoint_Success(t *testing.T) {
	sender := &fakeSender{result: &dispatch.Result{
		MessageID: "3EB0C431AA12",
		GroupJID:  "120363022@g.us",
		SentAt:    time.Now().UTC(),
	}}
	srv := newTestServer(t, testGatewayConfig(), &fakeSession{}, &fakeLister{}, sender)

	resp := postSend(t, srv, `{"message":"Hello","groupName":"Ops Team"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env.Status != "success" {
		t.Errorf("envelope status = %q", env.Status)
	}
	if sender.last == nil || sender.last.GroupName != "Ops Team" {
		t.Errorf("dispatched request = %+v", sender.last)
	}
}

func TestSendEndpoint_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		dispatchEr error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing message caught by validator",
			body:       `{"groupName":"Ops Team"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "whitespace message rejected by pipeline",
			body:       `{"message":"   ","groupName":"Ops Team"}`,
			dispatchEr: dispatch.ErrEmptyMessage,
			wantStatus: http.StatusBadRequest,
			wantCode:   "EMPTY_MESSAGE",
		},
		{
			name:       "no target",
			body:       `{"message":"Hello"}`,
			dispatchEr: dispatch.ErrNoTarget,
			wantStatus: http.StatusBadRequest,
			wantCode:   "NO_TARGET",
		},
		{
			name:       "bad attachment",
			body:       `{"message":"Hello","groupName":"Ops Team","attachment":{"content":"aGk="}}`,
			dispatchEr: dispatch.ErrBadAttachment,
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_ATTACHMENT",
		},
		{
			name:       "not connected",
			body:       `{"message":"Hello","groupName":"Ops Team"}`,
			dispatchEr: session.ErrNotConnected,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "NOT_CONNECTED",
		},
		{
			name:       "pairing required",
			body:       `{"message":"Hello","groupName":"Ops Team"}`,
			dispatchEr: session.ErrPairingRequired,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "PAIRING_REQUIRED",
		},
		{
			name:       "group not found",
			body:       `{"message":"Hello","groupName":"Nope"}`,
			dispatchEr: groups.ErrGroupNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "GROUP_NOT_FOUND",
		},
		{
			name:       "delivery failure",
			body:       `{"message":"Hello","groupName":"Ops Team"}`,
			dispatchEr: &dispatch.DeliveryError{Cause: context.DeadlineExceeded},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "DELIVERY_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{err: tt.dispatchEr}
			srv := newTestServer(t, testGatewayConfig(), &fakeSession{}, &fakeLister{}, sender)

			resp := postSend(t, srv, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			env := decodeEnvelope(t, resp)
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", env.Error, tt.wantCode)
			}
		})
	}
}

func TestSendEndpoint_DeliveryDetailNotLeaked(t *testing.T) {
	sender := &fakeSender{err: &dispatch.DeliveryError{Cause: context.DeadlineExceeded}}
	srv := newTestServer(t, testGatewayConfig(), &fakeSession{}, &fakeLister{}, sender)

	resp := postSend(t, srv, `{"message":"Hello","groupName":"Ops Team"}`)
	env := decodeEnvelope(t, resp)
	if env.Error == nil {
		t.Fatal("expected error payload")
	}
	if strings.Contains(env.Error.Message, "deadline") {
		t.Errorf("internal detail leaked to client: %q", env.Error.Message)
	}
}

func TestSendEndpoint_InvalidJSON(t *testing.T) {
	srv := newTestServer(t, testGatewayConfig(), &fakeSession{}, &fakeLister{}, &fakeSender{})

	resp := postSend(t, srv, `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

// ===================================================================================================
// Auth Phrase Gate
// ===================================================================================================

func TestAuthPhrase_Gate(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.AuthPhrase = "correct horse battery staple"

	sess := &fakeSession{status: session.Status{State: session.StateConnected}}
	srv := newTestServer(t, cfg, sess, &fakeLister{}, &fakeSender{})

	// Missing header.
	resp, err := http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing phrase = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	// Wrong phrase.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/status", nil)
	req.Header.Set("X-Auth-Phrase", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong phrase = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	// Correct phrase.
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/api/v1/status", nil)
	req.Header.Set("X-Auth-Phrase", "correct horse battery staple")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("correct phrase = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// Health stays open without the phrase.
	resp, err = http.Get(srv.URL + "/api/v1/health/live")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health with auth enabled = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthPhrase_BcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testGatewayConfig()
	cfg.AuthPhraseHash = string(hash)
	srv := newTestServer(t, cfg, &fakeSession{}, &fakeLister{}, &fakeSender{})

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/status", nil)
	req.Header.Set("X-Auth-Phrase", "s3cret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("bcrypt match = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/api/v1/status", nil)
	req.Header.Set("X-Auth-Phrase", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bcrypt mismatch = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}
