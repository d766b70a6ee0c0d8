// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
)

// authPhraseHeader carries the shared secret. Header only - there is no
// body-field equivalent.
const authPhraseHeader = "X-Auth-Phrase"

// Middleware builds the boundary middleware stack from gateway config.
type Middleware struct {
	cfg  config.GatewayConfig
	cors func(http.Handler) http.Handler
}

// NewMiddleware creates the middleware factory.
func NewMiddleware(cfg config.GatewayConfig) *Middleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", authPhraseHeader},
		MaxAge:         86400,
	})

	if cfg.AuthPhrase == "" && cfg.AuthPhraseHash == "" {
		logging.Warn().Msg("No auth phrase configured - gateway endpoints are unauthenticated")
	}

	return &Middleware{cfg: cfg, cors: corsHandler}
}

// CORS returns the CORS middleware. Global so OPTIONS preflight works.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns IP-based rate limiting for the API endpoints.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	if m.cfg.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(m.cfg.RateLimitReqs, m.cfg.RateLimitWindow)
}

// RateLimitHealth returns permissive rate limiting for health probes,
// allowing frequent monitoring while preventing abuse.
func (m *Middleware) RateLimitHealth() func(http.Handler) http.Handler {
	if m.cfg.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(1000, time.Minute)
}

// AuthPhrase gates requests on the shared secret. Comparison is
// constant-time; with a bcrypt hash configured the hash verification
// takes precedence so the clear-text phrase never has to be deployed.
func (m *Middleware) AuthPhrase(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.cfg.AuthPhrase == "" && m.cfg.AuthPhraseHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		phrase := r.Header.Get(authPhraseHeader)
		if phrase == "" || !m.phraseValid(phrase) {
			metrics.HTTPAuthFailures.Inc()
			respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR",
				"missing or invalid auth phrase", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// phraseValid checks the presented phrase against the configured secret.
func (m *Middleware) phraseValid(phrase string) bool {
	if m.cfg.AuthPhraseHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(m.cfg.AuthPhraseHash), []byte(phrase)) == nil
	}

	// Hash both sides so comparison time does not leak phrase length.
	want := sha256.Sum256([]byte(m.cfg.AuthPhrase))
	got := sha256.Sum256([]byte(phrase))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

// Metrics records request duration and status per route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.Status()), time.Since(start))
	})
}
