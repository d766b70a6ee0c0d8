// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package api provides the gateway's HTTP surface using the Chi router:
// health probes, session status, the group directory, the send
// endpoint, and Prometheus exposition.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/waypost/internal/config"
)

// Router assembles the middleware stack and routes.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates the router from gateway config and the endpoint
// handlers.
func NewRouter(cfg config.GatewayConfig, handler *Handler) *Router {
	return &Router{
		handler:    handler,
		middleware: NewMiddleware(cfg),
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order. CORS must be
	// global so OPTIONS preflight is handled.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	// Health probes: permissive rate limiting, no auth - these feed
	// orchestrator liveness checks.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.middleware.RateLimitHealth())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Gateway endpoints: auth phrase gate, standard rate limiting,
	// per-route metrics.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(router.middleware.AuthPhrase)
		r.Use(Metrics)

		r.Get("/status", router.handler.Status)
		r.Get("/groups", router.handler.Groups)
		r.Post("/send", router.handler.Send)
	})

	// Prometheus exposition, unauthenticated by convention.
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
