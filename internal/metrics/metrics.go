// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package metrics provides Prometheus instrumentation for the gateway:
// session lifecycle, outbound dispatch, group directory cache, and the
// HTTP surface. All collectors are registered with the default registry
// via promauto and exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session Metrics
	SessionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waypost_session_state",
			Help: "Current session state (0=uninitialized, 1=pairing, 2=connected, 3=disconnected, 4=terminated)",
		},
	)

	SessionReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waypost_session_reconnects_total",
			Help: "Total number of reconnection attempts after unexpected drops",
		},
	)

	SessionPairings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waypost_session_pairings_total",
			Help: "Total number of pairing flows started",
		},
	)

	// Dispatch Metrics
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_sends_total",
			Help: "Total send attempts by outcome",
		},
		[]string{"outcome"}, // "delivered", "validation", "session", "resolution", "delivery"
	)

	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waypost_send_duration_seconds",
			Help:    "End-to-end duration of the send pipeline in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SendThrottleWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waypost_send_throttle_wait_seconds",
			Help:    "Time send requests spent waiting on the outbound rate limiter",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// Group Directory Metrics
	GroupCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waypost_group_cache_hits_total",
			Help: "Group name resolutions served from the cached directory",
		},
	)

	GroupCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waypost_group_cache_misses_total",
			Help: "Group name resolutions that required a directory refresh",
		},
	)

	GroupDirectoryRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_group_directory_refreshes_total",
			Help: "Group directory fetches from the chat network by result",
		},
		[]string{"result"}, // "success", "error"
	)

	GroupDirectorySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waypost_group_directory_size",
			Help: "Number of groups in the cached directory",
		},
	)

	// Circuit Breaker Metrics
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waypost_send_breaker_state",
			Help: "Send circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_send_breaker_transitions_total",
			Help: "Send circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)

	// HTTP Metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waypost_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPAuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waypost_http_auth_failures_total",
			Help: "Requests rejected for a missing or wrong auth phrase",
		},
	)
)

// RecordSessionState updates the session state gauge.
func RecordSessionState(state int) {
	SessionState.Set(float64(state))
}

// RecordSend records a completed send pipeline run.
func RecordSend(outcome string, duration time.Duration) {
	SendsTotal.WithLabelValues(outcome).Inc()
	SendDuration.Observe(duration.Seconds())
}

// RecordDirectoryRefresh records a group directory fetch.
func RecordDirectoryRefresh(err error, size int) {
	if err != nil {
		GroupDirectoryRefreshes.WithLabelValues("error").Inc()
		return
	}
	GroupDirectoryRefreshes.WithLabelValues("success").Inc()
	GroupDirectorySize.Set(float64(size))
}

// RecordHTTPRequest records a handled HTTP request.
func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}
