// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Waypost bridges plain HTTP callers to a WhatsApp-style chat network.
// It owns a single long-lived chat session, resolves human group names
// to network identifiers, and dispatches text and attachment messages
// with validation, throttling, and a circuit breaker in front of the
// network.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/waypost/internal/api"
	"github.com/tomtom215/waypost/internal/chat"
	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/dispatch"
	"github.com/tomtom215/waypost/internal/groups"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/session"
	"github.com/tomtom215/waypost/internal/supervisor"
	"github.com/tomtom215/waypost/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Waypost with supervisor tree")

	logging.Info().
		Str("bridge_url", cfg.Chat.BridgeURL).
		Str("cred_store", cfg.Chat.CredStorePath).
		Bool("auth_enabled", !cfg.AuthDisabled()).
		Msg("Configuration loaded")

	if cfg.AuthDisabled() {
		logging.Warn().Msg("No auth phrase configured, the API accepts unauthenticated requests")
	}

	// === DATA LAYER ===

	credStore, err := session.OpenBadgerCredentialStore(cfg.Chat.CredStorePath)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Chat.CredStorePath).Msg("Failed to open credential store")
	}
	defer func() {
		if err := credStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing credential store")
		}
	}()
	logging.Info().Msg("Credential store opened")

	// === MESSAGING LAYER ===

	bridge := chat.NewBridgeClient(cfg.Chat.BridgeURL, cfg.Chat.BridgeToken)

	manager := session.NewManager(bridge, credStore, session.Config{
		PairingWait:           cfg.Chat.PairingWait,
		ReconnectInitialDelay: cfg.Chat.ReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.Chat.ReconnectMaxDelay,
	})

	resolver := groups.NewResolver(manager, bridge)

	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		DefaultGroupName: cfg.Dispatch.DefaultGroupName,
		StrictOrdering:   cfg.Dispatch.StrictOrdering,
		RatePerMinute:    cfg.Dispatch.RatePerMinute,
		AttachmentName:   cfg.Dispatch.AttachmentName,
		AttachmentMIME:   cfg.Dispatch.AttachmentMIME,
	}, resolver, manager, bridge)

	// === API LAYER ===

	handler := api.NewHandler(manager, resolver, dispatcher)
	router := api.NewRouter(cfg.Gateway, handler)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	// === SUPERVISOR TREE ===

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddDataService(services.NewCredStoreGCService(credStore))
	tree.AddMessagingService(services.NewSessionService(manager))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
