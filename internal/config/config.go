// Waypost - WhatsApp Outbound Messaging Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package config provides layered configuration loading for Waypost
// using Koanf v2: built-in defaults, an optional YAML file, and
// environment variables, with environment taking the highest priority.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration for the gateway.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Gateway  GatewayConfig  `koanf:"gateway"`
	Chat     ChatConfig     `koanf:"chat"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// GatewayConfig holds boundary settings: the shared auth phrase and
// request throttling for the HTTP surface.
type GatewayConfig struct {
	// AuthPhrase is compared in constant time against the X-Auth-Phrase
	// request header. Empty disables the gate (development only).
	AuthPhrase string `koanf:"auth_phrase"`

	// AuthPhraseHash is a bcrypt hash of the phrase. When set it takes
	// precedence over AuthPhrase, so the secret never sits in the
	// environment in clear text.
	AuthPhraseHash string `koanf:"auth_phrase_hash"`

	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// ChatConfig holds settings for the chat-network bridge connection and
// the pairing-credential store.
type ChatConfig struct {
	// BridgeURL is the websocket endpoint of the chat-network bridge,
	// e.g. "ws://localhost:8055/ws". http(s) schemes are converted.
	BridgeURL string `koanf:"bridge_url"`

	// BridgeToken authenticates the gateway to the bridge itself.
	BridgeToken string `koanf:"bridge_token"`

	// CredStorePath is the BadgerDB directory for pairing credentials.
	CredStorePath string `koanf:"cred_store_path"`

	// PairingWait bounds how long Start waits for a pairing challenge
	// before reporting that pairing is required.
	PairingWait time.Duration `koanf:"pairing_wait"`

	// ReconnectInitialDelay and ReconnectMaxDelay shape the capped
	// exponential backoff applied on unexpected connection drops.
	ReconnectInitialDelay time.Duration `koanf:"reconnect_initial_delay"`
	ReconnectMaxDelay     time.Duration `koanf:"reconnect_max_delay"`
}

// DispatchConfig holds message-dispatch settings.
type DispatchConfig struct {
	// DefaultGroupName is the fallback target when a request names no
	// group. Empty means requests without an explicit target fail.
	DefaultGroupName string `koanf:"default_group_name"`

	// StrictOrdering serializes concurrent sends to the same resolved
	// group. Off by default; the network does not require it.
	StrictOrdering bool `koanf:"strict_ordering"`

	// RatePerMinute throttles outbound sends. 0 disables the throttle.
	RatePerMinute int `koanf:"rate_per_minute"`

	// AttachmentName and AttachmentMIME are applied when a request
	// carries an attachment without filename or mimetype.
	AttachmentName string `koanf:"attachment_name"`
	AttachmentMIME string `koanf:"attachment_mime"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that would prevent the
// gateway from operating. It is called by Load after all layers merge.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}

	if c.Chat.BridgeURL == "" {
		return fmt.Errorf("chat.bridge_url is required (WHATSAPP_BRIDGE_URL)")
	}
	u, err := url.Parse(c.Chat.BridgeURL)
	if err != nil {
		return fmt.Errorf("chat.bridge_url is not a valid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("chat.bridge_url scheme must be ws, wss, http or https, got %q", u.Scheme)
	}

	if c.Chat.ReconnectInitialDelay <= 0 {
		return fmt.Errorf("chat.reconnect_initial_delay must be positive, got %s", c.Chat.ReconnectInitialDelay)
	}
	if c.Chat.ReconnectMaxDelay < c.Chat.ReconnectInitialDelay {
		return fmt.Errorf("chat.reconnect_max_delay (%s) must be >= chat.reconnect_initial_delay (%s)",
			c.Chat.ReconnectMaxDelay, c.Chat.ReconnectInitialDelay)
	}
	if c.Chat.PairingWait <= 0 {
		return fmt.Errorf("chat.pairing_wait must be positive, got %s", c.Chat.PairingWait)
	}

	if c.Dispatch.RatePerMinute < 0 {
		return fmt.Errorf("dispatch.rate_per_minute must be >= 0, got %d", c.Dispatch.RatePerMinute)
	}

	if c.Gateway.RateLimitReqs <= 0 {
		return fmt.Errorf("gateway.rate_limit_requests must be positive, got %d", c.Gateway.RateLimitReqs)
	}
	if c.Gateway.RateLimitWindow <= 0 {
		return fmt.Errorf("gateway.rate_limit_window must be positive, got %s", c.Gateway.RateLimitWindow)
	}

	return nil
}

// AuthDisabled reports whether the boundary runs without an auth phrase.
func (c *Config) AuthDisabled() bool {
	return c.Gateway.AuthPhrase == "" && c.Gateway.AuthPhraseHash == ""
}
