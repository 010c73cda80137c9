// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/bitfsorg/gryngotts-go/keys"
	"github.com/bitfsorg/gryngotts-go/scenario"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if cfg.Network != "mainnet" && cfg.Network != "testnet" && cfg.Network != "regtest" {
		return ErrInvalidNetwork
	}

	switch cfg.Backend {
	case BackendSim:
	case BackendRPC:
		// An empty URL defers to the network preset.
		if cfg.RPC.URL != "" {
			if err := validateURL(cfg.RPC.URL); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidRPCURL, err)
			}
		}
	default:
		return ErrInvalidBackend
	}

	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		return ErrInvalidLogLevel
	}
	if f := strings.ToLower(cfg.Log.Format); f != "text" && f != "json" {
		return ErrInvalidLogFormat
	}

	sources := 0
	for _, s := range []string{cfg.Keys.LenderWIF, cfg.Keys.LenderXPrv, cfg.Keys.LenderMnemonic} {
		if s != "" {
			sources++
		}
	}
	if sources > 1 {
		return ErrConflictingKeys
	}
	if cfg.Keys.LenderXPrv != "" || cfg.Keys.LenderMnemonic != "" {
		if _, err := keys.ParsePath(cfg.Keys.LenderPath); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidKeyPath, err)
		}
	}

	if cfg.Scenario.Fee <= 0 || cfg.Scenario.LockOffset < scenario.MinLockOffset {
		return ErrInvalidScenario
	}

	return nil
}

// validateURL checks that raw is an http(s) URL with a host:port authority.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	_, _, err = net.SplitHostPort(u.Host)
	return err
}
