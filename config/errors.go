// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrInvalidNetwork indicates the network name is not recognized.
	ErrInvalidNetwork = errors.New("config: invalid network (must be \"mainnet\", \"testnet\", or \"regtest\")")

	// ErrInvalidBackend indicates the chain backend is not recognized.
	ErrInvalidBackend = errors.New("config: invalid backend (must be \"rpc\" or \"sim\")")

	// ErrInvalidRPCURL indicates the node URL is malformed.
	ErrInvalidRPCURL = errors.New("config: invalid rpc url")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrInvalidLogFormat indicates the log format is not recognized.
	ErrInvalidLogFormat = errors.New("config: invalid log format (must be \"text\" or \"json\")")

	// ErrInvalidKeyPath indicates the lender derivation path does not parse.
	ErrInvalidKeyPath = errors.New("config: invalid lender derivation path")

	// ErrConflictingKeys indicates more than one lender key source was given.
	ErrConflictingKeys = errors.New("config: lender_wif, lender_xprv and lender_mnemonic are mutually exclusive")

	// ErrInvalidScenario indicates a non-positive fee or a lock offset below 2.
	ErrInvalidScenario = errors.New("config: scenario fee must be positive and lock offset at least 2")

	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrMalformedConfig indicates the config file or an override does not decode.
	ErrMalformedConfig = errors.New("config: malformed configuration")
)
