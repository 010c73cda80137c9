// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads, saves, and validates gryngotts configuration.
//
// Configuration lives in a TOML file. Any key can be overridden from the
// environment with the GRYNGOTTS_ prefix, nested keys joined by underscores
// (for example GRYNGOTTS_RPC_URL overrides rpc.url).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/bitfsorg/gryngotts-go/keys"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "GRYNGOTTS"

// Backends.
const (
	BackendRPC = "rpc"
	BackendSim = "sim"
)

// Config is the full process configuration.
type Config struct {
	Network  string         `mapstructure:"network"`
	DataDir  string         `mapstructure:"data_dir"`
	Backend  string         `mapstructure:"backend"`
	Log      LogConfig      `mapstructure:"log"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Sim      SimConfig      `mapstructure:"sim"`
	Keys     KeysConfig     `mapstructure:"keys"`
	Scenario ScenarioConfig `mapstructure:"scenario"`
}

// LogConfig selects level, format and destination of the process log.
// An empty File means stderr.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// RPCConfig holds node credentials. Empty fields fall back to the network preset.
type RPCConfig struct {
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Wallet   string `mapstructure:"wallet"`
}

// SimConfig configures the in-process chain. An empty DBPath keeps it in memory.
type SimConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// KeysConfig names the key material for both parties. The lender key comes
// from at most one of a WIF, an extended key or a mnemonic; the latter two are
// derived at LenderPath. A role with no material gets an ephemeral key.
type KeysConfig struct {
	LenderWIF        string `mapstructure:"lender_wif"`
	LenderXPrv       string `mapstructure:"lender_xprv"`
	LenderMnemonic   string `mapstructure:"lender_mnemonic"`
	LenderPassphrase string `mapstructure:"lender_passphrase"`
	LenderPath       string `mapstructure:"lender_path"`
	BorrowerWIF      string `mapstructure:"borrower_wif"`
}

// ScenarioConfig holds scenario defaults.
type ScenarioConfig struct {
	Fee        int64  `mapstructure:"fee"`
	LockOffset uint32 `mapstructure:"lock_offset"`
}

// DefaultConfig returns a configuration for a local regtest setup backed by
// the in-process chain.
func DefaultConfig() Config {
	return Config{
		Network: "regtest",
		DataDir: DefaultDataDir(),
		Backend: BackendSim,
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Keys: KeysConfig{
			LenderPath: keys.DefaultLenderPath,
		},
		Scenario: ScenarioConfig{
			Fee:        10_000,
			LockOffset: 10,
		},
	}
}

// DefaultDataDir returns ~/.gryngotts, or ./.gryngotts when the home
// directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gryngotts"
	}
	return filepath.Join(home, ".gryngotts")
}

// ConfigPath returns the config file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

// LoadConfig reads the TOML file at path on top of DefaultConfig and applies
// environment overrides.
func LoadConfig(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var parseErr viper.ConfigParseError
		if errors.As(err, &parseErr) {
			return Config{}, fmt.Errorf("%w: %w", ErrMalformedConfig, err)
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return decode(v)
}

// FromEnv returns DefaultConfig with environment overrides applied. It is used
// when no config file exists.
func FromEnv() (Config, error) {
	return decode(newViper())
}

// SaveConfig writes cfg to path as TOML with mode 0600, creating parent
// directories.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	for key, value := range flatten(cfg) {
		v.Set(key, value)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only reaches keys viper already knows.
	for key, value := range flatten(DefaultConfig()) {
		v.SetDefault(key, value)
	}
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrMalformedConfig, err)
	}
	return cfg, nil
}

func flatten(cfg Config) map[string]any {
	return map[string]any{
		"network":                cfg.Network,
		"data_dir":               cfg.DataDir,
		"backend":                cfg.Backend,
		"log.level":              cfg.Log.Level,
		"log.format":             cfg.Log.Format,
		"log.file":               cfg.Log.File,
		"log.max_size_mb":        cfg.Log.MaxSizeMB,
		"log.max_backups":        cfg.Log.MaxBackups,
		"rpc.url":                cfg.RPC.URL,
		"rpc.user":               cfg.RPC.User,
		"rpc.password":           cfg.RPC.Password,
		"rpc.wallet":             cfg.RPC.Wallet,
		"sim.db_path":            cfg.Sim.DBPath,
		"keys.lender_wif":        cfg.Keys.LenderWIF,
		"keys.lender_xprv":       cfg.Keys.LenderXPrv,
		"keys.lender_mnemonic":   cfg.Keys.LenderMnemonic,
		"keys.lender_passphrase": cfg.Keys.LenderPassphrase,
		"keys.lender_path":       cfg.Keys.LenderPath,
		"keys.borrower_wif":      cfg.Keys.BorrowerWIF,
		"scenario.fee":           cfg.Scenario.Fee,
		"scenario.lock_offset":   cfg.Scenario.LockOffset,
	}
}
