package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bitfsorg/gryngotts-go/config"
	"github.com/bitfsorg/gryngotts-go/keys"
	"github.com/bitfsorg/gryngotts-go/logging"
	"github.com/bitfsorg/gryngotts-go/network"
	"github.com/bitfsorg/gryngotts-go/simnet"
)

// app carries what every subcommand needs. It is filled by the root
// command's PersistentPreRunE.
type app struct {
	configPath string
	flags      flagOverrides

	cfg      config.Config
	params   *chaincfg.Params
	log      *slog.Logger
	logClose io.Closer
}

// flagOverrides are persistent flags that replace config values when set.
type flagOverrides struct {
	dataDir  string
	network  string
	backend  string
	rpcURL   string
	rpcUser  string
	rpcPass  string
	wallet   string
	simDB    string
	logLevel string
	logFmt   string
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "gryngotts",
		Short:         "Exercise hashlock/timelock loan contracts on a Bitcoin chain",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Flags(), cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logClose != nil {
				return a.logClose.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default <datadir>/config.toml)")
	pf.StringVar(&a.flags.dataDir, "datadir", config.DefaultDataDir(), "data directory")
	pf.StringVar(&a.flags.network, "network", "", "network: mainnet, testnet or regtest")
	pf.StringVar(&a.flags.backend, "backend", "", "chain backend: rpc or sim")
	pf.StringVar(&a.flags.rpcURL, "rpc-url", "", "node JSON-RPC URL")
	pf.StringVar(&a.flags.rpcUser, "rpc-user", "", "node JSON-RPC user")
	pf.StringVar(&a.flags.rpcPass, "rpc-pass", "", "node JSON-RPC password")
	pf.StringVar(&a.flags.wallet, "rpc-wallet", "", "node wallet name for multi-wallet nodes")
	pf.StringVar(&a.flags.simDB, "sim-db", "", "bbolt file for the sim backend (empty keeps it in memory)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&a.flags.logFmt, "log-format", "", "log format: text or json")

	root.AddCommand(
		newRunCommand(a),
		newCompileCommand(a),
		newPreimageCommand(a),
		newInspectCommand(a),
		newWatchCommand(a),
		newInitCommand(a),
		newShowConfCommand(a),
	)
	return root
}

// setup loads the config file (or the environment alone when the file is
// absent), applies flag overrides, validates, and builds the logger.
func (a *app) setup(fs *pflag.FlagSet, stderr io.Writer) error {
	path := a.configPath
	if path == "" {
		path = config.ConfigPath(a.flags.dataDir)
	}
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, config.ErrConfigNotFound) {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return err
	}
	if fs.Changed("datadir") || cfg.DataDir == "" {
		cfg.DataDir = a.flags.dataDir
	}
	override(fs, "network", &cfg.Network, a.flags.network)
	override(fs, "backend", &cfg.Backend, a.flags.backend)
	override(fs, "rpc-url", &cfg.RPC.URL, a.flags.rpcURL)
	override(fs, "rpc-user", &cfg.RPC.User, a.flags.rpcUser)
	override(fs, "rpc-pass", &cfg.RPC.Password, a.flags.rpcPass)
	override(fs, "rpc-wallet", &cfg.RPC.Wallet, a.flags.wallet)
	override(fs, "sim-db", &cfg.Sim.DBPath, a.flags.simDB)
	override(fs, "log-level", &cfg.Log.Level, a.flags.logLevel)
	override(fs, "log-format", &cfg.Log.Format, a.flags.logFmt)

	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}
	params, err := keys.NetworkParams(cfg.Network)
	if err != nil {
		return err
	}
	log, closer, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return err
	}

	a.configPath = path
	a.cfg, a.params, a.log, a.logClose = cfg, params, log, closer
	return nil
}

func override(fs *pflag.FlagSet, name string, dst *string, value string) {
	if fs.Changed(name) {
		*dst = value
	}
}

// backend is an opened chain client. Lister is nil when the backend cannot
// list wallet transactions.
type backend struct {
	network.ChainClient
	Lister network.TxLister
	close  func() error
}

func (b *backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// openBackend connects to the configured node or opens the sim chain.
func (a *app) openBackend() (*backend, error) {
	switch a.cfg.Backend {
	case config.BackendRPC:
		rpcCfg, err := network.ResolveConfig(&network.RPCConfig{
			URL:      a.cfg.RPC.URL,
			User:     a.cfg.RPC.User,
			Password: a.cfg.RPC.Password,
			Wallet:   a.cfg.RPC.Wallet,
		}, rpcEnv(), a.cfg.Network)
		if err != nil {
			return nil, err
		}
		client := network.NewRPCClient(*rpcCfg)
		a.log.Debug("using rpc backend", "url", rpcCfg.URL)
		return &backend{ChainClient: client, Lister: client}, nil

	case config.BackendSim:
		var store simnet.Store = simnet.NewMemStore()
		if a.cfg.Sim.DBPath != "" {
			bs, err := simnet.OpenBoltStore(a.cfg.Sim.DBPath)
			if err != nil {
				return nil, err
			}
			store = bs
		}
		chain, err := simnet.New(store, a.params)
		if err != nil {
			store.Close()
			return nil, err
		}
		a.log.Debug("using sim backend", "db", a.cfg.Sim.DBPath)
		return &backend{ChainClient: chain, Lister: chain, close: chain.Close}, nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, a.cfg.Backend)
}

// rpcEnv collects the GRYNGOTTS_RPC_* variables network.ResolveConfig reads.
func rpcEnv() map[string]string {
	env := make(map[string]string)
	for _, name := range []string{network.EnvRPCURL, network.EnvRPCUser, network.EnvRPCPass, network.EnvRPCWallet} {
		if v, ok := os.LookupEnv(name); ok {
			env[name] = v
		}
	}
	return env
}

// keyProvider builds the lender and borrower keys from config, generating
// ephemeral keys for roles with no configured material.
func (a *app) keyProvider() (*keys.StaticProvider, error) {
	p := keys.NewStaticProvider(a.params)
	kc := a.cfg.Keys

	var (
		lender *keys.KeyPair
		err    error
	)
	switch {
	case kc.LenderWIF != "":
		lender, err = keys.FromWIF(kc.LenderWIF, a.params)
	case kc.LenderXPrv != "":
		lender, err = keys.FromExtendedKey(kc.LenderXPrv, kc.LenderPath)
	case kc.LenderMnemonic != "":
		lender, err = keys.FromMnemonic(kc.LenderMnemonic, kc.LenderPassphrase, kc.LenderPath)
	default:
		lender, err = keys.Generate()
	}
	if err != nil {
		return nil, fmt.Errorf("lender key: %w", err)
	}
	p.Set(keys.RoleLender, lender)

	var borrower *keys.KeyPair
	if kc.BorrowerWIF != "" {
		borrower, err = keys.FromWIF(kc.BorrowerWIF, a.params)
	} else {
		borrower, err = keys.Generate()
	}
	if err != nil {
		return nil, fmt.Errorf("borrower key: %w", err)
	}
	p.Set(keys.RoleBorrower, borrower)
	return p, nil
}
