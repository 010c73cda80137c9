package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/gryngotts-go/preimage"
	"github.com/bitfsorg/gryngotts-go/scenario"
)

type runCommand struct {
	All  bool
	Seed string

	app *app
	cmd *cobra.Command
}

func newRunCommand(a *app) *cobra.Command {
	cc := &runCommand{app: a}
	cc.cmd = &cobra.Command{
		Use:   "run [plan...]",
		Short: "Run scenario plans against the configured chain",
		Long: `Compile each plan's contract at the current tip plus the configured lock
offset, fund it, then broadcast every spend attempt in order and compare the
node's verdict with the plan's expectation. Plans share one preimage registry,
so L and M are the same across a run.`,
		Example: `gryngotts run guarantee delivery
gryngotts run --all --backend rpc --network regtest`,
		RunE: cc.Execute,
	}
	cc.cmd.Flags().BoolVar(&cc.All, "all", false, "run every preset plan")
	cc.cmd.Flags().StringVar(&cc.Seed, "seed", "", "hex seed to derive preimages from instead of generating them")
	return cc.cmd
}

func (c *runCommand) Execute(cmd *cobra.Command, args []string) error {
	presets := scenario.Plans()
	names := args
	if c.All {
		names = names[:0]
		for name := range presets {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	if len(names) == 0 {
		return fmt.Errorf("no plan given, choose from %s or pass --all", planNames(presets))
	}
	for _, name := range names {
		if _, ok := presets[name]; !ok {
			return fmt.Errorf("unknown plan %q, choose from %s", name, planNames(presets))
		}
	}

	registry, err := seededRegistry(c.Seed)
	if err != nil {
		return err
	}
	provider, err := c.app.keyProvider()
	if err != nil {
		return err
	}
	chain, err := c.app.openBackend()
	if err != nil {
		return err
	}
	defer chain.Close()

	runner := &scenario.Runner{
		Chain:      chain,
		Keys:       provider,
		Preimages:  registry,
		Logger:     c.app.log,
		Fee:        c.app.cfg.Scenario.Fee,
		LockOffset: c.app.cfg.Scenario.LockOffset,
	}

	out := cmd.OutOrStdout()
	var failed []string
	for _, name := range names {
		report, err := runner.Run(cmd.Context(), presets[name]())
		if report != nil {
			printReport(out, report)
		}
		if err != nil {
			if !errors.Is(err, scenario.ErrUnexpectedOutcome) {
				return err
			}
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d plans failed: %v", len(failed), len(names), failed)
	}
	return nil
}

// seededRegistry returns an empty registry, or one holding L and M derived
// from seedHex.
func seededRegistry(seedHex string) (*preimage.Registry, error) {
	reg := preimage.NewRegistry()
	if seedHex == "" {
		return reg, nil
	}
	seed, err := decodeHex(seedHex)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	for _, name := range []string{preimage.NameL, preimage.NameM} {
		p, err := preimage.Derive(seed, name)
		if err != nil {
			return nil, err
		}
		if err := reg.Put(name, p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func planNames(presets map[string]func() *scenario.Plan) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
