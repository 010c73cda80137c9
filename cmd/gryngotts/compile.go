package main

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/bitfsorg/gryngotts-go/contract"
	"github.com/bitfsorg/gryngotts-go/scenario"
)

type compileCommand struct {
	LockHeight uint32
	Seed       string
	Dump       bool

	app *app
	cmd *cobra.Command
}

func newCompileCommand(a *app) *cobra.Command {
	cc := &compileCommand{app: a}
	cc.cmd = &cobra.Command{
		Use:   "compile timelock|guarantee|delivery",
		Short: "Compile a contract and print its redeem script and P2SH address",
		Long: `Compile one of the loan contracts from the configured keys. Hash locks
commit to preimages L and M, generated fresh or derived from --seed. Without
--lock-height the timeout unlocks at the chain tip plus the configured offset.`,
		Args: cobra.ExactArgs(1),
		RunE: cc.Execute,
	}
	cc.cmd.Flags().Uint32Var(&cc.LockHeight, "lock-height", 0, "absolute block height of the timeout branch")
	cc.cmd.Flags().StringVar(&cc.Seed, "seed", "", "hex seed to derive preimages from")
	cc.cmd.Flags().BoolVar(&cc.Dump, "dump", false, "dump the parsed contract structure")
	return cc.cmd
}

func (c *compileCommand) Execute(cmd *cobra.Command, args []string) error {
	kind := contract.Kind(args[0])
	registry, err := seededRegistry(c.Seed)
	if err != nil {
		return err
	}
	provider, err := c.app.keyProvider()
	if err != nil {
		return err
	}

	lockHeight := c.LockHeight
	if lockHeight == 0 && kind != contract.KindDelivery {
		chain, err := c.app.openBackend()
		if err != nil {
			return err
		}
		tip, err := chain.GetBlockCount(cmd.Context())
		chain.Close()
		if err != nil {
			return err
		}
		lockHeight = uint32(tip) + c.app.cfg.Scenario.LockOffset
	}

	ct, err := scenario.Compile(kind, lockHeight, provider, registry)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", headStyle.Sprint("kind"), ct.Kind)
	fmt.Fprintf(out, "address       %s\n", ct.EncodedAddress())
	fmt.Fprintf(out, "redeem script %s\n", ct.RedeemScriptHex())
	fmt.Fprintf(out, "disasm        %s\n", ct.Disasm())
	for _, name := range registry.Names() {
		p, _ := registry.Get(name)
		fmt.Fprintf(out, "preimage %s    %s (hash %s)\n", name, p, p.Hash())
	}
	if c.Dump {
		parsed, err := contract.Parse(ct.RedeemScript, provider.Params())
		if err != nil {
			return err
		}
		spew.Fdump(out, parsed.Kind, parsed.Branches)
	}
	return nil
}
