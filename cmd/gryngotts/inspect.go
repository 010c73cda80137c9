package main

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/bitfsorg/gryngotts-go/contract"
	"github.com/bitfsorg/gryngotts-go/network"
)

type inspectCommand struct {
	Script bool
	Dump   bool

	app *app
	cmd *cobra.Command
}

func newInspectCommand(a *app) *cobra.Command {
	cc := &inspectCommand{app: a}
	cc.cmd = &cobra.Command{
		Use:   "inspect <raw-tx-hex|txid>",
		Short: "Decode a transaction or a contract redeem script",
		Long: `Decode a raw transaction given as hex, or fetch one by txid from the
configured chain, and print its inputs (outpoint, sequence, scriptSig) and
outputs (value, type, address). With --script the argument is a redeem
script and the contract it encodes is printed instead.`,
		Args: cobra.ExactArgs(1),
		RunE: cc.Execute,
	}
	cc.cmd.Flags().BoolVar(&cc.Script, "script", false, "treat the argument as a contract redeem script")
	cc.cmd.Flags().BoolVar(&cc.Dump, "dump", false, "dump the full decoded structure")
	return cc.cmd
}

func (c *inspectCommand) Execute(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if c.Script {
		raw, err := decodeHex(args[0])
		if err != nil {
			return fmt.Errorf("script: %w", err)
		}
		ct, err := contract.Parse(raw, c.app.params)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", headStyle.Sprint("kind"), ct.Kind)
		fmt.Fprintf(out, "address %s\n", ct.EncodedAddress())
		for i, cond := range ct.Branches {
			fmt.Fprintf(out, "  branch %s  pubkey %x", contract.Branch(i), cond.PubKey)
			if cond.HasHashLock() {
				fmt.Fprintf(out, "  hash %x", cond.HashLock)
			}
			if cond.HasTimeLock() {
				fmt.Fprintf(out, "  height %d", cond.LockHeight)
			}
			fmt.Fprintln(out)
		}
		if c.Dump {
			spew.Fdump(out, ct.Branches)
		}
		return nil
	}

	res, err := c.decode(cmd, args[0])
	if err != nil {
		return err
	}
	if c.Dump {
		spew.Fdump(out, res)
		return nil
	}
	printTx(out, res)
	return nil
}

// decode parses arg as a raw transaction, falling back to a chain lookup
// when it is a 64-character txid.
func (c *inspectCommand) decode(cmd *cobra.Command, arg string) (*network.TxResult, error) {
	if len(arg) != 64 {
		msg, err := network.DeserializeTx(arg)
		if err != nil {
			return nil, err
		}
		return network.DecodeMsgTx(msg, c.app.params), nil
	}
	chain, err := c.app.openBackend()
	if err != nil {
		return nil, err
	}
	defer chain.Close()
	return chain.GetRawTransactionVerbose(cmd.Context(), arg)
}
