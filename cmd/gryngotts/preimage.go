package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/gryngotts-go/preimage"
)

type preimageCommand struct {
	Seed   string
	Verify string

	cmd *cobra.Command
}

func newPreimageCommand(_ *app) *cobra.Command {
	cc := &preimageCommand{}
	cc.cmd = &cobra.Command{
		Use:   "preimage [name...]",
		Short: "Generate or derive preimages and print their HASH256 commitments",
		Example: `gryngotts preimage L M
gryngotts preimage --seed 00112233 L
gryngotts preimage --verify <hash> <preimage-hex>`,
		RunE: cc.Execute,
	}
	cc.cmd.Flags().StringVar(&cc.Seed, "seed", "", "hex seed to derive each named preimage from")
	cc.cmd.Flags().StringVar(&cc.Verify, "verify", "", "commitment hex to check the given preimage against")
	return cc.cmd
}

func (c *preimageCommand) Execute(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if c.Verify != "" {
		if len(args) != 1 {
			return fmt.Errorf("--verify takes exactly one preimage")
		}
		p, err := preimage.FromHex(args[0])
		if err != nil {
			return err
		}
		commitment, err := decodeHex(c.Verify)
		if err != nil {
			return fmt.Errorf("commitment: %w", err)
		}
		if err := p.Verify(commitment); err != nil {
			fmt.Fprintln(out, verdict(false), err)
			return err
		}
		fmt.Fprintln(out, verdict(true), "preimage matches commitment")
		return nil
	}

	if len(args) == 0 {
		args = []string{preimage.NameL, preimage.NameM}
	}
	var seed []byte
	if c.Seed != "" {
		var err error
		if seed, err = decodeHex(c.Seed); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	reg := preimage.NewRegistry()
	for _, name := range args {
		if seed == nil {
			if _, err := reg.Generate(name); err != nil {
				return err
			}
			continue
		}
		p, err := preimage.Derive(seed, name)
		if err != nil {
			return err
		}
		if err := reg.Put(name, p); err != nil {
			return err
		}
	}
	for _, name := range reg.Names() {
		p, _ := reg.Get(name)
		h, _ := reg.Commitment(name)
		fmt.Fprintf(out, "%s  preimage %s\n%s  hash     %s\n", name, p, dimStyle.Sprint(name), h)
	}
	return nil
}
