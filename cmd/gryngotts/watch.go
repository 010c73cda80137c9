package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/gryngotts-go/network"
)

type watchCommand struct {
	Interval time.Duration
	Limit    int
	Once     bool

	app *app
	cmd *cobra.Command
}

func newWatchCommand(a *app) *cobra.Command {
	cc := &watchCommand{app: a}
	cc.cmd = &cobra.Command{
		Use:   "watch",
		Short: "Poll the wallet and print its most recent transactions",
		Long: `Poll the configured node's wallet with listsinceblock and print the most
recent transactions whenever the list changes. Read-only; interrupt to stop.`,
		RunE: cc.Execute,
	}
	cc.cmd.Flags().DurationVar(&cc.Interval, "interval", network.DefaultWatchInterval, "polling interval")
	cc.cmd.Flags().IntVar(&cc.Limit, "limit", network.DefaultWatchLimit, "number of transactions to keep")
	cc.cmd.Flags().BoolVar(&cc.Once, "once", false, "poll once, print and exit")
	return cc.cmd
}

func (c *watchCommand) Execute(cmd *cobra.Command, args []string) error {
	chain, err := c.app.openBackend()
	if err != nil {
		return err
	}
	defer chain.Close()

	out := cmd.OutOrStdout()
	show := func(txs []network.WalletTx) {
		fmt.Fprintf(out, "%s %d transactions\n", headStyle.Sprint(time.Now().Format(time.TimeOnly)), len(txs))
		for _, t := range txs {
			fmt.Fprintf(out, "  %-9s %14s BTC  %s:%d  confs %d\n", t.Category, t.Amount, t.TxID, t.Vout, t.Confirmations)
		}
	}

	w := network.NewWatcher(chain.Lister, network.WatcherConfig{
		Interval: c.Interval,
		Limit:    c.Limit,
		Logger:   c.app.log,
		OnUpdate: show,
	})
	if c.Once {
		if _, err := w.Poll(cmd.Context()); err != nil {
			return err
		}
		show(w.Recent())
		return nil
	}
	if err := w.Run(cmd.Context()); err != nil && cmd.Context().Err() == nil {
		return err
	}
	return nil
}
