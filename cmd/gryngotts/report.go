package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"

	"github.com/bitfsorg/gryngotts-go/network"
	"github.com/bitfsorg/gryngotts-go/scenario"
)

var (
	passStyle = color.New(color.FgGreen, color.OpBold)
	failStyle = color.New(color.FgRed, color.OpBold)
	headStyle = color.New(color.FgCyan)
	dimStyle  = color.New(color.FgDarkGray)
)

func verdict(ok bool) string {
	if ok {
		return passStyle.Sprint("PASS")
	}
	return failStyle.Sprint("FAIL")
}

func printReport(w io.Writer, r *scenario.Report) {
	fmt.Fprintf(w, "%s %s (%s)\n", verdict(r.Passed), headStyle.Sprint(r.Plan), r.Kind)
	fmt.Fprintf(w, "  address   %s\n", r.Address)
	if r.LockHeight > 0 {
		fmt.Fprintf(w, "  unlocks   %d\n", r.LockHeight)
	}
	if r.FundingTxID != "" {
		fmt.Fprintf(w, "  funding   %s:%d  %s BTC\n", r.FundingTxID, r.FundingVout, network.SatoshiToBTC(r.Amount))
	}
	for _, a := range r.Attempts {
		fmt.Fprintf(w, "  %s %-10s branch %s at %d: expected %s, got %s\n",
			verdict(a.Passed), a.Name, a.Branch, a.Height, a.Expected, a.Got)
		if a.TxID != "" {
			fmt.Fprintf(w, "       txid %s\n", a.TxID)
		}
		if a.Reason != "" {
			fmt.Fprintf(w, "       %s\n", dimStyle.Sprint(a.Reason))
		}
	}
}

func printTx(w io.Writer, res *network.TxResult) {
	fmt.Fprintf(w, "%s %s\n", headStyle.Sprint("txid"), res.TxID)
	fmt.Fprintf(w, "version %d  locktime %d  size %d\n", res.Version, res.LockTime, res.Size)
	if res.Confirmations > 0 {
		fmt.Fprintf(w, "confirmations %d in %s\n", res.Confirmations, res.BlockHash)
	}
	for i, in := range res.Vin {
		if in.Coinbase != "" {
			fmt.Fprintf(w, "  in  %d  coinbase %s\n", i, in.Coinbase)
			continue
		}
		fmt.Fprintf(w, "  in  %d  %s:%d  seq %#x\n", i, in.TxID, in.Vout, in.Sequence)
		if in.ScriptSig != nil && in.ScriptSig.Asm != "" {
			fmt.Fprintf(w, "         %s\n", dimStyle.Sprint(in.ScriptSig.Asm))
		}
	}
	for _, out := range res.Vout {
		addr := out.ScriptPubKey.PrimaryAddress()
		if addr == "" {
			addr = "-"
		}
		fmt.Fprintf(w, "  out %d  %s BTC  %s  %s\n", out.N, out.Value, out.ScriptPubKey.Type, addr)
	}
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
}
