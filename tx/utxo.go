package tx

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// PrevOutKind says how a UTXO reference commits to the output it spends.
type PrevOutKind int

const (
	// PrevOutScript carries only the committed output script and value.
	PrevOutScript PrevOutKind = iota + 1
	// PrevOutFullTx carries the entire previous transaction.
	PrevOutFullTx
)

func (k PrevOutKind) String() string {
	switch k {
	case PrevOutScript:
		return "output-script"
	case PrevOutFullTx:
		return "full-prev-tx"
	default:
		return fmt.Sprintf("PrevOutKind(%d)", int(k))
	}
}

// UTXO references an unspent output together with the data needed to sign
// for it.
type UTXO struct {
	TxID     chainhash.Hash `json:"txid"`
	Vout     uint32         `json:"vout"`
	Amount   int64          `json:"amount"`        // satoshis
	PkScript []byte         `json:"script_pubkey"` // committed locking script
	Kind     PrevOutKind    `json:"kind"`
	PrevTx   *wire.MsgTx    `json:"-"` // set only for PrevOutFullTx
}

// NewUTXOFromTx references output vout of prev, keeping the full transaction.
func NewUTXOFromTx(prev *wire.MsgTx, vout uint32) (*UTXO, error) {
	if prev == nil {
		return nil, fmt.Errorf("%w: previous transaction", ErrNilParam)
	}
	if int(vout) >= len(prev.TxOut) {
		return nil, fmt.Errorf("%w: vout %d but transaction has %d outputs", ErrInvalidUTXO, vout, len(prev.TxOut))
	}
	out := prev.TxOut[vout]
	u := &UTXO{
		TxID:     prev.TxHash(),
		Vout:     vout,
		Amount:   out.Value,
		PkScript: append([]byte(nil), out.PkScript...),
		Kind:     PrevOutFullTx,
		PrevTx:   prev.Copy(),
	}
	return u, u.Validate()
}

// NewUTXOFromScript references an output by its committed script and value.
func NewUTXOFromScript(txid chainhash.Hash, vout uint32, amount int64, pkScript []byte) (*UTXO, error) {
	u := &UTXO{
		TxID:     txid,
		Vout:     vout,
		Amount:   amount,
		PkScript: append([]byte(nil), pkScript...),
		Kind:     PrevOutScript,
	}
	return u, u.Validate()
}

// Validate checks that the reference is internally consistent. For a full
// previous transaction the txid, value and script must all agree with it.
func (u *UTXO) Validate() error {
	if u == nil {
		return fmt.Errorf("%w: UTXO", ErrNilParam)
	}
	if u.Amount < 0 {
		return fmt.Errorf("%w: negative amount %d", ErrInvalidUTXO, u.Amount)
	}
	if len(u.PkScript) == 0 {
		return fmt.Errorf("%w: empty output script", ErrInvalidUTXO)
	}

	switch u.Kind {
	case PrevOutScript:
		if u.PrevTx != nil {
			return fmt.Errorf("%w: output-script reference carries a previous transaction", ErrInvalidUTXO)
		}
	case PrevOutFullTx:
		if u.PrevTx == nil {
			return fmt.Errorf("%w: full-prev-tx reference without a transaction", ErrInvalidUTXO)
		}
		if h := u.PrevTx.TxHash(); h != u.TxID {
			return fmt.Errorf("%w: txid %s does not match previous transaction %s", ErrInvalidUTXO, u.TxID, h)
		}
		if int(u.Vout) >= len(u.PrevTx.TxOut) {
			return fmt.Errorf("%w: vout %d out of range", ErrInvalidUTXO, u.Vout)
		}
		out := u.PrevTx.TxOut[u.Vout]
		if out.Value != u.Amount || !bytes.Equal(out.PkScript, u.PkScript) {
			return fmt.Errorf("%w: amount or script disagrees with previous transaction", ErrInvalidUTXO)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidUTXO, u.Kind)
	}
	return nil
}

// OutPoint returns the wire outpoint of the reference.
func (u *UTXO) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: u.TxID, Index: u.Vout}
}

// TxOut returns the referenced output.
func (u *UTXO) TxOut() *wire.TxOut {
	return wire.NewTxOut(u.Amount, u.PkScript)
}

// FindOutput returns the index of the first output of tx paying pkScript.
func FindOutput(tx *wire.MsgTx, pkScript []byte) (uint32, error) {
	if tx == nil {
		return 0, fmt.Errorf("%w: transaction", ErrNilParam)
	}
	for i, out := range tx.TxOut {
		if bytes.Equal(out.PkScript, pkScript) {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("%w: no output pays script %x", ErrInvalidUTXO, pkScript)
}
