package tx

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/bitfsorg/gryngotts-go/contract"
	"github.com/bitfsorg/gryngotts-go/preimage"
)

// Spend selects the branch a scriptSig satisfies and carries its witness.
type Spend struct {
	Branch   contract.Branch
	Preimage []byte // required iff the branch has a hash lock
}

// Finalize assembles the scriptSig satisfying spend.Branch of redeemScript:
//
//	<sig> [preimage] [OP_1 | OP_0] <redeemScript>
//
// The selector is omitted for single-branch scripts. Finalize has no side
// effects; identical arguments always produce identical bytes.
func Finalize(sigs []*PartialSignature, redeemScript []byte, spend Spend) ([]byte, error) {
	scriptSig, _, err := finalize(sigs, redeemScript, spend)
	return scriptSig, err
}

func finalize(sigs []*PartialSignature, redeemScript []byte, spend Spend) ([]byte, *PartialSignature, error) {
	if len(sigs) == 0 {
		return nil, nil, ErrMissingSignature
	}

	// The network only affects the derived address, which is unused here.
	c, err := contract.Parse(redeemScript, &chaincfg.MainNetParams)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrScriptBuild, err)
	}
	cond, err := c.Branch(spend.Branch)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	var chosen *PartialSignature
	for _, ps := range sigs {
		if ps != nil && bytes.Equal(ps.PubKey, cond.PubKey) {
			chosen = ps
			break
		}
	}
	if chosen == nil {
		return nil, nil, fmt.Errorf("%w: no signature by branch %s key %x", ErrMissingSignature, spend.Branch, cond.PubKey)
	}
	if _, _, err := StripSigHashFlag(chosen.Signature); err != nil {
		return nil, nil, err
	}

	switch {
	case cond.HasHashLock() && len(spend.Preimage) == 0:
		return nil, nil, fmt.Errorf("%w: branch %s", ErrPreimageRequired, spend.Branch)
	case !cond.HasHashLock() && len(spend.Preimage) > 0:
		return nil, nil, fmt.Errorf("%w: branch %s", ErrUnexpectedPreimage, spend.Branch)
	case cond.HasHashLock():
		p, err := preimage.FromBytes(spend.Preimage)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrPreimageMismatch, err)
		}
		if err := p.Verify(cond.HashLock); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrPreimageMismatch, err)
		}
	}

	b := txscript.NewScriptBuilder()
	b.AddData(chosen.Signature)
	if cond.HasHashLock() {
		b.AddData(spend.Preimage)
	}
	if c.Branching() {
		if spend.Branch == contract.BranchA {
			b.AddOp(txscript.OP_TRUE)
		} else {
			b.AddOp(txscript.OP_FALSE)
		}
	}
	b.AddData(redeemScript)
	scriptSig, err := b.Script()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrScriptBuild, err)
	}
	return scriptSig, chosen, nil
}

// FinalizeInput finalizes input idx from its collected signatures, checks
// the chosen signature against the input's sighash and installs the
// scriptSig. It may be called again with the same spend; any other change
// requires a fresh builder.
func (b *Builder) FinalizeInput(idx int, spend Spend) ([]byte, error) {
	in, err := b.Input(idx)
	if err != nil {
		return nil, err
	}
	if len(in.RedeemScript) == 0 {
		return nil, fmt.Errorf("%w: input %d has no redeem script", ErrInvalidParams, idx)
	}

	scriptSig, chosen, err := finalize(in.sigs, in.RedeemScript, spend)
	if err != nil {
		return nil, err
	}
	if err := b.VerifySignature(idx, chosen); err != nil {
		return nil, err
	}

	b.msg.TxIn[idx].SignatureScript = scriptSig
	return append([]byte(nil), scriptSig...), nil
}

// VerifyInput executes input idx against the output it spends with the
// standard script verification flags. It checks script satisfaction only;
// chain finality is the node's concern.
func (b *Builder) VerifyInput(idx int) error {
	if _, err := b.Input(idx); err != nil {
		return err
	}
	return VerifyInput(b.msg, idx, b.prevOutFetcher())
}

func (b *Builder) prevOutFetcher() *txscript.MultiPrevOutFetcher {
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(b.inputs))
	for _, in := range b.inputs {
		prevOuts[in.UTXO.OutPoint()] = in.UTXO.TxOut()
	}
	return txscript.NewMultiPrevOutFetcher(prevOuts)
}

// VerifyInput runs the script engine for input idx of msg.
func VerifyInput(msg *wire.MsgTx, idx int, fetcher txscript.PrevOutputFetcher) error {
	if msg == nil || fetcher == nil {
		return fmt.Errorf("%w: transaction or output fetcher", ErrNilParam)
	}
	if idx < 0 || idx >= len(msg.TxIn) {
		return fmt.Errorf("%w: %d of %d", ErrInputIndex, idx, len(msg.TxIn))
	}
	prev := fetcher.FetchPrevOutput(msg.TxIn[idx].PreviousOutPoint)
	if prev == nil {
		return fmt.Errorf("%w: unknown previous output %s", ErrInvalidUTXO, msg.TxIn[idx].PreviousOutPoint)
	}

	vm, err := txscript.NewEngine(prev.PkScript, msg, idx, txscript.StandardVerifyFlags,
		nil, txscript.NewTxSigHashes(msg, fetcher), prev.Value, fetcher)
	if err != nil {
		return fmt.Errorf("%w: input %d: %w", ErrVerifyFailed, idx, err)
	}
	if err := vm.Execute(); err != nil {
		return fmt.Errorf("%w: input %d: %w", ErrVerifyFailed, idx, err)
	}
	return nil
}

// IsLockTimeFailure reports whether err is the engine's unsatisfied
// CHECKLOCKTIMEVERIFY error.
func IsLockTimeFailure(err error) bool {
	var serr txscript.Error
	return errors.As(err, &serr) && serr.ErrorCode == txscript.ErrUnsatisfiedLockTime
}
