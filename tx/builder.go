// Package tx builds, signs and finalizes transactions spending contract
// outputs.
//
// A spend attempt is a strictly ordered pipeline on one Builder: add inputs
// and outputs, set the locktime, sign, finalize. The first signature hash
// freezes the layout; later mutations return ErrLayoutFrozen.
package tx

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// TxVersion is the transaction version emitted by NewBuilder.
	TxVersion = 2

	// SequenceFinal disables locktime enforcement for an input.
	SequenceFinal = wire.MaxTxInSequenceNum

	// SequenceLockTime enables absolute locktime without opting into
	// replacement or relative locks.
	SequenceLockTime = wire.MaxTxInSequenceNum - 1
)

// Input is one spend intent recorded by the builder.
type Input struct {
	UTXO         *UTXO
	Sequence     uint32
	RedeemScript []byte

	sigs []*PartialSignature
}

// ScriptCode returns the script the input's signatures commit to: the redeem
// script for P2SH inputs, otherwise the output script itself.
func (in *Input) ScriptCode() []byte {
	if len(in.RedeemScript) > 0 {
		return in.RedeemScript
	}
	return in.UTXO.PkScript
}

// Signatures returns the partial signatures collected for the input.
func (in *Input) Signatures() []*PartialSignature {
	return append([]*PartialSignature(nil), in.sigs...)
}

// Builder accumulates a transaction. It is owned by one spend attempt and is
// not safe for concurrent use.
type Builder struct {
	msg    *wire.MsgTx
	inputs []*Input
	params *chaincfg.Params
	frozen bool
}

// NewBuilder returns an empty version-2 transaction builder for params.
func NewBuilder(params *chaincfg.Params) *Builder {
	return &Builder{
		msg:    wire.NewMsgTx(TxVersion),
		params: params,
	}
}

// AddInput records a spend of utxo and returns its index. When redeemScript
// is set, it must hash to the P2SH script the UTXO commits to.
func (b *Builder) AddInput(utxo *UTXO, sequence uint32, redeemScript []byte) (int, error) {
	if b.frozen {
		return 0, ErrLayoutFrozen
	}
	if err := utxo.Validate(); err != nil {
		return 0, err
	}
	if len(redeemScript) > 0 {
		if err := checkRedeemScript(utxo.PkScript, redeemScript); err != nil {
			return 0, err
		}
	}

	op := utxo.OutPoint()
	for _, in := range b.msg.TxIn {
		if in.PreviousOutPoint == op {
			return 0, fmt.Errorf("%w: duplicate input %s", ErrInvalidParams, op)
		}
	}

	txIn := wire.NewTxIn(&op, nil, nil)
	txIn.Sequence = sequence
	b.msg.AddTxIn(txIn)
	b.inputs = append(b.inputs, &Input{
		UTXO:         utxo,
		Sequence:     sequence,
		RedeemScript: append([]byte(nil), redeemScript...),
	})
	return len(b.inputs) - 1, nil
}

func checkRedeemScript(pkScript, redeemScript []byte) error {
	if txscript.GetScriptClass(pkScript) != txscript.ScriptHashTy {
		return fmt.Errorf("%w: redeem script given for non-P2SH output", ErrInvalidParams)
	}
	// OP_HASH160 OP_DATA_20 <hash> OP_EQUAL
	if !bytes.Equal(pkScript[2:22], btcutil.Hash160(redeemScript)) {
		return fmt.Errorf("%w: redeem script does not hash to the output script", ErrInvalidParams)
	}
	return nil
}

// AddOutput appends an output paying value satoshis to pkScript.
func (b *Builder) AddOutput(pkScript []byte, value int64) error {
	if b.frozen {
		return ErrLayoutFrozen
	}
	if value < 0 {
		return fmt.Errorf("%w: negative output value %d", ErrInvalidParams, value)
	}
	if len(pkScript) == 0 {
		return fmt.Errorf("%w: empty output script", ErrInvalidParams)
	}
	b.msg.AddTxOut(wire.NewTxOut(value, append([]byte(nil), pkScript...)))
	return nil
}

// AddOutputAddress appends an output paying value satoshis to an encoded
// address on the builder's network.
func (b *Builder) AddOutputAddress(address string, value int64) error {
	if b.params == nil {
		return fmt.Errorf("%w: network parameters", ErrNilParam)
	}
	addr, err := btcutil.DecodeAddress(address, b.params)
	if err != nil {
		return fmt.Errorf("%w: decode address %q: %w", ErrInvalidParams, address, err)
	}
	if !addr.IsForNet(b.params) {
		return fmt.Errorf("%w: address %q is not for %s", ErrInvalidParams, address, b.params.Name)
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrScriptBuild, err)
	}
	return b.AddOutput(pkScript, value)
}

// SetLockTime sets nLockTime. A non-zero value is refused when every input
// recorded so far has a final sequence.
func (b *Builder) SetLockTime(lockTime uint32) error {
	if b.frozen {
		return ErrLayoutFrozen
	}
	b.msg.LockTime = lockTime
	if err := b.checkLockTime(); err != nil {
		b.msg.LockTime = 0
		return err
	}
	return nil
}

// LockTime returns the current nLockTime.
func (b *Builder) LockTime() uint32 { return b.msg.LockTime }

func (b *Builder) checkLockTime() error {
	if b.msg.LockTime == 0 || len(b.msg.TxIn) == 0 {
		return nil
	}
	for _, in := range b.msg.TxIn {
		if in.Sequence != SequenceFinal {
			return nil
		}
	}
	return ErrLockTimeIgnored
}

// freeze validates the layout once, before the first signature hash.
func (b *Builder) freeze() error {
	if b.frozen {
		return nil
	}
	if len(b.msg.TxIn) == 0 {
		return fmt.Errorf("%w: transaction has no inputs", ErrInvalidParams)
	}
	if len(b.msg.TxOut) == 0 {
		return fmt.Errorf("%w: transaction has no outputs", ErrInvalidParams)
	}
	if err := b.checkLockTime(); err != nil {
		return err
	}
	b.frozen = true
	return nil
}

// Frozen reports whether the layout can no longer change.
func (b *Builder) Frozen() bool { return b.frozen }

// NumInputs returns the number of inputs.
func (b *Builder) NumInputs() int { return len(b.inputs) }

// Input returns input idx.
func (b *Builder) Input(idx int) (*Input, error) {
	if idx < 0 || idx >= len(b.inputs) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInputIndex, idx, len(b.inputs))
	}
	return b.inputs[idx], nil
}

// MsgTx returns a copy of the transaction in its current state.
func (b *Builder) MsgTx() *wire.MsgTx { return b.msg.Copy() }

// Bytes serializes the transaction in its current state.
func (b *Builder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(b.msg.SerializeSize())
	if err := b.msg.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("tx: serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// Hex returns the hex-encoded serialization.
func (b *Builder) Hex() (string, error) {
	raw, err := b.Bytes()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// TxID returns the transaction id. It is only final once every input has
// been finalized.
func (b *Builder) TxID() chainhash.Hash { return b.msg.TxHash() }

// AmountAfterFee returns the value left for a single output after paying fee.
func AmountAfterFee(input, fee int64) (int64, error) {
	if fee < 0 {
		return 0, fmt.Errorf("%w: negative fee %d", ErrInvalidParams, fee)
	}
	if fee >= input {
		return 0, fmt.Errorf("%w: fee %d consumes input value %d", ErrInsufficientFunds, fee, input)
	}
	return input - fee, nil
}
