package tx

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/gryngotts-go/contract"
	"github.com/bitfsorg/gryngotts-go/keys"
	"github.com/bitfsorg/gryngotts-go/preimage"
)

var testParams = &chaincfg.RegressionNetParams

const (
	fundValue = 5_000_000
	testFee   = 10_000
)

func testKey(t *testing.T, b byte) *keys.KeyPair {
	t.Helper()
	priv, pub := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{b}, 32))
	return &keys.KeyPair{PrivateKey: priv, PublicKey: pub}
}

// fundContract returns a UTXO for an output paying c, inside a synthetic
// funding transaction whose contract output is not at index 0.
func fundContract(t *testing.T, c *contract.Contract, value int64) *UTXO {
	t.Helper()
	funding := wire.NewMsgTx(2)
	funding.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}, nil, nil))
	funding.AddTxOut(wire.NewTxOut(1234, []byte{txscript.OP_TRUE}))
	funding.AddTxOut(wire.NewTxOut(value, c.PkScript()))

	vout, err := FindOutput(funding, c.PkScript())
	require.NoError(t, err)
	require.Equal(t, uint32(1), vout)

	u, err := NewUTXOFromTx(funding, vout)
	require.NoError(t, err)
	return u
}

type fixture struct {
	lender, borrower *keys.KeyPair
	l, m             preimage.Preimage
	payout           []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		lender:   testKey(t, 0x11),
		borrower: testKey(t, 0x22),
		l:        preimage.New(),
		m:        preimage.New(),
	}
	var err error
	f.payout, err = txscript.NewScriptBuilder().AddOp(txscript.OP_TRUE).Script()
	require.NoError(t, err)
	return f
}

func (f *fixture) guarantee(t *testing.T, timeX uint32) *contract.Contract {
	t.Helper()
	c, err := contract.BuildGuarantee(f.m.Hash().Bytes(), f.lender.PubKeyBytes(), timeX, f.borrower.PubKeyBytes(), testParams)
	require.NoError(t, err)
	return c
}

func (f *fixture) delivery(t *testing.T) *contract.Contract {
	t.Helper()
	c, err := contract.BuildDelivery(f.l.Hash().Bytes(), f.lender.PubKeyBytes(), f.m.Hash().Bytes(), f.borrower.PubKeyBytes(), testParams)
	require.NoError(t, err)
	return c
}

// spendBuilder returns a builder spending u to the fixture payout.
func (f *fixture) spendBuilder(t *testing.T, c *contract.Contract, u *UTXO, sequence, lockTime uint32) *Builder {
	t.Helper()
	b := NewBuilder(testParams)
	_, err := b.AddInput(u, sequence, c.RedeemScript)
	require.NoError(t, err)
	value, err := AmountAfterFee(u.Amount, testFee)
	require.NoError(t, err)
	require.NoError(t, b.AddOutput(f.payout, value))
	require.NoError(t, b.SetLockTime(lockTime))
	return b
}

// withScriptSig returns a copy of b's transaction with input 0 replaced.
func withScriptSig(t *testing.T, b *Builder, scriptSig []byte) *wire.MsgTx {
	t.Helper()
	msg := b.MsgTx()
	msg.TxIn[0].SignatureScript = scriptSig
	return msg
}
