package tx

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/gryngotts-go/contract"
	"github.com/bitfsorg/gryngotts-go/keys"
)

// signAndFinalize runs the sign/finalize/verify pipeline on input 0.
func signAndFinalize(t *testing.T, b *Builder, kp *keys.KeyPair, spend Spend) []byte {
	t.Helper()
	_, err := b.Sign(0, kp, txscript.SigHashAll)
	require.NoError(t, err)
	scriptSig, err := b.FinalizeInput(0, spend)
	require.NoError(t, err)
	return scriptSig
}

// --- timelock spends ---

func TestSpend_CLTV(t *testing.T) {
	f := newFixture(t)
	c, err := contract.BuildCLTV(400, f.borrower.PubKeyBytes(), testParams)
	require.NoError(t, err)
	u := fundContract(t, c, fundValue)

	tests := []struct {
		name     string
		sequence uint32
		lockTime uint32
		ok       bool
	}{
		{"at lock height", SequenceLockTime, 400, true},
		{"above lock height", SequenceLockTime, 450, true},
		{"below lock height", SequenceLockTime, 399, false},
		{"zero locktime", SequenceLockTime, 0, false},
		{"final sequence", SequenceFinal, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := f.spendBuilder(t, c, u, tt.sequence, tt.lockTime)
			scriptSig := signAndFinalize(t, b, f.borrower, Spend{Branch: contract.BranchA})

			// No selector for a single-branch script.
			chunks, err := txscript.PushedData(scriptSig)
			require.NoError(t, err)
			require.Len(t, chunks, 2)
			assert.Equal(t, c.RedeemScript, chunks[1])

			err = b.VerifyInput(0)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrVerifyFailed)
			assert.True(t, IsLockTimeFailure(err), "%v", err)
		})
	}
}

func TestSpend_GuaranteeBranches(t *testing.T) {
	f := newFixture(t)
	c := f.guarantee(t, 600)
	u := fundContract(t, c, fundValue)

	t.Run("A: preimage M and lender", func(t *testing.T) {
		b := f.spendBuilder(t, c, u, SequenceFinal, 0)
		signAndFinalize(t, b, f.lender, Spend{Branch: contract.BranchA, Preimage: f.m.Bytes()})
		assert.NoError(t, b.VerifyInput(0))
	})

	t.Run("B: timeout and borrower", func(t *testing.T) {
		b := f.spendBuilder(t, c, u, SequenceLockTime, 600)
		signAndFinalize(t, b, f.borrower, Spend{Branch: contract.BranchB})
		assert.NoError(t, b.VerifyInput(0))
	})

	t.Run("B: premature", func(t *testing.T) {
		b := f.spendBuilder(t, c, u, SequenceLockTime, 599)
		signAndFinalize(t, b, f.borrower, Spend{Branch: contract.BranchB})
		assert.True(t, IsLockTimeFailure(b.VerifyInput(0)))
	})
}

func TestSpend_DeliveryBranches(t *testing.T) {
	f := newFixture(t)
	c := f.delivery(t)
	u := fundContract(t, c, fundValue)

	b := f.spendBuilder(t, c, u, SequenceFinal, 0)
	signAndFinalize(t, b, f.lender, Spend{Branch: contract.BranchA, Preimage: f.l.Bytes()})
	assert.NoError(t, b.VerifyInput(0))

	b = f.spendBuilder(t, c, u, SequenceFinal, 0)
	signAndFinalize(t, b, f.borrower, Spend{Branch: contract.BranchB, Preimage: f.m.Bytes()})
	assert.NoError(t, b.VerifyInput(0))
}

// --- mutual exclusivity ---

func TestSpend_BranchAWitnessNeverSatisfiesB(t *testing.T) {
	f := newFixture(t)
	c := f.delivery(t)
	u := fundContract(t, c, fundValue)
	b := f.spendBuilder(t, c, u, SequenceFinal, 0)

	ps, err := b.Sign(0, f.lender, txscript.SigHashAll)
	require.NoError(t, err)

	// Branch A's witness with the ELSE selector.
	forged, err := txscript.NewScriptBuilder().
		AddData(ps.Signature).
		AddData(f.l.Bytes()).
		AddOp(txscript.OP_FALSE).
		AddData(c.RedeemScript).
		Script()
	require.NoError(t, err)

	msg := withScriptSig(t, b, forged)
	err = VerifyInput(msg, 0, b.prevOutFetcher())
	assert.ErrorIs(t, err, ErrVerifyFailed)

	// The finalizer refuses to assemble it in the first place.
	_, err = Finalize([]*PartialSignature{ps}, c.RedeemScript, Spend{Branch: contract.BranchB, Preimage: f.l.Bytes()})
	require.Error(t, err)
}

func TestSpend_GuaranteeTimeoutWitnessNeverSatisfiesA(t *testing.T) {
	f := newFixture(t)
	c := f.guarantee(t, 600)
	u := fundContract(t, c, fundValue)
	b := f.spendBuilder(t, c, u, SequenceLockTime, 600)

	ps, err := b.Sign(0, f.borrower, txscript.SigHashAll)
	require.NoError(t, err)

	// Branch B's witness with the IF selector: OP_HASH256 runs over the
	// signature and the EQUALVERIFY against M fails.
	forged, err := txscript.NewScriptBuilder().
		AddData(ps.Signature).
		AddOp(txscript.OP_TRUE).
		AddData(c.RedeemScript).
		Script()
	require.NoError(t, err)

	msg := withScriptSig(t, b, forged)
	err = VerifyInput(msg, 0, b.prevOutFetcher())
	assert.ErrorIs(t, err, ErrVerifyFailed)
	assert.False(t, IsLockTimeFailure(err))

	// The genuine timeout witness passes on the same transaction.
	scriptSig, err := Finalize([]*PartialSignature{ps}, c.RedeemScript, Spend{Branch: contract.BranchB})
	require.NoError(t, err)
	assert.NoError(t, VerifyInput(withScriptSig(t, b, scriptSig), 0, b.prevOutFetcher()))
}

func TestFinalize_PreimageRules(t *testing.T) {
	f := newFixture(t)
	c := f.guarantee(t, 600)
	u := fundContract(t, c, fundValue)
	b := f.spendBuilder(t, c, u, SequenceLockTime, 600)

	lenderSig, err := b.Sign(0, f.lender, txscript.SigHashAll)
	require.NoError(t, err)
	borrowerSig, err := b.Sign(0, f.borrower, txscript.SigHashAll)
	require.NoError(t, err)
	sigs := []*PartialSignature{lenderSig, borrowerSig}

	tests := []struct {
		name    string
		spend   Spend
		wantErr error
	}{
		{"hash branch without preimage", Spend{Branch: contract.BranchA}, ErrPreimageRequired},
		{"timeout branch with preimage", Spend{Branch: contract.BranchB, Preimage: f.m.Bytes()}, ErrUnexpectedPreimage},
		{"wrong preimage", Spend{Branch: contract.BranchA, Preimage: f.l.Bytes()}, ErrPreimageMismatch},
		{"short preimage", Spend{Branch: contract.BranchA, Preimage: []byte{1, 2, 3}}, ErrPreimageMismatch},
		{"unknown branch", Spend{Branch: contract.Branch(5)}, ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Finalize(sigs, c.RedeemScript, tt.spend)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// --- finalize ---

func TestFinalize_Idempotent(t *testing.T) {
	f := newFixture(t)
	c := f.guarantee(t, 600)
	u := fundContract(t, c, fundValue)
	b := f.spendBuilder(t, c, u, SequenceFinal, 0)

	ps, err := b.Sign(0, f.lender, txscript.SigHashAll)
	require.NoError(t, err)
	sigs := []*PartialSignature{ps}
	spend := Spend{Branch: contract.BranchA, Preimage: f.m.Bytes()}

	first, err := Finalize(sigs, c.RedeemScript, spend)
	require.NoError(t, err)
	second, err := Finalize(sigs, c.RedeemScript, spend)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	in1, err := b.FinalizeInput(0, spend)
	require.NoError(t, err)
	txid := b.TxID()
	in2, err := b.FinalizeInput(0, spend)
	require.NoError(t, err)
	assert.Equal(t, in1, in2)
	assert.Equal(t, first, in1)
	assert.Equal(t, txid, b.TxID())

	// Layout: <sig> <preimage> OP_1 <redeem>
	pushes, err := txscript.PushedData(first)
	require.NoError(t, err)
	require.Len(t, pushes, 3)
	assert.Equal(t, ps.Signature, pushes[0])
	assert.Equal(t, f.m.Bytes(), pushes[1])
	assert.Equal(t, c.RedeemScript, pushes[2])
	assert.Equal(t, byte(txscript.OP_TRUE), first[len(first)-len(c.RedeemScript)-3])
}

func TestFinalize_MissingSignature(t *testing.T) {
	f := newFixture(t)
	c := f.guarantee(t, 600)
	u := fundContract(t, c, fundValue)
	b := f.spendBuilder(t, c, u, SequenceFinal, 0)

	_, err := Finalize(nil, c.RedeemScript, Spend{Branch: contract.BranchA, Preimage: f.m.Bytes()})
	assert.ErrorIs(t, err, ErrMissingSignature)
	assert.ErrorIs(t, err, ErrSignature)

	// The borrower's signature cannot satisfy the lender's branch.
	ps, err := b.Sign(0, f.borrower, txscript.SigHashAll)
	require.NoError(t, err)
	_, err = Finalize([]*PartialSignature{ps}, c.RedeemScript, Spend{Branch: contract.BranchA, Preimage: f.m.Bytes()})
	assert.ErrorIs(t, err, ErrMissingSignature)

	_, err = b.FinalizeInput(0, Spend{Branch: contract.BranchA, Preimage: f.m.Bytes()})
	assert.ErrorIs(t, err, ErrMissingSignature)
	assert.Empty(t, b.MsgTx().TxIn[0].SignatureScript)
}

func TestFinalize_MalformedSignature(t *testing.T) {
	f := newFixture(t)
	c := f.guarantee(t, 600)
	u := fundContract(t, c, fundValue)
	b := f.spendBuilder(t, c, u, SequenceLockTime, 600)

	ps, err := b.Sign(0, f.borrower, txscript.SigHashAll)
	require.NoError(t, err)

	stripped := &PartialSignature{
		PubKey:    ps.PubKey,
		Signature: ps.Signature[:len(ps.Signature)-1],
		HashType:  ps.HashType,
	}
	_, err = Finalize([]*PartialSignature{stripped}, c.RedeemScript, Spend{Branch: contract.BranchB})
	assert.ErrorIs(t, err, ErrMalformedSignature)
	assert.ErrorIs(t, err, ErrSignature)

	assert.ErrorIs(t, b.AddSignature(0, stripped), ErrMalformedSignature)
}

// --- signatures ---

func TestSign_AppendsFlag(t *testing.T) {
	f := newFixture(t)
	c, err := contract.BuildCLTV(400, f.borrower.PubKeyBytes(), testParams)
	require.NoError(t, err)
	u := fundContract(t, c, fundValue)

	for _, ht := range []txscript.SigHashType{txscript.SigHashAll, txscript.SigHashSingle | txscript.SigHashAnyOneCanPay} {
		b := f.spendBuilder(t, c, u, SequenceLockTime, 400)
		ps, err := b.Sign(0, f.borrower, ht)
		require.NoError(t, err)
		assert.Equal(t, byte(ht), ps.Signature[len(ps.Signature)-1])

		der, flag, err := StripSigHashFlag(ps.Signature)
		require.NoError(t, err)
		assert.Equal(t, ht, flag)
		assert.Len(t, der, len(ps.Signature)-1)
		assert.NoError(t, b.VerifySignature(0, ps))
	}

	b := f.spendBuilder(t, c, u, SequenceLockTime, 400)
	_, err = b.Sign(0, f.borrower, txscript.SigHashType(0x04))
	assert.ErrorIs(t, err, ErrInvalidParams)
	_, err = b.Sign(0, nil, txscript.SigHashAll)
	assert.ErrorIs(t, err, ErrNilParam)
}

func TestSign_ReplacesSameKey(t *testing.T) {
	f := newFixture(t)
	c := f.guarantee(t, 600)
	u := fundContract(t, c, fundValue)
	b := f.spendBuilder(t, c, u, SequenceLockTime, 600)

	_, err := b.Sign(0, f.lender, txscript.SigHashAll)
	require.NoError(t, err)
	_, err = b.Sign(0, f.lender, txscript.SigHashAll)
	require.NoError(t, err)
	_, err = b.Sign(0, f.borrower, txscript.SigHashAll)
	require.NoError(t, err)

	in, err := b.Input(0)
	require.NoError(t, err)
	assert.Len(t, in.Signatures(), 2)
}

func TestVerifySignature_OtherLayout(t *testing.T) {
	f := newFixture(t)
	c, err := contract.BuildCLTV(400, f.borrower.PubKeyBytes(), testParams)
	require.NoError(t, err)
	u := fundContract(t, c, fundValue)

	b1 := f.spendBuilder(t, c, u, SequenceLockTime, 400)
	ps, err := b1.Sign(0, f.borrower, txscript.SigHashAll)
	require.NoError(t, err)

	b2 := f.spendBuilder(t, c, u, SequenceLockTime, 401)
	assert.ErrorIs(t, b2.VerifySignature(0, ps), ErrSignatureMismatch)
	assert.ErrorIs(t, b2.AddSignature(0, ps), ErrSignature)

	wrongType := *ps
	wrongType.HashType = txscript.SigHashNone
	assert.ErrorIs(t, b1.VerifySignature(0, &wrongType), ErrMalformedSignature)
	assert.ErrorIs(t, b1.VerifySignature(0, nil), ErrMissingSignature)
}

func FuzzStripSigHashFlagNoPanic(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x30, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x01, 0x01})
	f.Add(make([]byte, 73))

	f.Fuzz(func(t *testing.T, sig []byte) {
		StripSigHashFlag(sig)
	})
}
