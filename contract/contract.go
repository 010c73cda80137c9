// Package contract compiles the redeem scripts that lock loan collateral and
// derives their pay-to-script-hash locking scripts and addresses.
//
// Two templates are supported:
//
//	// CLTV-only timelock
//	<lock_height> OP_CHECKLOCKTIMEVERIFY OP_DROP <pubkey> OP_CHECKSIG
//
//	// dual-branch HTLC
//	OP_IF
//	  <condition A> <pubkey_A> OP_CHECKSIG
//	OP_ELSE
//	  <condition B> <pubkey_B> OP_CHECKSIG
//	OP_ENDIF
//
// where a condition is either a hash lock (OP_HASH256 <hash> OP_EQUALVERIFY)
// or an absolute height lock (<height> OP_CHECKLOCKTIMEVERIFY OP_DROP).
package contract

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

const (
	// CompressedPubKeyLen is the expected length of a compressed public key.
	CompressedPubKeyLen = 33

	// HashLen is the expected length of a HASH256 commitment.
	HashLen = 32

	// LockTimeThreshold separates block heights from UNIX timestamps in
	// nLockTime. Lock heights must stay below it.
	LockTimeThreshold = 500_000_000

	// MaxRedeemScriptLen is the largest redeem script that can be pushed in a
	// scriptSig (MAX_SCRIPT_ELEMENT_SIZE).
	MaxRedeemScriptLen = txscript.MaxScriptElementSize
)

// Kind names a contract template instantiation.
type Kind string

const (
	KindTimelock  Kind = "timelock"
	KindGuarantee Kind = "guarantee"
	KindDelivery  Kind = "delivery"
	KindHTLC      Kind = "htlc"
)

// Branch selects one spending condition of a contract.
type Branch int

const (
	// BranchA is the OP_IF branch, or the only branch of a timelock.
	BranchA Branch = iota
	// BranchB is the OP_ELSE branch.
	BranchB
)

func (b Branch) String() string {
	switch b {
	case BranchA:
		return "A"
	case BranchB:
		return "B"
	default:
		return fmt.Sprintf("Branch(%d)", int(b))
	}
}

// Condition is the conjunction of predicates guarding one branch.
type Condition struct {
	HashLock   []byte // HASH256 commitment; nil when the branch has no hash check
	LockHeight uint32 // absolute block height; 0 when the branch has no CLTV
	PubKey     []byte // 33-byte compressed key whose signature the branch checks
}

// HasHashLock reports whether the branch requires a preimage.
func (c Condition) HasHashLock() bool { return len(c.HashLock) > 0 }

// HasTimeLock reports whether the branch requires a minimum chain height.
func (c Condition) HasTimeLock() bool { return c.LockHeight > 0 }

func (c Condition) equal(o Condition) bool {
	return bytes.Equal(c.HashLock, o.HashLock) &&
		c.LockHeight == o.LockHeight &&
		bytes.Equal(c.PubKey, o.PubKey)
}

// Contract is a compiled redeem script together with its decoded conditions
// and P2SH projection. It is immutable once built; the RedeemScript bytes are
// exactly the bytes a spender must reveal.
type Contract struct {
	Kind         Kind
	Branches     []Condition
	RedeemScript []byte

	params   *chaincfg.Params
	address  *btcutil.AddressScriptHash
	pkScript []byte
}

// Address returns the P2SH address of the contract.
func (c *Contract) Address() btcutil.Address { return c.address }

// EncodedAddress returns the base58check P2SH address string.
func (c *Contract) EncodedAddress() string { return c.address.EncodeAddress() }

// PkScript returns the P2SH locking script: OP_HASH160 <hash160(redeem)> OP_EQUAL.
func (c *Contract) PkScript() []byte { return append([]byte(nil), c.pkScript...) }

// ScriptHash returns hash160 of the redeem script.
func (c *Contract) ScriptHash() []byte { return c.address.ScriptAddress() }

// Params returns the network the address was derived for.
func (c *Contract) Params() *chaincfg.Params { return c.params }

// RedeemScriptHex returns the hex encoding of the redeem script.
func (c *Contract) RedeemScriptHex() string { return hex.EncodeToString(c.RedeemScript) }

// Disasm returns a human-readable rendering of the redeem script.
func (c *Contract) Disasm() string {
	s, err := txscript.DisasmString(c.RedeemScript)
	if err != nil {
		return "[error: " + err.Error() + "]"
	}
	return s
}

// Branching reports whether spending requires an IF/ELSE selector.
func (c *Contract) Branching() bool { return len(c.Branches) == 2 }

// Branch returns the condition of branch b.
func (c *Contract) Branch(b Branch) (Condition, error) {
	if b < 0 || int(b) >= len(c.Branches) {
		return Condition{}, fmt.Errorf("%w: %s on %d-branch %s contract", ErrInvalidBranch, b, len(c.Branches), c.Kind)
	}
	return c.Branches[b], nil
}

// RequiredHeight returns the chain height branch b requires, or 0.
func (c *Contract) RequiredHeight(b Branch) (uint32, error) {
	cond, err := c.Branch(b)
	if err != nil {
		return 0, err
	}
	return cond.LockHeight, nil
}

// BuildCLTV compiles a CLTV-only timelock spendable by pubKey once the chain
// reaches lockHeight.
func BuildCLTV(lockHeight uint32, pubKey []byte, params *chaincfg.Params) (*Contract, error) {
	if lockHeight == 0 {
		return nil, fmt.Errorf("%w: timelock requires a non-zero height", ErrInvalidLockHeight)
	}
	cond := Condition{LockHeight: lockHeight, PubKey: pubKey}
	if err := validateCondition(cond); err != nil {
		return nil, err
	}

	b := txscript.NewScriptBuilder()
	appendCondition(b, cond)
	return finish(KindTimelock, []Condition{cond}, b, params)
}

// BuildHTLC compiles a dual-branch contract from two conditions.
func BuildHTLC(a, b Condition, params *chaincfg.Params) (*Contract, error) {
	return buildHTLC(KindHTLC, a, b, params)
}

// BuildGuarantee compiles the guarantee contract: the lender settles early by
// revealing preimage M, or the borrower reclaims after timeX.
func BuildGuarantee(hashM, lenderPubKey []byte, timeX uint32, borrowerPubKey []byte, params *chaincfg.Params) (*Contract, error) {
	return buildHTLC(KindGuarantee,
		Condition{HashLock: hashM, PubKey: lenderPubKey},
		Condition{LockHeight: timeX, PubKey: borrowerPubKey},
		params,
	)
}

// BuildDelivery compiles the delivery contract: the lender claims with
// preimage L, or the borrower claims with preimage M.
func BuildDelivery(hashL, lenderPubKey, hashM, borrowerPubKey []byte, params *chaincfg.Params) (*Contract, error) {
	return buildHTLC(KindDelivery,
		Condition{HashLock: hashL, PubKey: lenderPubKey},
		Condition{HashLock: hashM, PubKey: borrowerPubKey},
		params,
	)
}

func buildHTLC(kind Kind, a, b Condition, params *chaincfg.Params) (*Contract, error) {
	if err := validateCondition(a); err != nil {
		return nil, fmt.Errorf("branch A: %w", err)
	}
	if err := validateCondition(b); err != nil {
		return nil, fmt.Errorf("branch B: %w", err)
	}

	sb := txscript.NewScriptBuilder()
	sb.AddOp(txscript.OP_IF)
	appendCondition(sb, a)
	sb.AddOp(txscript.OP_ELSE)
	appendCondition(sb, b)
	sb.AddOp(txscript.OP_ENDIF)
	return finish(kind, []Condition{a, b}, sb, params)
}

// appendCondition emits the predicates of one branch. A branch carrying both
// a hash lock and a height lock checks the hash first.
func appendCondition(b *txscript.ScriptBuilder, c Condition) {
	if c.HasHashLock() {
		b.AddOp(txscript.OP_HASH256)
		b.AddData(c.HashLock)
		b.AddOp(txscript.OP_EQUALVERIFY)
	}
	if c.HasTimeLock() {
		b.AddData(EncodeScriptNum(int64(c.LockHeight)))
		b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
		b.AddOp(txscript.OP_DROP)
	}
	b.AddData(c.PubKey)
	b.AddOp(txscript.OP_CHECKSIG)
}

func validateCondition(c Condition) error {
	if err := validatePubKey(c.PubKey); err != nil {
		return err
	}
	if c.HashLock != nil && len(c.HashLock) != HashLen {
		return fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidHash, HashLen, len(c.HashLock))
	}
	if c.LockHeight >= LockTimeThreshold {
		return fmt.Errorf("%w: %d is not below the locktime threshold %d",
			ErrInvalidLockHeight, c.LockHeight, LockTimeThreshold)
	}
	if !c.HasHashLock() && !c.HasTimeLock() {
		return ErrEmptyCondition
	}
	return nil
}

func validatePubKey(pk []byte) error {
	if len(pk) != CompressedPubKeyLen {
		return fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidPubKey, CompressedPubKeyLen, len(pk))
	}
	if pk[0] != 0x02 && pk[0] != 0x03 {
		return fmt.Errorf("%w: prefix 0x%02x is not compressed", ErrInvalidPubKey, pk[0])
	}
	if _, err := btcec.ParsePubKey(pk); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPubKey, err)
	}
	return nil
}

// finish checks the script size limit, then derives the P2SH projection.
func finish(kind Kind, branches []Condition, b *txscript.ScriptBuilder, params *chaincfg.Params) (*Contract, error) {
	script, err := b.Script()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScriptConstruction, err)
	}
	return newContract(kind, branches, script, params)
}

func newContract(kind Kind, branches []Condition, script []byte, params *chaincfg.Params) (*Contract, error) {
	if params == nil {
		return nil, ErrNilParams
	}
	if len(script) > MaxRedeemScriptLen {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrScriptTooLarge, len(script), MaxRedeemScriptLen)
	}

	addr, err := btcutil.NewAddressScriptHash(script, params)
	if err != nil {
		return nil, fmt.Errorf("%w: derive address: %w", ErrScriptConstruction, err)
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: derive locking script: %w", ErrScriptConstruction, err)
	}

	for i := range branches {
		branches[i].HashLock = cloneOrNil(branches[i].HashLock)
		branches[i].PubKey = cloneOrNil(branches[i].PubKey)
	}

	return &Contract{
		Kind:         kind,
		Branches:     branches,
		RedeemScript: append([]byte(nil), script...),
		params:       params,
		address:      addr,
		pkScript:     pkScript,
	}, nil
}

func cloneOrNil(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
