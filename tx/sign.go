package tx

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"

	"github.com/bitfsorg/gryngotts-go/keys"
)

// PartialSignature is one signature attached to an input before
// finalization. Signature is the DER encoding followed by the sighash flag.
type PartialSignature struct {
	PubKey    []byte
	Signature []byte
	HashType  txscript.SigHashType
}

// SigHash returns the legacy signature hash of input idx, using the input's
// script code. The first call freezes the layout.
func (b *Builder) SigHash(idx int, hashType txscript.SigHashType) ([]byte, error) {
	in, err := b.Input(idx)
	if err != nil {
		return nil, err
	}
	if err := b.freeze(); err != nil {
		return nil, err
	}
	hash, err := txscript.CalcSignatureHash(in.ScriptCode(), hashType, b.msg, idx)
	if err != nil {
		return nil, fmt.Errorf("%w: sighash input %d: %w", ErrSignature, idx, err)
	}
	return hash, nil
}

// Sign signs input idx with kp and records the resulting partial signature.
// A later signature by the same key replaces the earlier one.
func (b *Builder) Sign(idx int, kp *keys.KeyPair, hashType txscript.SigHashType) (*PartialSignature, error) {
	if kp == nil || kp.PrivateKey == nil {
		return nil, fmt.Errorf("%w: key pair", ErrNilParam)
	}
	if !validHashType(hashType) {
		return nil, fmt.Errorf("%w: undefined sighash type 0x%02x", ErrInvalidParams, uint32(hashType))
	}
	hash, err := b.SigHash(idx, hashType)
	if err != nil {
		return nil, err
	}

	sig := ecdsa.Sign(kp.PrivateKey, hash)
	ps := &PartialSignature{
		PubKey:    kp.PubKeyBytes(),
		Signature: append(sig.Serialize(), byte(hashType)),
		HashType:  hashType,
	}
	if err := b.AddSignature(idx, ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// AddSignature attaches an externally produced partial signature to input
// idx after checking it verifies.
func (b *Builder) AddSignature(idx int, ps *PartialSignature) error {
	if err := b.VerifySignature(idx, ps); err != nil {
		return err
	}
	in := b.inputs[idx]
	for i, existing := range in.sigs {
		if bytes.Equal(existing.PubKey, ps.PubKey) {
			in.sigs[i] = ps
			return nil
		}
	}
	in.sigs = append(in.sigs, ps)
	return nil
}

// VerifySignature checks ps against the sighash of input idx.
func (b *Builder) VerifySignature(idx int, ps *PartialSignature) error {
	if ps == nil {
		return ErrMissingSignature
	}
	der, hashType, err := StripSigHashFlag(ps.Signature)
	if err != nil {
		return err
	}
	if hashType != ps.HashType {
		return fmt.Errorf("%w: flag byte 0x%02x disagrees with declared type 0x%02x",
			ErrMalformedSignature, uint32(hashType), uint32(ps.HashType))
	}
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedSignature, err)
	}
	pub, err := btcec.ParsePubKey(ps.PubKey)
	if err != nil {
		return fmt.Errorf("%w: public key: %w", ErrMalformedSignature, err)
	}
	hash, err := b.SigHash(idx, hashType)
	if err != nil {
		return err
	}
	if !sig.Verify(hash, pub) {
		return fmt.Errorf("%w: input %d", ErrSignatureMismatch, idx)
	}
	return nil
}

// StripSigHashFlag splits a script signature into its DER encoding and its
// trailing sighash flag. A signature missing the flag byte fails here, since
// what remains is not valid DER.
func StripSigHashFlag(sig []byte) ([]byte, txscript.SigHashType, error) {
	if len(sig) < 2 {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrMalformedSignature, len(sig))
	}
	der := sig[:len(sig)-1]
	hashType := txscript.SigHashType(sig[len(sig)-1])
	if !validHashType(hashType) {
		return nil, 0, fmt.Errorf("%w: undefined sighash flag 0x%02x", ErrMalformedSignature, uint32(hashType))
	}
	if _, err := ecdsa.ParseDERSignature(der); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrMalformedSignature, err)
	}
	return der, hashType, nil
}

func validHashType(t txscript.SigHashType) bool {
	switch t &^ txscript.SigHashAnyOneCanPay {
	case txscript.SigHashAll, txscript.SigHashNone, txscript.SigHashSingle:
		return true
	}
	return false
}
