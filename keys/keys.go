// Package keys supplies the key pairs that lock and unlock contract outputs.
//
// Private scalars never leave a KeyPair except as signatures produced by the
// tx package; only compressed public keys are compiled into scripts.
package keys

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	bip32 "github.com/bsv-blockchain/go-sdk/compat/bip32"
	sdkchaincfg "github.com/bsv-blockchain/go-sdk/transaction/chaincfg"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

const (
	// CompressedPubKeyLen is the length of a compressed secp256k1 public key.
	CompressedPubKeyLen = 33

	// Hardened is the BIP32 hardened child offset.
	Hardened = 0x80000000

	// DefaultLenderPath is the BIP84 testnet path the lender key is derived at.
	DefaultLenderPath = "m/84'/1'/0'/0/0"
)

// Role names a party to a contract.
type Role string

const (
	// RoleLender funds the loan and claims with the preimages.
	RoleLender Role = "lender"
	// RoleBorrower posts collateral and reclaims after timeout.
	RoleBorrower Role = "borrower"
)

// KeyPair holds a secp256k1 key pair.
type KeyPair struct {
	PrivateKey *btcec.PrivateKey `json:"-"`
	PublicKey  *btcec.PublicKey  `json:"public_key"`
	Path       string            `json:"path,omitempty"` // derivation path, when derived
}

// PubKeyBytes returns the 33-byte compressed public key.
func (k *KeyPair) PubKeyBytes() []byte {
	return k.PublicKey.SerializeCompressed()
}

// PubKeyHex returns the hex encoding of the compressed public key.
func (k *KeyPair) PubKeyHex() string {
	return hex.EncodeToString(k.PubKeyBytes())
}

// WIF encodes the private key as compressed WIF for params.
func (k *KeyPair) WIF(params *chaincfg.Params) (string, error) {
	w, err := btcutil.NewWIF(k.PrivateKey, params, true)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidWIF, err)
	}
	return w.String(), nil
}

// Address returns the P2PKH address of the compressed public key.
func (k *KeyPair) Address(params *chaincfg.Params) (*btcutil.AddressPubKeyHash, error) {
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(k.PubKeyBytes()), params)
	if err != nil {
		return nil, fmt.Errorf("%w: address: %w", ErrKeyMaterial, err)
	}
	return addr, nil
}

// Generate creates a random key pair.
func Generate() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: generate: %w", ErrKeyMaterial, err)
	}
	return &KeyPair{PrivateKey: priv, PublicKey: priv.PubKey()}, nil
}

// FromWIF decodes a WIF private key and checks it belongs to params.
func FromWIF(wif string, params *chaincfg.Params) (*KeyPair, error) {
	w, err := btcutil.DecodeWIF(strings.TrimSpace(wif))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWIF, err)
	}
	if params != nil && !w.IsForNet(params) {
		return nil, fmt.Errorf("%w: WIF is not for %s", ErrWrongNetwork, params.Name)
	}
	if !w.CompressPubKey {
		return nil, ErrUncompressedKey
	}
	return &KeyPair{PrivateKey: w.PrivKey, PublicKey: w.PrivKey.PubKey()}, nil
}

// FromExtendedKey decodes a base58 extended private key (xprv/tprv) and
// derives the child at path.
func FromExtendedKey(xprv, path string) (*KeyPair, error) {
	root, err := bip32.NewKeyFromString(strings.TrimSpace(xprv))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExtendedKey, err)
	}
	if !root.IsPrivate() {
		return nil, fmt.Errorf("%w: extended key is public", ErrInvalidExtendedKey)
	}
	return derive(root, path)
}

// FromSeed derives the key at path from a BIP32 master seed.
func FromSeed(seed []byte, path string) (*KeyPair, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}
	master, err := bip32.NewMaster(seed, &sdkchaincfg.TestNet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	return derive(master, path)
}

// ParsePath parses a BIP32 path such as "m/84'/1'/0'/0/0" into child
// indices. Hardened components may be marked with ' or h.
func ParsePath(path string) ([]uint32, error) {
	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("%w: %q must start with m", ErrInvalidPath, path)
	}
	indices := make([]uint32, 0, len(parts)-1)
	for _, p := range parts[1:] {
		hardened := strings.HasSuffix(p, "'") || strings.HasSuffix(p, "h")
		if hardened {
			p = p[:len(p)-1]
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: component %q: %w", ErrInvalidPath, p, err)
		}
		if n >= Hardened {
			return nil, fmt.Errorf("%w: component %d out of range", ErrInvalidPath, n)
		}
		idx := uint32(n)
		if hardened {
			idx += Hardened
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// derive walks path from key and converts the leaf into a btcec key pair.
func derive(key *bip32.ExtendedKey, path string) (*KeyPair, error) {
	indices, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	current := key
	for depth, idx := range indices {
		current, err = current.Child(idx)
		if err != nil {
			return nil, fmt.Errorf("%w: depth %d: %w", ErrDerivationFailed, depth, err)
		}
	}
	sdkPriv, err := current.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: extract EC private key: %w", ErrDerivationFailed, err)
	}
	priv, pub := btcec.PrivKeyFromBytes(sdkPriv.Serialize())
	return &KeyPair{PrivateKey: priv, PublicKey: pub, Path: path}, nil
}

// Provider supplies key pairs by role together with the network they are
// used on. Pipelines receive a Provider explicitly; nothing holds keys
// globally.
type Provider interface {
	KeyPair(role Role) (*KeyPair, error)
	Params() *chaincfg.Params
}

// StaticProvider is a Provider backed by an in-memory map.
type StaticProvider struct {
	mu     sync.RWMutex
	params *chaincfg.Params
	keys   map[Role]*KeyPair
}

// Compile-time interface check.
var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider creates an empty provider for params.
func NewStaticProvider(params *chaincfg.Params) *StaticProvider {
	return &StaticProvider{params: params, keys: make(map[Role]*KeyPair)}
}

// Set assigns kp to role, replacing any previous key.
func (p *StaticProvider) Set(role Role, kp *KeyPair) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[role] = kp
}

// KeyPair returns the key assigned to role.
func (p *StaticProvider) KeyPair(role Role) (*KeyPair, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	kp, ok := p.keys[role]
	if !ok || kp == nil || kp.PrivateKey == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, role)
	}
	return kp, nil
}

// Params returns the provider's network parameters.
func (p *StaticProvider) Params() *chaincfg.Params { return p.params }

// NewEphemeralProvider returns a provider with freshly generated lender and
// borrower keys.
func NewEphemeralProvider(params *chaincfg.Params) (*StaticProvider, error) {
	p := NewStaticProvider(params)
	for _, role := range []Role{RoleLender, RoleBorrower} {
		kp, err := Generate()
		if err != nil {
			return nil, err
		}
		p.Set(role, kp)
	}
	return p, nil
}
