package keys

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyMaterial is the root of every key material failure. It is fatal
	// for the spend attempt that needs the key.
	ErrKeyMaterial = errors.New("keys: key material error")

	// ErrInvalidWIF indicates a WIF string could not be decoded.
	ErrInvalidWIF = fmt.Errorf("%w: invalid WIF", ErrKeyMaterial)

	// ErrInvalidExtendedKey indicates a BIP32 extended key could not be decoded
	// or is not private.
	ErrInvalidExtendedKey = fmt.Errorf("%w: invalid extended key", ErrKeyMaterial)

	// ErrInvalidPath indicates a malformed BIP32 derivation path.
	ErrInvalidPath = fmt.Errorf("%w: invalid derivation path", ErrKeyMaterial)

	// ErrDerivationFailed indicates BIP32 child derivation failed.
	ErrDerivationFailed = fmt.Errorf("%w: key derivation failed", ErrKeyMaterial)

	// ErrWrongNetwork indicates key material encoded for a different network.
	ErrWrongNetwork = fmt.Errorf("%w: key belongs to a different network", ErrKeyMaterial)

	// ErrUncompressedKey indicates key material that would produce an
	// uncompressed (65-byte) public key.
	ErrUncompressedKey = fmt.Errorf("%w: uncompressed public keys are not supported", ErrKeyMaterial)

	// ErrKeyNotFound indicates the provider has no key for a role.
	ErrKeyNotFound = fmt.Errorf("%w: no key for role", ErrKeyMaterial)

	// ErrInvalidSeed indicates the seed is empty.
	ErrInvalidSeed = fmt.Errorf("%w: invalid seed", ErrKeyMaterial)

	// ErrInvalidMnemonic indicates a mnemonic that fails BIP39 validation.
	ErrInvalidMnemonic = fmt.Errorf("%w: invalid mnemonic", ErrKeyMaterial)

	// ErrInvalidEntropy indicates an unsupported mnemonic entropy size.
	ErrInvalidEntropy = fmt.Errorf("%w: invalid mnemonic entropy", ErrKeyMaterial)

	// ErrInvalidNetwork indicates an unknown network name.
	ErrInvalidNetwork = errors.New("keys: invalid network name")
)
