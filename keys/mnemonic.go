package keys

import (
	"fmt"
	"strings"

	"github.com/bsv-blockchain/go-sdk/compat/bip39"
)

// Mnemonic entropy sizes.
const (
	Mnemonic12Words = 128
	Mnemonic24Words = 256
)

// GenerateMnemonic creates a BIP39 mnemonic of 12 or 24 words.
func GenerateMnemonic(entropyBits int) (string, error) {
	if entropyBits != Mnemonic12Words && entropyBits != Mnemonic24Words {
		return "", fmt.Errorf("%w: %d bits", ErrInvalidEntropy, entropyBits)
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEntropy, err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEntropy, err)
	}
	return mnemonic, nil
}

// FromMnemonic derives the key at path from a BIP39 mnemonic and optional
// passphrase. An empty passphrase still participates in seed derivation.
func FromMnemonic(mnemonic, passphrase, path string) (*KeyPair, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMnemonic, err)
	}
	return FromSeed(seed, path)
}
