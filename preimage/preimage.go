// Package preimage generates the secrets that unlock hash-locked contract
// branches and computes their on-chain commitments.
//
// A commitment is HASH256(preimage) = SHA256(SHA256(preimage)), matching the
// OP_HASH256 check compiled into every hash-locked branch.
package preimage

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	sha256 "github.com/minio/sha256-simd"
	"golang.org/x/crypto/hkdf"
	"lukechampine.com/frand"
)

const (
	// Size is the length of a preimage and of its commitment, in bytes.
	Size = 32

	// hkdfInfoPrefix namespaces seed-derived preimages.
	hkdfInfoPrefix = "gryngotts-preimage:"
)

// Preimage is a 32-byte secret.
type Preimage [Size]byte

// Hash is the HASH256 commitment of a Preimage.
type Hash [Size]byte

// New returns a fresh random preimage.
func New() Preimage {
	var p Preimage
	frand.Read(p[:])
	return p
}

// FromBytes copies b into a Preimage. b must be exactly Size bytes.
func FromBytes(b []byte) (Preimage, error) {
	var p Preimage
	if len(b) != Size {
		return p, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPreimage, len(b), Size)
	}
	copy(p[:], b)
	return p, nil
}

// FromHex decodes a hex-encoded preimage.
func FromHex(s string) (Preimage, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Preimage{}, fmt.Errorf("%w: %w", ErrInvalidPreimage, err)
	}
	return FromBytes(b)
}

// Derive deterministically derives a preimage from seed and label using
// HKDF-SHA256. The same (seed, label) pair always yields the same preimage.
func Derive(seed []byte, label string) (Preimage, error) {
	var p Preimage
	if len(seed) == 0 {
		return p, ErrEmptySeed
	}
	r := hkdf.New(sha256.New, seed, nil, []byte(hkdfInfoPrefix+label))
	if _, err := io.ReadFull(r, p[:]); err != nil {
		return p, fmt.Errorf("preimage: hkdf: %w", err)
	}
	return p, nil
}

// Commit returns HASH256(p).
func Commit(p Preimage) Hash {
	first := sha256.Sum256(p[:])
	return Hash(sha256.Sum256(first[:]))
}

// Bytes returns a copy of the preimage bytes.
func (p Preimage) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, p[:])
	return b
}

// String returns the hex encoding of the preimage.
func (p Preimage) String() string { return hex.EncodeToString(p[:]) }

// Hash returns the commitment of p.
func (p Preimage) Hash() Hash { return Commit(p) }

// Verify reports whether commitment equals HASH256(p). It returns
// ErrInvalidCommitment for a commitment of the wrong length and
// ErrCommitmentMismatch when the hashes differ.
func (p Preimage) Verify(commitment []byte) error {
	if len(commitment) != Size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidCommitment, len(commitment), Size)
	}
	h := Commit(p)
	if !bytes.Equal(h[:], commitment) {
		return fmt.Errorf("%w: HASH256(preimage)=%x, expected %x", ErrCommitmentMismatch, h[:], commitment)
	}
	return nil
}

// Bytes returns a copy of the hash bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

// String returns the hex encoding of the hash.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }
