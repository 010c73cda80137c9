package preimage

import "errors"

var (
	// ErrInvalidPreimage indicates a preimage is not exactly Size bytes.
	ErrInvalidPreimage = errors.New("preimage: invalid preimage length")

	// ErrInvalidCommitment indicates a commitment hash is not exactly Size bytes.
	ErrInvalidCommitment = errors.New("preimage: invalid commitment length")

	// ErrCommitmentMismatch indicates H(preimage) does not equal the expected commitment.
	ErrCommitmentMismatch = errors.New("preimage: commitment mismatch")

	// ErrEmptySeed indicates a seed-derived preimage was requested with no seed.
	ErrEmptySeed = errors.New("preimage: empty seed")

	// ErrNotFound indicates no preimage is registered under the requested name.
	ErrNotFound = errors.New("preimage: not found")

	// ErrDuplicate indicates a preimage is already registered under the name.
	ErrDuplicate = errors.New("preimage: already registered")
)
