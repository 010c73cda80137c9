package tx

import (
	"errors"
	"fmt"
)

var (
	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("tx: required parameter is nil")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("tx: invalid parameters")

	// ErrInvalidUTXO indicates a UTXO reference whose fields are inconsistent.
	ErrInvalidUTXO = errors.New("tx: invalid UTXO reference")

	// ErrInputIndex indicates an input index outside the transaction.
	ErrInputIndex = errors.New("tx: input index out of range")

	// ErrLayoutFrozen indicates an attempt to change inputs, outputs or
	// locktime after a signature hash has been computed.
	ErrLayoutFrozen = errors.New("tx: layout frozen after signing")

	// ErrLockTimeIgnored indicates a non-zero locktime on a transaction whose
	// inputs are all final, which consensus would silently ignore.
	ErrLockTimeIgnored = errors.New("tx: locktime set but every input sequence is final")

	// ErrInsufficientFunds indicates the fee consumes the whole input value.
	ErrInsufficientFunds = errors.New("tx: insufficient funds")

	// ErrScriptBuild indicates scriptSig construction failed.
	ErrScriptBuild = errors.New("tx: script build failed")

	// ErrVerifyFailed indicates the script engine rejected an input.
	ErrVerifyFailed = errors.New("tx: script verification failed")

	// ErrSignature is the root of every signature failure. No scriptSig is
	// emitted once it is returned.
	ErrSignature = errors.New("tx: signature error")

	// ErrMissingSignature indicates no usable partial signature for an input.
	ErrMissingSignature = fmt.Errorf("%w: missing signature", ErrSignature)

	// ErrMalformedSignature indicates a signature that is not DER followed by
	// a defined sighash flag byte.
	ErrMalformedSignature = fmt.Errorf("%w: malformed signature", ErrSignature)

	// ErrSignatureMismatch indicates a signature that does not verify against
	// the input's sighash.
	ErrSignatureMismatch = fmt.Errorf("%w: signature does not verify", ErrSignature)

	// ErrPreimageRequired indicates a hash-locked branch finalized without a
	// preimage.
	ErrPreimageRequired = errors.New("tx: branch requires a preimage")

	// ErrUnexpectedPreimage indicates a preimage supplied for a branch with no
	// hash check.
	ErrUnexpectedPreimage = errors.New("tx: branch takes no preimage")

	// ErrPreimageMismatch indicates a preimage that does not hash to the
	// branch commitment.
	ErrPreimageMismatch = errors.New("tx: preimage does not match commitment")
)
