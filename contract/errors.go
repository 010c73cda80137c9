package contract

import (
	"errors"
	"fmt"
)

var (
	// ErrScriptConstruction is the root of every compile-time failure. No
	// address is derived once it is returned.
	ErrScriptConstruction = errors.New("contract: script construction failed")

	// ErrInvalidPubKey indicates a public key that is not a valid 33-byte
	// compressed secp256k1 point.
	ErrInvalidPubKey = fmt.Errorf("%w: invalid public key", ErrScriptConstruction)

	// ErrInvalidHash indicates a commitment hash that is not 32 bytes.
	ErrInvalidHash = fmt.Errorf("%w: invalid commitment hash", ErrScriptConstruction)

	// ErrInvalidLockHeight indicates a lock height of zero or one at or above
	// the locktime threshold.
	ErrInvalidLockHeight = fmt.Errorf("%w: invalid lock height", ErrScriptConstruction)

	// ErrScriptTooLarge indicates a redeem script that cannot be pushed in a
	// scriptSig.
	ErrScriptTooLarge = fmt.Errorf("%w: redeem script too large", ErrScriptConstruction)

	// ErrEmptyCondition indicates a branch with neither a hash lock nor a
	// lock height.
	ErrEmptyCondition = fmt.Errorf("%w: branch has no hash or time condition", ErrScriptConstruction)

	// ErrNilParams indicates missing network parameters.
	ErrNilParams = fmt.Errorf("%w: nil network parameters", ErrScriptConstruction)

	// ErrInvalidBranch indicates a branch that the contract does not have.
	ErrInvalidBranch = errors.New("contract: invalid branch")

	// ErrUnrecognizedScript indicates a redeem script that does not match any
	// supported contract template.
	ErrUnrecognizedScript = errors.New("contract: unrecognized redeem script")

	// ErrInvalidScriptNum indicates a malformed script number encoding.
	ErrInvalidScriptNum = errors.New("contract: invalid script number")
)
