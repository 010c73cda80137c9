package network

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnectionFailed indicates the client could not connect to the node.
	ErrConnectionFailed = errors.New("network: connection failed")

	// ErrAuthFailed indicates authentication (e.g., RPC credentials) was rejected.
	ErrAuthFailed = errors.New("network: authentication failed")

	// ErrTxNotFound indicates the requested transaction or output does not exist.
	ErrTxNotFound = errors.New("network: transaction not found")

	// ErrBroadcastRejected indicates the node rejected the broadcast transaction.
	ErrBroadcastRejected = errors.New("network: broadcast rejected")

	// ErrInvalidResponse indicates the node returned a malformed or unexpected response.
	ErrInvalidResponse = errors.New("network: invalid response")

	// ErrInvalidAmount indicates an amount that is negative or not a whole
	// number of satoshis.
	ErrInvalidAmount = errors.New("network: invalid amount")
)

// Bitcoin Core RPC error codes the client distinguishes.
const (
	RPCInvalidAddressOrKey  = -5
	RPCDeserialization      = -22
	RPCVerify               = -25
	RPCVerifyRejected       = -26
	RPCVerifyAlreadyInChain = -27
)

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("network: rpc error %d: %s", e.Code, e.Message)
}

// RejectionError is a consensus or policy rejection of a broadcast
// transaction. It is an expected outcome for premature or double spends and
// carries the node's reason string as data.
type RejectionError struct {
	Code   int
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", ErrBroadcastRejected, e.Reason, e.Code)
}

// Is makes errors.Is(err, ErrBroadcastRejected) hold for every rejection.
func (e *RejectionError) Is(target error) bool { return target == ErrBroadcastRejected }

// Reasons reported by the node and by the simulated chain.
const (
	ReasonNonFinal        = "non-final"
	ReasonLockTime        = "mandatory-script-verify-flag-failed (Locktime requirement not satisfied)"
	ReasonMissingOrSpent  = "bad-txns-inputs-missingorspent"
	ReasonMempoolConflict = "txn-mempool-conflict"
	ReasonInBelowOut      = "bad-txns-in-belowout"
	ReasonAlreadyKnown    = "txn-already-known"
)

// AsRejection returns the RejectionError in err's chain, if any.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// IsLocktimeRejection reports whether err rejects a spend for being
// premature: either the transaction is not final yet or the script's
// CHECKLOCKTIMEVERIFY failed.
func IsLocktimeRejection(err error) bool {
	rej, ok := AsRejection(err)
	if !ok {
		return false
	}
	r := strings.ToLower(rej.Reason)
	return strings.Contains(r, ReasonNonFinal) ||
		strings.Contains(r, "locktime requirement not satisfied") ||
		strings.Contains(r, "unsatisfied locktime")
}

// IsSpentRejection reports whether err rejects a spend of an output that is
// already spent or unknown.
func IsSpentRejection(err error) bool {
	rej, ok := AsRejection(err)
	if !ok {
		return false
	}
	r := strings.ToLower(rej.Reason)
	return strings.Contains(r, "missingorspent") ||
		strings.Contains(r, "missing inputs") ||
		strings.Contains(r, ReasonMempoolConflict) ||
		strings.Contains(r, "inputs-spent")
}
