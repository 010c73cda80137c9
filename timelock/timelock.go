// Package timelock tracks whether a height-locked contract branch can be
// spent and predicts how a node would treat a spend at a given chain tip.
package timelock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/wire"
)

const (
	// LockTimeThreshold separates block heights from UNIX timestamps in
	// nLockTime.
	LockTimeThreshold = 500_000_000

	sequenceFinal = wire.MaxTxInSequenceNum
)

var (
	// ErrNilSource indicates a tracker without a height source.
	ErrNilSource = errors.New("timelock: nil height source")

	// ErrSpent indicates the tracked output has already been spent.
	ErrSpent = errors.New("timelock: output already spent")
)

// State is the lifecycle position of a tracked output.
type State int

const (
	// StateFunded means the output exists but no height has been observed.
	StateFunded State = iota
	// StateLocked means the chain has not reached the required height.
	StateLocked
	// StateUnlockable means a correctly built spend is now valid.
	StateUnlockable
	// StateSpent is terminal.
	StateSpent
)

func (s State) String() string {
	switch s {
	case StateFunded:
		return "funded"
	case StateLocked:
		return "locked"
	case StateUnlockable:
		return "unlockable"
	case StateSpent:
		return "spent"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome is the predicted node verdict for a spend.
type Outcome int

const (
	// OutcomeAccept means the spend would enter the mempool.
	OutcomeAccept Outcome = iota
	// OutcomeNonFinal means nLockTime is beyond the next block.
	OutcomeNonFinal
	// OutcomeLockTimeUnsatisfied means OP_CHECKLOCKTIMEVERIFY fails.
	OutcomeLockTimeUnsatisfied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccept:
		return "accept"
	case OutcomeNonFinal:
		return "non-final"
	case OutcomeLockTimeUnsatisfied:
		return "locktime-unsatisfied"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Prediction is the result of Predict.
type Prediction struct {
	Outcome Outcome
	Reason  string
}

// Accepted reports whether the spend would be accepted.
func (p Prediction) Accepted() bool { return p.Outcome == OutcomeAccept }

// Predict models mempool acceptance of a spend of a branch locked to
// lockHeight, using nLockTime txLockTime and input sequence, when the chain
// tip is at height tip. A lockHeight of 0 means the branch has no CLTV.
//
// The spend is validated for inclusion in block tip+1: the transaction must
// be final at that height, and CHECKLOCKTIMEVERIFY requires a non-final
// sequence and lockHeight <= txLockTime, both in height mode.
func Predict(lockHeight, txLockTime, sequence uint32, tip int64) Prediction {
	next := tip + 1

	if sequence != sequenceFinal && txLockTime != 0 {
		if txLockTime < LockTimeThreshold && int64(txLockTime) >= next {
			return Prediction{
				Outcome: OutcomeNonFinal,
				Reason:  fmt.Sprintf("locktime %d not below next block height %d", txLockTime, next),
			}
		}
	}

	if lockHeight == 0 {
		return Prediction{Outcome: OutcomeAccept}
	}

	switch {
	case sequence == sequenceFinal:
		return Prediction{
			Outcome: OutcomeLockTimeUnsatisfied,
			Reason:  "input sequence is final",
		}
	case txLockTime >= LockTimeThreshold:
		return Prediction{
			Outcome: OutcomeLockTimeUnsatisfied,
			Reason:  fmt.Sprintf("locktime %d is a timestamp, branch requires a height", txLockTime),
		}
	case txLockTime < lockHeight:
		return Prediction{
			Outcome: OutcomeLockTimeUnsatisfied,
			Reason:  fmt.Sprintf("locktime %d below required height %d", txLockTime, lockHeight),
		}
	}
	return Prediction{Outcome: OutcomeAccept}
}

// HeightSource reports the current chain height.
type HeightSource interface {
	GetBlockCount(ctx context.Context) (int64, error)
}

// Tracker follows one contract branch output through
// Funded -> Locked -> Unlockable -> Spent. It holds no clock of its own and
// queries the source before every decision.
type Tracker struct {
	source   HeightSource
	required uint32

	mu     sync.Mutex
	state  State
	height int64
}

// NewTracker tracks a funded output whose branch requires height required
// (0 for a branch with no timelock).
func NewTracker(source HeightSource, required uint32) *Tracker {
	return &Tracker{
		source:   source,
		required: required,
		state:    StateFunded,
		height:   -1,
	}
}

// RequiredHeight returns the branch's required height.
func (t *Tracker) RequiredHeight() uint32 { return t.required }

// State returns the state as of the last observation.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Height returns the last observed height, or -1.
func (t *Tracker) Height() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.height
}

// Observe applies a known chain height and returns the resulting state.
// Heights lower than one already observed are ignored.
func (t *Tracker) Observe(height int64) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observeLocked(height)
}

func (t *Tracker) observeLocked(height int64) State {
	if t.state == StateSpent {
		return t.state
	}
	if height > t.height {
		t.height = height
	}
	if t.height >= int64(t.required) {
		t.state = StateUnlockable
	} else {
		t.state = StateLocked
	}
	return t.state
}

// Refresh queries the current height and applies it.
func (t *Tracker) Refresh(ctx context.Context) (State, error) {
	if t.source == nil {
		return t.State(), ErrNilSource
	}
	h, err := t.source.GetBlockCount(ctx)
	if err != nil {
		return t.State(), fmt.Errorf("timelock: query height: %w", err)
	}
	return t.Observe(h), nil
}

// MarkSpent moves the tracker to the terminal Spent state.
func (t *Tracker) MarkSpent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateSpent
}

// Check refreshes the height and predicts the outcome of a spend using
// nLockTime lockTime and input sequence.
func (t *Tracker) Check(ctx context.Context, lockTime, sequence uint32) (Prediction, error) {
	if t.State() == StateSpent {
		return Prediction{}, ErrSpent
	}
	if _, err := t.Refresh(ctx); err != nil {
		return Prediction{}, err
	}
	return Predict(t.required, lockTime, sequence, t.Height()), nil
}
