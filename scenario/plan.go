package scenario

import (
	"fmt"

	"github.com/bitfsorg/gryngotts-go/contract"
	"github.com/bitfsorg/gryngotts-go/keys"
	"github.com/bitfsorg/gryngotts-go/network"
	"github.com/bitfsorg/gryngotts-go/preimage"
)

// Outcome is what happened to one spend attempt.
type Outcome int

const (
	// OutcomeAccepted means the node accepted the broadcast.
	OutcomeAccepted Outcome = iota + 1
	// OutcomeLocked means the node rejected a premature timelock spend.
	OutcomeLocked
	// OutcomeSpent means the node rejected a spend of a spent output.
	OutcomeSpent
	// OutcomeRejected is any other consensus or policy rejection.
	OutcomeRejected
	// OutcomeSignatureError means finalization failed locally and nothing
	// was broadcast.
	OutcomeSignatureError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeLocked:
		return "locked"
	case OutcomeSpent:
		return "spent"
	case OutcomeRejected:
		return "rejected"
	case OutcomeSignatureError:
		return "signature-error"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// satisfies reports whether got meets expectation o. A bad signature may be
// caught locally or by the node's script check.
func (o Outcome) satisfies(got Outcome) bool {
	if o == OutcomeSignatureError {
		return got == OutcomeSignatureError || got == OutcomeRejected
	}
	return o == got
}

// Attempt is one phase of a scenario: a spend of the funded output through
// one branch, with the outcome the phase expects.
type Attempt struct {
	Name   string
	Branch contract.Branch
	Signer keys.Role
	Reveal string // registry name of the preimage the branch reveals

	AdvanceToLock    bool // mine until the tip reaches the branch's lock height first
	StripSigHashFlag bool // drop the sighash byte from the signature
	Confirm          bool // mine one block after an accepted broadcast

	Expect Outcome
}

// Plan is a parameterized scenario: one contract, one funding output and an
// ordered list of spend attempts against it.
type Plan struct {
	Name     string
	Kind     contract.Kind
	Amount   int64 // funded value in satoshis
	Attempts []Attempt
}

// Validate checks the plan's shape. Branch and key availability are checked
// when the plan runs.
func (p *Plan) Validate(fee int64) error {
	if p == nil {
		return fmt.Errorf("%w: plan", ErrNilParam)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: plan name is required", ErrInvalidPlan)
	}
	switch p.Kind {
	case contract.KindTimelock, contract.KindGuarantee, contract.KindDelivery:
	default:
		return fmt.Errorf("%w: unsupported contract kind %q", ErrInvalidPlan, p.Kind)
	}
	if p.Amount <= fee {
		return fmt.Errorf("%w: amount %d must exceed fee %d", ErrInvalidPlan, p.Amount, fee)
	}
	if len(p.Attempts) == 0 {
		return fmt.Errorf("%w: %s has no attempts", ErrInvalidPlan, p.Name)
	}
	for i, a := range p.Attempts {
		if a.Expect < OutcomeAccepted || a.Expect > OutcomeSignatureError {
			return fmt.Errorf("%w: attempt %d has no expectation", ErrInvalidPlan, i)
		}
		if a.Signer != keys.RoleLender && a.Signer != keys.RoleBorrower {
			return fmt.Errorf("%w: attempt %d signer %q", ErrInvalidPlan, i, a.Signer)
		}
	}
	return nil
}

// TimelockPlan locks 0.95 BTC to the borrower with CLTV, expects a spend
// at the next block to be rejected and the spend at the lock height to
// succeed.
func TimelockPlan() *Plan {
	return &Plan{
		Name:   "timelock",
		Kind:   contract.KindTimelock,
		Amount: 95 * network.OneBTC / 100,
		Attempts: []Attempt{
			{Name: "premature", Branch: contract.BranchA, Signer: keys.RoleBorrower, Expect: OutcomeLocked},
			{Name: "matured", Branch: contract.BranchA, Signer: keys.RoleBorrower, AdvanceToLock: true, Confirm: true, Expect: OutcomeAccepted},
		},
	}
}

// GuaranteePlan funds the guarantee contract with 0.05 BTC and reclaims it
// through the borrower's timeout branch.
func GuaranteePlan() *Plan {
	return &Plan{
		Name:   "guarantee",
		Kind:   contract.KindGuarantee,
		Amount: 5 * network.OneBTC / 100,
		Attempts: []Attempt{
			{Name: "timeout before lock", Branch: contract.BranchB, Signer: keys.RoleBorrower, Expect: OutcomeLocked},
			{Name: "timeout at lock", Branch: contract.BranchB, Signer: keys.RoleBorrower, AdvanceToLock: true, Confirm: true, Expect: OutcomeAccepted},
		},
	}
}

// CooperativePlan settles the guarantee early with preimage M and the
// lender key; the borrower's later timeout claim finds the output spent.
func CooperativePlan() *Plan {
	return &Plan{
		Name:   "cooperative",
		Kind:   contract.KindGuarantee,
		Amount: 5 * network.OneBTC / 100,
		Attempts: []Attempt{
			{Name: "settle with M", Branch: contract.BranchA, Signer: keys.RoleLender, Reveal: preimage.NameM, Confirm: true, Expect: OutcomeAccepted},
			{Name: "timeout after settlement", Branch: contract.BranchB, Signer: keys.RoleBorrower, AdvanceToLock: true, Expect: OutcomeSpent},
		},
	}
}

// DeliveryPlan claims the delivery contract with preimage L and the lender
// key, then tries the borrower's M branch on the same output.
func DeliveryPlan() *Plan {
	return &Plan{
		Name:   "delivery",
		Kind:   contract.KindDelivery,
		Amount: 5 * network.OneBTC / 100,
		Attempts: []Attempt{
			{Name: "lender reveals L", Branch: contract.BranchA, Signer: keys.RoleLender, Reveal: preimage.NameL, Confirm: true, Expect: OutcomeAccepted},
			{Name: "borrower reveals M", Branch: contract.BranchB, Signer: keys.RoleBorrower, Reveal: preimage.NameM, Expect: OutcomeSpent},
		},
	}
}

// MalformedSignaturePlan finalizes a delivery spend whose signature lacks
// the sighash flag, then spends correctly to show the output was untouched.
func MalformedSignaturePlan() *Plan {
	return &Plan{
		Name:   "malformed-signature",
		Kind:   contract.KindDelivery,
		Amount: 5 * network.OneBTC / 100,
		Attempts: []Attempt{
			{Name: "missing sighash flag", Branch: contract.BranchA, Signer: keys.RoleLender, Reveal: preimage.NameL, StripSigHashFlag: true, Expect: OutcomeSignatureError},
			{Name: "well-formed retry", Branch: contract.BranchA, Signer: keys.RoleLender, Reveal: preimage.NameL, Confirm: true, Expect: OutcomeAccepted},
		},
	}
}

// Plans returns every preset keyed by name.
func Plans() map[string]func() *Plan {
	return map[string]func() *Plan{
		"timelock":            TimelockPlan,
		"guarantee":           GuaranteePlan,
		"cooperative":         CooperativePlan,
		"delivery":            DeliveryPlan,
		"malformed-signature": MalformedSignaturePlan,
	}
}
