// Package scenario drives contracts through fund, build, sign, finalize and
// broadcast against a chain client, checking each phase against the
// outcome the plan expects and the timelock prediction.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcd/txscript"

	"github.com/bitfsorg/gryngotts-go/contract"
	"github.com/bitfsorg/gryngotts-go/keys"
	"github.com/bitfsorg/gryngotts-go/network"
	"github.com/bitfsorg/gryngotts-go/preimage"
	"github.com/bitfsorg/gryngotts-go/timelock"
	"github.com/bitfsorg/gryngotts-go/tx"
)

const (
	// DefaultFee is the fee deducted from every spend, in satoshis.
	DefaultFee = 10_000

	// DefaultLockOffset is how many blocks past the current tip a timeout
	// branch unlocks.
	DefaultLockOffset = 10

	// MinLockOffset is the smallest usable lock offset. Funding confirms in
	// the block after the tip, so an offset of 1 reaches the lock height
	// before the first premature spend is broadcast.
	MinLockOffset = 2
)

// Runner executes plans. Chain and Keys are required; Preimages defaults to
// a fresh registry and Logger to a discarding one.
type Runner struct {
	Chain      network.ChainClient
	Keys       keys.Provider
	Preimages  *preimage.Registry
	Logger     *slog.Logger
	Fee        int64  // 0 means DefaultFee
	LockOffset uint32 // 0 means DefaultLockOffset
}

// Report is the record of one plan execution.
type Report struct {
	Plan         string
	Kind         contract.Kind
	Address      string
	RedeemScript string
	LockHeight   uint32 // 0 when no branch has a timelock
	FundingTxID  string
	FundingVout  uint32
	Amount       int64
	Attempts     []AttemptResult
	Passed       bool
}

// AttemptResult is the record of one spend attempt.
type AttemptResult struct {
	Name       string
	Branch     contract.Branch
	Height     int64 // chain tip when the spend was broadcast
	State      timelock.State
	Prediction *timelock.Prediction // nil when the tracker already saw the output spent
	Expected   Outcome
	Got        Outcome
	TxID       string
	Reason     string // rejection reason or local error text
	Passed     bool
}

func (r *Runner) fee() int64 {
	if r.Fee > 0 {
		return r.Fee
	}
	return DefaultFee
}

func (r *Runner) lockOffset() uint32 {
	if r.LockOffset > 0 {
		return r.LockOffset
	}
	return DefaultLockOffset
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Run executes plan. Rejections the plan expects are recorded as passing
// attempts. The first attempt that misses its expectation stops the run
// with ErrUnexpectedOutcome; collaborator errors stop it as returned. The
// report is returned in both cases.
func (r *Runner) Run(ctx context.Context, plan *Plan) (*Report, error) {
	if r.Chain == nil || r.Keys == nil {
		return nil, fmt.Errorf("%w: chain client or key provider", ErrNilParam)
	}
	if err := plan.Validate(r.fee()); err != nil {
		return nil, err
	}
	if r.lockOffset() < MinLockOffset {
		return nil, fmt.Errorf("%w: lock offset %d is below %d", ErrInvalidPlan, r.lockOffset(), MinLockOffset)
	}
	if r.Preimages == nil {
		r.Preimages = preimage.NewRegistry()
	}
	log := r.logger().With("plan", plan.Name, "kind", string(plan.Kind))

	tip, err := r.Chain.GetBlockCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("scenario: chain height: %w", err)
	}
	c, err := Compile(plan.Kind, uint32(tip)+r.lockOffset(), r.Keys, r.Preimages)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Plan:         plan.Name,
		Kind:         c.Kind,
		Address:      c.EncodedAddress(),
		RedeemScript: c.RedeemScriptHex(),
		Amount:       plan.Amount,
	}
	for i := range c.Branches {
		if h := c.Branches[i].LockHeight; h > report.LockHeight {
			report.LockHeight = h
		}
	}
	log.Info("contract compiled", "address", report.Address, "lock_height", report.LockHeight, "tip", tip)

	miner, err := r.Chain.GetNewAddress(ctx)
	if err != nil {
		return report, fmt.Errorf("scenario: miner address: %w", err)
	}
	utxo, err := r.fund(ctx, c, plan.Amount, miner)
	if err != nil {
		return report, err
	}
	report.FundingTxID = utxo.TxID.String()
	report.FundingVout = utxo.Vout
	log.Info("contract funded", "txid", report.FundingTxID, "vout", utxo.Vout, "amount", utxo.Amount)

	spent := false
	for _, att := range plan.Attempts {
		res, err := r.attempt(ctx, c, utxo, att, miner, spent)
		if err != nil {
			return report, err
		}
		report.Attempts = append(report.Attempts, *res)
		if res.Got == OutcomeAccepted {
			spent = true
		}

		attrs := []any{
			"attempt", att.Name, "branch", att.Branch.String(), "height", res.Height,
			"state", res.State.String(), "expected", res.Expected.String(), "got", res.Got.String(),
		}
		if res.Reason != "" {
			attrs = append(attrs, "reason", res.Reason)
		}
		if !res.Passed {
			log.Error("attempt failed", attrs...)
			return report, fmt.Errorf("%w: %s/%s: expected %s, got %s (%s)",
				ErrUnexpectedOutcome, plan.Name, att.Name, res.Expected, res.Got, res.Reason)
		}
		log.Info("attempt passed", attrs...)
	}
	report.Passed = true
	return report, nil
}

// Compile builds a contract of kind from the provider's keys. Hash locks
// commit to the registry's L and M, which are generated on first use.
func Compile(kind contract.Kind, lockHeight uint32, p keys.Provider, reg *preimage.Registry) (*contract.Contract, error) {
	if p == nil || reg == nil {
		return nil, fmt.Errorf("%w: key provider or preimage registry", ErrNilParam)
	}
	params := p.Params()
	lender, err := p.KeyPair(keys.RoleLender)
	if err != nil && kind != contract.KindTimelock {
		return nil, err
	}
	borrower, err := p.KeyPair(keys.RoleBorrower)
	if err != nil {
		return nil, err
	}

	switch kind {
	case contract.KindTimelock:
		return contract.BuildCLTV(lockHeight, borrower.PubKeyBytes(), params)
	case contract.KindGuarantee:
		hashM, err := commitment(reg, preimage.NameM)
		if err != nil {
			return nil, err
		}
		return contract.BuildGuarantee(hashM, lender.PubKeyBytes(), lockHeight, borrower.PubKeyBytes(), params)
	case contract.KindDelivery:
		hashL, err := commitment(reg, preimage.NameL)
		if err != nil {
			return nil, err
		}
		hashM, err := commitment(reg, preimage.NameM)
		if err != nil {
			return nil, err
		}
		return contract.BuildDelivery(hashL, lender.PubKeyBytes(), hashM, borrower.PubKeyBytes(), params)
	}
	return nil, fmt.Errorf("%w: unsupported contract kind %q", ErrInvalidPlan, kind)
}

// commitment returns the commitment of the named preimage, generating the
// preimage on first use.
func commitment(reg *preimage.Registry, name string) ([]byte, error) {
	h, err := reg.Commitment(name)
	if errors.Is(err, preimage.ErrNotFound) {
		if _, err = reg.Generate(name); err != nil {
			return nil, err
		}
		h, err = reg.Commitment(name)
	}
	if err != nil {
		return nil, err
	}
	return h.Bytes(), nil
}

// fund pays amount to c, confirms the funding transaction with one block
// and locates the contract output by its script.
func (r *Runner) fund(ctx context.Context, c *contract.Contract, amount int64, miner string) (*tx.UTXO, error) {
	txid, err := r.Chain.SendToAddress(ctx, c.EncodedAddress(), network.SatoshiToBTC(amount))
	if err != nil {
		return nil, fmt.Errorf("scenario: fund contract: %w", err)
	}
	if _, err := r.Chain.GenerateToAddress(ctx, 1, miner); err != nil {
		return nil, fmt.Errorf("scenario: confirm funding: %w", err)
	}
	res, err := r.Chain.GetRawTransactionVerbose(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("scenario: fetch funding tx: %w", err)
	}
	vout, err := res.FindOutput(c.PkScript())
	if err != nil {
		return nil, fmt.Errorf("scenario: funding output: %w", err)
	}
	msg, err := res.MsgTx()
	if err != nil {
		return nil, fmt.Errorf("scenario: funding tx: %w", err)
	}
	return tx.NewUTXOFromTx(msg, vout)
}

func (r *Runner) attempt(ctx context.Context, c *contract.Contract, utxo *tx.UTXO, att Attempt, miner string, spent bool) (*AttemptResult, error) {
	res := &AttemptResult{Name: att.Name, Branch: att.Branch, Expected: att.Expect}

	cond, err := c.Branch(att.Branch)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPlan, att.Name, err)
	}
	kp, err := r.Keys.KeyPair(att.Signer)
	if err != nil {
		return nil, err
	}

	// Timeout spends carry the branch height as nLockTime on a non-final
	// input; every other spend is final with no locktime.
	lockTime, sequence := uint32(0), uint32(tx.SequenceFinal)
	if cond.HasTimeLock() {
		lockTime, sequence = cond.LockHeight, tx.SequenceLockTime
	}

	tracker := timelock.NewTracker(r.Chain, cond.LockHeight)
	if spent {
		tracker.MarkSpent()
	}
	if att.AdvanceToLock && cond.HasTimeLock() {
		if err := r.advanceTo(ctx, int64(cond.LockHeight), miner); err != nil {
			return nil, err
		}
	}
	pred, err := tracker.Check(ctx, lockTime, sequence)
	switch {
	case errors.Is(err, timelock.ErrSpent):
		// A spent tracker stops following the chain.
		if res.Height, err = r.Chain.GetBlockCount(ctx); err != nil {
			return nil, fmt.Errorf("scenario: chain height: %w", err)
		}
	case err != nil:
		return nil, err
	default:
		res.Prediction = &pred
		res.Height = tracker.Height()
	}
	res.State = tracker.State()

	rawHex, err := r.buildSpend(c, utxo, att, kp, lockTime, sequence)
	if errors.Is(err, tx.ErrSignature) {
		res.Got = OutcomeSignatureError
		res.Reason = err.Error()
		res.Passed = att.Expect.satisfies(res.Got)
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", att.Name, err)
	}

	txid, err := r.Chain.SendRawTransaction(ctx, rawHex)
	switch {
	case err == nil:
		res.Got = OutcomeAccepted
		res.TxID = txid
		tracker.MarkSpent()
		res.State = tracker.State()
	case network.IsLocktimeRejection(err):
		res.Got = OutcomeLocked
	case network.IsSpentRejection(err):
		res.Got = OutcomeSpent
	default:
		if _, ok := network.AsRejection(err); !ok {
			return nil, fmt.Errorf("scenario: broadcast %s: %w", att.Name, err)
		}
		res.Got = OutcomeRejected
	}
	if rej, ok := network.AsRejection(err); ok {
		res.Reason = rej.Reason
	}

	res.Passed = att.Expect.satisfies(res.Got) && agrees(res.Prediction, spent, res.Got)

	if res.Got == OutcomeAccepted && att.Confirm {
		if _, err := r.Chain.GenerateToAddress(ctx, 1, miner); err != nil {
			return nil, fmt.Errorf("scenario: confirm %s: %w", att.Name, err)
		}
	}
	return res, nil
}

// agrees reports whether the node's answer matches the timelock model.
// Outcomes the model does not cover always agree.
func agrees(pred *timelock.Prediction, spent bool, got Outcome) bool {
	switch got {
	case OutcomeAccepted:
		return !spent && pred != nil && pred.Accepted()
	case OutcomeLocked:
		return pred != nil && !pred.Accepted()
	case OutcomeSpent:
		return spent || pred == nil || pred.Accepted()
	}
	return true
}

// advanceTo mines until the tip reaches height.
func (r *Runner) advanceTo(ctx context.Context, height int64, miner string) error {
	tip, err := r.Chain.GetBlockCount(ctx)
	if err != nil {
		return fmt.Errorf("scenario: chain height: %w", err)
	}
	if n := height - tip; n > 0 {
		if _, err := r.Chain.GenerateToAddress(ctx, int(n), miner); err != nil {
			return fmt.Errorf("scenario: mine to %d: %w", height, err)
		}
	}
	return nil
}

// buildSpend builds, signs and finalizes a one-input spend of utxo through
// att's branch, paying utxo's value less the fee to a fresh wallet address.
func (r *Runner) buildSpend(c *contract.Contract, utxo *tx.UTXO, att Attempt, kp *keys.KeyPair, lockTime, sequence uint32) (string, error) {
	b := tx.NewBuilder(c.Params())
	if _, err := b.AddInput(utxo, sequence, c.RedeemScript); err != nil {
		return "", err
	}
	value, err := tx.AmountAfterFee(utxo.Amount, r.fee())
	if err != nil {
		return "", err
	}
	addr, err := kp.Address(c.Params())
	if err != nil {
		return "", err
	}
	payout, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", err
	}
	if err := b.AddOutput(payout, value); err != nil {
		return "", err
	}
	if err := b.SetLockTime(lockTime); err != nil {
		return "", err
	}

	spend := tx.Spend{Branch: att.Branch}
	if att.Reveal != "" {
		p, err := r.Preimages.Get(att.Reveal)
		if err != nil {
			return "", err
		}
		spend.Preimage = p.Bytes()
	}

	ps, err := b.Sign(0, kp, txscript.SigHashAll)
	if err != nil {
		return "", err
	}
	if att.StripSigHashFlag {
		bad := *ps
		bad.Signature = ps.Signature[:len(ps.Signature)-1]
		_, err := tx.Finalize([]*tx.PartialSignature{&bad}, c.RedeemScript, spend)
		if err == nil {
			return "", fmt.Errorf("%w: signature without sighash flag finalized", ErrUnexpectedOutcome)
		}
		return "", err
	}
	if _, err := b.FinalizeInput(0, spend); err != nil {
		return "", err
	}
	if err := b.VerifyInput(0); err != nil {
		return "", err
	}
	return b.Hex()
}
