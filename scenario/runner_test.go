package scenario

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/gryngotts-go/contract"
	"github.com/bitfsorg/gryngotts-go/keys"
	"github.com/bitfsorg/gryngotts-go/network"
	"github.com/bitfsorg/gryngotts-go/preimage"
	"github.com/bitfsorg/gryngotts-go/simnet"
	"github.com/bitfsorg/gryngotts-go/timelock"
)

var testParams = &chaincfg.RegressionNetParams

func newRunner(t *testing.T) (*Runner, *simnet.Chain) {
	t.Helper()
	chain, err := simnet.New(simnet.NewMemStore(), testParams)
	require.NoError(t, err)
	provider, err := keys.NewEphemeralProvider(testParams)
	require.NoError(t, err)
	return &Runner{Chain: chain, Keys: provider, Preimages: preimage.NewRegistry()}, chain
}

func TestGuaranteeTimeout(t *testing.T) {
	ctx := context.Background()
	r, chain := newRunner(t)
	start, err := chain.GetBlockCount(ctx)
	require.NoError(t, err)

	report, err := r.Run(ctx, GuaranteePlan())
	require.NoError(t, err)
	require.True(t, report.Passed)
	assert.Equal(t, contract.KindGuarantee, report.Kind)
	assert.Equal(t, uint32(start)+DefaultLockOffset, report.LockHeight)
	require.Len(t, report.Attempts, 2)

	early := report.Attempts[0]
	assert.Equal(t, OutcomeLocked, early.Got)
	assert.Equal(t, start+1, early.Height)
	assert.Equal(t, timelock.StateLocked, early.State)
	require.NotNil(t, early.Prediction)
	assert.Equal(t, timelock.OutcomeNonFinal, early.Prediction.Outcome)
	assert.Equal(t, network.ReasonNonFinal, early.Reason)

	late := report.Attempts[1]
	assert.Equal(t, OutcomeAccepted, late.Got)
	assert.Equal(t, int64(report.LockHeight), late.Height)
	assert.Equal(t, timelock.StateSpent, late.State)
	assert.NotEmpty(t, late.TxID)

	// Output value is input value less the fee.
	res, err := chain.GetRawTransactionVerbose(ctx, late.TxID)
	require.NoError(t, err)
	require.Len(t, res.Vout, 1)
	got, err := res.Vout[0].Satoshis()
	require.NoError(t, err)
	assert.Equal(t, report.Amount-DefaultFee, got)
	assert.Equal(t, int64(1), res.Confirmations)
}

func TestTimelockPlan(t *testing.T) {
	r, _ := newRunner(t)
	r.LockOffset = 3
	report, err := r.Run(context.Background(), TimelockPlan())
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Equal(t, contract.KindTimelock, report.Kind)
	assert.Equal(t, uint32(3), report.LockHeight)
}

func TestCooperativeSettlement(t *testing.T) {
	r, _ := newRunner(t)
	report, err := r.Run(context.Background(), CooperativePlan())
	require.NoError(t, err)
	require.True(t, report.Passed)

	assert.Equal(t, OutcomeAccepted, report.Attempts[0].Got)
	second := report.Attempts[1]
	assert.Equal(t, OutcomeSpent, second.Got)
	assert.Nil(t, second.Prediction)
	assert.Equal(t, timelock.StateSpent, second.State)
	assert.Equal(t, int64(report.LockHeight), second.Height)
}

func TestDeliverySecondSpendRejected(t *testing.T) {
	r, _ := newRunner(t)
	report, err := r.Run(context.Background(), DeliveryPlan())
	require.NoError(t, err)
	require.True(t, report.Passed)
	assert.Zero(t, report.LockHeight)

	assert.Equal(t, OutcomeAccepted, report.Attempts[0].Got)
	assert.Equal(t, OutcomeSpent, report.Attempts[1].Got)
	assert.Equal(t, network.ReasonMissingOrSpent, report.Attempts[1].Reason)

	// Both secrets were generated on demand.
	assert.Equal(t, []string{preimage.NameL, preimage.NameM}, r.Preimages.Names())
}

func TestMalformedSignature(t *testing.T) {
	r, _ := newRunner(t)
	report, err := r.Run(context.Background(), MalformedSignaturePlan())
	require.NoError(t, err)
	require.True(t, report.Passed)

	bad := report.Attempts[0]
	assert.Equal(t, OutcomeSignatureError, bad.Got)
	assert.Empty(t, bad.TxID)
	assert.Contains(t, bad.Reason, "malformed signature")
	assert.Equal(t, OutcomeAccepted, report.Attempts[1].Got)
}

func TestSharedPreimagesAcrossPlans(t *testing.T) {
	ctx := context.Background()
	r, _ := newRunner(t)
	m, err := r.Preimages.Generate(preimage.NameM)
	require.NoError(t, err)

	_, err = r.Run(ctx, CooperativePlan())
	require.NoError(t, err)
	_, err = r.Run(ctx, DeliveryPlan())
	require.NoError(t, err)

	got, err := r.Preimages.Get(preimage.NameM)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestUnexpectedOutcomeFails(t *testing.T) {
	r, _ := newRunner(t)
	plan := GuaranteePlan()
	plan.Attempts[0].Expect = OutcomeAccepted

	report, err := r.Run(context.Background(), plan)
	assert.ErrorIs(t, err, ErrUnexpectedOutcome)
	require.NotNil(t, report)
	assert.False(t, report.Passed)
	require.Len(t, report.Attempts, 1)
	assert.False(t, report.Attempts[0].Passed)
	assert.Equal(t, OutcomeLocked, report.Attempts[0].Got)
}

func TestRunLogs(t *testing.T) {
	var buf bytes.Buffer
	r, _ := newRunner(t)
	r.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	_, err := r.Run(context.Background(), DeliveryPlan())
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "contract funded")
	assert.Contains(t, out, "attempt passed")
	assert.Contains(t, out, "plan=delivery")
}

func TestCollaboratorErrorPropagates(t *testing.T) {
	down := errors.New("connection refused")
	provider, err := keys.NewEphemeralProvider(testParams)
	require.NoError(t, err)
	mock := &network.MockChainClient{
		GetBlockCountFn: func(ctx context.Context) (int64, error) { return 100, nil },
		GetNewAddressFn: func(ctx context.Context) (string, error) { return "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn", nil },
		SendToAddressFn: func(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
			return "", down
		},
	}
	r := &Runner{Chain: mock, Keys: provider}

	report, err := r.Run(context.Background(), DeliveryPlan())
	assert.ErrorIs(t, err, down)
	require.NotNil(t, report)
	assert.Empty(t, report.FundingTxID)
	assert.NotNil(t, r.Preimages)
}

func TestPlanValidate(t *testing.T) {
	for name, preset := range Plans() {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, preset().Validate(DefaultFee))
		})
	}

	tests := []struct {
		name   string
		mutate func(p *Plan)
	}{
		{"no name", func(p *Plan) { p.Name = "" }},
		{"htlc kind", func(p *Plan) { p.Kind = contract.KindHTLC }},
		{"amount below fee", func(p *Plan) { p.Amount = DefaultFee }},
		{"no attempts", func(p *Plan) { p.Attempts = nil }},
		{"no expectation", func(p *Plan) { p.Attempts[0].Expect = 0 }},
		{"unknown signer", func(p *Plan) { p.Attempts[0].Signer = "oracle" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := DeliveryPlan()
			tc.mutate(p)
			assert.ErrorIs(t, p.Validate(DefaultFee), ErrInvalidPlan)
		})
	}

	var nilPlan *Plan
	assert.ErrorIs(t, nilPlan.Validate(DefaultFee), ErrNilParam)
}

func TestRunRequiresDependencies(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background(), DeliveryPlan())
	assert.ErrorIs(t, err, ErrNilParam)
}

func TestLockOffsetBelowMinimum(t *testing.T) {
	r, chain := newRunner(t)
	r.LockOffset = 1
	_, err := r.Run(context.Background(), GuaranteePlan())
	assert.ErrorIs(t, err, ErrInvalidPlan)

	// Nothing was funded.
	tip, err := chain.GetBlockCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, tip)

	r.LockOffset = MinLockOffset
	report, err := r.Run(context.Background(), GuaranteePlan())
	require.NoError(t, err)
	assert.True(t, report.Passed)
}

func TestInvalidBranchForKind(t *testing.T) {
	r, _ := newRunner(t)
	plan := TimelockPlan()
	plan.Attempts[0].Branch = contract.BranchB
	_, err := r.Run(context.Background(), plan)
	assert.ErrorIs(t, err, ErrInvalidPlan)
	assert.ErrorIs(t, err, contract.ErrInvalidBranch)
}

func TestOutcomeSatisfies(t *testing.T) {
	assert.True(t, OutcomeSignatureError.satisfies(OutcomeRejected))
	assert.True(t, OutcomeSignatureError.satisfies(OutcomeSignatureError))
	assert.False(t, OutcomeSignatureError.satisfies(OutcomeAccepted))
	assert.False(t, OutcomeLocked.satisfies(OutcomeSpent))
	assert.Equal(t, "signature-error", OutcomeSignatureError.String())
}

func TestCompile(t *testing.T) {
	provider, err := keys.NewEphemeralProvider(testParams)
	require.NoError(t, err)

	tests := []struct {
		kind     contract.Kind
		branches int
		names    []string
	}{
		{contract.KindTimelock, 1, nil},
		{contract.KindGuarantee, 2, []string{preimage.NameM}},
		{contract.KindDelivery, 2, []string{preimage.NameL, preimage.NameM}},
	}
	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			reg := preimage.NewRegistry()
			c, err := Compile(tc.kind, 120, provider, reg)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, c.Kind)
			assert.Len(t, c.Branches, tc.branches)
			if tc.names == nil {
				assert.Empty(t, reg.Names())
			} else {
				assert.Equal(t, tc.names, reg.Names())
			}

			parsed, err := contract.Parse(c.RedeemScript, testParams)
			require.NoError(t, err)
			assert.Equal(t, c.EncodedAddress(), parsed.EncodedAddress())
		})
	}

	_, err = Compile(contract.KindHTLC, 120, provider, preimage.NewRegistry())
	assert.ErrorIs(t, err, ErrInvalidPlan)
	_, err = Compile(contract.KindDelivery, 0, nil, preimage.NewRegistry())
	assert.ErrorIs(t, err, ErrNilParam)
}
