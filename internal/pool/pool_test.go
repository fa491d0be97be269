package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSettler struct {
	mu       sync.Mutex
	requests []Request
	failTags map[string]error
}

func (r *recordingSettler) Settle(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if err, ok := r.failTags[req.Tag]; ok {
		return err
	}
	return nil
}

func (r *recordingSettler) tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.requests))
	for _, req := range r.requests {
		out = append(out, req.Tag)
	}
	return out
}

func newTestPool(t *testing.T, params Params) (*Pool, *recordingSettler) {
	t.Helper()
	settler := &recordingSettler{}
	p, err := New(params, settler, zap.NewNop())
	require.NoError(t, err)
	return p, settler
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func requireApprox(t *testing.T, want float64, got decimal.Decimal) {
	t.Helper()
	f, _ := got.Float64()
	require.InDelta(t, want, f, 1e-9)
}

func requireSameBalances(t *testing.T, want, got State) {
	t.Helper()
	requireDecimal(t, want.Liquidity.String(), got.Liquidity)
	requireDecimal(t, want.LoanTokens.String(), got.LoanTokens)
	requireDecimal(t, want.K.String(), got.K)
	requireDecimal(t, want.LossReserve.String(), got.LossReserve)
	requireDecimal(t, want.TotalDeposits.String(), got.TotalDeposits)
	require.Equal(t, want.Seq, got.Seq)
}

func TestGenesisSatisfiesInvariant(t *testing.T) {
	p, _ := newTestPool(t, DefaultParams())
	s := p.State()

	requireDecimal(t, "1000", s.Product())
	requireDecimal(t, "1000", s.Liquidity)
	requireDecimal(t, "1", s.LoanTokens)
	requireDecimal(t, "0", s.LossReserve)
	requireDecimal(t, "1000", s.TotalDeposits)
}

func TestNewWithStateRejectsBrokenInvariant(t *testing.T) {
	s := GenesisState()
	s.LoanTokens = dec("2")

	_, err := NewWithState(DefaultParams(), s, &recordingSettler{}, nil)
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestNewRejectsNilSettler(t *testing.T) {
	_, err := New(DefaultParams(), nil, nil)
	require.Error(t, err)
}

func TestDepositWithinBounds(t *testing.T) {
	for _, amount := range []string{"100", "250", "999.5", "1000"} {
		t.Run(amount, func(t *testing.T) {
			p, settler := newTestPool(t, DefaultParams())
			before := p.State()

			receipt, err := p.Deposit(context.Background(), dec(amount))
			require.NoError(t, err)
			require.True(t, receipt.Settled())

			after := p.State()
			requireDecimal(t, before.Liquidity.Add(dec(amount)).String(), after.Liquidity)
			requireDecimal(t, before.TotalDeposits.Add(dec(amount)).String(), after.TotalDeposits)
			requireDecimal(t, before.LoanTokens.String(), after.LoanTokens)
			require.NoError(t, checkFloor(after, DefaultParams().InvariantTolerance))
			require.NoError(t, p.Err())

			require.Equal(t, []string{TagDeposit}, settler.tags())
			requireDecimal(t, amount, settler.requests[0].Payload["amount"])
			require.Equal(t, uint64(1), settler.requests[0].Seq)
		})
	}
}

func TestDepositOutOfBoundsLeavesStateUnchanged(t *testing.T) {
	for _, amount := range []string{"50", "1500", "99.99", "1000.01", "-100"} {
		t.Run(amount, func(t *testing.T) {
			p, settler := newTestPool(t, DefaultParams())
			before := p.State()

			receipt, err := p.Deposit(context.Background(), dec(amount))
			require.ErrorIs(t, err, ErrInvalidAmount)
			requireSameBalances(t, before, receipt.State)
			requireSameBalances(t, before, p.State())
			require.Empty(t, settler.tags())
		})
	}
}

func TestSequentialDepositsAreAdditive(t *testing.T) {
	ctx := context.Background()
	split, _ := newTestPool(t, DefaultParams())
	_, err := split.Deposit(ctx, dec("200"))
	require.NoError(t, err)
	_, err = split.Deposit(ctx, dec("300"))
	require.NoError(t, err)

	// A single 500 deposit stands in for the conceptual combined deposit.
	single, _ := newTestPool(t, DefaultParams())
	_, err = single.Deposit(ctx, dec("500"))
	require.NoError(t, err)

	requireDecimal(t, single.State().Liquidity.String(), split.State().Liquidity)
	requireDecimal(t, single.State().TotalDeposits.String(), split.State().TotalDeposits)
	requireDecimal(t, "1500", split.State().Liquidity)
}

func TestBorrowFromGenesis(t *testing.T) {
	p, settler := newTestPool(t, DefaultParams())

	receipt, err := p.Borrow(context.Background())
	require.NoError(t, err)

	s := p.State()
	requireDecimal(t, "900", s.Liquidity)
	requireApprox(t, 1000.0/900.0, s.LoanTokens)
	requireDecimal(t, "1", s.LossReserve)
	requireDecimal(t, "1000", s.TotalDeposits)
	requireDecimal(t, "1000", s.K)
	requireSameBalances(t, s, receipt.State)

	require.Equal(t, []string{TagBorrow}, settler.tags())
	payload := settler.requests[0].Payload
	requireDecimal(t, "100", payload["amount"])
	requireDecimal(t, "2", payload["fee"])
	requireDecimal(t, "1", payload["lossPoolContribution"])
}

func TestBorrowWithFeeDeductedThenRepay(t *testing.T) {
	params := DefaultParams()
	params.DeductFee = true
	p, _ := newTestPool(t, params)
	ctx := context.Background()

	_, err := p.Borrow(ctx)
	require.NoError(t, err)
	s := p.State()
	requireDecimal(t, "898", s.Liquidity)
	requireApprox(t, 1000.0/898.0, s.LoanTokens)
	requireDecimal(t, "1", s.LossReserve)

	_, err = p.Repay(ctx, dec("10"))
	require.NoError(t, err)
	s = p.State()
	requireDecimal(t, "908", s.Liquidity)
	requireApprox(t, 1000.0/908.0, s.LoanTokens)
}

func TestRepayAfterBorrow(t *testing.T) {
	p, settler := newTestPool(t, DefaultParams())
	ctx := context.Background()

	_, err := p.Borrow(ctx)
	require.NoError(t, err)
	receipt, err := p.Repay(ctx, dec("10"))
	require.NoError(t, err)

	s := p.State()
	requireDecimal(t, "910", s.Liquidity)
	requireApprox(t, 1000.0/910.0, s.LoanTokens)
	requireDecimal(t, "1", s.LossReserve)
	requireDecimal(t, "1000", s.TotalDeposits)

	require.Equal(t, []string{TagBorrow, TagDistributeInterest, TagRepay}, settler.tags())
	require.Len(t, receipt.Settlements, 2)
	interest := settler.requests[1].Payload
	requireDecimal(t, "1", interest["amount"])
	requireDecimal(t, "0.001", interest["share"])
	requireDecimal(t, "10", settler.requests[2].Payload["amount"])
	require.Equal(t, settler.requests[1].Seq, settler.requests[2].Seq)
}

func TestRepayRejectsWrongInstallment(t *testing.T) {
	p, settler := newTestPool(t, DefaultParams())
	ctx := context.Background()
	_, err := p.Borrow(ctx)
	require.NoError(t, err)
	before := p.State()

	for _, payment := range []string{"7", "11", "0", "10.0001"} {
		_, err := p.Repay(ctx, dec(payment))
		require.ErrorIs(t, err, ErrInvalidPayment)
		requireSameBalances(t, before, p.State())
	}
	require.Equal(t, []string{TagBorrow}, settler.tags())
}

func TestHandleDefaultNeedsFundedReserve(t *testing.T) {
	p, settler := newTestPool(t, DefaultParams())
	ctx := context.Background()
	_, err := p.Borrow(ctx)
	require.NoError(t, err)
	before := p.State()

	_, err = p.HandleDefault(ctx)
	require.ErrorIs(t, err, ErrInsufficientLossReserve)
	requireSameBalances(t, before, p.State())
	requireDecimal(t, "1", p.State().LossReserve)
	require.Equal(t, []string{TagBorrow}, settler.tags())
}

func TestHandleDefaultDrawsReserveOnly(t *testing.T) {
	s := GenesisState()
	s.LossReserve = dec("100")
	settler := &recordingSettler{}
	p, err := NewWithState(DefaultParams(), s, settler, nil)
	require.NoError(t, err)

	_, err = p.HandleDefault(context.Background())
	require.NoError(t, err)

	after := p.State()
	requireDecimal(t, "10", after.LossReserve)
	requireDecimal(t, "1000", after.Liquidity)
	requireDecimal(t, "1", after.LoanTokens)
	require.Equal(t, []string{TagCompensateDefault}, settler.tags())
	requireDecimal(t, "90", settler.requests[0].Payload["amount"])

	_, err = p.HandleDefault(context.Background())
	require.ErrorIs(t, err, ErrInsufficientLossReserve)
}

func TestBorrowInsufficientLiquidity(t *testing.T) {
	params := DefaultParams()
	params.LoanAmount = dec("300")
	p, settler := newTestPool(t, params)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.Borrow(ctx)
		require.NoError(t, err)
	}
	before := p.State()
	requireDecimal(t, "100", before.Liquidity)

	_, err := p.Borrow(ctx)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	requireSameBalances(t, before, p.State())
	require.Len(t, settler.tags(), 3)
}

func TestBorrowRefusesFullDrain(t *testing.T) {
	p, _ := newTestPool(t, DefaultParams())
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		_, err := p.Borrow(ctx)
		require.NoError(t, err)
	}
	requireDecimal(t, "100", p.State().Liquidity)

	_, err := p.Borrow(ctx)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	require.ErrorContains(t, err, "strictly exceed 100")
	requireDecimal(t, "100", p.State().Liquidity)
	requireDecimal(t, "9", p.State().LossReserve)
}

func TestSettlementFailureKeepsLocalMutation(t *testing.T) {
	cause := errors.New("ledger unreachable")
	settler := &recordingSettler{failTags: map[string]error{TagBorrow: cause}}
	p, err := New(DefaultParams(), settler, nil)
	require.NoError(t, err)

	receipt, err := p.Borrow(context.Background())
	require.ErrorIs(t, err, ErrSettlementFailed)
	require.ErrorIs(t, err, cause)
	require.False(t, receipt.Settled())

	var settleErr *SettlementError
	require.ErrorAs(t, err, &settleErr)
	require.Equal(t, []string{TagBorrow}, settleErr.Tags)

	requireDecimal(t, "900", receipt.State.Liquidity)
	requireDecimal(t, "900", p.State().Liquidity)
	require.NoError(t, p.Err())
}

func TestRepayAttemptsBothSettlements(t *testing.T) {
	cause := errors.New("interest sink down")
	settler := &recordingSettler{failTags: map[string]error{TagDistributeInterest: cause}}
	p, err := New(DefaultParams(), settler, nil)
	require.NoError(t, err)

	receipt, err := p.Repay(context.Background(), dec("10"))
	require.ErrorIs(t, err, ErrSettlementFailed)
	require.Equal(t, []string{TagDistributeInterest, TagRepay}, settler.tags())
	require.Error(t, receipt.Settlements[0].Err)
	require.NoError(t, receipt.Settlements[1].Err)
	requireDecimal(t, "1010", p.State().Liquidity)
}

func TestInvariantViolationHaltsPool(t *testing.T) {
	p, settler := newTestPool(t, DefaultParams())
	p.state.LoanTokens = dec("0.5")
	ctx := context.Background()

	receipt, err := p.Deposit(ctx, dec("100"))
	require.ErrorIs(t, err, ErrInvariantViolation)
	requireDecimal(t, "1100", receipt.State.Liquidity)
	requireDecimal(t, "1100", p.State().Liquidity)
	require.ErrorIs(t, p.Err(), ErrInvariantViolation)
	require.Empty(t, settler.tags())

	_, err = p.Borrow(ctx)
	require.ErrorIs(t, err, ErrInvariantViolation)
	_, err = p.Repay(ctx, dec("10"))
	require.ErrorIs(t, err, ErrInvariantViolation)
	requireDecimal(t, "1100", p.State().Liquidity)
	require.Empty(t, settler.tags())
}

func TestOperationsAreSerialized(t *testing.T) {
	var inflight, overlaps int32
	var mu sync.Mutex
	seqs := make(map[uint64]int)
	settler := SettlerFunc(func(_ context.Context, req Request) error {
		if atomic.AddInt32(&inflight, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		defer atomic.AddInt32(&inflight, -1)
		mu.Lock()
		seqs[req.Seq]++
		mu.Unlock()
		return nil
	})
	p, err := New(DefaultParams(), settler, nil)
	require.NoError(t, err)

	const workers = 20
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Deposit(context.Background(), dec("100"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Zero(t, atomic.LoadInt32(&overlaps))
	requireDecimal(t, "3000", p.State().Liquidity)
	require.Equal(t, uint64(workers), p.State().Seq)
	require.Len(t, seqs, workers)
}

func TestReadersSeeCommittedStateDuringSettlement(t *testing.T) {
	entered := make(chan Request)
	release := make(chan struct{})
	settler := SettlerFunc(func(_ context.Context, req Request) error {
		entered <- req
		<-release
		return nil
	})
	p, err := New(DefaultParams(), settler, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.Borrow(context.Background())
		done <- err
	}()

	req := <-entered
	s := p.State()
	require.Equal(t, req.Seq, s.Seq)
	requireDecimal(t, "900", s.Liquidity)

	close(release)
	require.NoError(t, <-done)
}
