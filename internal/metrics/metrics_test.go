package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"dustPool/internal/auth"
	"dustPool/internal/pool"
)

func TestObserveCountsOperationsAndState(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	failing := pool.SettlerFunc(func(_ context.Context, req pool.Request) error {
		if req.Tag == pool.TagDistributeInterest {
			return errors.New("ledger down")
		}
		return nil
	})
	p, err := pool.New(pool.DefaultParams(), failing, nil)
	require.NoError(t, err)

	receipt, err := p.Borrow(context.Background())
	m.Observe(receipt, err)
	receipt, err = p.Repay(context.Background(), decimal.NewFromInt(10))
	m.Observe(receipt, err)
	receipt, err = p.Deposit(context.Background(), decimal.NewFromInt(5))
	m.Observe(receipt, err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(pool.OpBorrow, ResultOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(pool.OpRepay, ResultSettlementFailed)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(pool.OpDeposit, ResultRejected)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.settlementFailures.WithLabelValues(pool.TagDistributeInterest)))
	require.Equal(t, 0.0, testutil.ToFloat64(m.settlementFailures.WithLabelValues(pool.TagRepay)))

	require.Equal(t, 910.0, testutil.ToFloat64(m.liquidity))
	require.Equal(t, 1.0, testutil.ToFloat64(m.lossReserve))
	require.Equal(t, 2.0, testutil.ToFloat64(m.seq))
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ResultOK},
		{pool.ErrInsufficientLiquidity, ResultRejected},
		{fmt.Errorf("pool halted: %w", pool.ErrInvariantViolation), ResultHalted},
		{&pool.SettlementError{Tags: []string{pool.TagBorrow}, Cause: errors.New("x")}, ResultSettlementFailed},
		{fmt.Errorf("%w: no active session", auth.ErrAuthorizationRequired), ResultUnauthorized},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Classify(tc.err), "err=%v", tc.err)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *PoolMetrics
	m.Observe(pool.Receipt{}, nil)
	m.SetState(pool.GenesisState())
}
