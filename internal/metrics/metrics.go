package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"dustPool/internal/auth"
	"dustPool/internal/pool"
)

// Operation results.
const (
	ResultOK               = "ok"
	ResultRejected         = "rejected"
	ResultUnauthorized     = "unauthorized"
	ResultSettlementFailed = "settlement_failed"
	ResultHalted           = "halted"
)

type PoolMetrics struct {
	operations         *prometheus.CounterVec
	settlementFailures *prometheus.CounterVec
	liquidity          prometheus.Gauge
	loanTokens         prometheus.Gauge
	lossReserve        prometheus.Gauge
	totalDeposits      prometheus.Gauge
	seq                prometheus.Gauge
}

// New registers the pool collectors with reg.
func New(reg prometheus.Registerer) (*PoolMetrics, error) {
	m := &PoolMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dustpool_operations_total",
			Help: "Pool operations by name and result.",
		}, []string{"op", "result"}),
		settlementFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dustpool_settlement_failures_total",
			Help: "Failed settlement requests by tag.",
		}, []string{"tag"}),
		liquidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dustpool_liquidity",
			Help: "Lendable funds held by the pool.",
		}),
		loanTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dustpool_loan_tokens",
			Help: "Constant-product counterpart to liquidity.",
		}),
		lossReserve: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dustpool_loss_reserve",
			Help: "Funds set aside to cover defaults.",
		}),
		totalDeposits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dustpool_total_deposits",
			Help: "Cumulative lender principal.",
		}),
		seq: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dustpool_state_seq",
			Help: "Sequence number of the last committed mutation.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.operations, m.settlementFailures, m.liquidity, m.loanTokens,
		m.lossReserve, m.totalDeposits, m.seq,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observe records the outcome of one pool operation.
func (m *PoolMetrics) Observe(receipt pool.Receipt, err error) {
	if m == nil {
		return
	}
	op := receipt.Op
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op, Classify(err)).Inc()
	for _, o := range receipt.Settlements {
		if o.Err != nil {
			m.settlementFailures.WithLabelValues(o.Request.Tag).Inc()
		}
	}
	m.SetState(receipt.State)
}

// SetState publishes s on the state gauges.
func (m *PoolMetrics) SetState(s pool.State) {
	if m == nil {
		return
	}
	m.liquidity.Set(s.Liquidity.InexactFloat64())
	m.loanTokens.Set(s.LoanTokens.InexactFloat64())
	m.lossReserve.Set(s.LossReserve.InexactFloat64())
	m.totalDeposits.Set(s.TotalDeposits.InexactFloat64())
	m.seq.Set(float64(s.Seq))
}

// Classify maps an operation error to a result label.
func Classify(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, pool.ErrInvariantViolation):
		return ResultHalted
	case errors.Is(err, pool.ErrSettlementFailed):
		return ResultSettlementFailed
	case errors.Is(err, auth.ErrAuthorizationRequired):
		return ResultUnauthorized
	default:
		return ResultRejected
	}
}
