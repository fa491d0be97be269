package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Operation names as reported in receipts.
const (
	OpDeposit = "deposit"
	OpBorrow  = "borrow"
	OpRepay   = "repay"
	OpDefault = "handleDefault"
)

// Pool is a single-asset lending pool.
//
// Operations are serialized: one runs at a time, from validation through its
// last settlement call. The local mutation is committed before settlement is
// issued and is kept when settlement fails. State readers never wait on
// settlement.
type Pool struct {
	params  Params
	settler Settler
	logger  *zap.Logger

	opMu sync.Mutex

	mu       sync.RWMutex
	state    State
	poisoned error
}

// New builds a pool at the genesis state.
func New(params Params, settler Settler, logger *zap.Logger) (*Pool, error) {
	return NewWithState(params, GenesisState(), settler, logger)
}

// NewWithState builds a pool from an existing state, which must satisfy the
// constant-product invariant.
func NewWithState(params Params, state State, settler Settler, logger *zap.Logger) (*Pool, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if settler == nil {
		return nil, fmt.Errorf("settler is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := checkGenesis(state, params.InvariantTolerance); err != nil {
		return nil, err
	}

	return &Pool{
		params:  params,
		settler: settler,
		logger:  logger,
		state:   state,
	}, nil
}

// State returns a copy of the current state.
func (p *Pool) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Params returns the pool parameterization.
func (p *Pool) Params() Params {
	return p.params
}

// Err returns the invariant violation that halted the pool, if any.
func (p *Pool) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.poisoned
}

// Deposit credits lender principal to the pool.
func (p *Pool) Deposit(ctx context.Context, amount decimal.Decimal) (Receipt, error) {
	return p.run(ctx, OpDeposit, func(s State) (State, []Request, error) {
		return applyDeposit(s, p.params, amount)
	}, func(s State) error {
		return checkFloor(s, p.params.InvariantTolerance)
	})
}

// Borrow originates one fixed-size loan.
func (p *Pool) Borrow(ctx context.Context) (Receipt, error) {
	return p.run(ctx, OpBorrow, func(s State) (State, []Request, error) {
		return applyBorrow(s, p.params)
	}, nil)
}

// Repay accepts one loan installment.
func (p *Pool) Repay(ctx context.Context, payment decimal.Decimal) (Receipt, error) {
	return p.run(ctx, OpRepay, func(s State) (State, []Request, error) {
		return applyRepay(s, p.params, payment)
	}, nil)
}

// HandleDefault compensates one defaulted loan from the loss reserve.
func (p *Pool) HandleDefault(ctx context.Context) (Receipt, error) {
	return p.run(ctx, OpDefault, func(s State) (State, []Request, error) {
		return applyDefault(s, p.params)
	}, nil)
}

type transitionFunc func(State) (State, []Request, error)

func (p *Pool) run(ctx context.Context, op string, apply transitionFunc, check func(State) error) (Receipt, error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	next, reqs, err := p.commit(op, apply, check)
	if err != nil {
		return Receipt{Op: op, State: next}, err
	}

	outcomes, err := p.settle(ctx, reqs)
	receipt := Receipt{Op: op, State: next, Settlements: outcomes}
	if err != nil {
		p.logger.Warn("settlement failed",
			zap.String("op", op),
			zap.Uint64("seq", next.Seq),
			zap.Error(err),
		)
		return receipt, err
	}

	p.logger.Debug("pool operation",
		zap.String("op", op),
		zap.Uint64("seq", next.Seq),
		zap.String("liquidity", next.Liquidity.String()),
		zap.String("loan_tokens", next.LoanTokens.String()),
		zap.String("loss_reserve", next.LossReserve.String()),
		zap.String("total_deposits", next.TotalDeposits.String()),
	)
	return receipt, nil
}

// commit applies a transition under the state lock. Validation failures leave
// the state untouched; an invariant failure keeps the mutation and halts the
// pool.
func (p *Pool) commit(op string, apply transitionFunc, check func(State) error) (State, []Request, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.poisoned != nil {
		return p.state, nil, fmt.Errorf("pool halted: %w", p.poisoned)
	}

	next, reqs, err := apply(p.state)
	if err != nil {
		return p.state, nil, err
	}
	next.Seq = p.state.Seq + 1

	if check != nil {
		if err := check(next); err != nil {
			p.state = next
			p.poisoned = err
			p.logger.Error("pool halted", zap.String("op", op), zap.Uint64("seq", next.Seq), zap.Error(err))
			return next, nil, err
		}
	}

	p.state = next
	for i := range reqs {
		reqs[i].Seq = next.Seq
		reqs[i].State = next
	}
	return next, reqs, nil
}

func (p *Pool) settle(ctx context.Context, reqs []Request) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(reqs))
	var failed []string
	var causes []error
	for _, req := range reqs {
		err := p.settler.Settle(ctx, req)
		outcomes = append(outcomes, Outcome{Request: req, Err: err})
		if err != nil {
			failed = append(failed, req.Tag)
			causes = append(causes, err)
		}
	}
	if len(causes) == 0 {
		return outcomes, nil
	}
	return outcomes, &SettlementError{Tags: failed, Cause: errors.Join(causes...)}
}
