package auth

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dustPool/internal/pool"
)

// Operator is the set of pool operations guarded by authorization.
type Operator interface {
	Deposit(ctx context.Context, amount decimal.Decimal) (pool.Receipt, error)
	Borrow(ctx context.Context) (pool.Receipt, error)
	Repay(ctx context.Context, payment decimal.Decimal) (pool.Receipt, error)
	HandleDefault(ctx context.Context) (pool.Receipt, error)
	State() pool.State
}

// Guard rejects pool operations from callers without a sufficient session.
// The check runs before the pool is touched.
type Guard struct {
	next   Operator
	logger *zap.Logger
}

func NewGuard(next Operator, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{next: next, logger: logger}
}

func (g *Guard) Deposit(ctx context.Context, amount decimal.Decimal) (pool.Receipt, error) {
	if err := g.authorize(ctx, pool.OpDeposit); err != nil {
		return pool.Receipt{Op: pool.OpDeposit, State: g.next.State()}, err
	}
	return g.next.Deposit(ctx, amount)
}

func (g *Guard) Borrow(ctx context.Context) (pool.Receipt, error) {
	if err := g.authorize(ctx, pool.OpBorrow); err != nil {
		return pool.Receipt{Op: pool.OpBorrow, State: g.next.State()}, err
	}
	return g.next.Borrow(ctx)
}

func (g *Guard) Repay(ctx context.Context, payment decimal.Decimal) (pool.Receipt, error) {
	if err := g.authorize(ctx, pool.OpRepay); err != nil {
		return pool.Receipt{Op: pool.OpRepay, State: g.next.State()}, err
	}
	return g.next.Repay(ctx, payment)
}

func (g *Guard) HandleDefault(ctx context.Context) (pool.Receipt, error) {
	if err := g.authorize(ctx, pool.OpDefault); err != nil {
		return pool.Receipt{Op: pool.OpDefault, State: g.next.State()}, err
	}
	return g.next.HandleDefault(ctx)
}

func (g *Guard) State() pool.State {
	return g.next.State()
}

func (g *Guard) authorize(ctx context.Context, op string) error {
	s, err := Authorize(ctx)
	if err != nil {
		g.logger.Warn("operation rejected", zap.String("op", op), zap.Error(err))
		return err
	}
	g.logger.Debug("operation authorized",
		zap.String("op", op),
		zap.String("identity", s.Identity),
		zap.Int("tier", s.Tier),
	)
	return nil
}
