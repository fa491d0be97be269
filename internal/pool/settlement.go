package pool

import (
	"context"

	"github.com/shopspring/decimal"
)

// Settlement operation tags.
const (
	TagDeposit            = "deposit"
	TagBorrow             = "borrow"
	TagRepay              = "repay"
	TagDistributeInterest = "distributeInterest"
	TagCompensateDefault  = "compensateDefault"
)

// Request is one mutation to be committed to the external ledger.
type Request struct {
	Seq     uint64                     `json:"seq"`
	Tag     string                     `json:"tag"`
	Payload map[string]decimal.Decimal `json:"payload"`
	// State is the pool state right after the mutation being settled.
	State State `json:"state"`
}

// Settler commits pool mutations to an external ledger.
type Settler interface {
	Settle(ctx context.Context, req Request) error
}

// SettlerFunc adapts a function to Settler.
type SettlerFunc func(ctx context.Context, req Request) error

func (f SettlerFunc) Settle(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// Outcome is the result of one settlement request.
type Outcome struct {
	Request Request
	Err     error
}

// Receipt pairs the state an operation produced with its settlement outcomes.
type Receipt struct {
	Op          string
	State       State
	Settlements []Outcome
}

// Settled reports whether every settlement request succeeded.
func (r Receipt) Settled() bool {
	for _, o := range r.Settlements {
		if o.Err != nil {
			return false
		}
	}
	return len(r.Settlements) > 0
}
