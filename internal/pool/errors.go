package pool

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAmount           = errors.New("pool: deposit amount out of range")
	ErrInvalidPayment          = errors.New("pool: invalid installment payment")
	ErrInsufficientLiquidity   = errors.New("pool: insufficient liquidity")
	ErrInsufficientLossReserve = errors.New("pool: insufficient loss reserve")
	ErrInvariantViolation      = errors.New("pool: constant-product invariant violated")
	ErrSettlementFailed        = errors.New("pool: settlement failed")
)

// SettlementError reports which settlement requests of an operation failed.
// The local mutation it follows has already been applied.
type SettlementError struct {
	Tags  []string
	Cause error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrSettlementFailed, strings.Join(e.Tags, ","), e.Cause)
}

func (e *SettlementError) Unwrap() []error {
	return []error{ErrSettlementFailed, e.Cause}
}
