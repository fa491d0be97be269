package pool

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// checkGenesis requires liquidity * loanTokens == k within tol.
func checkGenesis(s State, tol decimal.Decimal) error {
	if err := checkShape(s); err != nil {
		return err
	}
	if s.Product().Sub(s.K).Abs().GreaterThan(tol) {
		return fmt.Errorf("%w: %s * %s != %s", ErrInvariantViolation, s.Liquidity, s.LoanTokens, s.K)
	}
	return nil
}

// checkFloor requires liquidity * loanTokens >= k within tol. Deposits add
// liquidity without moving loanTokens, so the product may only grow.
func checkFloor(s State, tol decimal.Decimal) error {
	if err := checkShape(s); err != nil {
		return err
	}
	if s.Product().Add(tol).LessThan(s.K) {
		return fmt.Errorf("%w: %s * %s < %s", ErrInvariantViolation, s.Liquidity, s.LoanTokens, s.K)
	}
	return nil
}

func checkShape(s State) error {
	if !s.K.IsPositive() {
		return fmt.Errorf("%w: k must be positive, got %s", ErrInvariantViolation, s.K)
	}
	if !s.Liquidity.IsPositive() {
		return fmt.Errorf("%w: liquidity must be positive, got %s", ErrInvariantViolation, s.Liquidity)
	}
	if !s.LoanTokens.IsPositive() {
		return fmt.Errorf("%w: loan tokens must be positive, got %s", ErrInvariantViolation, s.LoanTokens)
	}
	return nil
}
