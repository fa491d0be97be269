package pool

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Params holds the fixed parameterization of a pool.
type Params struct {
	LoanAmount          decimal.Decimal
	FeeRate             decimal.Decimal
	InterestRate        decimal.Decimal
	DefaultSeverity     decimal.Decimal
	ReserveContribution decimal.Decimal
	InstallmentSize     decimal.Decimal
	MinDeposit          decimal.Decimal
	MaxDeposit          decimal.Decimal

	// DeductFee withholds the origination fee from pool liquidity on borrow.
	// Off by default: the fee is reported to settlement only.
	DeductFee bool

	// InvariantTolerance bounds the rounding error accepted when comparing
	// liquidity*loanTokens against k.
	InvariantTolerance decimal.Decimal
}

// DefaultParams returns the reference parameterization.
func DefaultParams() Params {
	return Params{
		LoanAmount:          decimal.NewFromInt(100),
		FeeRate:             decimal.RequireFromString("0.02"),
		InterestRate:        decimal.RequireFromString("0.10"),
		DefaultSeverity:     decimal.NewFromInt(90),
		ReserveContribution: decimal.NewFromInt(1),
		InstallmentSize:     decimal.NewFromInt(10),
		MinDeposit:          decimal.NewFromInt(100),
		MaxDeposit:          decimal.NewFromInt(1000),
		InvariantTolerance:  decimal.New(1, -9),
	}
}

// Validate rejects parameterizations the state machine cannot run on.
func (p Params) Validate() error {
	if !p.LoanAmount.IsPositive() {
		return fmt.Errorf("loan amount must be positive")
	}
	if p.FeeRate.IsNegative() {
		return fmt.Errorf("fee rate must not be negative")
	}
	if p.InterestRate.IsNegative() {
		return fmt.Errorf("interest rate must not be negative")
	}
	if !p.DefaultSeverity.IsPositive() {
		return fmt.Errorf("default severity must be positive")
	}
	if p.ReserveContribution.IsNegative() {
		return fmt.Errorf("reserve contribution must not be negative")
	}
	if !p.InstallmentSize.IsPositive() {
		return fmt.Errorf("installment size must be positive")
	}
	if !p.MinDeposit.IsPositive() {
		return fmt.Errorf("min deposit must be positive")
	}
	if p.MaxDeposit.LessThan(p.MinDeposit) {
		return fmt.Errorf("max deposit must be >= min deposit")
	}
	if p.InvariantTolerance.IsNegative() {
		return fmt.Errorf("invariant tolerance must not be negative")
	}
	return nil
}

// Fee returns the origination fee for one loan.
func (p Params) Fee() decimal.Decimal {
	return p.LoanAmount.Mul(p.FeeRate)
}
