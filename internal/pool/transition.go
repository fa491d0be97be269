package pool

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// The functions below are pure: they validate, compute the next state and
// the settlement requests for it, and never touch the settler.

func applyDeposit(s State, p Params, amount decimal.Decimal) (State, []Request, error) {
	if amount.LessThan(p.MinDeposit) || amount.GreaterThan(p.MaxDeposit) {
		return s, nil, fmt.Errorf("%w: %s not in [%s, %s]", ErrInvalidAmount, amount, p.MinDeposit, p.MaxDeposit)
	}

	s.Liquidity = s.Liquidity.Add(amount)
	s.TotalDeposits = s.TotalDeposits.Add(amount)

	return s, []Request{
		{Tag: TagDeposit, Payload: map[string]decimal.Decimal{"amount": amount}},
	}, nil
}

func applyBorrow(s State, p Params) (State, []Request, error) {
	fee := p.Fee()
	draw := p.LoanAmount
	if p.DeductFee {
		draw = draw.Add(fee)
	}
	// A full drain would leave loanTokens undefined (k / 0).
	if s.Liquidity.LessThanOrEqual(draw) {
		return s, nil, fmt.Errorf("%w: have %s, liquidity must strictly exceed %s", ErrInsufficientLiquidity, s.Liquidity, draw)
	}

	s.Liquidity = s.Liquidity.Sub(draw)
	s.rebalance()
	s.LossReserve = s.LossReserve.Add(p.ReserveContribution)

	return s, []Request{
		{Tag: TagBorrow, Payload: map[string]decimal.Decimal{
			"amount":               p.LoanAmount,
			"fee":                  fee,
			"lossPoolContribution": p.ReserveContribution,
		}},
	}, nil
}

func applyRepay(s State, p Params, payment decimal.Decimal) (State, []Request, error) {
	if !payment.Equal(p.InstallmentSize) {
		return s, nil, fmt.Errorf("%w: got %s, want %s", ErrInvalidPayment, payment, p.InstallmentSize)
	}

	s.Liquidity = s.Liquidity.Add(payment)
	s.rebalance()

	// Interest is embedded in the installment; the share is informational.
	interest := payment.Mul(p.InterestRate)
	share := interest.Div(s.TotalDeposits)

	return s, []Request{
		{Tag: TagDistributeInterest, Payload: map[string]decimal.Decimal{"amount": interest, "share": share}},
		{Tag: TagRepay, Payload: map[string]decimal.Decimal{"amount": payment}},
	}, nil
}

func applyDefault(s State, p Params) (State, []Request, error) {
	if s.LossReserve.LessThan(p.DefaultSeverity) {
		return s, nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientLossReserve, s.LossReserve, p.DefaultSeverity)
	}

	s.LossReserve = s.LossReserve.Sub(p.DefaultSeverity)

	return s, []Request{
		{Tag: TagCompensateDefault, Payload: map[string]decimal.Decimal{"amount": p.DefaultSeverity}},
	}, nil
}
