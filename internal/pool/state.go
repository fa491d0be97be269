package pool

import "github.com/shopspring/decimal"

// State is the pool's balance sheet.
type State struct {
	Liquidity     decimal.Decimal `json:"liquidity"`
	LoanTokens    decimal.Decimal `json:"loan_tokens"`
	K             decimal.Decimal `json:"k"`
	LossReserve   decimal.Decimal `json:"loss_reserve"`
	TotalDeposits decimal.Decimal `json:"total_deposits"`
	// Seq counts committed mutations; settlement requests carry the Seq of
	// the state they settle.
	Seq uint64 `json:"seq"`
}

// GenesisState returns the state every pool starts from.
func GenesisState() State {
	return State{
		Liquidity:     decimal.NewFromInt(1000),
		LoanTokens:    decimal.NewFromInt(1),
		K:             decimal.NewFromInt(1000),
		LossReserve:   decimal.Zero,
		TotalDeposits: decimal.NewFromInt(1000),
	}
}

// Product returns liquidity * loanTokens.
func (s State) Product() decimal.Decimal {
	return s.Liquidity.Mul(s.LoanTokens)
}

// rebalance recomputes loanTokens from the constant product.
func (s *State) rebalance() {
	s.LoanTokens = s.K.Div(s.Liquidity)
}
