package model

import (
	"github.com/shopspring/decimal"

	"dustPool/internal/pool"
)

// Operation is one scripted pool operation.
type Operation struct {
	Op       string          `json:"op"`
	Amount   decimal.Decimal `json:"amount,omitempty"`
	Identity string          `json:"identity,omitempty"`
	Tier     *int            `json:"tier,omitempty"`
}

// OperationResult reports the outcome of one operation.
type OperationResult struct {
	Line          int                 `json:"line,omitempty"`
	Op            string              `json:"op"`
	Seq           uint64              `json:"seq"`
	Liquidity     decimal.Decimal     `json:"liquidity"`
	LoanTokens    decimal.Decimal     `json:"loan_tokens"`
	LossReserve   decimal.Decimal     `json:"loss_reserve"`
	TotalDeposits decimal.Decimal     `json:"total_deposits"`
	Settlements   []SettlementOutcome `json:"settlements,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// SettlementOutcome is the per-request part of an OperationResult.
type SettlementOutcome struct {
	Tag   string `json:"tag"`
	Error string `json:"error,omitempty"`
}

// NewOperationResult flattens a pool receipt and its error.
func NewOperationResult(line int, receipt pool.Receipt, err error) OperationResult {
	res := OperationResult{
		Line:          line,
		Op:            receipt.Op,
		Seq:           receipt.State.Seq,
		Liquidity:     receipt.State.Liquidity,
		LoanTokens:    receipt.State.LoanTokens,
		LossReserve:   receipt.State.LossReserve,
		TotalDeposits: receipt.State.TotalDeposits,
	}
	for _, o := range receipt.Settlements {
		outcome := SettlementOutcome{Tag: o.Request.Tag}
		if o.Err != nil {
			outcome.Error = o.Err.Error()
		}
		res.Settlements = append(res.Settlements, outcome)
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
