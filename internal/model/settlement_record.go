package model

import "github.com/shopspring/decimal"

// Settlement statuses.
const (
	StatusSettled  = "settled"
	StatusFailed   = "failed"
	StatusRecorded = "recorded"
)

// SettlementRecord is one settlement request with its outcome and the pool
// state it settles. Seq restarts with every pool, so records are keyed by
// (Instance, Seq, Tag).
type SettlementRecord struct {
	Instance      string                     `json:"instance"`
	Seq           uint64                     `json:"seq"`
	Tag           string                     `json:"tag"`
	Payload       map[string]decimal.Decimal `json:"payload"`
	Status        string                     `json:"status"`
	Error         string                     `json:"error,omitempty"`
	Liquidity     decimal.Decimal            `json:"liquidity"`
	LoanTokens    decimal.Decimal            `json:"loan_tokens"`
	LossReserve   decimal.Decimal            `json:"loss_reserve"`
	TotalDeposits decimal.Decimal            `json:"total_deposits"`
	RecordedAt    string                     `json:"recorded_at"`
}
