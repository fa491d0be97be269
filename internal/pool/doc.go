// Package pool implements the single-asset lending pool state machine.
//
// The pool holds tDust liquidity under a constant-product relation
// liquidity * loanTokens = k. Lenders deposit, borrowers draw fixed-size
// loans and repay them in fixed installments, and a loss reserve funded by
// each origination compensates defaults. Every committed mutation is handed
// to a Settler for recording on an external ledger.
package pool
