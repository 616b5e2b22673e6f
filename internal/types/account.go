package types

import "time"

// Account represents a single trading account. The account balance is never
// stored on the account itself; it is always derived from the ledger.
type Account struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	// Archived accounts are hidden from listings but keep their history.
	Archived bool `json:"archived" yaml:"archived"`
	// Deleted is a soft-delete flag; deleted accounts reject new entries.
	Deleted   bool      `json:"deleted" yaml:"deleted"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// AccountInfo is the derived view of an account returned to callers.
type AccountInfo struct {
	Account Account `json:"account" yaml:"account"`
	// Balance is the sum of all ledger entry amounts for this account.
	Balance float64 `json:"balance" yaml:"balance"`
	// RealizedPnL is the total realized profit/loss from closed trades.
	RealizedPnL float64 `json:"realized_pnl" yaml:"realized_pnl"`
	// TotalFees is the total fees paid across closed trades.
	TotalFees float64 `json:"total_fees" yaml:"total_fees"`
}
