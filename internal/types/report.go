package types

import "github.com/moznion/go-optional"

// TradeUpdate is the result of applying one fill through the tracker.
type TradeUpdate struct {
	// Trade is the post-transition trade state.
	Trade Trade `json:"trade" yaml:"trade"`
	// Fill is the recorded fill, with its classified action.
	Fill Fill `json:"fill" yaml:"fill"`
	// RealizedPnl is the gross P&L realized by this fill. None for entries.
	RealizedPnl optional.Option[float64] `json:"realized_pnl" yaml:"realized_pnl"`
	// Entries are the ledger entries emitted as a side effect of the fill.
	Entries []LedgerEntry `json:"entries" yaml:"entries"`
	// IsNewTrade is true when the fill opened a brand-new trade.
	IsNewTrade bool `json:"is_new_trade" yaml:"is_new_trade"`
}

// MarkResult is the outcome of a mark-to-market update.
type MarkResult struct {
	UnrealizedPnl    float64 `json:"unrealized_pnl" yaml:"unrealized_pnl"`
	OpenQuantity     float64 `json:"open_quantity" yaml:"open_quantity"`
	AverageOpenPrice float64 `json:"average_open_price" yaml:"average_open_price"`
}

// RowError records a single failed row during bulk ingestion.
type RowError struct {
	// Row is the zero-based index of the row in the submitted batch.
	Row     int    `json:"row" yaml:"row"`
	Message string `json:"message" yaml:"message"`
}

// ImportReport summarizes a bulk ingestion run. Partial failure is a normal
// outcome, not an error: failed rows are listed and the rest are committed.
type ImportReport struct {
	Successful int        `json:"successful" yaml:"successful"`
	Failed     int        `json:"failed" yaml:"failed"`
	Skipped    int        `json:"skipped" yaml:"skipped"`
	Errors     []RowError `json:"errors" yaml:"errors"`
}
