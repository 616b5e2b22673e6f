package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/trade-journal/pkg/errors"
)

// Direction is the side of a position. It is fixed when the trade is
// created and never changes; reversing requires a full close and a new trade.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Sign returns +1 for long and -1 for short. Used to flip P&L math.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}

	return 1
}

// EntrySide returns the fill side that adds to a position of this direction.
func (d Direction) EntrySide() FillSide {
	if d == DirectionShort {
		return FillSideSell
	}

	return FillSideBuy
}

// TradeStatus is the lifecycle state of a trade.
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "OPEN"
	TradeStatusClosed TradeStatus = "CLOSED"
)

// Trade is one position lifecycle on an instrument, from the first opening
// fill to the fill that brings the open quantity back to zero. A closed
// trade is immutable; the next fill on the same instrument starts a new one.
type Trade struct {
	ID         string      `json:"id" yaml:"id"`
	AccountID  string      `json:"account_id" yaml:"account_id"`
	Instrument string      `json:"instrument" yaml:"instrument"`
	AssetClass string      `json:"asset_class" yaml:"asset_class"`
	Exchange   string      `json:"exchange" yaml:"exchange"`
	Direction  Direction   `json:"direction" yaml:"direction"`
	Status     TradeStatus `json:"status" yaml:"status"`

	OpenedAt time.Time                  `json:"opened_at" yaml:"opened_at"`
	ClosedAt optional.Option[time.Time] `json:"closed_at" yaml:"closed_at"`

	// OpenQuantity is the currently held quantity. Never negative.
	OpenQuantity float64 `json:"open_quantity" yaml:"open_quantity"`
	// AverageOpenPrice is the quantity-weighted mean of entry fills only.
	// Exit fills never alter it.
	AverageOpenPrice float64 `json:"average_open_price" yaml:"average_open_price"`
	// MarketPrice is the last mark used for unrealized P&L. Display cache
	// only; never the source of truth.
	MarketPrice optional.Option[float64] `json:"market_price" yaml:"market_price"`

	// RealizedGrossPnl accumulates the gross P&L of every closing fill.
	RealizedGrossPnl float64 `json:"realized_gross_pnl" yaml:"realized_gross_pnl"`
	// TotalFees is the sum of fees from all fills on this trade, entries
	// and exits alike. Net P&L subtracts the whole-trade fee sum; there is
	// no per-lot fee attribution.
	TotalFees float64 `json:"total_fees" yaml:"total_fees"`

	// InitialRisk is the user-entered planned risk for R-multiple analytics.
	InitialRisk optional.Option[float64] `json:"initial_risk" yaml:"initial_risk"`

	Strategy string `json:"strategy" yaml:"strategy"`
	Notes    string `json:"notes" yaml:"notes"`
}

// RealizedNetPnl returns the realized gross P&L minus the whole-trade fee sum.
func (t *Trade) RealizedNetPnl() float64 {
	net, _ := decimal.NewFromFloat(t.RealizedGrossPnl).
		Sub(decimal.NewFromFloat(t.TotalFees)).
		Float64()

	return net
}

// Snapshot returns the position view of this trade used by the classifier.
func (t *Trade) Snapshot() PositionSnapshot {
	return PositionSnapshot{
		TradeID:      t.ID,
		Direction:    t.Direction,
		OpenQuantity: t.OpenQuantity,
		HasPosition:  t.Status == TradeStatusOpen && t.OpenQuantity > 0,
	}
}

// PositionSnapshot is the minimal position state the classifier needs.
// A zero snapshot means "no position".
type PositionSnapshot struct {
	TradeID      string    `json:"trade_id" yaml:"trade_id"`
	Direction    Direction `json:"direction" yaml:"direction"`
	OpenQuantity float64   `json:"open_quantity" yaml:"open_quantity"`
	HasPosition  bool      `json:"has_position" yaml:"has_position"`
}

// TradeContext identifies where a fill belongs: the account and instrument
// whose position it affects, plus the metadata stamped onto a newly opened
// trade.
type TradeContext struct {
	AccountID  string `json:"account_id" yaml:"account_id" validate:"required"`
	Instrument string `json:"instrument" yaml:"instrument" validate:"required"`
	AssetClass string `json:"asset_class" yaml:"asset_class"`
	Exchange   string `json:"exchange" yaml:"exchange"`
	Strategy   string `json:"strategy" yaml:"strategy"`
}

// Validate validates the TradeContext struct.
func (c *TradeContext) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid trade context", err)
	}

	return nil
}

// TradeFilter is used to filter trades when querying trade history.
type TradeFilter struct {
	// AccountID filters trades by account (empty string means no filter)
	AccountID string `json:"account_id" yaml:"account_id"`
	// Instrument filters trades by instrument (empty string means no filter)
	Instrument string `json:"instrument" yaml:"instrument"`
	// Status filters trades by lifecycle state (empty string means no filter)
	Status TradeStatus `json:"status" yaml:"status"`
	// StartTime filters trades opened after this time (zero time means no filter)
	StartTime time.Time `json:"start_time" yaml:"start_time"`
	// EndTime filters trades opened before this time (zero time means no filter)
	EndTime time.Time `json:"end_time" yaml:"end_time"`
	// Limit limits the number of trades returned (0 means no limit)
	Limit int `json:"limit" yaml:"limit"`
}
