package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/trade-journal/pkg/errors"
)

// FillSide is the executed side of a fill.
type FillSide string

const (
	FillSideBuy  FillSide = "BUY"
	FillSideSell FillSide = "SELL"
)

// FillAction is the canonical classification of a fill against the current
// position. The position tracker handles every action explicitly; there is
// no fallthrough branch.
type FillAction string

const (
	ActionOpenLong          FillAction = "OPEN_LONG"
	ActionOpenShort         FillAction = "OPEN_SHORT"
	ActionAddToLong         FillAction = "ADD_TO_LONG"
	ActionAddToShort        FillAction = "ADD_TO_SHORT"
	ActionPartialCloseLong  FillAction = "PARTIAL_CLOSE_LONG"
	ActionPartialCloseShort FillAction = "PARTIAL_CLOSE_SHORT"
	ActionFullClose         FillAction = "FULL_CLOSE"
	// ActionLiquidation is a forced full close. Same math as FULL_CLOSE,
	// kept distinct as an audit tag.
	ActionLiquidation FillAction = "LIQUIDATION"
	// ActionRejectOverClose marks a closing fill whose quantity exceeds the
	// open quantity. The tracker refuses it without touching state.
	ActionRejectOverClose FillAction = "REJECT_OVER_CLOSE"
)

// Opens reports whether the action starts a new trade.
func (a FillAction) Opens() bool {
	return a == ActionOpenLong || a == ActionOpenShort
}

// Adds reports whether the action scales into an existing position.
func (a FillAction) Adds() bool {
	return a == ActionAddToLong || a == ActionAddToShort
}

// Closes reports whether the action realizes P&L on some quantity.
func (a FillAction) Closes() bool {
	switch a {
	case ActionPartialCloseLong, ActionPartialCloseShort, ActionFullClose, ActionLiquidation:
		return true
	default:
		return false
	}
}

// Terminal reports whether the action ends the trade lifecycle.
func (a FillAction) Terminal() bool {
	return a == ActionFullClose || a == ActionLiquidation
}

// ExecuteFill is an incoming execution to apply against a position.
type ExecuteFill struct {
	Side      FillSide  `json:"side" yaml:"side" validate:"required,oneof=BUY SELL"`
	Quantity  float64   `json:"quantity" yaml:"quantity" validate:"required,gt=0"`
	Price     float64   `json:"price" yaml:"price" validate:"required,gt=0"`
	Fee       float64   `json:"fee" yaml:"fee" validate:"gte=0"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp" validate:"required"`
	// RawAction is the venue's original action label, kept for audit.
	RawAction string `json:"raw_action" yaml:"raw_action"`
	// Forced marks a liquidation: the venue closed the whole position
	// regardless of the reported quantity.
	Forced bool `json:"forced" yaml:"forced"`
	// ClosedPnl is the venue-reported realized P&L for this fill. When
	// present it is authoritative and replaces the price-difference math
	// (inverse and leveraged contracts report P&L the engine cannot derive
	// from price deltas).
	ClosedPnl optional.Option[float64] `json:"closed_pnl" yaml:"closed_pnl"`
}

// Validate validates the ExecuteFill struct.
func (f *ExecuteFill) Validate() error {
	validate := validator.New()
	if err := validate.Struct(f); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFill, "invalid fill", err)
	}

	return nil
}

// Fill is a recorded execution attached to a trade.
type Fill struct {
	ID      string     `json:"id" yaml:"id"`
	TradeID string     `json:"trade_id" yaml:"trade_id"`
	Side    FillSide   `json:"side" yaml:"side"`
	Action  FillAction `json:"action" yaml:"action"`
	// Quantity is the effective quantity applied to the position. For a
	// liquidation this is the full open quantity at the time of the fill.
	Quantity   float64                  `json:"quantity" yaml:"quantity"`
	Price      float64                  `json:"price" yaml:"price"`
	Fee        float64                  `json:"fee" yaml:"fee"`
	ClosedPnl  optional.Option[float64] `json:"closed_pnl" yaml:"closed_pnl"`
	ExecutedAt time.Time                `json:"executed_at" yaml:"executed_at"`
	RawAction  string                   `json:"raw_action" yaml:"raw_action"`
	Forced     bool                     `json:"forced" yaml:"forced"`
}
