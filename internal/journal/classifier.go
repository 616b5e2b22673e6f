package journal

import (
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/trade-journal/internal/types"
)

// Classification is the outcome of classifying one fill against the current
// position snapshot.
type Classification struct {
	Action types.FillAction
	// Quantity is the effective quantity the tracker should apply. It
	// differs from the fill's reported quantity only for liquidations,
	// which always flatten the whole position.
	Quantity float64
}

// Classify maps a fill and the current position snapshot to a canonical
// action. It is a pure function: no mutation, no side effects. The tracker
// handles every returned action explicitly.
func Classify(snapshot types.PositionSnapshot, fill types.ExecuteFill) Classification {
	if !snapshot.HasPosition {
		if fill.Side == types.FillSideSell {
			return Classification{Action: types.ActionOpenShort, Quantity: fill.Quantity}
		}

		return Classification{Action: types.ActionOpenLong, Quantity: fill.Quantity}
	}

	// A forced fill flattens the position no matter what quantity the venue
	// reported.
	if fill.Forced {
		return Classification{Action: types.ActionLiquidation, Quantity: snapshot.OpenQuantity}
	}

	if fill.Side == snapshot.Direction.EntrySide() {
		if snapshot.Direction == types.DirectionShort {
			return Classification{Action: types.ActionAddToShort, Quantity: fill.Quantity}
		}

		return Classification{Action: types.ActionAddToLong, Quantity: fill.Quantity}
	}

	// Exit side: compare against the open quantity with decimal precision
	// so float noise cannot turn a full close into an over-close.
	fillQty := decimal.NewFromFloat(fill.Quantity)
	openQty := decimal.NewFromFloat(snapshot.OpenQuantity)

	switch fillQty.Cmp(openQty) {
	case 1:
		return Classification{Action: types.ActionRejectOverClose, Quantity: fill.Quantity}
	case 0:
		return Classification{Action: types.ActionFullClose, Quantity: fill.Quantity}
	default:
		if snapshot.Direction == types.DirectionShort {
			return Classification{Action: types.ActionPartialCloseShort, Quantity: fill.Quantity}
		}

		return Classification{Action: types.ActionPartialCloseLong, Quantity: fill.Quantity}
	}
}
