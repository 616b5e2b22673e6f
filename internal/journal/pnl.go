package journal

import (
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/trade-journal/internal/types"
)

// WeightedAverage returns the new average open price after adding addQty at
// price to a position of oldQty at avg.
func WeightedAverage(avg, oldQty, price, addQty float64) float64 {
	oldQtyDec := decimal.NewFromFloat(oldQty)
	addQtyDec := decimal.NewFromFloat(addQty)

	totalQty := oldQtyDec.Add(addQtyDec)
	if totalQty.IsZero() {
		return 0
	}

	oldAmount := decimal.NewFromFloat(avg).Mul(oldQtyDec)
	addAmount := decimal.NewFromFloat(price).Mul(addQtyDec)

	result, _ := oldAmount.Add(addAmount).Div(totalQty).Float64()

	return result
}

// RealizedGrossPnl computes the gross P&L realized by closing qty at
// exitPrice against an average open price. When the venue reported an exact
// closed P&L it is authoritative and replaces the price-difference math.
func RealizedGrossPnl(direction types.Direction, avgOpen, exitPrice, qty float64, closedPnl optional.Option[float64]) float64 {
	if closedPnl.IsSome() {
		return closedPnl.Unwrap()
	}

	entryDec := decimal.NewFromFloat(avgOpen).Mul(decimal.NewFromFloat(qty))
	exitDec := decimal.NewFromFloat(exitPrice).Mul(decimal.NewFromFloat(qty))

	// Short P&L is the opposite of long: profit when the exit price is
	// below the entry price.
	var resultDec decimal.Decimal
	if direction == types.DirectionShort {
		resultDec = entryDec.Sub(exitDec)
	} else {
		resultDec = exitDec.Sub(entryDec)
	}

	result, _ := resultDec.Float64()

	return result
}

// UnrealizedGrossPnl computes the mark-to-market P&L of the open quantity.
func UnrealizedGrossPnl(direction types.Direction, avgOpen, marketPrice, qty float64) float64 {
	entryDec := decimal.NewFromFloat(avgOpen).Mul(decimal.NewFromFloat(qty))
	markDec := decimal.NewFromFloat(marketPrice).Mul(decimal.NewFromFloat(qty))

	var resultDec decimal.Decimal
	if direction == types.DirectionShort {
		resultDec = entryDec.Sub(markDec)
	} else {
		resultDec = markDec.Sub(entryDec)
	}

	result, _ := resultDec.Float64()

	return result
}

// entryCashEffect is the signed cash amount ledgered for an entry fill:
// long entries consume cash, short entries raise it.
func entryCashEffect(direction types.Direction, price, qty float64) float64 {
	notional := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty))

	result, _ := notional.Mul(decimal.NewFromFloat(-direction.Sign())).Float64()

	return result
}

// closeCashEffect is the signed cash amount ledgered for a closing fill.
// It equals the entry notional flowing back plus the realized gross P&L, so
// the ledger sum over a fully closed trade equals its realized gross P&L.
func closeCashEffect(direction types.Direction, avgOpen, qty, grossPnl float64) float64 {
	entryNotional := decimal.NewFromFloat(avgOpen).Mul(decimal.NewFromFloat(qty))

	result, _ := entryNotional.Mul(decimal.NewFromFloat(direction.Sign())).
		Add(decimal.NewFromFloat(grossPnl)).
		Float64()

	return result
}
