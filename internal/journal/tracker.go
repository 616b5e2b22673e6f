package journal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/trade-journal/internal/logger"
	"github.com/rxtech-lab/trade-journal/internal/types"
	"github.com/rxtech-lab/trade-journal/pkg/errors"
)

// Tracker is the trade lifecycle state machine. It owns the per-instrument
// open position state and applies classified fills to it: creating trades,
// maintaining the weighted average open price, realizing P&L, and emitting
// ledger entries. Every fill is applied in a single database transaction;
// a rejected fill leaves no row behind.
//
// Callers must serialize mutating calls per account. The weighted-average
// and open-quantity invariants do not survive interleaved writers.
type Tracker struct {
	state  *JournalState
	logger *logger.Logger
}

// NewTracker creates a tracker over the given journal state.
func NewTracker(state *JournalState, log *logger.Logger) *Tracker {
	return &Tracker{
		state:  state,
		logger: log,
	}
}

// ApplyFill applies one fill to the position identified by ctx.
//
// State transitions:
//   - no position + entry fill: a new trade is created
//   - open + same-side fill: quantity and weighted average grow
//   - open + opposite fill below open quantity: partial close, P&L realized
//   - open + opposite fill equal to open quantity (or forced): full close
//   - open + opposite fill above open quantity: rejected, state unchanged
//
// A closed trade never accepts another fill; the next fill on the same
// instrument opens a brand-new trade.
func (t *Tracker) ApplyFill(ctx types.TradeContext, fill types.ExecuteFill) (types.TradeUpdate, error) {
	if err := ctx.Validate(); err != nil {
		return types.TradeUpdate{}, err
	}

	if err := fill.Validate(); err != nil {
		return types.TradeUpdate{}, err
	}

	openTrade, err := t.state.OpenTrade(ctx.AccountID, ctx.Instrument)
	if err != nil {
		return types.TradeUpdate{}, err
	}

	var snapshot types.PositionSnapshot
	if openTrade.IsSome() {
		trade := openTrade.Unwrap()
		snapshot = trade.Snapshot()
	}

	classification := Classify(snapshot, fill)

	if classification.Action == types.ActionRejectOverClose {
		return types.TradeUpdate{}, errors.Wrapf(
			errors.ErrCodeOverClose,
			errors.NewOverCloseError(snapshot.TradeID, fill.Quantity, snapshot.OpenQuantity),
			"fill rejected for %s", ctx.Instrument,
		)
	}

	switch {
	case classification.Action.Opens():
		return t.openTrade(ctx, fill, classification)
	case classification.Action.Adds():
		return t.addToTrade(openTrade.Unwrap(), fill, classification)
	default:
		return t.closeTrade(openTrade.Unwrap(), fill, classification)
	}
}

// openTrade creates a new trade from the first entry fill.
func (t *Tracker) openTrade(ctx types.TradeContext, fill types.ExecuteFill, c Classification) (types.TradeUpdate, error) {
	direction := types.DirectionLong
	if c.Action == types.ActionOpenShort {
		direction = types.DirectionShort
	}

	trade := types.Trade{
		ID:               uuid.New().String(),
		AccountID:        ctx.AccountID,
		Instrument:       ctx.Instrument,
		AssetClass:       ctx.AssetClass,
		Exchange:         ctx.Exchange,
		Direction:        direction,
		Status:           types.TradeStatusOpen,
		OpenedAt:         fill.Timestamp,
		ClosedAt:         optional.None[time.Time](),
		OpenQuantity:     c.Quantity,
		AverageOpenPrice: fill.Price,
		MarketPrice:      optional.None[float64](),
		RealizedGrossPnl: 0,
		TotalFees:        fill.Fee,
		InitialRisk:      optional.None[float64](),
		Strategy:         ctx.Strategy,
	}

	record := newFillRecord(trade.ID, fill, c)
	entries := t.fillEntries(trade, record, entryCashEffect(direction, fill.Price, c.Quantity), types.EntryKindTradeOpen)

	err := t.commitFill(record, trade, entries, true)
	if err != nil {
		return types.TradeUpdate{}, err
	}

	t.logger.Info("Opened trade",
		zap.String("trade_id", trade.ID),
		zap.String("instrument", trade.Instrument),
		zap.String("direction", string(direction)),
		zap.Float64("quantity", c.Quantity),
	)

	return types.TradeUpdate{
		Trade:       trade,
		Fill:        record,
		RealizedPnl: optional.None[float64](),
		Entries:     entries,
		IsNewTrade:  true,
	}, nil
}

// addToTrade scales into an open position and recomputes the weighted
// average open price. Exit fills never pass through here, so the average
// only ever reflects entry fills.
func (t *Tracker) addToTrade(trade types.Trade, fill types.ExecuteFill, c Classification) (types.TradeUpdate, error) {
	trade.AverageOpenPrice = WeightedAverage(trade.AverageOpenPrice, trade.OpenQuantity, fill.Price, c.Quantity)
	trade.OpenQuantity = addFloat(trade.OpenQuantity, c.Quantity)
	trade.TotalFees = addFloat(trade.TotalFees, fill.Fee)

	record := newFillRecord(trade.ID, fill, c)
	entries := t.fillEntries(trade, record, entryCashEffect(trade.Direction, fill.Price, c.Quantity), types.EntryKindTradeOpen)

	err := t.commitFill(record, trade, entries, false)
	if err != nil {
		return types.TradeUpdate{}, err
	}

	return types.TradeUpdate{
		Trade:       trade,
		Fill:        record,
		RealizedPnl: optional.None[float64](),
		Entries:     entries,
		IsNewTrade:  false,
	}, nil
}

// closeTrade realizes P&L on the closed slice. The average open price is
// left untouched; a full close or liquidation makes the trade terminal.
func (t *Tracker) closeTrade(trade types.Trade, fill types.ExecuteFill, c Classification) (types.TradeUpdate, error) {
	grossPnl := RealizedGrossPnl(trade.Direction, trade.AverageOpenPrice, fill.Price, c.Quantity, fill.ClosedPnl)

	trade.RealizedGrossPnl = addFloat(trade.RealizedGrossPnl, grossPnl)
	trade.TotalFees = addFloat(trade.TotalFees, fill.Fee)
	trade.OpenQuantity = subFloat(trade.OpenQuantity, c.Quantity)

	if c.Action.Terminal() {
		trade.OpenQuantity = 0
		trade.Status = types.TradeStatusClosed
		trade.ClosedAt = optional.Some(fill.Timestamp)
	}

	record := newFillRecord(trade.ID, fill, c)
	entries := t.fillEntries(trade, record, closeCashEffect(trade.Direction, trade.AverageOpenPrice, c.Quantity, grossPnl), types.EntryKindTradeClose)

	err := t.commitFill(record, trade, entries, false)
	if err != nil {
		return types.TradeUpdate{}, err
	}

	if c.Action.Terminal() {
		t.logger.Info("Closed trade",
			zap.String("trade_id", trade.ID),
			zap.String("instrument", trade.Instrument),
			zap.Float64("realized_gross_pnl", trade.RealizedGrossPnl),
			zap.Bool("forced", record.Forced),
		)
	}

	return types.TradeUpdate{
		Trade:       trade,
		Fill:        record,
		RealizedPnl: optional.Some(grossPnl),
		Entries:     entries,
		IsNewTrade:  false,
	}, nil
}

// commitFill writes the fill, the trade, and the ledger entries in one
// transaction. Row-level atomicity: either the whole transition lands or
// none of it does.
func (t *Tracker) commitFill(fill types.Fill, trade types.Trade, entries []types.LedgerEntry, isNew bool) error {
	tx, err := t.state.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to begin transaction", err)
	}

	if err := t.state.insertFill(tx, fill); err != nil {
		tx.Rollback()

		return err
	}

	if isNew {
		err = t.state.insertTrade(tx, trade)
	} else {
		err = t.state.updateTrade(tx, trade)
	}

	if err != nil {
		tx.Rollback()

		return err
	}

	for _, entry := range entries {
		if err := t.state.insertLedgerEntry(tx, entry); err != nil {
			tx.Rollback()

			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to commit transaction", err)
	}

	return nil
}

// fillEntries builds the ledger entries emitted by one fill: the signed
// cash effect under the given kind, plus a separate fee entry when the fill
// carried fees.
func (t *Tracker) fillEntries(trade types.Trade, fill types.Fill, cashEffect float64, kind types.EntryKind) []types.LedgerEntry {
	entries := []types.LedgerEntry{
		{
			ID:             uuid.New().String(),
			AccountID:      trade.AccountID,
			Kind:           kind,
			Amount:         cashEffect,
			RelatedTradeID: optional.Some(trade.ID),
			Memo:           fmt.Sprintf("%s %s %v@%v", fill.Action, trade.Instrument, fill.Quantity, fill.Price),
			CreatedAt:      fill.ExecutedAt,
		},
	}

	if fill.Fee > 0 {
		entries = append(entries, types.LedgerEntry{
			ID:             uuid.New().String(),
			AccountID:      trade.AccountID,
			Kind:           types.EntryKindFee,
			Amount:         -fill.Fee,
			RelatedTradeID: optional.Some(trade.ID),
			Memo:           fmt.Sprintf("fee %s %s", fill.Action, trade.Instrument),
			CreatedAt:      fill.ExecutedAt,
		})
	}

	return entries
}

// newFillRecord turns an incoming fill plus its classification into the
// stored fill record.
func newFillRecord(tradeID string, fill types.ExecuteFill, c Classification) types.Fill {
	return types.Fill{
		ID:         uuid.New().String(),
		TradeID:    tradeID,
		Side:       fill.Side,
		Action:     c.Action,
		Quantity:   c.Quantity,
		Price:      fill.Price,
		Fee:        fill.Fee,
		ClosedPnl:  fill.ClosedPnl,
		ExecutedAt: fill.Timestamp,
		RawAction:  fill.RawAction,
		Forced:     fill.Forced,
	}
}

func addFloat(a, b float64) float64 {
	result, _ := decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Float64()

	return result
}

func subFloat(a, b float64) float64 {
	result, _ := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Float64()

	return result
}
