package journal

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rxtech-lab/trade-journal/internal/analytics"
	"github.com/rxtech-lab/trade-journal/internal/ingest"
	"github.com/rxtech-lab/trade-journal/internal/logger"
	"github.com/rxtech-lab/trade-journal/internal/types"
	"github.com/rxtech-lab/trade-journal/pkg/errors"
)

// MaintenanceGate reports whether an account is busy with an in-flight
// mutation or maintenance task. The engine consults it before every
// mutating call; enforcing serialization of mutations is the calling
// boundary's job, not the engine's.
type MaintenanceGate interface {
	Busy(accountID string) bool
}

// IdleGate is a MaintenanceGate that is never busy.
type IdleGate struct{}

// Busy implements MaintenanceGate.
func (IdleGate) Busy(string) bool {
	return false
}

// Engine is the journal's operation surface: fill application, bulk
// ingestion, ledger recording, balance, mark-to-market, and analytics.
type Engine struct {
	state    *JournalState
	tracker  *Tracker
	pipeline *ingest.Pipeline
	gate     MaintenanceGate
	logger   *logger.Logger
}

// NewEngine creates an engine over the given state. A nil gate means no
// maintenance gating.
func NewEngine(state *JournalState, gate MaintenanceGate, log *logger.Logger) *Engine {
	if gate == nil {
		gate = IdleGate{}
	}

	tracker := NewTracker(state, log)

	return &Engine{
		state:    state,
		tracker:  tracker,
		pipeline: ingest.NewPipeline(tracker, log),
		gate:     gate,
		logger:   log,
	}
}

// State exposes the underlying storage collaborator.
func (e *Engine) State() *JournalState {
	return e.state
}

// SetIngestProgress installs a per-row progress callback for bulk ingestion.
func (e *Engine) SetIngestProgress(fn func(done, total int)) {
	e.pipeline.OnProgress = fn
}

// ApplyFill applies a single fill to the position identified by ctx.
func (e *Engine) ApplyFill(ctx types.TradeContext, fill types.ExecuteFill) (types.TradeUpdate, error) {
	if err := e.checkMutable(ctx.AccountID); err != nil {
		return types.TradeUpdate{}, err
	}

	return e.tracker.ApplyFill(ctx, fill)
}

// IngestBatch replays a batch of external rows through the tracker. Rows
// commit independently; a crash mid-batch leaves the already-processed rows
// in place.
func (e *Engine) IngestBatch(accountID string, rows []map[string]string, mapping ingest.ImportMapping) (types.ImportReport, error) {
	if err := e.checkMutable(accountID); err != nil {
		return types.ImportReport{}, err
	}

	return e.pipeline.Run(accountID, rows, mapping)
}

// RecordLedgerEntry appends a manual cash entry (deposit, withdrawal,
// adjustment) to the account's ledger.
func (e *Engine) RecordLedgerEntry(req types.LedgerRequest) (types.LedgerEntry, error) {
	if err := req.Validate(); err != nil {
		return types.LedgerEntry{}, err
	}

	if err := e.checkMutable(req.AccountID); err != nil {
		return types.LedgerEntry{}, err
	}

	entry := types.LedgerEntry{
		ID:             uuid.New().String(),
		AccountID:      req.AccountID,
		Kind:           req.Kind,
		Amount:         req.Amount,
		RelatedTradeID: req.RelatedTradeID,
		Memo:           req.Memo,
		CreatedAt:      time.Now().UTC(),
	}

	if err := e.state.AppendLedgerEntry(entry); err != nil {
		return types.LedgerEntry{}, err
	}

	e.logger.Info("Recorded ledger entry",
		zap.String("account_id", req.AccountID),
		zap.String("kind", string(req.Kind)),
		zap.Float64("amount", req.Amount),
	)

	return entry, nil
}

// Balance returns the account balance: the sum of its ledger entries,
// computed fresh.
func (e *Engine) Balance(accountID string) (float64, error) {
	if err := e.checkAccountExists(accountID); err != nil {
		return 0, err
	}

	return e.state.Balance(accountID)
}

// AccountInfo returns the account together with its derived balance and the
// realized P&L and fee totals of its closed trades.
func (e *Engine) AccountInfo(accountID string) (types.AccountInfo, error) {
	if err := e.checkAccountExists(accountID); err != nil {
		return types.AccountInfo{}, err
	}

	found, err := e.state.GetAccount(accountID)
	if err != nil {
		return types.AccountInfo{}, err
	}

	balance, err := e.state.Balance(accountID)
	if err != nil {
		return types.AccountInfo{}, err
	}

	closed, err := e.state.Trades(types.TradeFilter{
		AccountID: accountID,
		Status:    types.TradeStatusClosed,
	})
	if err != nil {
		return types.AccountInfo{}, err
	}

	info := types.AccountInfo{
		Account: found.Unwrap(),
		Balance: balance,
	}

	for _, trade := range closed {
		info.RealizedPnL = addFloat(info.RealizedPnL, trade.RealizedNetPnl())
		info.TotalFees = addFloat(info.TotalFees, trade.TotalFees)
	}

	return info, nil
}

// MarkToMarket stores a new market price on an open trade and returns the
// recomputed unrealized P&L of the open quantity.
func (e *Engine) MarkToMarket(tradeID string, marketPrice float64) (types.MarkResult, error) {
	if marketPrice <= 0 {
		return types.MarkResult{}, errors.New(errors.ErrCodeInvalidParameter, "market price must be positive")
	}

	found, err := e.state.TradeByID(tradeID)
	if err != nil {
		return types.MarkResult{}, err
	}

	if found.IsNone() {
		return types.MarkResult{}, errors.Newf(errors.ErrCodeTradeNotFound, "no trade with id %s", tradeID)
	}

	trade := found.Unwrap()
	if err := e.checkMutable(trade.AccountID); err != nil {
		return types.MarkResult{}, err
	}

	if trade.Status == types.TradeStatusClosed {
		return types.MarkResult{}, errors.Newf(errors.ErrCodeTradeClosed, "trade %s is closed", tradeID)
	}

	if err := e.state.UpdateMarketPrice(tradeID, marketPrice); err != nil {
		return types.MarkResult{}, err
	}

	return types.MarkResult{
		UnrealizedPnl:    UnrealizedGrossPnl(trade.Direction, trade.AverageOpenPrice, marketPrice, trade.OpenQuantity),
		OpenQuantity:     trade.OpenQuantity,
		AverageOpenPrice: trade.AverageOpenPrice,
	}, nil
}

// SetInitialRisk records the planned risk on a trade so R-multiple
// analytics can be computed for it.
func (e *Engine) SetInitialRisk(tradeID string, risk float64) error {
	if risk <= 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "initial risk must be positive")
	}

	found, err := e.state.TradeByID(tradeID)
	if err != nil {
		return err
	}

	if found.IsNone() {
		return errors.Newf(errors.ErrCodeTradeNotFound, "no trade with id %s", tradeID)
	}

	if err := e.checkMutable(found.Unwrap().AccountID); err != nil {
		return err
	}

	return e.state.SetInitialRisk(tradeID, risk)
}

// ComputeAnalytics builds the analytics report for the trades matching the
// filter. Both trades and ledger entries are read as a snapshot at call
// time.
func (e *Engine) ComputeAnalytics(filter types.TradeFilter) (analytics.Report, error) {
	trades, err := e.state.Trades(filter)
	if err != nil {
		return analytics.Report{}, err
	}

	entries, err := e.state.LedgerEntries(filter.AccountID)
	if err != nil {
		return analytics.Report{}, err
	}

	return analytics.BuildReport(trades, entries), nil
}

// checkMutable rejects mutations on busy, archived, deleted, or missing
// accounts.
func (e *Engine) checkMutable(accountID string) error {
	if e.gate.Busy(accountID) {
		return errors.Newf(errors.ErrCodeAccountBusy, "account %s has a mutation in flight", accountID)
	}

	found, err := e.state.GetAccount(accountID)
	if err != nil {
		return err
	}

	if found.IsNone() || found.Unwrap().Deleted {
		return errors.Newf(errors.ErrCodeAccountNotFound, "no account with id %s", accountID)
	}

	if found.Unwrap().Archived {
		return errors.Newf(errors.ErrCodeAccountArchived, "account %s is archived", accountID)
	}

	return nil
}

// checkAccountExists allows reads on archived accounts but not on deleted
// or missing ones.
func (e *Engine) checkAccountExists(accountID string) error {
	found, err := e.state.GetAccount(accountID)
	if err != nil {
		return err
	}

	if found.IsNone() || found.Unwrap().Deleted {
		return errors.Newf(errors.ErrCodeAccountNotFound, "no account with id %s", accountID)
	}

	return nil
}
