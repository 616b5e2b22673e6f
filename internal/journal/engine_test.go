package journal

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/trade-journal/internal/logger"
	"github.com/rxtech-lab/trade-journal/internal/types"
	"github.com/rxtech-lab/trade-journal/pkg/errors"
)

// stubGate is a MaintenanceGate whose busy set is controlled by the test.
type stubGate struct {
	busy map[string]bool
}

func (g *stubGate) Busy(accountID string) bool {
	return g.busy[accountID]
}

// EngineTestSuite is a test suite for the journal engine
type EngineTestSuite struct {
	suite.Suite
	state   *JournalState
	gate    *stubGate
	engine  *Engine
	account types.Account
	ctx     types.TradeContext
}

// SetupSuite runs once before all tests in the suite
func (suite *EngineTestSuite) SetupSuite() {
	log := logger.NewNopLogger()

	var err error
	suite.state, err = NewJournalState(log, "")
	suite.Require().NoError(err)

	suite.gate = &stubGate{busy: make(map[string]bool)}
	suite.engine = NewEngine(suite.state, suite.gate, log)
}

// TearDownSuite runs once after all tests in the suite
func (suite *EngineTestSuite) TearDownSuite() {
	if suite.state != nil {
		suite.state.Close()
	}
}

// SetupTest runs before each test
func (suite *EngineTestSuite) SetupTest() {
	suite.Require().NoError(suite.state.Initialize())
	suite.gate.busy = make(map[string]bool)

	account, err := suite.state.CreateAccount("test")
	suite.Require().NoError(err)
	suite.account = account
	suite.ctx = types.TradeContext{
		AccountID:  account.ID,
		Instrument: "ETHUSDT",
		AssetClass: "crypto",
		Exchange:   "test-exchange",
	}
}

// TearDownTest runs after each test
func (suite *EngineTestSuite) TearDownTest() {
	suite.Require().NoError(suite.state.Cleanup())
}

// TestEngineSuite runs the test suite
func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (suite *EngineTestSuite) buyFill(qty, price float64, minute int) types.ExecuteFill {
	return types.ExecuteFill{
		Side:      types.FillSideBuy,
		Quantity:  qty,
		Price:     price,
		Timestamp: time.Date(2024, 3, 1, 9, minute, 0, 0, time.UTC),
		ClosedPnl: optional.None[float64](),
	}
}

func (suite *EngineTestSuite) TestDepositWithdrawBalance() {
	_, err := suite.engine.RecordLedgerEntry(types.LedgerRequest{
		AccountID: suite.account.ID,
		Kind:      types.EntryKindDeposit,
		Amount:    1000,
		Memo:      "initial funding",
	})
	suite.Require().NoError(err)

	_, err = suite.engine.RecordLedgerEntry(types.LedgerRequest{
		AccountID: suite.account.ID,
		Kind:      types.EntryKindWithdrawal,
		Amount:    -250,
	})
	suite.Require().NoError(err)

	balance, err := suite.engine.Balance(suite.account.ID)
	suite.Require().NoError(err)
	suite.InDelta(750, balance, 1e-9)
}

func (suite *EngineTestSuite) TestZeroAmountRejected() {
	_, err := suite.engine.RecordLedgerEntry(types.LedgerRequest{
		AccountID: suite.account.ID,
		Kind:      types.EntryKindDeposit,
		Amount:    0,
	})
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeZeroAmount))

	// An adjustment is the one kind allowed to carry zero.
	_, err = suite.engine.RecordLedgerEntry(types.LedgerRequest{
		AccountID: suite.account.ID,
		Kind:      types.EntryKindAdjustment,
		Amount:    0,
		Memo:      "marker",
	})
	suite.NoError(err)
}

func (suite *EngineTestSuite) TestBusyAccountRejectsMutations() {
	suite.gate.busy[suite.account.ID] = true

	_, err := suite.engine.ApplyFill(suite.ctx, suite.buyFill(1, 100, 0))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeAccountBusy))

	_, err = suite.engine.RecordLedgerEntry(types.LedgerRequest{
		AccountID: suite.account.ID,
		Kind:      types.EntryKindDeposit,
		Amount:    100,
	})
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeAccountBusy))

	// Reads are not gated.
	_, err = suite.engine.Balance(suite.account.ID)
	suite.NoError(err)
}

// Trade-row mutations go through the gate like every other mutating op.
func (suite *EngineTestSuite) TestBusyAccountRejectsTradeMutations() {
	update, err := suite.engine.ApplyFill(suite.ctx, suite.buyFill(1, 100, 0))
	suite.Require().NoError(err)

	suite.gate.busy[suite.account.ID] = true

	_, err = suite.engine.MarkToMarket(update.Trade.ID, 120)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeAccountBusy))

	err = suite.engine.SetInitialRisk(update.Trade.ID, 25)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeAccountBusy))

	// Nothing landed on the trade row.
	stored, err := suite.state.TradeByID(update.Trade.ID)
	suite.Require().NoError(err)
	suite.True(stored.Unwrap().MarketPrice.IsNone())
	suite.True(stored.Unwrap().InitialRisk.IsNone())
}

func (suite *EngineTestSuite) TestArchivedAccountIsReadOnly() {
	_, err := suite.engine.RecordLedgerEntry(types.LedgerRequest{
		AccountID: suite.account.ID,
		Kind:      types.EntryKindDeposit,
		Amount:    500,
	})
	suite.Require().NoError(err)

	suite.Require().NoError(suite.state.SetAccountArchived(suite.account.ID, true))

	_, err = suite.engine.ApplyFill(suite.ctx, suite.buyFill(1, 100, 0))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeAccountArchived))

	balance, err := suite.engine.Balance(suite.account.ID)
	suite.Require().NoError(err)
	suite.InDelta(500, balance, 1e-9)
}

func (suite *EngineTestSuite) TestDeletedAccountIsInvisible() {
	suite.Require().NoError(suite.state.SoftDeleteAccount(suite.account.ID))

	_, err := suite.engine.Balance(suite.account.ID)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeAccountNotFound))

	_, err = suite.engine.ApplyFill(suite.ctx, suite.buyFill(1, 100, 0))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeAccountNotFound))
}

// Mark-to-market on Buy 1@100 with market 120 yields 20 unrealized.
func (suite *EngineTestSuite) TestMarkToMarket() {
	update, err := suite.engine.ApplyFill(suite.ctx, suite.buyFill(1, 100, 0))
	suite.Require().NoError(err)

	result, err := suite.engine.MarkToMarket(update.Trade.ID, 120)
	suite.Require().NoError(err)
	suite.InDelta(20, result.UnrealizedPnl, 1e-9)
	suite.InDelta(1, result.OpenQuantity, 1e-9)
	suite.InDelta(100, result.AverageOpenPrice, 1e-9)

	stored, err := suite.state.TradeByID(update.Trade.ID)
	suite.Require().NoError(err)
	suite.InDelta(120, stored.Unwrap().MarketPrice.Unwrap(), 1e-9)
}

func (suite *EngineTestSuite) TestMarkToMarketRejectsClosedTrade() {
	update, err := suite.engine.ApplyFill(suite.ctx, suite.buyFill(1, 100, 0))
	suite.Require().NoError(err)

	closing := types.ExecuteFill{
		Side:      types.FillSideSell,
		Quantity:  1,
		Price:     110,
		Timestamp: time.Date(2024, 3, 1, 9, 1, 0, 0, time.UTC),
		ClosedPnl: optional.None[float64](),
	}
	_, err = suite.engine.ApplyFill(suite.ctx, closing)
	suite.Require().NoError(err)

	_, err = suite.engine.MarkToMarket(update.Trade.ID, 120)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeTradeClosed))
}

func (suite *EngineTestSuite) TestMarkToMarketValidation() {
	_, err := suite.engine.MarkToMarket("missing", 120)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeTradeNotFound))

	update, err := suite.engine.ApplyFill(suite.ctx, suite.buyFill(1, 100, 0))
	suite.Require().NoError(err)

	_, err = suite.engine.MarkToMarket(update.Trade.ID, 0)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *EngineTestSuite) TestSetInitialRisk() {
	update, err := suite.engine.ApplyFill(suite.ctx, suite.buyFill(1, 100, 0))
	suite.Require().NoError(err)

	suite.Require().NoError(suite.engine.SetInitialRisk(update.Trade.ID, 25))

	stored, err := suite.state.TradeByID(update.Trade.ID)
	suite.Require().NoError(err)
	suite.InDelta(25, stored.Unwrap().InitialRisk.Unwrap(), 1e-9)

	err = suite.engine.SetInitialRisk(update.Trade.ID, -1)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	err = suite.engine.SetInitialRisk("missing", 25)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeTradeNotFound))
}

func (suite *EngineTestSuite) TestAccountInfo() {
	_, err := suite.engine.RecordLedgerEntry(types.LedgerRequest{
		AccountID: suite.account.ID,
		Kind:      types.EntryKindDeposit,
		Amount:    1000,
	})
	suite.Require().NoError(err)

	_, err = suite.engine.ApplyFill(suite.ctx, suite.buyFill(1, 100, 0))
	suite.Require().NoError(err)

	closing := types.ExecuteFill{
		Side:      types.FillSideSell,
		Quantity:  1,
		Price:     110,
		Fee:       2,
		Timestamp: time.Date(2024, 3, 1, 9, 1, 0, 0, time.UTC),
		ClosedPnl: optional.None[float64](),
	}
	_, err = suite.engine.ApplyFill(suite.ctx, closing)
	suite.Require().NoError(err)

	// An open trade with fees does not count toward the closed-trade totals.
	openCtx := suite.ctx
	openCtx.Instrument = "SOLUSDT"
	opening := suite.buyFill(1, 50, 2)
	opening.Fee = 5
	_, err = suite.engine.ApplyFill(openCtx, opening)
	suite.Require().NoError(err)

	info, err := suite.engine.AccountInfo(suite.account.ID)
	suite.Require().NoError(err)
	suite.Equal(suite.account.ID, info.Account.ID)
	suite.InDelta(953, info.Balance, 1e-9)
	suite.InDelta(8, info.RealizedPnL, 1e-9)
	suite.InDelta(2, info.TotalFees, 1e-9)
}

func (suite *EngineTestSuite) TestComputeAnalytics() {
	_, err := suite.engine.RecordLedgerEntry(types.LedgerRequest{
		AccountID: suite.account.ID,
		Kind:      types.EntryKindDeposit,
		Amount:    1000,
	})
	suite.Require().NoError(err)

	_, err = suite.engine.ApplyFill(suite.ctx, suite.buyFill(1, 100, 0))
	suite.Require().NoError(err)

	closing := types.ExecuteFill{
		Side:      types.FillSideSell,
		Quantity:  1,
		Price:     110,
		Fee:       1,
		Timestamp: time.Date(2024, 3, 1, 9, 1, 0, 0, time.UTC),
		ClosedPnl: optional.None[float64](),
	}
	_, err = suite.engine.ApplyFill(suite.ctx, closing)
	suite.Require().NoError(err)

	report, err := suite.engine.ComputeAnalytics(types.TradeFilter{AccountID: suite.account.ID})
	suite.Require().NoError(err)
	suite.Equal(1, report.TradeResult.NumberOfTrades)
	suite.Equal(1, report.TradeResult.NumberOfWinningTrades)
	suite.NotEmpty(report.EquityCurve)
	// Final equity is the full ledger sum: deposit plus net trade P&L.
	suite.InDelta(1009, report.EquityCurve[len(report.EquityCurve)-1].Equity, 1e-9)
}
