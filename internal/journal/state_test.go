package journal

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/trade-journal/internal/logger"
	"github.com/rxtech-lab/trade-journal/internal/types"
)

// JournalStateTestSuite is a test suite for JournalState
type JournalStateTestSuite struct {
	suite.Suite
	state  *JournalState
	logger *logger.Logger
}

// SetupSuite runs once before all tests in the suite
func (suite *JournalStateTestSuite) SetupSuite() {
	suite.logger = logger.NewNopLogger()

	var err error
	suite.state, err = NewJournalState(suite.logger, "")
	suite.Require().NoError(err)
	suite.Require().NotNil(suite.state)
}

// TearDownSuite runs once after all tests in the suite
func (suite *JournalStateTestSuite) TearDownSuite() {
	if suite.state != nil {
		suite.state.Close()
	}
}

// SetupTest runs before each test
func (suite *JournalStateTestSuite) SetupTest() {
	err := suite.state.Initialize()
	suite.Require().NoError(err)
}

// TearDownTest runs after each test
func (suite *JournalStateTestSuite) TearDownTest() {
	err := suite.state.Cleanup()
	suite.Require().NoError(err)
}

// TestJournalStateSuite runs the test suite
func TestJournalStateSuite(t *testing.T) {
	suite.Run(t, new(JournalStateTestSuite))
}

func (suite *JournalStateTestSuite) TestAccountLifecycle() {
	account, err := suite.state.CreateAccount("main")
	suite.Require().NoError(err)
	suite.NotEmpty(account.ID)
	suite.Equal("main", account.Name)
	suite.False(account.Archived)
	suite.False(account.Deleted)

	found, err := suite.state.GetAccount(account.ID)
	suite.Require().NoError(err)
	suite.Require().True(found.IsSome())
	suite.Equal(account.ID, found.Unwrap().ID)

	missing, err := suite.state.GetAccount(uuid.New().String())
	suite.Require().NoError(err)
	suite.True(missing.IsNone())

	// Archived accounts drop out of the default listing.
	err = suite.state.SetAccountArchived(account.ID, true)
	suite.Require().NoError(err)

	visible, err := suite.state.ListAccounts(false)
	suite.Require().NoError(err)
	suite.Empty(visible)

	all, err := suite.state.ListAccounts(true)
	suite.Require().NoError(err)
	suite.Len(all, 1)

	// Soft delete hides the account from every listing but keeps the row.
	err = suite.state.SoftDeleteAccount(account.ID)
	suite.Require().NoError(err)

	all, err = suite.state.ListAccounts(true)
	suite.Require().NoError(err)
	suite.Empty(all)

	found, err = suite.state.GetAccount(account.ID)
	suite.Require().NoError(err)
	suite.Require().True(found.IsSome())
	suite.True(found.Unwrap().Deleted)
}

func (suite *JournalStateTestSuite) TestBalanceIsSumOfEntries() {
	account, err := suite.state.CreateAccount("cash")
	suite.Require().NoError(err)

	amounts := []float64{1000, -250, 42.5, -0.5}
	for i, amount := range amounts {
		entry := types.LedgerEntry{
			ID:             uuid.New().String(),
			AccountID:      account.ID,
			Kind:           types.EntryKindAdjustment,
			Amount:         amount,
			RelatedTradeID: optional.None[string](),
			Memo:           "test",
			CreatedAt:      time.Date(2024, 1, 1, 10, i, 0, 0, time.UTC),
		}
		suite.Require().NoError(suite.state.AppendLedgerEntry(entry))
	}

	balance, err := suite.state.Balance(account.ID)
	suite.Require().NoError(err)
	suite.InDelta(792.0, balance, 1e-9)

	// Another account's entries do not leak in.
	other, err := suite.state.CreateAccount("other")
	suite.Require().NoError(err)

	otherBalance, err := suite.state.Balance(other.ID)
	suite.Require().NoError(err)
	suite.Zero(otherBalance)
}

func (suite *JournalStateTestSuite) TestLedgerEntriesChronological() {
	account, err := suite.state.CreateAccount("ordered")
	suite.Require().NoError(err)

	// Insert out of chronological order.
	times := []time.Time{
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	for _, ts := range times {
		entry := types.LedgerEntry{
			ID:             uuid.New().String(),
			AccountID:      account.ID,
			Kind:           types.EntryKindDeposit,
			Amount:         100,
			RelatedTradeID: optional.None[string](),
			CreatedAt:      ts,
		}
		suite.Require().NoError(suite.state.AppendLedgerEntry(entry))
	}

	entries, err := suite.state.LedgerEntries(account.ID)
	suite.Require().NoError(err)
	suite.Require().Len(entries, 3)

	for i := 1; i < len(entries); i++ {
		suite.False(entries[i].CreatedAt.Before(entries[i-1].CreatedAt))
	}
}

// Entries sharing a timestamp come back in insertion order, so a fill's
// close and fee entries always read back the way they were written.
func (suite *JournalStateTestSuite) TestLedgerEntriesTimestampTies() {
	account, err := suite.state.CreateAccount("ties")
	suite.Require().NoError(err)

	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	kinds := []types.EntryKind{
		types.EntryKindTradeClose,
		types.EntryKindFee,
		types.EntryKindAdjustment,
	}

	for _, kind := range kinds {
		entry := types.LedgerEntry{
			ID:             uuid.New().String(),
			AccountID:      account.ID,
			Kind:           kind,
			Amount:         1,
			RelatedTradeID: optional.None[string](),
			CreatedAt:      ts,
		}
		suite.Require().NoError(suite.state.AppendLedgerEntry(entry))
	}

	entries, err := suite.state.LedgerEntries(account.ID)
	suite.Require().NoError(err)
	suite.Require().Len(entries, 3)

	for i, kind := range kinds {
		suite.Equal(kind, entries[i].Kind)
	}
}

func (suite *JournalStateTestSuite) TestOpenTradeLookup() {
	account, err := suite.state.CreateAccount("trades")
	suite.Require().NoError(err)

	none, err := suite.state.OpenTrade(account.ID, "BTCUSDT")
	suite.Require().NoError(err)
	suite.True(none.IsNone())

	trade := types.Trade{
		ID:               uuid.New().String(),
		AccountID:        account.ID,
		Instrument:       "BTCUSDT",
		Direction:        types.DirectionLong,
		Status:           types.TradeStatusOpen,
		OpenedAt:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ClosedAt:         optional.None[time.Time](),
		OpenQuantity:     1,
		AverageOpenPrice: 100,
		MarketPrice:      optional.None[float64](),
		InitialRisk:      optional.None[float64](),
	}
	suite.Require().NoError(suite.state.insertTrade(suite.state.db, trade))

	found, err := suite.state.OpenTrade(account.ID, "BTCUSDT")
	suite.Require().NoError(err)
	suite.Require().True(found.IsSome())
	suite.Equal(trade.ID, found.Unwrap().ID)
	suite.True(found.Unwrap().MarketPrice.IsNone())
	suite.True(found.Unwrap().ClosedAt.IsNone())

	// Closed trades are invisible to the open-trade lookup.
	trade.Status = types.TradeStatusClosed
	trade.OpenQuantity = 0
	trade.ClosedAt = optional.Some(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	suite.Require().NoError(suite.state.updateTrade(suite.state.db, trade))

	none, err = suite.state.OpenTrade(account.ID, "BTCUSDT")
	suite.Require().NoError(err)
	suite.True(none.IsNone())

	byID, err := suite.state.TradeByID(trade.ID)
	suite.Require().NoError(err)
	suite.Require().True(byID.IsSome())
	suite.Equal(types.TradeStatusClosed, byID.Unwrap().Status)
	suite.True(byID.Unwrap().ClosedAt.IsSome())
}

func (suite *JournalStateTestSuite) TestMarketPriceAndInitialRisk() {
	account, err := suite.state.CreateAccount("marks")
	suite.Require().NoError(err)

	trade := types.Trade{
		ID:               uuid.New().String(),
		AccountID:        account.ID,
		Instrument:       "ETHUSDT",
		Direction:        types.DirectionShort,
		Status:           types.TradeStatusOpen,
		OpenedAt:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ClosedAt:         optional.None[time.Time](),
		OpenQuantity:     2,
		AverageOpenPrice: 2000,
		MarketPrice:      optional.None[float64](),
		InitialRisk:      optional.None[float64](),
	}
	suite.Require().NoError(suite.state.insertTrade(suite.state.db, trade))

	suite.Require().NoError(suite.state.UpdateMarketPrice(trade.ID, 1900))
	suite.Require().NoError(suite.state.SetInitialRisk(trade.ID, 150))

	found, err := suite.state.TradeByID(trade.ID)
	suite.Require().NoError(err)
	suite.Require().True(found.IsSome())
	suite.InDelta(1900, found.Unwrap().MarketPrice.Unwrap(), 1e-9)
	suite.InDelta(150, found.Unwrap().InitialRisk.Unwrap(), 1e-9)
}

func (suite *JournalStateTestSuite) TestTradesFilter() {
	account, err := suite.state.CreateAccount("filter")
	suite.Require().NoError(err)

	for i, instrument := range []string{"BTCUSDT", "ETHUSDT", "BTCUSDT"} {
		status := types.TradeStatusOpen
		if i == 2 {
			status = types.TradeStatusClosed
		}

		trade := types.Trade{
			ID:          uuid.New().String(),
			AccountID:   account.ID,
			Instrument:  instrument,
			Direction:   types.DirectionLong,
			Status:      status,
			OpenedAt:    time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			ClosedAt:    optional.None[time.Time](),
			MarketPrice: optional.None[float64](),
			InitialRisk: optional.None[float64](),
		}
		suite.Require().NoError(suite.state.insertTrade(suite.state.db, trade))
	}

	all, err := suite.state.Trades(types.TradeFilter{AccountID: account.ID})
	suite.Require().NoError(err)
	suite.Len(all, 3)

	btc, err := suite.state.Trades(types.TradeFilter{AccountID: account.ID, Instrument: "BTCUSDT"})
	suite.Require().NoError(err)
	suite.Len(btc, 2)

	closed, err := suite.state.Trades(types.TradeFilter{AccountID: account.ID, Status: types.TradeStatusClosed})
	suite.Require().NoError(err)
	suite.Len(closed, 1)

	limited, err := suite.state.Trades(types.TradeFilter{AccountID: account.ID, Limit: 2})
	suite.Require().NoError(err)
	suite.Len(limited, 2)

	since, err := suite.state.Trades(types.TradeFilter{
		AccountID: account.ID,
		StartTime: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	suite.Require().NoError(err)
	suite.Len(since, 2)
}
