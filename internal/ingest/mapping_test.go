package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxtech-lab/trade-journal/internal/types"
	"github.com/rxtech-lab/trade-journal/pkg/errors"
)

func testMapping() ImportMapping {
	return ImportMapping{
		InstrumentColumn:  "Symbol",
		ActionColumn:      "Side",
		QuantityColumn:    "Qty",
		PriceColumn:       "Price",
		TimestampColumn:   "Time",
		FeeColumn:         "Fee",
		ClosedPnlColumn:   "Realized PnL",
		TimeLayouts:       []string{"2006-01-02 15:04:05"},
		BuyLabels:         []string{"buy"},
		SellLabels:        []string{"sell"},
		LiquidationLabels: []string{"liq"},
		SkipInstruments:   []string{"convert"},
		AssetClass:        "crypto",
		Exchange:          "test-exchange",
	}
}

func testRow() map[string]string {
	return map[string]string{
		"Symbol": "BTCUSDT",
		"Side":   "Buy",
		"Qty":    "1.5",
		"Price":  "42,000.50",
		"Time":   "2024-01-02 10:30:00",
		"Fee":    "2.1",
	}
}

func TestMappingValidate(t *testing.T) {
	mapping := testMapping()
	require.NoError(t, mapping.Validate())

	missing := testMapping()
	missing.QuantityColumn = ""
	err := missing.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidMapping))

	noLabels := testMapping()
	noLabels.BuyLabels = nil
	err = noLabels.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidMapping))
}

func TestNormalizeRow(t *testing.T) {
	c, err := normalizeRow(testRow(), 3, testMapping())
	require.NoError(t, err)

	assert.Equal(t, 3, c.row)
	assert.Equal(t, "BTCUSDT", c.instrument)
	assert.Equal(t, types.FillSideBuy, c.fill.Side)
	assert.InDelta(t, 1.5, c.fill.Quantity, 1e-9)
	assert.InDelta(t, 42000.50, c.fill.Price, 1e-9)
	assert.InDelta(t, 2.1, c.fill.Fee, 1e-9)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC), c.fill.Timestamp)
	assert.Equal(t, "Buy", c.fill.RawAction)
	assert.False(t, c.fill.Forced)
	assert.True(t, c.fill.ClosedPnl.IsNone())
}

func TestNormalizeRowClosedPnl(t *testing.T) {
	row := testRow()
	row["Side"] = "Sell"
	row["Realized PnL"] = "-12.5"

	c, err := normalizeRow(row, 0, testMapping())
	require.NoError(t, err)
	assert.Equal(t, types.FillSideSell, c.fill.Side)
	require.True(t, c.fill.ClosedPnl.IsSome())
	assert.InDelta(t, -12.5, c.fill.ClosedPnl.Unwrap(), 1e-9)
}

func TestNormalizeRowOptionalFee(t *testing.T) {
	row := testRow()
	delete(row, "Fee")

	c, err := normalizeRow(row, 0, testMapping())
	require.NoError(t, err)
	assert.Zero(t, c.fill.Fee)
}

func TestNormalizeRowErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(row map[string]string)
	}{
		{
			name:   "missing instrument",
			mutate: func(row map[string]string) { row["Symbol"] = "" },
		},
		{
			name:   "unknown action label",
			mutate: func(row map[string]string) { row["Side"] = "transfer" },
		},
		{
			name:   "bad quantity",
			mutate: func(row map[string]string) { row["Qty"] = "one" },
		},
		{
			name:   "missing price",
			mutate: func(row map[string]string) { delete(row, "Price") },
		},
		{
			name:   "unparseable timestamp",
			mutate: func(row map[string]string) { row["Time"] = "02/01/2024" },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			row := testRow()
			tc.mutate(row)

			_, err := normalizeRow(row, 0, testMapping())
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeRowNormalization))
		})
	}
}

func TestClassifyLabel(t *testing.T) {
	mapping := testMapping()

	side, forced, err := classifyLabel("Open Long (Buy)", mapping)
	require.NoError(t, err)
	assert.Equal(t, types.FillSideBuy, side)
	assert.False(t, forced)

	side, forced, err = classifyLabel("SELL", mapping)
	require.NoError(t, err)
	assert.Equal(t, types.FillSideSell, side)
	assert.False(t, forced)

	side, forced, err = classifyLabel("Liq. Sell", mapping)
	require.NoError(t, err)
	assert.Equal(t, types.FillSideSell, side)
	assert.True(t, forced)

	_, _, err = classifyLabel("funding", mapping)
	require.Error(t, err)
}

func TestShouldSkip(t *testing.T) {
	mapping := testMapping()

	assert.True(t, shouldSkip("Convert BTC-USDT", mapping))
	assert.True(t, shouldSkip("CONVERT-ETH", mapping))
	assert.False(t, shouldSkip("BTCUSDT", mapping))
}

func TestParseFloat(t *testing.T) {
	value, err := parseFloat("1,234,567.89")
	require.NoError(t, err)
	assert.InDelta(t, 1234567.89, value, 1e-9)

	_, err = parseFloat("n/a")
	require.Error(t, err)
}
