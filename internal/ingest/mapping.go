// Package ingest feeds externally sourced fill batches through the position
// tracker: normalization against a column mapping, chronological ordering,
// source-specific skip filtering, and per-row failure isolation.
package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/trade-journal/internal/types"
	"github.com/rxtech-lab/trade-journal/pkg/errors"
)

// ImportMapping describes how the columns of an external export map onto
// fill fields. It is produced by the upstream mapping UI; columns not named
// here are ignored.
type ImportMapping struct {
	InstrumentColumn string `json:"instrument_column" yaml:"instrument_column" validate:"required"`
	ActionColumn     string `json:"action_column" yaml:"action_column" validate:"required"`
	QuantityColumn   string `json:"quantity_column" yaml:"quantity_column" validate:"required"`
	PriceColumn      string `json:"price_column" yaml:"price_column" validate:"required"`
	TimestampColumn  string `json:"timestamp_column" yaml:"timestamp_column" validate:"required"`
	// FeeColumn is optional; rows without it import with zero fees.
	FeeColumn string `json:"fee_column" yaml:"fee_column"`
	// ClosedPnlColumn maps the venue-reported realized P&L. When a row has
	// a value here it overrides the engine's price-difference math.
	ClosedPnlColumn string `json:"closed_pnl_column" yaml:"closed_pnl_column"`

	// TimeLayouts are tried in order when parsing the timestamp column.
	TimeLayouts []string `json:"time_layouts" yaml:"time_layouts" validate:"required,min=1"`

	// BuyLabels and SellLabels are the action-column values that identify
	// the fill side, compared case-insensitively.
	BuyLabels  []string `json:"buy_labels" yaml:"buy_labels" validate:"required,min=1"`
	SellLabels []string `json:"sell_labels" yaml:"sell_labels" validate:"required,min=1"`
	// LiquidationLabels mark forced closes. Matched as case-insensitive
	// substrings of the action label.
	LiquidationLabels []string `json:"liquidation_labels" yaml:"liquidation_labels"`

	// SkipInstruments are case-insensitive substring patterns for
	// instruments that are not tracked as positions (e.g. spot conversion
	// pairs). Matching rows are counted as skipped, not failed.
	SkipInstruments []string `json:"skip_instruments" yaml:"skip_instruments"`

	// AssetClass and Exchange are stamped onto trades opened by this import.
	AssetClass string `json:"asset_class" yaml:"asset_class"`
	Exchange   string `json:"exchange" yaml:"exchange"`
}

// Validate validates the ImportMapping struct.
func (m *ImportMapping) Validate() error {
	validate := validator.New()
	if err := validate.Struct(m); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidMapping, "invalid import mapping", err)
	}

	return nil
}

// candidate is a normalized row awaiting replay through the tracker.
type candidate struct {
	// row is the zero-based index in the submitted batch, kept for
	// row-indexed error reporting.
	row        int
	instrument string
	fill       types.ExecuteFill
}

// normalizeRow converts one raw row into a candidate fill using the mapping.
func normalizeRow(row map[string]string, index int, mapping ImportMapping) (candidate, error) {
	instrument := strings.TrimSpace(row[mapping.InstrumentColumn])
	if instrument == "" {
		return candidate{}, errors.Newf(errors.ErrCodeRowNormalization, "missing instrument in column %q", mapping.InstrumentColumn)
	}

	action := strings.TrimSpace(row[mapping.ActionColumn])

	side, forced, err := classifyLabel(action, mapping)
	if err != nil {
		return candidate{}, err
	}

	quantity, err := parseFloatColumn(row, mapping.QuantityColumn)
	if err != nil {
		return candidate{}, err
	}

	price, err := parseFloatColumn(row, mapping.PriceColumn)
	if err != nil {
		return candidate{}, err
	}

	var fee float64
	if mapping.FeeColumn != "" && strings.TrimSpace(row[mapping.FeeColumn]) != "" {
		fee, err = parseFloatColumn(row, mapping.FeeColumn)
		if err != nil {
			return candidate{}, err
		}
	}

	closedPnl := optional.None[float64]()
	if mapping.ClosedPnlColumn != "" && strings.TrimSpace(row[mapping.ClosedPnlColumn]) != "" {
		value, err := parseFloatColumn(row, mapping.ClosedPnlColumn)
		if err != nil {
			return candidate{}, err
		}

		closedPnl = optional.Some(value)
	}

	timestamp, err := parseTimeColumn(row, mapping.TimestampColumn, mapping.TimeLayouts)
	if err != nil {
		return candidate{}, err
	}

	return candidate{
		row:        index,
		instrument: instrument,
		fill: types.ExecuteFill{
			Side:      side,
			Quantity:  quantity,
			Price:     price,
			Fee:       fee,
			Timestamp: timestamp,
			RawAction: action,
			Forced:    forced,
			ClosedPnl: closedPnl,
		},
	}, nil
}

// classifyLabel resolves the fill side and the liquidation flag from the
// raw action label.
func classifyLabel(label string, mapping ImportMapping) (types.FillSide, bool, error) {
	forced := false

	for _, pattern := range mapping.LiquidationLabels {
		if pattern != "" && strings.Contains(strings.ToLower(label), strings.ToLower(pattern)) {
			forced = true

			break
		}
	}

	for _, buy := range mapping.BuyLabels {
		if strings.Contains(strings.ToLower(label), strings.ToLower(buy)) {
			return types.FillSideBuy, forced, nil
		}
	}

	for _, sell := range mapping.SellLabels {
		if strings.Contains(strings.ToLower(label), strings.ToLower(sell)) {
			return types.FillSideSell, forced, nil
		}
	}

	return "", false, errors.Newf(errors.ErrCodeRowNormalization, "unrecognized action label %q", label)
}

// shouldSkip reports whether the instrument belongs to a category the
// source does not track as positions.
func shouldSkip(instrument string, mapping ImportMapping) bool {
	for _, pattern := range mapping.SkipInstruments {
		if pattern != "" && strings.Contains(strings.ToLower(instrument), strings.ToLower(pattern)) {
			return true
		}
	}

	return false
}

// parseFloat parses a numeric cell, tolerating thousands separators.
func parseFloat(raw string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
}

func parseFloatColumn(row map[string]string, column string) (float64, error) {
	raw := strings.TrimSpace(row[column])
	if raw == "" {
		return 0, errors.Newf(errors.ErrCodeRowNormalization, "missing value in column %q", column)
	}

	value, err := parseFloat(raw)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeRowNormalization, err, "invalid number %q in column %q", raw, column)
	}

	return value, nil
}

func parseTimeColumn(row map[string]string, column string, layouts []string) (time.Time, error) {
	raw := strings.TrimSpace(row[column])
	if raw == "" {
		return time.Time{}, errors.Newf(errors.ErrCodeRowNormalization, "missing timestamp in column %q", column)
	}

	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, errors.Newf(errors.ErrCodeRowNormalization, "unparseable timestamp %q in column %q", raw, column)
}
