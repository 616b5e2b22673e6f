package ingest

import (
	"sort"

	"go.uber.org/zap"

	"github.com/rxtech-lab/trade-journal/internal/logger"
	"github.com/rxtech-lab/trade-journal/internal/types"
	"github.com/rxtech-lab/trade-journal/pkg/errors"
)

// FillApplier applies one classified fill to the position state. It is the
// position tracker; the pipeline never touches positions directly.
type FillApplier interface {
	ApplyFill(ctx types.TradeContext, fill types.ExecuteFill) (types.TradeUpdate, error)
}

// Pipeline replays batches of external rows through the position tracker.
//
// Rows are replayed strictly sequentially in timestamp order, because each
// row's classification depends on the position state the previous row left
// behind. Each row commits independently; a row that fails is recorded in
// the report and the batch continues.
type Pipeline struct {
	applier FillApplier
	logger  *logger.Logger

	// OnProgress, when set, is called after every processed row with the
	// number of rows handled so far and the batch total.
	OnProgress func(done, total int)
}

// NewPipeline creates a pipeline over the given applier.
func NewPipeline(applier FillApplier, log *logger.Logger) *Pipeline {
	return &Pipeline{
		applier:    applier,
		logger:     log,
		OnProgress: nil,
	}
}

// Run ingests a batch of raw rows for an account. A mapping that fails
// validation aborts the batch before any row is touched; after that, all
// failures are per-row and the batch always runs to the end.
func (p *Pipeline) Run(accountID string, rows []map[string]string, mapping ImportMapping) (types.ImportReport, error) {
	if accountID == "" {
		return types.ImportReport{}, errors.New(errors.ErrCodeMissingParameter, "account id is required")
	}

	if err := mapping.Validate(); err != nil {
		return types.ImportReport{}, err
	}

	report := types.ImportReport{
		Successful: 0,
		Failed:     0,
		Skipped:    0,
		Errors:     nil,
	}

	total := len(rows)
	done := 0

	progress := func() {
		done++
		if p.OnProgress != nil {
			p.OnProgress(done, total)
		}
	}

	// Normalize and filter first so the whole batch can be ordered by
	// timestamp before anything reaches the tracker.
	candidates := make([]candidate, 0, len(rows))

	for i, row := range rows {
		c, err := normalizeRow(row, i, mapping)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, types.RowError{Row: i, Message: err.Error()})
			progress()

			continue
		}

		if shouldSkip(c.instrument, mapping) {
			report.Skipped++
			progress()

			continue
		}

		candidates = append(candidates, c)
	}

	// Chronological order is mandatory: average open price and open
	// quantity are path functions of the fill sequence. Ties keep the
	// original row order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].fill.Timestamp.Before(candidates[j].fill.Timestamp)
	})

	for _, c := range candidates {
		ctx := types.TradeContext{
			AccountID:  accountID,
			Instrument: c.instrument,
			AssetClass: mapping.AssetClass,
			Exchange:   mapping.Exchange,
		}

		if _, err := p.applier.ApplyFill(ctx, c.fill); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, types.RowError{Row: c.row, Message: err.Error()})
			progress()

			continue
		}

		report.Successful++
		progress()
	}

	p.logger.Info("Batch ingestion finished",
		zap.String("account_id", accountID),
		zap.Int("successful", report.Successful),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)

	return report, nil
}
