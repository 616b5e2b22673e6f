package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/trade-journal/pkg/errors"
)

// EntryKind identifies the origin of a ledger entry.
type EntryKind string

const (
	EntryKindDeposit    EntryKind = "DEPOSIT"
	EntryKindWithdrawal EntryKind = "WITHDRAWAL"
	EntryKindTradeOpen  EntryKind = "TRADE_OPEN"
	EntryKindTradeClose EntryKind = "TRADE_CLOSE"
	EntryKindFee        EntryKind = "FEE"
	// EntryKindAdjustment is a manual correction. It is the only kind that
	// may carry a zero amount.
	EntryKindAdjustment EntryKind = "ADJUSTMENT"
)

// LedgerEntry is an immutable signed cash movement against an account.
// Entries are append-only: corrections are new offsetting entries, never
// updates or deletes.
type LedgerEntry struct {
	ID        string    `json:"id" yaml:"id"`
	AccountID string    `json:"account_id" yaml:"account_id"`
	Kind      EntryKind `json:"kind" yaml:"kind"`
	// Amount is signed: deposits and trade proceeds positive, withdrawals
	// and fees negative.
	Amount float64 `json:"amount" yaml:"amount"`
	// RelatedTradeID links trade-driven entries back to their trade.
	RelatedTradeID optional.Option[string] `json:"related_trade_id" yaml:"related_trade_id"`
	Memo           string                  `json:"memo" yaml:"memo"`
	CreatedAt      time.Time               `json:"created_at" yaml:"created_at"`
}

// LedgerRequest is the input for recording a manual ledger entry.
type LedgerRequest struct {
	AccountID      string                  `json:"account_id" yaml:"account_id" validate:"required"`
	Kind           EntryKind               `json:"kind" yaml:"kind" validate:"required,oneof=DEPOSIT WITHDRAWAL TRADE_OPEN TRADE_CLOSE FEE ADJUSTMENT"`
	Amount         float64                 `json:"amount" yaml:"amount"`
	RelatedTradeID optional.Option[string] `json:"related_trade_id" yaml:"related_trade_id"`
	Memo           string                  `json:"memo" yaml:"memo"`
}

// Validate validates the LedgerRequest struct.
func (r *LedgerRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidLedgerEntry, "invalid ledger request", err)
	}

	// Only adjustments may be zero; everything else must move cash.
	if r.Amount == 0 && r.Kind != EntryKindAdjustment {
		return errors.Newf(errors.ErrCodeZeroAmount, "%s entry must have a nonzero amount", r.Kind)
	}

	return nil
}
