package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/rxtech-lab/trade-journal/internal/logger"
	"github.com/rxtech-lab/trade-journal/internal/types"
	"github.com/rxtech-lab/trade-journal/pkg/errors"
)

// JournalState is the storage collaborator for the engine. It owns the
// accounts, trades, fills, and ledger_entries tables in a DuckDB database
// and exposes CRUD plus the aggregate queries the engine derives state from.
// Balances and positions are always computed fresh from the tables, never
// cached.
type JournalState struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewJournalState opens a DuckDB database at path. An empty path opens an
// in-memory database.
func NewJournalState(log *logger.Logger, path string) (*JournalState, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePersistence, "failed to open database", err)
	}

	return &JournalState{
		db:     db,
		logger: log,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the journal tables.
func (s *JournalState) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			name TEXT,
			archived BOOLEAN,
			deleted BOOLEAN,
			created_at TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create accounts table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id TEXT PRIMARY KEY,
			account_id TEXT,
			kind TEXT,
			amount DOUBLE,
			related_trade_id TEXT,
			memo TEXT,
			created_at TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ledger_entries table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			account_id TEXT,
			instrument TEXT,
			asset_class TEXT,
			exchange TEXT,
			direction TEXT,
			status TEXT,
			opened_at TIMESTAMP,
			closed_at TIMESTAMP,
			open_quantity DOUBLE,
			average_open_price DOUBLE,
			market_price DOUBLE,
			realized_gross_pnl DOUBLE,
			total_fees DOUBLE,
			initial_risk DOUBLE,
			strategy TEXT,
			notes TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create trades table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS fills (
			id TEXT PRIMARY KEY,
			trade_id TEXT,
			side TEXT,
			action TEXT,
			quantity DOUBLE,
			price DOUBLE,
			fee DOUBLE,
			closed_pnl DOUBLE,
			executed_at TIMESTAMP,
			raw_action TEXT,
			forced BOOLEAN
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create fills table: %w", err)
	}

	return nil
}

// Cleanup drops all tables and reinitializes the schema.
func (s *JournalState) Cleanup() error {
	_, err := s.db.Exec(`
		DROP TABLE IF EXISTS fills;
		DROP TABLE IF EXISTS trades;
		DROP TABLE IF EXISTS ledger_entries;
		DROP TABLE IF EXISTS accounts;
	`)
	if err != nil {
		return fmt.Errorf("failed to cleanup tables: %w", err)
	}

	return s.Initialize()
}

// Close closes the underlying database.
func (s *JournalState) Close() error {
	return s.db.Close()
}

// CreateAccount creates a new account with the given name.
func (s *JournalState) CreateAccount(name string) (types.Account, error) {
	account := types.Account{
		ID:        uuid.New().String(),
		Name:      name,
		Archived:  false,
		Deleted:   false,
		CreatedAt: time.Now().UTC(),
	}

	insertQuery := s.sq.
		Insert("accounts").
		Columns("id", "name", "archived", "deleted", "created_at").
		Values(account.ID, account.Name, account.Archived, account.Deleted, account.CreatedAt).
		RunWith(s.db)

	if _, err := insertQuery.Exec(); err != nil {
		return types.Account{}, errors.Wrap(errors.ErrCodePersistence, "failed to insert account", err)
	}

	return account, nil
}

// GetAccount returns the account with the given id, or None if it does not
// exist.
func (s *JournalState) GetAccount(id string) (optional.Option[types.Account], error) {
	selectQuery := s.sq.
		Select("id", "name", "archived", "deleted", "created_at").
		From("accounts").
		Where(squirrel.Eq{"id": id}).
		RunWith(s.db)

	var account types.Account

	err := selectQuery.QueryRow().Scan(
		&account.ID,
		&account.Name,
		&account.Archived,
		&account.Deleted,
		&account.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return optional.None[types.Account](), nil
	}

	if err != nil {
		return optional.None[types.Account](), errors.Wrap(errors.ErrCodeQueryFailed, "failed to query account", err)
	}

	return optional.Some(account), nil
}

// ListAccounts returns all non-deleted accounts. Archived accounts are only
// included when includeArchived is set.
func (s *JournalState) ListAccounts(includeArchived bool) ([]types.Account, error) {
	selectQuery := s.sq.
		Select("id", "name", "archived", "deleted", "created_at").
		From("accounts").
		Where(squirrel.Eq{"deleted": false}).
		OrderBy("created_at ASC")

	if !includeArchived {
		selectQuery = selectQuery.Where(squirrel.Eq{"archived": false})
	}

	rows, err := selectQuery.RunWith(s.db).Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query accounts", err)
	}
	defer rows.Close()

	var accounts []types.Account

	for rows.Next() {
		var account types.Account
		if err := rows.Scan(&account.ID, &account.Name, &account.Archived, &account.Deleted, &account.CreatedAt); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan account", err)
		}

		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating accounts", err)
	}

	return accounts, nil
}

// SetAccountArchived flips the archived flag on an account.
func (s *JournalState) SetAccountArchived(id string, archived bool) error {
	updateQuery := s.sq.
		Update("accounts").
		Set("archived", archived).
		Where(squirrel.Eq{"id": id}).
		RunWith(s.db)

	if _, err := updateQuery.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to update account", err)
	}

	return nil
}

// SoftDeleteAccount marks an account as deleted. Its history is retained.
func (s *JournalState) SoftDeleteAccount(id string) error {
	updateQuery := s.sq.
		Update("accounts").
		Set("deleted", true).
		Where(squirrel.Eq{"id": id}).
		RunWith(s.db)

	if _, err := updateQuery.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to update account", err)
	}

	return nil
}

// AppendLedgerEntry appends a single ledger entry in its own transaction.
// There is deliberately no update or delete counterpart: the ledger is
// append-only and corrections are new offsetting entries.
func (s *JournalState) AppendLedgerEntry(entry types.LedgerEntry) error {
	return s.insertLedgerEntry(s.db, entry)
}

// insertLedgerEntry appends a ledger entry using the given runner, so the
// tracker can compose it into a fill transaction.
func (s *JournalState) insertLedgerEntry(runner squirrel.BaseRunner, entry types.LedgerEntry) error {
	insertQuery := s.sq.
		Insert("ledger_entries").
		Columns("id", "account_id", "kind", "amount", "related_trade_id", "memo", "created_at").
		Values(
			entry.ID, entry.AccountID, entry.Kind, entry.Amount,
			optionToNullString(entry.RelatedTradeID), entry.Memo, entry.CreatedAt,
		).
		RunWith(runner)

	if _, err := insertQuery.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to insert ledger entry", err)
	}

	return nil
}

// Balance returns the sum of all ledger entry amounts for an account. It is
// computed fresh on every call.
func (s *JournalState) Balance(accountID string) (float64, error) {
	selectQuery := s.sq.
		Select("COALESCE(SUM(amount), 0)").
		From("ledger_entries").
		Where(squirrel.Eq{"account_id": accountID}).
		RunWith(s.db)

	var balance float64
	if err := selectQuery.QueryRow().Scan(&balance); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query balance", err)
	}

	return balance, nil
}

// LedgerEntries returns entries in chronological order. An empty accountID
// returns entries across all accounts. Entries sharing a timestamp (a fill's
// close and fee entries do) come back in insertion order; the table is
// append-only, so rowid is a stable tiebreaker.
func (s *JournalState) LedgerEntries(accountID string) ([]types.LedgerEntry, error) {
	selectQuery := s.sq.
		Select("id", "account_id", "kind", "amount", "related_trade_id", "memo", "created_at").
		From("ledger_entries").
		OrderBy("created_at ASC", "rowid ASC")

	if accountID != "" {
		selectQuery = selectQuery.Where(squirrel.Eq{"account_id": accountID})
	}

	rows, err := selectQuery.RunWith(s.db).Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query ledger entries", err)
	}
	defer rows.Close()

	var entries []types.LedgerEntry

	for rows.Next() {
		var (
			entry          types.LedgerEntry
			relatedTradeID sql.NullString
		)

		err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.Kind,
			&entry.Amount,
			&relatedTradeID,
			&entry.Memo,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan ledger entry", err)
		}

		entry.RelatedTradeID = nullStringToOption(relatedTradeID)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating ledger entries", err)
	}

	return entries, nil
}

// OpenTrade returns the currently open trade for an account/instrument pair,
// or None when the instrument has no position.
func (s *JournalState) OpenTrade(accountID, instrument string) (optional.Option[types.Trade], error) {
	selectQuery := s.tradeSelect().
		Where(squirrel.Eq{
			"account_id": accountID,
			"instrument": instrument,
			"status":     types.TradeStatusOpen,
		}).
		RunWith(s.db)

	trade, err := scanTrade(selectQuery.QueryRow())
	if err == sql.ErrNoRows {
		return optional.None[types.Trade](), nil
	}

	if err != nil {
		return optional.None[types.Trade](), errors.Wrap(errors.ErrCodeQueryFailed, "failed to query open trade", err)
	}

	return optional.Some(trade), nil
}

// TradeByID returns the trade with the given id, or None.
func (s *JournalState) TradeByID(id string) (optional.Option[types.Trade], error) {
	selectQuery := s.tradeSelect().
		Where(squirrel.Eq{"id": id}).
		RunWith(s.db)

	trade, err := scanTrade(selectQuery.QueryRow())
	if err == sql.ErrNoRows {
		return optional.None[types.Trade](), nil
	}

	if err != nil {
		return optional.None[types.Trade](), errors.Wrap(errors.ErrCodeQueryFailed, "failed to query trade", err)
	}

	return optional.Some(trade), nil
}

// Trades returns trades matching the filter, ordered by open time.
func (s *JournalState) Trades(filter types.TradeFilter) ([]types.Trade, error) {
	selectQuery := s.tradeSelect().OrderBy("opened_at ASC")

	if filter.AccountID != "" {
		selectQuery = selectQuery.Where(squirrel.Eq{"account_id": filter.AccountID})
	}

	if filter.Instrument != "" {
		selectQuery = selectQuery.Where(squirrel.Eq{"instrument": filter.Instrument})
	}

	if filter.Status != "" {
		selectQuery = selectQuery.Where(squirrel.Eq{"status": filter.Status})
	}

	if !filter.StartTime.IsZero() {
		selectQuery = selectQuery.Where(squirrel.GtOrEq{"opened_at": filter.StartTime})
	}

	if !filter.EndTime.IsZero() {
		selectQuery = selectQuery.Where(squirrel.LtOrEq{"opened_at": filter.EndTime})
	}

	if filter.Limit > 0 {
		selectQuery = selectQuery.Limit(uint64(filter.Limit))
	}

	rows, err := selectQuery.RunWith(s.db).Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query trades", err)
	}
	defer rows.Close()

	var trades []types.Trade

	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan trade", err)
		}

		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating trades", err)
	}

	return trades, nil
}

// FillsForTrade returns the fills of a trade in execution order.
func (s *JournalState) FillsForTrade(tradeID string) ([]types.Fill, error) {
	selectQuery := s.sq.
		Select("id", "trade_id", "side", "action", "quantity", "price", "fee", "closed_pnl", "executed_at", "raw_action", "forced").
		From("fills").
		Where(squirrel.Eq{"trade_id": tradeID}).
		OrderBy("executed_at ASC").
		RunWith(s.db)

	rows, err := selectQuery.Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query fills", err)
	}
	defer rows.Close()

	var fills []types.Fill

	for rows.Next() {
		var (
			fill      types.Fill
			closedPnl sql.NullFloat64
		)

		err := rows.Scan(
			&fill.ID,
			&fill.TradeID,
			&fill.Side,
			&fill.Action,
			&fill.Quantity,
			&fill.Price,
			&fill.Fee,
			&closedPnl,
			&fill.ExecutedAt,
			&fill.RawAction,
			&fill.Forced,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan fill", err)
		}

		fill.ClosedPnl = nullFloatToOption(closedPnl)
		fills = append(fills, fill)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating fills", err)
	}

	return fills, nil
}

// UpdateMarketPrice stores the latest mark on a trade. Display cache only;
// unrealized P&L is recomputed from it on demand.
func (s *JournalState) UpdateMarketPrice(tradeID string, price float64) error {
	updateQuery := s.sq.
		Update("trades").
		Set("market_price", price).
		Where(squirrel.Eq{"id": tradeID}).
		RunWith(s.db)

	if _, err := updateQuery.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to update market price", err)
	}

	return nil
}

// SetInitialRisk records the user-entered planned risk on a trade.
func (s *JournalState) SetInitialRisk(tradeID string, risk float64) error {
	updateQuery := s.sq.
		Update("trades").
		Set("initial_risk", risk).
		Where(squirrel.Eq{"id": tradeID}).
		RunWith(s.db)

	if _, err := updateQuery.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to update initial risk", err)
	}

	return nil
}

// insertTrade writes a new trade row using the given runner.
func (s *JournalState) insertTrade(runner squirrel.BaseRunner, trade types.Trade) error {
	insertQuery := s.sq.
		Insert("trades").
		Columns(
			"id", "account_id", "instrument", "asset_class", "exchange",
			"direction", "status", "opened_at", "closed_at",
			"open_quantity", "average_open_price", "market_price",
			"realized_gross_pnl", "total_fees", "initial_risk",
			"strategy", "notes",
		).
		Values(
			trade.ID, trade.AccountID, trade.Instrument, trade.AssetClass, trade.Exchange,
			trade.Direction, trade.Status, trade.OpenedAt, optionToNullTime(trade.ClosedAt),
			trade.OpenQuantity, trade.AverageOpenPrice, optionToNullFloat(trade.MarketPrice),
			trade.RealizedGrossPnl, trade.TotalFees, optionToNullFloat(trade.InitialRisk),
			trade.Strategy, trade.Notes,
		).
		RunWith(runner)

	if _, err := insertQuery.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to insert trade", err)
	}

	return nil
}

// updateTrade rewrites the mutable fields of a trade row using the given runner.
func (s *JournalState) updateTrade(runner squirrel.BaseRunner, trade types.Trade) error {
	updateQuery := s.sq.
		Update("trades").
		Set("status", trade.Status).
		Set("closed_at", optionToNullTime(trade.ClosedAt)).
		Set("open_quantity", trade.OpenQuantity).
		Set("average_open_price", trade.AverageOpenPrice).
		Set("market_price", optionToNullFloat(trade.MarketPrice)).
		Set("realized_gross_pnl", trade.RealizedGrossPnl).
		Set("total_fees", trade.TotalFees).
		Where(squirrel.Eq{"id": trade.ID}).
		RunWith(runner)

	if _, err := updateQuery.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to update trade", err)
	}

	return nil
}

// insertFill writes a fill row using the given runner.
func (s *JournalState) insertFill(runner squirrel.BaseRunner, fill types.Fill) error {
	insertQuery := s.sq.
		Insert("fills").
		Columns("id", "trade_id", "side", "action", "quantity", "price", "fee", "closed_pnl", "executed_at", "raw_action", "forced").
		Values(
			fill.ID, fill.TradeID, fill.Side, fill.Action, fill.Quantity,
			fill.Price, fill.Fee, optionToNullFloat(fill.ClosedPnl),
			fill.ExecutedAt, fill.RawAction, fill.Forced,
		).
		RunWith(runner)

	if _, err := insertQuery.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to insert fill", err)
	}

	return nil
}

// Write exports the journal tables to Parquet files in the given directory.
func (s *JournalState) Write(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	for _, table := range []string{"accounts", "ledger_entries", "trades", "fills"} {
		target := filepath.Join(path, table+".parquet")

		_, err := s.db.Exec(fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET)`, table, target))
		if err != nil {
			return fmt.Errorf("failed to export %s to Parquet: %w", table, err)
		}
	}

	s.logger.Info("Exported journal to Parquet files", zap.String("path", path))

	return nil
}

func (s *JournalState) tradeSelect() squirrel.SelectBuilder {
	return s.sq.
		Select(
			"id", "account_id", "instrument", "asset_class", "exchange",
			"direction", "status", "opened_at", "closed_at",
			"open_quantity", "average_open_price", "market_price",
			"realized_gross_pnl", "total_fees", "initial_risk",
			"strategy", "notes",
		).
		From("trades")
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (types.Trade, error) {
	var (
		trade       types.Trade
		closedAt    sql.NullTime
		marketPrice sql.NullFloat64
		initialRisk sql.NullFloat64
	)

	err := row.Scan(
		&trade.ID,
		&trade.AccountID,
		&trade.Instrument,
		&trade.AssetClass,
		&trade.Exchange,
		&trade.Direction,
		&trade.Status,
		&trade.OpenedAt,
		&closedAt,
		&trade.OpenQuantity,
		&trade.AverageOpenPrice,
		&marketPrice,
		&trade.RealizedGrossPnl,
		&trade.TotalFees,
		&initialRisk,
		&trade.Strategy,
		&trade.Notes,
	)
	if err != nil {
		return types.Trade{}, err
	}

	trade.ClosedAt = nullTimeToOption(closedAt)
	trade.MarketPrice = nullFloatToOption(marketPrice)
	trade.InitialRisk = nullFloatToOption(initialRisk)

	return trade, nil
}

func optionToNullFloat(o optional.Option[float64]) sql.NullFloat64 {
	if o.IsNone() {
		return sql.NullFloat64{}
	}

	return sql.NullFloat64{Float64: o.Unwrap(), Valid: true}
}

func nullFloatToOption(n sql.NullFloat64) optional.Option[float64] {
	if !n.Valid {
		return optional.None[float64]()
	}

	return optional.Some(n.Float64)
}

func optionToNullString(o optional.Option[string]) sql.NullString {
	if o.IsNone() {
		return sql.NullString{}
	}

	return sql.NullString{String: o.Unwrap(), Valid: true}
}

func nullStringToOption(n sql.NullString) optional.Option[string] {
	if !n.Valid {
		return optional.None[string]()
	}

	return optional.Some(n.String)
}

func optionToNullTime(o optional.Option[time.Time]) sql.NullTime {
	if o.IsNone() {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: o.Unwrap(), Valid: true}
}

func nullTimeToOption(n sql.NullTime) optional.Option[time.Time] {
	if !n.Valid {
		return optional.None[time.Time]()
	}

	return optional.Some(n.Time)
}
