package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/trade-journal/internal/analytics"
	"github.com/rxtech-lab/trade-journal/internal/ingest"
	"github.com/rxtech-lab/trade-journal/internal/journal"
	"github.com/rxtech-lab/trade-journal/internal/logger"
	"github.com/rxtech-lab/trade-journal/internal/types"
)

// openEngine opens the journal database named by the --db flag and wraps it
// in an engine. The caller owns the returned state and must close it.
func openEngine(cmd *cli.Command) (*journal.Engine, *journal.JournalState, error) {
	log, err := logger.NewLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	state, err := journal.NewJournalState(log, cmd.String("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if err := state.Initialize(); err != nil {
		state.Close()

		return nil, nil, fmt.Errorf("failed to initialize journal database: %w", err)
	}

	return journal.NewEngine(state, nil, log), state, nil
}

// readCSVRows reads a CSV file into header-keyed rows, the shape the
// ingestion pipeline expects.
func readCSVRows(path string) ([]map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv file: %w", err)
	}

	if len(records) < 1 {
		return nil, fmt.Errorf("csv file %s has no header row", path)
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)

	for _, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, column := range header {
			if i < len(record) {
				row[column] = record[i]
			}
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// readMapping loads an ImportMapping from a YAML file.
func readMapping(path string) (ingest.ImportMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.ImportMapping{}, fmt.Errorf("failed to read mapping file: %w", err)
	}

	var mapping ingest.ImportMapping
	if err := yaml.Unmarshal(data, &mapping); err != nil {
		return ingest.ImportMapping{}, fmt.Errorf("failed to parse mapping file: %w", err)
	}

	return mapping, nil
}

func importAction(ctx context.Context, cmd *cli.Command) error {
	engine, state, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer state.Close()

	rows, err := readCSVRows(cmd.String("file"))
	if err != nil {
		return err
	}

	mapping, err := readMapping(cmd.String("mapping"))
	if err != nil {
		return err
	}

	bar := progressbar.Default(int64(len(rows)))
	engine.SetIngestProgress(func(done, total int) {
		bar.Add(1)
	})

	report, err := engine.IngestBatch(cmd.String("account"), rows, mapping)
	if err != nil {
		return err
	}

	fmt.Printf("\nimported: %d successful, %d failed, %d skipped\n",
		report.Successful, report.Failed, report.Skipped)

	for _, rowErr := range report.Errors {
		fmt.Printf("  row %d: %s\n", rowErr.Row, rowErr.Message)
	}

	return nil
}

func cashAction(kind types.EntryKind) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		engine, state, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer state.Close()

		amount := cmd.Float("amount")
		if kind == types.EntryKindWithdrawal {
			amount = -amount
		}

		entry, err := engine.RecordLedgerEntry(types.LedgerRequest{
			AccountID: cmd.String("account"),
			Kind:      kind,
			Amount:    amount,
			Memo:      cmd.String("memo"),
		})
		if err != nil {
			return err
		}

		fmt.Printf("recorded %s %v (entry %s)\n", entry.Kind, entry.Amount, entry.ID)

		return nil
	}
}

func balanceAction(ctx context.Context, cmd *cli.Command) error {
	engine, state, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer state.Close()

	info, err := engine.AccountInfo(cmd.String("account"))
	if err != nil {
		return err
	}

	fmt.Printf("balance: %v (realized pnl %v, fees %v)\n",
		info.Balance, info.RealizedPnL, info.TotalFees)

	return nil
}

func reportAction(ctx context.Context, cmd *cli.Command) error {
	engine, state, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer state.Close()

	report, err := engine.ComputeAnalytics(types.TradeFilter{
		AccountID: cmd.String("account"),
	})
	if err != nil {
		return err
	}

	if output := cmd.String("output"); output != "" {
		return analytics.WriteReport(output, report)
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	fmt.Print(string(data))

	return nil
}

func mappingSchemaAction(ctx context.Context, cmd *cli.Command) error {
	schema, err := ingest.MappingSchema()
	if err != nil {
		return fmt.Errorf("failed to generate mapping schema: %w", err)
	}

	fmt.Println(schema)

	return nil
}

func accountCreateAction(ctx context.Context, cmd *cli.Command) error {
	_, state, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer state.Close()

	account, err := state.CreateAccount(cmd.String("name"))
	if err != nil {
		return err
	}

	fmt.Printf("created account %s (%s)\n", account.Name, account.ID)

	return nil
}

func accountListAction(ctx context.Context, cmd *cli.Command) error {
	_, state, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer state.Close()

	accounts, err := state.ListAccounts(cmd.Bool("all"))
	if err != nil {
		return err
	}

	for _, account := range accounts {
		fmt.Printf("%s\t%s\n", account.ID, account.Name)
	}

	return nil
}

func markAction(ctx context.Context, cmd *cli.Command) error {
	engine, state, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer state.Close()

	result, err := engine.MarkToMarket(cmd.String("trade"), cmd.Float("price"))
	if err != nil {
		return err
	}

	fmt.Printf("unrealized pnl: %v (open %v @ avg %v)\n",
		result.UnrealizedPnl, result.OpenQuantity, result.AverageOpenPrice)

	return nil
}

func main() {
	dbFlag := &cli.StringFlag{
		Name:  "db",
		Usage: "Path to the journal database file (empty for in-memory)",
		Value: "journal.db",
	}
	accountFlag := &cli.StringFlag{
		Name:     "account",
		Aliases:  []string{"a"},
		Usage:    "Account id",
		Required: true,
	}

	cmd := &cli.Command{
		Name:  "journal",
		Usage: "Trading journal: positions, P&L, cash ledger, analytics",
		Commands: []*cli.Command{
			{
				Name:  "account",
				Usage: "Manage accounts",
				Commands: []*cli.Command{
					{
						Name:  "create",
						Usage: "Create a new account",
						Flags: []cli.Flag{
							dbFlag,
							&cli.StringFlag{Name: "name", Usage: "Account name", Required: true},
						},
						Action: accountCreateAction,
					},
					{
						Name:  "list",
						Usage: "List accounts",
						Flags: []cli.Flag{
							dbFlag,
							&cli.BoolFlag{Name: "all", Usage: "Include archived accounts"},
						},
						Action: accountListAction,
					},
				},
			},
			{
				Name:  "import",
				Usage: "Bulk-import fills from a CSV export",
				Flags: []cli.Flag{
					dbFlag,
					accountFlag,
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "CSV file to import", Required: true},
					&cli.StringFlag{Name: "mapping", Aliases: []string{"m"}, Usage: "YAML column mapping file", Required: true},
				},
				Action: importAction,
			},
			{
				Name:   "mapping-schema",
				Usage:  "Print the JSON schema of the import mapping format",
				Action: mappingSchemaAction,
			},
			{
				Name:  "deposit",
				Usage: "Record a cash deposit",
				Flags: []cli.Flag{
					dbFlag,
					accountFlag,
					&cli.FloatFlag{Name: "amount", Usage: "Deposit amount", Required: true},
					&cli.StringFlag{Name: "memo", Usage: "Optional memo"},
				},
				Action: cashAction(types.EntryKindDeposit),
			},
			{
				Name:  "withdraw",
				Usage: "Record a cash withdrawal",
				Flags: []cli.Flag{
					dbFlag,
					accountFlag,
					&cli.FloatFlag{Name: "amount", Usage: "Withdrawal amount", Required: true},
					&cli.StringFlag{Name: "memo", Usage: "Optional memo"},
				},
				Action: cashAction(types.EntryKindWithdrawal),
			},
			{
				Name:   "balance",
				Usage:  "Show the derived account balance",
				Flags:  []cli.Flag{dbFlag, accountFlag},
				Action: balanceAction,
			},
			{
				Name:  "mark",
				Usage: "Mark an open trade to market",
				Flags: []cli.Flag{
					dbFlag,
					&cli.StringFlag{Name: "trade", Usage: "Trade id", Required: true},
					&cli.FloatFlag{Name: "price", Usage: "Current market price", Required: true},
				},
				Action: markAction,
			},
			{
				Name:  "report",
				Usage: "Compute the analytics report",
				Flags: []cli.Flag{
					dbFlag,
					accountFlag,
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the YAML report to this file instead of stdout"},
				},
				Action: reportAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
