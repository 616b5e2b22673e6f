// Package analytics derives portfolio statistics from closed and open
// trades plus the cash ledger. Every function is pure: deterministic over
// its inputs, no mutation, no I/O (report writing excepted).
package analytics

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EquityPoint is one sample of the account equity curve, taken at a ledger
// event.
type EquityPoint struct {
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	// Equity is the running sum of ledger amounts up to this event.
	Equity float64 `yaml:"equity" json:"equity"`
	// Drawdown is (equity - runningPeak) / runningPeak, zero or negative.
	Drawdown float64 `yaml:"drawdown" json:"drawdown"`
}

// TradeResult summarizes closed-trade outcomes.
type TradeResult struct {
	// Count of all closed trades.
	NumberOfTrades int `yaml:"number_of_trades" json:"number_of_trades"`
	// Count of closed trades with positive net pnl.
	NumberOfWinningTrades int `yaml:"number_of_winning_trades" json:"number_of_winning_trades"`
	// Count of closed trades with negative net pnl.
	NumberOfLosingTrades int `yaml:"number_of_losing_trades" json:"number_of_losing_trades"`
	// Count of closed trades with zero net pnl.
	NumberOfBreakEvenTrades int `yaml:"number_of_break_even_trades" json:"number_of_break_even_trades"`
	// Win rate over all closed trades.
	WinRate float64 `yaml:"win_rate" json:"win_rate"`
	// Maximum drawdown of the equity curve, as a negative fraction of the
	// running peak.
	MaxDrawdown float64 `yaml:"max_drawdown" json:"max_drawdown"`
}

// TradePnl summarizes realized P&L across closed trades.
type TradePnl struct {
	RealizedGrossPnl float64 `yaml:"realized_gross_pnl" json:"realized_gross_pnl"`
	RealizedNetPnl   float64 `yaml:"realized_net_pnl" json:"realized_net_pnl"`
	TotalFees        float64 `yaml:"total_fees" json:"total_fees"`
	// MaximumProfit is the best single-trade net pnl.
	MaximumProfit float64 `yaml:"maximum_profit" json:"maximum_profit"`
	// MaximumLoss is the worst single-trade net pnl.
	MaximumLoss float64 `yaml:"maximum_loss" json:"maximum_loss"`
}

// StreakResult holds run-length statistics over the ordered outcome
// sequence of closed trades.
type StreakResult struct {
	LongestWinStreak  int `yaml:"longest_win_streak" json:"longest_win_streak"`
	LongestLossStreak int `yaml:"longest_loss_streak" json:"longest_loss_streak"`
}

// RBucket is one fixed range of the R-multiple distribution.
type RBucket struct {
	Label string `yaml:"label" json:"label"`
	// Min and Max bound the bucket; open tails use infinities.
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
	Count int     `yaml:"count" json:"count"`
}

// Report is the full analytics output for a scope of trades and entries.
type Report struct {
	GeneratedAt time.Time    `yaml:"generated_at" json:"generated_at"`
	TradeResult TradeResult  `yaml:"trade_result" json:"trade_result"`
	TradePnl    TradePnl     `yaml:"trade_pnl" json:"trade_pnl"`
	Streaks     StreakResult `yaml:"streaks" json:"streaks"`
	// RDistribution only covers closed trades with an initial risk set.
	RDistribution []RBucket `yaml:"r_distribution" json:"r_distribution"`
	// Kelly is nil when the sample has no wins or no losses, or when the
	// average loss is zero.
	Kelly       *float64      `yaml:"kelly" json:"kelly"`
	EquityCurve []EquityPoint `yaml:"equity_curve" json:"equity_curve"`
}

// WriteReport writes an analytics report to a YAML file.
func WriteReport(path string, report Report) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report to file: %w", err)
	}

	return nil
}
