package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/trade-journal/internal/types"
)

// EquityCurve builds the running equity series from ledger entries: the
// cumulative sum of all cash movements (deposits, withdrawals, trade cash
// effects, fees, adjustments), sampled per event in time order.
func EquityCurve(entries []types.LedgerEntry) []EquityPoint {
	ordered := make([]types.LedgerEntry, len(entries))
	copy(ordered, entries)

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	curve := make([]EquityPoint, 0, len(ordered))
	equity := decimal.Zero
	peak := decimal.Zero

	for _, entry := range ordered {
		equity = equity.Add(decimal.NewFromFloat(entry.Amount))

		if equity.GreaterThan(peak) {
			peak = equity
		}

		drawdown := 0.0
		if peak.IsPositive() {
			drawdown, _ = equity.Sub(peak).Div(peak).Float64()
		}

		equityFloat, _ := equity.Float64()
		curve = append(curve, EquityPoint{
			Timestamp: entry.CreatedAt,
			Equity:    equityFloat,
			Drawdown:  drawdown,
		})
	}

	return curve
}

// MaxDrawdown returns the deepest drawdown of the curve as a negative
// fraction of the running peak. Zero for an empty or monotonic curve.
func MaxDrawdown(curve []EquityPoint) float64 {
	maxDrawdown := 0.0

	for _, point := range curve {
		if point.Drawdown < maxDrawdown {
			maxDrawdown = point.Drawdown
		}
	}

	return maxDrawdown
}

// closedByCloseTime returns the closed trades ordered by close time.
func closedByCloseTime(trades []types.Trade) []types.Trade {
	closed := make([]types.Trade, 0, len(trades))

	for _, trade := range trades {
		if trade.Status == types.TradeStatusClosed {
			closed = append(closed, trade)
		}
	}

	sort.SliceStable(closed, func(i, j int) bool {
		left := closed[i].ClosedAt.TakeOr(time.Time{})
		right := closed[j].ClosedAt.TakeOr(time.Time{})

		return left.Before(right)
	})

	return closed
}

// Streaks computes the longest win and loss runs over the ordered outcome
// sequence of closed trades. Break-even trades end both kinds of streak.
func Streaks(trades []types.Trade) StreakResult {
	result := StreakResult{
		LongestWinStreak:  0,
		LongestLossStreak: 0,
	}

	currentWin := 0
	currentLoss := 0

	for _, trade := range closedByCloseTime(trades) {
		net := trade.RealizedNetPnl()

		switch {
		case net > 0:
			currentWin++
			currentLoss = 0
		case net < 0:
			currentLoss++
			currentWin = 0
		default:
			currentWin = 0
			currentLoss = 0
		}

		if currentWin > result.LongestWinStreak {
			result.LongestWinStreak = currentWin
		}

		if currentLoss > result.LongestLossStreak {
			result.LongestLossStreak = currentLoss
		}
	}

	return result
}

// rBucketEdges are the fixed R-multiple bucket boundaries.
var rBucketEdges = []float64{-3, -2, -1, 0, 1, 2, 3}

// RMultiples buckets closed trades by realized net P&L expressed as a
// multiple of the trade's initial risk. Trades without an initial risk (or
// with a non-positive one) are left out of the distribution.
func RMultiples(trades []types.Trade) []RBucket {
	buckets := make([]RBucket, 0, len(rBucketEdges)+1)

	low := math.Inf(-1)
	for _, edge := range rBucketEdges {
		buckets = append(buckets, RBucket{
			Label: bucketLabel(low, edge),
			Min:   low,
			Max:   edge,
			Count: 0,
		})
		low = edge
	}

	buckets = append(buckets, RBucket{
		Label: bucketLabel(low, math.Inf(1)),
		Min:   low,
		Max:   math.Inf(1),
		Count: 0,
	})

	for _, trade := range trades {
		if trade.Status != types.TradeStatusClosed {
			continue
		}

		risk := trade.InitialRisk.TakeOr(0)
		if risk <= 0 {
			continue
		}

		r := trade.RealizedNetPnl() / risk

		for i := range buckets {
			if r >= buckets[i].Min && r < buckets[i].Max {
				buckets[i].Count++

				break
			}
		}
	}

	return buckets
}

func bucketLabel(low, high float64) string {
	switch {
	case math.IsInf(low, -1):
		return "< " + formatEdge(high) + "R"
	case math.IsInf(high, 1):
		return ">= " + formatEdge(low) + "R"
	default:
		return formatEdge(low) + "R to " + formatEdge(high) + "R"
	}
}

func formatEdge(edge float64) string {
	return decimal.NewFromFloat(edge).String()
}

// Kelly computes the Kelly criterion over closed trades:
// winRate - (1-winRate) / (avgWin / avgLoss). It is undefined (None) when
// the sample lacks a winning or a losing trade, or when the average loss
// is zero.
func Kelly(trades []types.Trade) optional.Option[float64] {
	var (
		wins      int
		losses    int
		winTotal  decimal.Decimal
		lossTotal decimal.Decimal
	)

	for _, trade := range trades {
		if trade.Status != types.TradeStatusClosed {
			continue
		}

		net := trade.RealizedNetPnl()

		switch {
		case net > 0:
			wins++
			winTotal = winTotal.Add(decimal.NewFromFloat(net))
		case net < 0:
			losses++
			lossTotal = lossTotal.Add(decimal.NewFromFloat(net).Abs())
		}
	}

	if wins == 0 || losses == 0 {
		return optional.None[float64]()
	}

	avgWin := winTotal.Div(decimal.NewFromInt(int64(wins)))
	avgLoss := lossTotal.Div(decimal.NewFromInt(int64(losses)))

	if avgLoss.IsZero() {
		return optional.None[float64]()
	}

	winRate := float64(wins) / float64(wins+losses)
	ratio, _ := avgWin.Div(avgLoss).Float64()

	return optional.Some(winRate - (1-winRate)/ratio)
}

// BuildReport assembles the full analytics report for a set of trades and
// ledger entries.
func BuildReport(trades []types.Trade, entries []types.LedgerEntry) Report {
	curve := EquityCurve(entries)
	closed := closedByCloseTime(trades)

	result := TradeResult{
		NumberOfTrades:          len(closed),
		NumberOfWinningTrades:   0,
		NumberOfLosingTrades:    0,
		NumberOfBreakEvenTrades: 0,
		WinRate:                 0,
		MaxDrawdown:             MaxDrawdown(curve),
	}

	pnl := TradePnl{
		RealizedGrossPnl: 0,
		RealizedNetPnl:   0,
		TotalFees:        0,
		MaximumProfit:    0,
		MaximumLoss:      0,
	}

	gross := decimal.Zero
	net := decimal.Zero
	fees := decimal.Zero

	for _, trade := range closed {
		tradeNet := trade.RealizedNetPnl()

		switch {
		case tradeNet > 0:
			result.NumberOfWinningTrades++
		case tradeNet < 0:
			result.NumberOfLosingTrades++
		default:
			result.NumberOfBreakEvenTrades++
		}

		gross = gross.Add(decimal.NewFromFloat(trade.RealizedGrossPnl))
		net = net.Add(decimal.NewFromFloat(tradeNet))
		fees = fees.Add(decimal.NewFromFloat(trade.TotalFees))

		if tradeNet > pnl.MaximumProfit {
			pnl.MaximumProfit = tradeNet
		}

		if tradeNet < pnl.MaximumLoss {
			pnl.MaximumLoss = tradeNet
		}
	}

	if len(closed) > 0 {
		result.WinRate = float64(result.NumberOfWinningTrades) / float64(len(closed))
	}

	pnl.RealizedGrossPnl, _ = gross.Float64()
	pnl.RealizedNetPnl, _ = net.Float64()
	pnl.TotalFees, _ = fees.Float64()

	var kelly *float64
	if k := Kelly(trades); k.IsSome() {
		value := k.Unwrap()
		kelly = &value
	}

	return Report{
		GeneratedAt:   time.Now().UTC(),
		TradeResult:   result,
		TradePnl:      pnl,
		Streaks:       Streaks(trades),
		RDistribution: RMultiples(trades),
		Kelly:         kelly,
		EquityCurve:   curve,
	}
}
