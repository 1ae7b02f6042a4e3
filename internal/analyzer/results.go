// Package analyzer aggregates a scan's trade list into performance
// statistics. Every metric is defined at the edges: zero trades, zero
// losses and constant pnl all produce finite, explicit values. Narrative
// insight text is an external collaborator's job; this package only
// produces the numeric payload.
package analyzer

import (
	"math"
	"sort"
	"time"

	"backscan/pkg/model"
)

// ProfitFactorUnbounded marks a profit factor with gross profit and no
// gross loss. A finite sentinel rather than +Inf so results survive JSON
// encoding.
const ProfitFactorUnbounded = math.MaxFloat64

// annualization assumes one round trip per trading day.
const annualization = 252

// rankedTrades is how many best/worst trades a result carries.
const rankedTrades = 10

// Analyze computes the aggregate result for one scan. trades must be in
// the chronological order positions closed; an empty list is valid.
//
// WinRate is the share of trades with positive pnl, regardless of how
// they closed: a timeout that force-closes profitable counts toward
// WinRate but stays under TimeoutTrades, so WinRate can differ from
// WinningTrades/TotalTrades. The outcome counters classify exit causes,
// WinRate measures profitability.
func Analyze(trades []model.TradeResult, strat *model.Strategy, period string, scanTime time.Duration) *model.StrategyResult {
	res := &model.StrategyResult{
		StrategyID:   strat.ID,
		StrategyName: strat.Name,
		Symbol:       strat.Symbol,
		Period:       period,
		TotalTrades:  len(trades),
		BestTrades:   []model.TradeResult{},
		WorstTrades:  []model.TradeResult{},
		ScanTime:     scanTime,
	}
	if len(trades) == 0 {
		return res
	}

	var grossProfit, grossLoss float64
	var wins, losses int
	for _, t := range trades {
		res.TotalPnL += t.PnL
		switch {
		case t.PnL > 0:
			wins++
			grossProfit += t.PnL
		case t.PnL < 0:
			losses++
			grossLoss += t.PnL
		}
		switch t.Outcome {
		case model.OutcomeWin:
			res.WinningTrades++
		case model.OutcomeLoss:
			res.LosingTrades++
		case model.OutcomeTimeout:
			res.TimeoutTrades++
		}
	}

	res.WinRate = float64(wins) / float64(len(trades))
	res.GrossProfit = grossProfit
	res.GrossLoss = grossLoss
	if wins > 0 {
		res.AvgWin = grossProfit / float64(wins)
	}
	if losses > 0 {
		res.AvgLoss = grossLoss / float64(losses)
	}

	res.MaxDrawdown = maxDrawdown(trades)
	res.ProfitFactor = profitFactor(grossProfit, grossLoss)
	res.SharpeRatio = sharpe(trades)
	res.BestTrades, res.WorstTrades = rankTrades(trades)

	return res
}

// maxDrawdown is the minimum of (cumulativePnl − runningPeak) over the
// chronological cumulative-pnl sequence; zero or negative.
func maxDrawdown(trades []model.TradeResult) float64 {
	var cum, peak, maxDD float64
	for _, t := range trades {
		cum += t.PnL
		if cum > peak {
			peak = cum
		}
		if dd := cum - peak; dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func profitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return ProfitFactorUnbounded
		}
		return 0
	}
	return grossProfit / math.Abs(grossLoss)
}

// sharpe is mean per-trade pnl over its standard deviation, annualized
// by √252. Zero when the deviation is zero (≤1 trade or all-equal pnl).
func sharpe(trades []model.TradeResult) float64 {
	returns := make([]float64, len(trades))
	for i, t := range trades {
		returns[i] = t.PnL
	}
	std := stdDev(returns)
	if std == 0 {
		return 0
	}
	return average(returns) / std * math.Sqrt(annualization)
}

// rankTrades returns the top and bottom trades by pnl, ties broken by
// earlier entry time first. Each list gets its own full ordering so the
// tie-break holds at the cutoff too: slicing the tail of the descending
// sort would hand the worst list the later entries of a pnl tie.
func rankTrades(trades []model.TradeResult) (best, worst []model.TradeResult) {
	desc := make([]model.TradeResult, len(trades))
	copy(desc, trades)
	sort.SliceStable(desc, func(i, j int) bool {
		if desc[i].PnL != desc[j].PnL {
			return desc[i].PnL > desc[j].PnL
		}
		return desc[i].EntryTime.Before(desc[j].EntryTime)
	})

	asc := make([]model.TradeResult, len(trades))
	copy(asc, trades)
	sort.SliceStable(asc, func(i, j int) bool {
		if asc[i].PnL != asc[j].PnL {
			return asc[i].PnL < asc[j].PnL
		}
		return asc[i].EntryTime.Before(asc[j].EntryTime)
	})

	n := rankedTrades
	if len(trades) < n {
		n = len(trades)
	}
	best = append([]model.TradeResult{}, desc[:n]...)
	worst = append([]model.TradeResult{}, asc[:n]...)
	return best, worst
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	avg := average(values)
	var sumSquares float64
	for _, v := range values {
		sumSquares += (v - avg) * (v - avg)
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}
