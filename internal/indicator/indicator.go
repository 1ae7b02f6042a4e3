// Package indicator enriches a chronologically ordered bar series with
// derived indicator fields. Enrichment is a pure function of the raw
// OHLCV history: recomputing on identical input yields bit-identical
// output, which upstream result caching relies on.
package indicator

import (
	"fmt"
	"math"
	"time"

	"backscan/internal/errtrack"
	"backscan/pkg/model"
)

const (
	EMAShort  = 9
	EMAMid    = 20
	EMALong   = 50
	ATRPeriod = 14
	RSIPeriod = 14
	VolPeriod = 20
)

// gapFactor flags a same-day gap wider than this many timeframe
// intervals as a data-insufficiency condition.
const gapFactor = 10

// Enrich populates the derived fields of bars in place and returns the
// slice. Fields stay NaN until enough history exists to seed them; a
// series too short for an indicator leaves that indicator unset for the
// whole series and reports a non-fatal data-insufficiency event.
func Enrich(bars []model.Bar, tf model.Timeframe, rep errtrack.Reporter) []model.Bar {
	if rep == nil {
		rep = errtrack.Noop{}
	}
	for i := range bars {
		bars[i].VWAP = math.NaN()
		bars[i].EMA9 = math.NaN()
		bars[i].EMA20 = math.NaN()
		bars[i].EMA50 = math.NaN()
		bars[i].AvgVolume20 = math.NaN()
		bars[i].ATR14 = math.NaN()
		bars[i].RSI14 = math.NaN()
		bars[i].PrevDayHigh = math.NaN()
		bars[i].PrevDayLow = math.NaN()
	}
	if len(bars) == 0 {
		return bars
	}

	computeVWAP(bars)
	computeEMA(bars, EMAShort, func(b *model.Bar, v float64) { b.EMA9 = v }, "ema9", rep)
	computeEMA(bars, EMAMid, func(b *model.Bar, v float64) { b.EMA20 = v }, "ema20", rep)
	computeEMA(bars, EMALong, func(b *model.Bar, v float64) { b.EMA50 = v }, "ema50", rep)
	computeAvgVolume(bars)
	computeATR(bars, rep)
	computeRSI(bars, rep)
	computePrevDay(bars)
	detectGaps(bars, tf, rep)

	return bars
}

// computeVWAP accumulates Σ(typicalPrice×volume)/Σ(volume), resetting at
// each calendar-day boundary. A zero cumulative volume (possible on a
// zero-volume first bar of the day) falls back to the close.
func computeVWAP(bars []model.Bar) {
	var sumPV, sumV float64
	for i := range bars {
		if i == 0 || !model.SameDay(bars[i].Time, bars[i-1].Time) {
			sumPV, sumV = 0, 0
		}
		b := &bars[i]
		sumPV += b.TypicalPrice() * float64(b.Volume)
		sumV += float64(b.Volume)
		if sumV == 0 {
			b.VWAP = b.Close
		} else {
			b.VWAP = sumPV / sumV
		}
	}
}

// computeEMA seeds with the simple average of the first period closes at
// index period−1, then applies ema = (close−prev)×k + prev, k=2/(period+1).
func computeEMA(bars []model.Bar, period int, set func(*model.Bar, float64), name string, rep errtrack.Reporter) {
	if len(bars) < period {
		ev := errtrack.NewEvent(errtrack.TypeDataInsufficiency, errtrack.SeverityWarning,
			fmt.Sprintf("%s needs %d bars, series has %d", name, period, len(bars)))
		ev.Context = errtrack.Context{Symbol: bars[0].Symbol, Timestamp: bars[len(bars)-1].Time}
		rep.Submit(ev)
		return
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += bars[i].Close
	}
	ema := sum / float64(period)
	set(&bars[period-1], ema)

	k := 2.0 / float64(period+1)
	for i := period; i < len(bars); i++ {
		ema = (bars[i].Close-ema)*k + ema
		set(&bars[i], ema)
	}
}

// computeAvgVolume fills the rolling 20-bar simple mean of volume,
// first valid at index 19.
func computeAvgVolume(bars []model.Bar) {
	var sum int64
	for i := range bars {
		sum += bars[i].Volume
		if i >= VolPeriod {
			sum -= bars[i-VolPeriod].Volume
		}
		if i >= VolPeriod-1 {
			bars[i].AvgVolume20 = float64(sum) / float64(VolPeriod)
		}
	}
}

// computeATR fills Wilder's ATR: true range seeded as a simple average
// over the first period bars, then atr = (prev×(period−1) + tr) / period.
func computeATR(bars []model.Bar, rep errtrack.Reporter) {
	if len(bars) < ATRPeriod {
		ev := errtrack.NewEvent(errtrack.TypeDataInsufficiency, errtrack.SeverityWarning,
			fmt.Sprintf("atr needs %d bars, series has %d", ATRPeriod, len(bars)))
		ev.Context = errtrack.Context{Symbol: bars[0].Symbol, Timestamp: bars[len(bars)-1].Time}
		rep.Submit(ev)
		return
	}

	var sum float64
	for i := 0; i < ATRPeriod; i++ {
		sum += trueRange(bars, i)
	}
	atr := sum / float64(ATRPeriod)
	bars[ATRPeriod-1].ATR14 = atr

	for i := ATRPeriod; i < len(bars); i++ {
		atr = (atr*float64(ATRPeriod-1) + trueRange(bars, i)) / float64(ATRPeriod)
		bars[i].ATR14 = atr
	}
}

func trueRange(bars []model.Bar, i int) float64 {
	hl := bars[i].High - bars[i].Low
	if i == 0 {
		return hl
	}
	pc := bars[i-1].Close
	tr := hl
	if v := math.Abs(bars[i].High - pc); v > tr {
		tr = v
	}
	if v := math.Abs(bars[i].Low - pc); v > tr {
		tr = v
	}
	return tr
}

// computeRSI fills Wilder's RSI(14), first valid at index 14 (needs one
// extra bar for the first close-to-close change). A zero average loss
// pins the value at 100.
func computeRSI(bars []model.Bar, rep errtrack.Reporter) {
	if len(bars) < RSIPeriod+1 {
		ev := errtrack.NewEvent(errtrack.TypeDataInsufficiency, errtrack.SeverityWarning,
			fmt.Sprintf("rsi needs %d bars, series has %d", RSIPeriod+1, len(bars)))
		ev.Context = errtrack.Context{Symbol: bars[0].Symbol, Timestamp: bars[len(bars)-1].Time}
		rep.Submit(ev)
		return
	}

	var gain, loss float64
	for i := 1; i <= RSIPeriod; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	avgGain := gain / float64(RSIPeriod)
	avgLoss := loss / float64(RSIPeriod)
	bars[RSIPeriod].RSI14 = rsiValue(avgGain, avgLoss)

	for i := RSIPeriod + 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		g, l := 0.0, 0.0
		if change > 0 {
			g = change
		} else {
			l = -change
		}
		avgGain = (avgGain*float64(RSIPeriod-1) + g) / float64(RSIPeriod)
		avgLoss = (avgLoss*float64(RSIPeriod-1) + l) / float64(RSIPeriod)
		bars[i].RSI14 = rsiValue(avgGain, avgLoss)
	}
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// computePrevDay fills each bar with the prior calendar day's high and
// low. Bars on the first day of the series stay NaN.
func computePrevDay(bars []model.Bar) {
	prevHigh, prevLow := math.NaN(), math.NaN()
	dayHigh, dayLow := bars[0].High, bars[0].Low

	for i := range bars {
		if i > 0 && !model.SameDay(bars[i].Time, bars[i-1].Time) {
			prevHigh, prevLow = dayHigh, dayLow
			dayHigh, dayLow = bars[i].High, bars[i].Low
		} else if i > 0 {
			if bars[i].High > dayHigh {
				dayHigh = bars[i].High
			}
			if bars[i].Low < dayLow {
				dayLow = bars[i].Low
			}
		}
		bars[i].PrevDayHigh = prevHigh
		bars[i].PrevDayLow = prevLow
	}
}

// detectGaps reports same-day holes wider than gapFactor timeframe
// intervals. Non-fatal: conditions over the gap simply see stale
// recurrences, the scan continues.
func detectGaps(bars []model.Bar, tf model.Timeframe, rep errtrack.Reporter) {
	d := tf.Duration()
	if d <= 0 {
		return
	}
	limit := time.Duration(gapFactor) * d
	for i := 1; i < len(bars); i++ {
		if !model.SameDay(bars[i].Time, bars[i-1].Time) {
			continue
		}
		if gap := bars[i].Time.Sub(bars[i-1].Time); gap > limit {
			ev := errtrack.NewEvent(errtrack.TypeDataInsufficiency, errtrack.SeverityWarning,
				fmt.Sprintf("time gap of %s in bar series", gap))
			ev.Context = errtrack.Context{Symbol: bars[i].Symbol, Timestamp: bars[i].Time}
			rep.Submit(ev)
		}
	}
}
