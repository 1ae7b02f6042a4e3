// Package scan runs the bar-by-bar position simulation: one forward
// pass over an enriched bar series, a Flat→Open→Closed state machine
// per position, and stop/target/timeout exit handling.
package scan

import (
	"context"
	"fmt"
	"time"

	"backscan/internal/condition"
	"backscan/internal/errtrack"
	"backscan/pkg/model"
)

// cancelCheckInterval is how often (in bars) the context is polled.
const cancelCheckInterval = 256

// ProgressCallback is called with progress updates
type ProgressCallback func(processed, total int)

// Session bounds the hours in which new entries may originate. Bars
// outside the session still update excursions and run exits on open
// positions. A zero Session admits every bar.
type Session struct {
	OpenMinute  int // minutes since midnight, inclusive
	CloseMinute int // exclusive
}

func (s Session) Contains(b model.Bar) bool {
	if s.CloseMinute == 0 {
		return true
	}
	m := int(b.MinuteOfDay())
	return m >= s.OpenMinute && m < s.CloseMinute
}

// Scanner simulates one strategy over one enriched bar series. A single
// scan is strictly sequential and deterministic; distinct Scanner values
// share no state and may run concurrently.
type Scanner struct {
	contracts    map[string]model.ContractSpec
	session      Session
	progressFunc ProgressCallback
}

// NewScanner creates a scanner over the given contract spec table.
func NewScanner(contracts map[string]model.ContractSpec, session Session) *Scanner {
	return &Scanner{contracts: contracts, session: session}
}

// SetProgressCallback sets the progress callback function
func (s *Scanner) SetProgressCallback(fn ProgressCallback) {
	s.progressFunc = fn
}

// Run executes the simulation over the whole bar slice. See RunWindow.
func (s *Scanner) Run(ctx context.Context, strat *model.Strategy, bars []model.Bar, rep errtrack.Reporter) ([]model.TradeResult, error) {
	return s.RunWindow(ctx, strat, bars, time.Time{}, rep)
}

// RunWindow executes the simulation and returns trades in the
// chronological order positions closed. Bars before entriesFrom are
// warmup: they seed indicator recurrences and update open positions but
// never originate entries (callers size the warmup with
// condition.Lookback). Non-fatal evaluation and data events go to rep;
// a ValidationError or cancellation fails the whole invocation and
// surfaces no partial trades.
func (s *Scanner) RunWindow(ctx context.Context, strat *model.Strategy, bars []model.Bar, entriesFrom time.Time, rep errtrack.Reporter) ([]model.TradeResult, error) {
	if err := Validate(strat, s.contracts); err != nil {
		return nil, err
	}
	if rep == nil {
		rep = errtrack.Noop{}
	}

	spec := s.contracts[strat.Symbol]
	eval := condition.NewEvaluator(strat.ID, rep)
	bk := newBook(strat.MaxPositions)
	trades := make([]model.TradeResult, 0)

	for i := range bars {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
			}
		}

		bar := bars[i]
		var prev *model.Bar
		if i > 0 {
			prev = &bars[i-1]
		}

		exitSignal := len(strat.Exit) > 0 && eval.EvalAll(strat.Exit, bar, prev)

		// Open positions first: risk is tracked on every bar, in or
		// out of session, before any new entry on the same bar.
		for idx := range bk.slots {
			p := &bk.slots[idx]
			if !p.open || p.entryIndex >= i {
				continue
			}
			p.updateExcursions(bar)
			if price, outcome, hit := p.checkExit(bar); hit {
				trades = append(trades, p.close(bar, i, price, outcome, spec, strat.PositionSize))
				bk.release()
				continue
			}
			if exitSignal {
				outcome := model.OutcomeLoss
				if (bar.Close-p.entryPrice)*p.direction.Sign() > 0 {
					outcome = model.OutcomeWin
				}
				trades = append(trades, p.close(bar, i, bar.Close, outcome, spec, strat.PositionSize))
				bk.release()
			}
		}

		if !bar.Time.Before(entriesFrom) && s.session.Contains(bar) && bk.openCount < strat.MaxPositions {
			if eval.EvalAll(strat.Entry, bar, prev) {
				s.openPositions(strat, bar, i, bk, rep)
			}
		}

		if s.progressFunc != nil {
			s.progressFunc(i+1, len(bars))
		}
	}

	// Force-close whatever is still open at the end of the range.
	if len(bars) > 0 {
		last := bars[len(bars)-1]
		lastIdx := len(bars) - 1
		for idx := range bk.slots {
			p := &bk.slots[idx]
			if !p.open {
				continue
			}
			trades = append(trades, p.close(last, lastIdx, last.Close, model.OutcomeTimeout, spec, strat.PositionSize))
			bk.release()
		}
	}

	return trades, nil
}

// openPositions opens one position per traded side, bounded by the
// strategy's position limit. Entries fill at the signal bar's close.
func (s *Scanner) openPositions(strat *model.Strategy, bar model.Bar, index int, bk *book, rep errtrack.Reporter) {
	for _, dir := range tradedSides(strat.Direction) {
		if bk.openCount >= strat.MaxPositions {
			return
		}
		stopDist, targetDist, ok := exitDistances(strat, bar)
		if !ok {
			ev := errtrack.NewEvent(errtrack.TypeDataInsufficiency, errtrack.SeverityWarning,
				"atr not seeded at entry bar, entry skipped")
			ev.Context = errtrack.Context{Symbol: bar.Symbol, Timestamp: bar.Time, StrategyID: strat.ID}
			rep.Submit(ev)
			return
		}
		bk.add(position{
			direction:  dir,
			entryIndex: index,
			entryTime:  bar.Time,
			entryPrice: bar.Close,
			stopDist:   stopDist,
			targetDist: targetDist,
		})
	}
}

func tradedSides(d model.Direction) []model.Direction {
	switch d {
	case model.DirectionShort:
		return []model.Direction{model.DirectionShort}
	case model.DirectionBoth:
		return []model.Direction{model.DirectionLong, model.DirectionShort}
	default:
		return []model.Direction{model.DirectionLong}
	}
}

// exitDistances converts the stop and target definitions into absolute
// price distances from the entry bar. ATR distances need a seeded ATR.
func exitDistances(strat *model.Strategy, entry model.Bar) (stop, target float64, ok bool) {
	stop, ok = exitDistance(strat.StopLoss.Type, strat.StopLoss.Value, entry)
	if !ok {
		return 0, 0, false
	}
	target, ok = exitDistance(strat.TakeProfit.Type, strat.TakeProfit.Value, entry)
	if !ok {
		return 0, 0, false
	}
	return stop, target, true
}

func exitDistance(t model.ExitType, v float64, entry model.Bar) (float64, bool) {
	switch t {
	case model.ExitPercentage:
		return entry.Close * v / 100, true
	case model.ExitATR:
		if !model.IsSet(entry.ATR14) {
			return 0, false
		}
		return v * entry.ATR14, true
	default: // points
		return v, true
	}
}
