// Package condition resolves a condition's text operand against a bar
// and applies comparison or crossover semantics. Operand resolution is
// an ordered chain of fallible parse attempts, each returning a
// present/absent result and falling through on absence: decimal literal,
// "<factor>x_<indicator>" multiplier, "HH:MM" time of day, then a named
// indicator lookup.
package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"backscan/internal/errtrack"
	"backscan/pkg/model"
)

// Evaluator applies conditions to enriched bars. Unresolvable operands
// make the condition false and report one evaluation event per distinct
// failed expression for the life of the evaluator (one scan).
type Evaluator struct {
	strategyID string
	rep        errtrack.Reporter
	reported   map[string]bool
}

func NewEvaluator(strategyID string, rep errtrack.Reporter) *Evaluator {
	if rep == nil {
		rep = errtrack.Noop{}
	}
	return &Evaluator{
		strategyID: strategyID,
		rep:        rep,
		reported:   make(map[string]bool),
	}
}

// EvalAll applies AND semantics: every condition must hold on the same
// bar. prev may be nil on the first bar of a window, in which case
// crossover conditions cannot trigger.
func (e *Evaluator) EvalAll(conds []model.Condition, cur model.Bar, prev *model.Bar) bool {
	for _, c := range conds {
		if !e.Eval(c, cur, prev) {
			return false
		}
	}
	return true
}

// Eval evaluates a single condition on the current bar.
func (e *Evaluator) Eval(c model.Condition, cur model.Bar, prev *model.Bar) bool {
	lhs, ok := e.resolveIndicator(cur, c.Indicator)
	if !ok {
		return false
	}
	rhs, ok := e.resolveOperand(cur, c.Value)
	if !ok {
		return false
	}

	switch c.Operator {
	case model.OpGreater:
		return lhs > rhs
	case model.OpLess:
		return lhs < rhs
	case model.OpGreaterEqual:
		return lhs >= rhs
	case model.OpLessEqual:
		return lhs <= rhs
	case model.OpEqual:
		return lhs == rhs
	case model.OpCrossAbove, model.OpCrossBelow:
		if prev == nil {
			return false
		}
		plhs, ok := e.resolveIndicator(*prev, c.Indicator)
		if !ok {
			return false
		}
		prhs, ok := e.resolveOperand(*prev, c.Value)
		if !ok {
			return false
		}
		if c.Operator == model.OpCrossAbove {
			return plhs <= prhs && lhs > rhs
		}
		return plhs >= prhs && lhs < rhs
	default:
		e.reportOnce(cur, string(c.Operator),
			fmt.Sprintf("unsupported operator %q", c.Operator), "")
		return false
	}
}

// resolveOperand runs the parse chain, first match wins.
func (e *Evaluator) resolveOperand(b model.Bar, text string) (float64, bool) {
	if v, ok := parseLiteral(text); ok {
		return v, true
	}
	if factor, name, ok := parseMultiplier(text); ok {
		v, ok := e.resolveIndicator(b, name)
		if !ok {
			return 0, false
		}
		return factor * v, true
	}
	if v, ok := parseTimeOfDay(text); ok {
		return v, true
	}
	if _, known := lookup(b, normalize(text)); known {
		return e.resolveIndicator(b, text)
	}

	e.reportOnce(b, text,
		fmt.Sprintf("cannot resolve condition value %q", text), suggestFix(text))
	return 0, false
}

// resolveIndicator looks up a named indicator on the bar. Unknown names
// report an evaluation event; names whose recurrence is not yet seeded
// resolve to absent without an event (reported as data insufficiency at
// enrichment time).
func (e *Evaluator) resolveIndicator(b model.Bar, name string) (float64, bool) {
	v, known := lookup(b, normalize(name))
	if !known {
		e.reportOnce(b, name,
			fmt.Sprintf("unknown indicator %q", name), suggestFix(name))
		return 0, false
	}
	if !model.IsSet(v) {
		return 0, false
	}
	return v, true
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// lookup maps an indicator name to its value on the bar. The second
// return reports whether the name is known at all.
func lookup(b model.Bar, name string) (float64, bool) {
	switch name {
	case "open":
		return b.Open, true
	case "high":
		return b.High, true
	case "low":
		return b.Low, true
	case "close", "price":
		return b.Close, true
	case "volume":
		return float64(b.Volume), true
	case "vwap":
		return b.VWAP, true
	case "ema9":
		return b.EMA9, true
	case "ema20":
		return b.EMA20, true
	case "ema50":
		return b.EMA50, true
	case "rsi":
		return b.RSI14, true
	case "atr":
		return b.ATR14, true
	case "average", "avg_volume", "average_volume":
		return b.AvgVolume20, true
	case "prev_day_high":
		return b.PrevDayHigh, true
	case "prev_day_low":
		return b.PrevDayLow, true
	case "time":
		return b.MinuteOfDay(), true
	default:
		return 0, false
	}
}

func parseLiteral(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseMultiplier matches "<factor>x_<indicator>", e.g. "1.5x_average".
func parseMultiplier(s string) (factor float64, name string, ok bool) {
	idx := strings.Index(s, "x_")
	if idx <= 0 {
		return 0, "", false
	}
	factor, err := strconv.ParseFloat(s[:idx], 64)
	if err != nil {
		return 0, "", false
	}
	name = s[idx+2:]
	if name == "" {
		return 0, "", false
	}
	return factor, name, true
}

// parseTimeOfDay matches "HH:MM" and returns minutes since midnight.
func parseTimeOfDay(s string) (float64, bool) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return float64(h*60 + m), true
}

var mulPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*\*\s*([a-zA-Z_][a-zA-Z0-9_]*)$`)

// suggestFix produces a best-effort correction for a failed expression.
// The common mistake is spelling a multiplier as "N * indicator".
func suggestFix(expr string) string {
	if m := mulPattern.FindStringSubmatch(strings.TrimSpace(expr)); m != nil {
		return fmt.Sprintf("use %sx_%s", m[1], strings.ToLower(m[2]))
	}
	return ""
}

func (e *Evaluator) reportOnce(b model.Bar, expr, msg, fix string) {
	if e.reported[expr] {
		return
	}
	e.reported[expr] = true

	ev := errtrack.NewEvent(errtrack.TypeEvaluation, errtrack.SeverityError, msg)
	ev.FailedExpression = expr
	ev.SuggestedFix = fix
	ev.Context = errtrack.Context{
		Symbol:     b.Symbol,
		Timestamp:  b.Time,
		StrategyID: e.strategyID,
	}
	e.rep.Submit(ev)
}
