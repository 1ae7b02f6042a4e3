package scan

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"backscan/internal/errtrack"
	"backscan/pkg/model"
)

var testContracts = map[string]model.ContractSpec{
	"TEST": {PointValue: 1, TickSize: 0.25},
}

func testStrategy() *model.Strategy {
	return &model.Strategy{
		ID:           "s1",
		Name:         "test strategy",
		Symbol:       "TEST",
		Direction:    model.DirectionLong,
		Timeframe:    model.TF1m,
		MaxPositions: 1,
		PositionSize: 1,
		Entry: []model.Condition{
			{Indicator: "close", Operator: model.OpGreater, Value: "0"},
		},
		StopLoss:   &model.StopLoss{Type: model.ExitPoints, Value: 10},
		TakeProfit: &model.TakeProfit{Type: model.ExitPoints, Value: 20},
	}
}

// mkBar builds a minute bar i minutes into a fixed session morning.
func mkBar(i int, open, high, low, close float64) model.Bar {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	return model.Bar{
		Symbol: "TEST",
		Time:   base.Add(time.Duration(i) * time.Minute),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: 1000,
	}
}

// flatBar keeps the range tight so neither stop nor target can trigger.
func flatBar(i int, close float64) model.Bar {
	return mkBar(i, close, close+0.5, close-0.5, close)
}

func TestStopPrecedenceOnSameBar(t *testing.T) {
	strat := testStrategy()
	strat.Entry = []model.Condition{
		{Indicator: "close", Operator: model.OpGreaterEqual, Value: "100"},
	}

	// Tighten the target so the bar breaches both levels at once.
	strat.TakeProfit = &model.TakeProfit{Type: model.ExitPoints, Value: 10}

	bars := []model.Bar{
		flatBar(0, 100),            // entry fills at 100
		mkBar(1, 100, 111, 89, 95), // breaches the 110 target and the 90 stop
	}

	sc := NewScanner(testContracts, Session{})
	trades, err := sc.Run(context.Background(), strat, bars, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	tr := trades[0]
	if tr.Outcome != model.OutcomeLoss {
		t.Errorf("stop must win a same-bar tie, got outcome %s", tr.Outcome)
	}
	if tr.ExitPrice != 90 {
		t.Errorf("exit price = %f, want 90", tr.ExitPrice)
	}
	if tr.PnL != -10 {
		t.Errorf("pnl = %f, want -10", tr.PnL)
	}
	if tr.MAE != 11 || tr.MFE != 11 {
		t.Errorf("mae/mfe = %f/%f, want 11/11", tr.MAE, tr.MFE)
	}
	if tr.BarsHeld != 1 {
		t.Errorf("bars held = %d, want 1", tr.BarsHeld)
	}
}

func TestStopExitOnWideRangeBar(t *testing.T) {
	strat := testStrategy() // stop 10 points, target 20 points
	strat.Entry = []model.Condition{
		{Indicator: "close", Operator: model.OpGreaterEqual, Value: "100"},
	}

	bars := []model.Bar{
		flatBar(0, 100),
		mkBar(1, 100, 111, 89, 95), // 89 breaches the 90 stop; 111 stays under the 120 target
	}

	sc := NewScanner(testContracts, Session{})
	trades, err := sc.Run(context.Background(), strat, bars, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	tr := trades[0]
	if tr.Outcome != model.OutcomeLoss || tr.ExitPrice != 90 {
		t.Errorf("outcome=%s exit=%f, want loss at 90", tr.Outcome, tr.ExitPrice)
	}
	if tr.MAE != 11 || tr.MFE != 11 {
		t.Errorf("mae/mfe = %f/%f, want 11/11 from the bar's full range", tr.MAE, tr.MFE)
	}
}

func TestCrossoverEntersOnceOnCrossingBar(t *testing.T) {
	strat := testStrategy()
	strat.MaxPositions = 3
	strat.Entry = []model.Condition{
		{Indicator: "close", Operator: model.OpCrossAbove, Value: "vwap"},
	}

	bars := []model.Bar{
		flatBar(0, 99),
		flatBar(1, 101),
		flatBar(2, 102),
		flatBar(3, 103),
	}
	for i := range bars {
		bars[i].VWAP = 100
	}

	sc := NewScanner(testContracts, Session{})
	trades, err := sc.Run(context.Background(), strat, bars, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("crossover should enter exactly once, got %d trades", len(trades))
	}

	tr := trades[0]
	if tr.EntryPrice != 101 {
		t.Errorf("entry price = %f, want the crossing bar's close 101", tr.EntryPrice)
	}
	if tr.Outcome != model.OutcomeTimeout {
		t.Errorf("outcome = %s, want timeout at end of range", tr.Outcome)
	}
	if tr.ExitPrice != 103 {
		t.Errorf("exit price = %f, want final close 103", tr.ExitPrice)
	}
}

func TestMaxPositionsBlocksNewEntries(t *testing.T) {
	strat := testStrategy() // entry always true, max 1

	bars := []model.Bar{flatBar(0, 100), flatBar(1, 100), flatBar(2, 100)}

	sc := NewScanner(testContracts, Session{})
	trades, err := sc.Run(context.Background(), strat, bars, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected the position cap to hold entries to 1, got %d", len(trades))
	}
	if trades[0].BarsHeld != 2 {
		t.Errorf("bars held = %d, want 2", trades[0].BarsHeld)
	}
}

func TestSessionGatesEntriesNotExits(t *testing.T) {
	strat := testStrategy()

	bars := []model.Bar{
		flatBar(0, 100),                 // 10:00, in session
		flatBar(30, 100),                // 10:30, in session: entry fills here
		mkBar(7*60, 100, 100.5, 89, 95), // 17:00, after close: stop must still fire
	}
	// Keep the first bar out of session to prove the gate.
	session := Session{OpenMinute: 10*60 + 15, CloseMinute: 16 * 60} // 10:15-16:00

	sc := NewScanner(testContracts, session)
	trades, err := sc.Run(context.Background(), strat, bars, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	tr := trades[0]
	if !tr.EntryTime.Equal(bars[1].Time) {
		t.Errorf("entry time = %v, want first in-session bar %v", tr.EntryTime, bars[1].Time)
	}
	if tr.Outcome != model.OutcomeLoss || tr.ExitPrice != 90 {
		t.Errorf("out-of-session stop did not fire: outcome=%s exit=%f", tr.Outcome, tr.ExitPrice)
	}
}

func TestWarmupBarsNeverOriginateEntries(t *testing.T) {
	strat := testStrategy()

	bars := []model.Bar{flatBar(0, 100), flatBar(1, 100), flatBar(2, 100), flatBar(3, 100)}
	entriesFrom := bars[2].Time

	sc := NewScanner(testContracts, Session{})
	trades, err := sc.RunWindow(context.Background(), strat, bars, entriesFrom, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if !trades[0].EntryTime.Equal(entriesFrom) {
		t.Errorf("entry time = %v, want first bar at or after %v", trades[0].EntryTime, entriesFrom)
	}
}

func TestCancelledContextFailsScan(t *testing.T) {
	strat := testStrategy()
	bars := []model.Bar{flatBar(0, 100)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := NewScanner(testContracts, Session{})
	trades, err := sc.Run(ctx, strat, bars, nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if trades != nil {
		t.Errorf("cancelled scan must surface no partial trades, got %d", len(trades))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*model.Strategy)
		wantField string
	}{
		{"missing symbol", func(s *model.Strategy) { s.Symbol = "" }, "symbol"},
		{"unknown symbol", func(s *model.Strategy) { s.Symbol = "XYZ" }, "symbol"},
		{"bad direction", func(s *model.Strategy) { s.Direction = "sideways" }, "direction"},
		{"bad timeframe", func(s *model.Strategy) { s.Timeframe = "2m" }, "timeframe"},
		{"zero max positions", func(s *model.Strategy) { s.MaxPositions = 0 }, "max_positions"},
		{"zero position size", func(s *model.Strategy) { s.PositionSize = 0 }, "position_size"},
		{"no entry conditions", func(s *model.Strategy) { s.Entry = nil }, "entry"},
		{"missing stop", func(s *model.Strategy) { s.StopLoss = nil }, "stop_loss"},
		{"negative stop", func(s *model.Strategy) { s.StopLoss.Value = -5 }, "stop_loss"},
		{"bad stop type", func(s *model.Strategy) { s.StopLoss.Type = "ticks" }, "stop_loss"},
		{"missing target", func(s *model.Strategy) { s.TakeProfit = nil }, "take_profit"},
		{"zero target", func(s *model.Strategy) { s.TakeProfit.Value = 0 }, "take_profit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strat := testStrategy()
			tt.mutate(strat)

			err := Validate(strat, testContracts)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected a validation error, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}

	if err := Validate(testStrategy(), testContracts); err != nil {
		t.Errorf("valid strategy rejected: %v", err)
	}
}

func TestValidateRange(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := ValidateRange(from, from); err == nil {
		t.Error("equal endpoints must be rejected")
	}
	if err := ValidateRange(from, from.Add(-time.Hour)); err == nil {
		t.Error("inverted range must be rejected")
	}
	if err := ValidateRange(from, from.Add(24*time.Hour)); err != nil {
		t.Errorf("valid range rejected: %v", err)
	}
}

func TestUnknownIndicatorCompletesWithZeroTrades(t *testing.T) {
	strat := testStrategy()
	strat.Entry = []model.Condition{
		{Indicator: "sma200", Operator: model.OpGreater, Value: "100"},
	}

	bars := []model.Bar{flatBar(0, 100), flatBar(1, 100), flatBar(2, 100)}
	tracker := errtrack.NewMemory()

	sc := NewScanner(testContracts, Session{})
	trades, err := sc.Run(context.Background(), strat, bars, tracker)
	if err != nil {
		t.Fatalf("unresolvable conditions must not abort the scan: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("expected zero trades, got %d", len(trades))
	}
	if n := tracker.Count(errtrack.TypeEvaluation); n != 1 {
		t.Errorf("expected exactly 1 evaluation event across the scan, got %d", n)
	}
}

func TestShortDirectionWin(t *testing.T) {
	strat := testStrategy()
	strat.Direction = model.DirectionShort
	strat.Entry = []model.Condition{
		{Indicator: "close", Operator: model.OpGreaterEqual, Value: "100"},
	}

	bars := []model.Bar{
		flatBar(0, 100),           // short entry at 100
		mkBar(1, 99, 101, 79, 85), // target at 80 hit, stop at 110 untouched
	}

	sc := NewScanner(testContracts, Session{})
	trades, err := sc.Run(context.Background(), strat, bars, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	tr := trades[0]
	if tr.Direction != model.DirectionShort {
		t.Errorf("direction = %s, want short", tr.Direction)
	}
	if tr.Outcome != model.OutcomeWin || tr.ExitPrice != 80 {
		t.Errorf("outcome=%s exit=%f, want win at 80", tr.Outcome, tr.ExitPrice)
	}
	if tr.PnL != 20 {
		t.Errorf("pnl = %f, want +20", tr.PnL)
	}
}

func TestBothDirectionOpensBothSides(t *testing.T) {
	strat := testStrategy()
	strat.Direction = model.DirectionBoth
	strat.MaxPositions = 2
	strat.Entry = []model.Condition{
		{Indicator: "close", Operator: model.OpGreaterEqual, Value: "100"},
	}

	bars := []model.Bar{flatBar(0, 100), flatBar(1, 99)}

	sc := NewScanner(testContracts, Session{})
	trades, err := sc.Run(context.Background(), strat, bars, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected one trade per side, got %d", len(trades))
	}

	sides := map[model.Direction]bool{}
	for _, tr := range trades {
		sides[tr.Direction] = true
		if tr.Outcome != model.OutcomeTimeout {
			t.Errorf("outcome = %s, want timeout", tr.Outcome)
		}
	}
	if !sides[model.DirectionLong] || !sides[model.DirectionShort] {
		t.Errorf("expected a long and a short, got %v", sides)
	}
}

func TestExitConditionClosesAtBarClose(t *testing.T) {
	strat := testStrategy()
	strat.Entry = []model.Condition{
		{Indicator: "close", Operator: model.OpGreaterEqual, Value: "100"},
	}
	strat.Exit = []model.Condition{
		{Indicator: "close", Operator: model.OpLess, Value: "95"},
	}

	bars := []model.Bar{
		flatBar(0, 100),
		flatBar(1, 96),
		flatBar(2, 94), // exit signal fires, close above the 90 stop
	}

	sc := NewScanner(testContracts, Session{})
	trades, err := sc.Run(context.Background(), strat, bars, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	tr := trades[0]
	if tr.ExitPrice != 94 {
		t.Errorf("exit price = %f, want the signal bar's close 94", tr.ExitPrice)
	}
	if tr.Outcome != model.OutcomeLoss {
		t.Errorf("outcome = %s, want loss on negative pnl", tr.Outcome)
	}
	if tr.PnL != -6 {
		t.Errorf("pnl = %f, want -6", tr.PnL)
	}
}

func TestATRExitSkipsUnseededEntry(t *testing.T) {
	strat := testStrategy()
	strat.StopLoss = &model.StopLoss{Type: model.ExitATR, Value: 2}
	strat.TakeProfit = &model.TakeProfit{Type: model.ExitATR, Value: 4}

	b := flatBar(0, 100)
	b.ATR14 = math.NaN()
	tracker := errtrack.NewMemory()

	sc := NewScanner(testContracts, Session{})
	trades, err := sc.Run(context.Background(), strat, []model.Bar{b}, tracker)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("unseeded atr must skip the entry, got %d trades", len(trades))
	}
	if n := tracker.Count(errtrack.TypeDataInsufficiency); n != 1 {
		t.Errorf("expected 1 data insufficiency event, got %d", n)
	}
}

func TestPercentageExitDistances(t *testing.T) {
	strat := testStrategy()
	strat.Entry = []model.Condition{
		{Indicator: "close", Operator: model.OpGreaterEqual, Value: "200"},
	}
	strat.StopLoss = &model.StopLoss{Type: model.ExitPercentage, Value: 1}     // 2 points at 200
	strat.TakeProfit = &model.TakeProfit{Type: model.ExitPercentage, Value: 2} // 4 points

	bars := []model.Bar{
		flatBar(0, 200),
		mkBar(1, 200, 204.5, 199, 204), // target 204 hit, stop 198 untouched
	}

	sc := NewScanner(testContracts, Session{})
	trades, err := sc.Run(context.Background(), strat, bars, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Outcome != model.OutcomeWin || trades[0].ExitPrice != 204 {
		t.Errorf("outcome=%s exit=%f, want win at 204", trades[0].Outcome, trades[0].ExitPrice)
	}
	if trades[0].PnL != 4 {
		t.Errorf("pnl = %f, want +4", trades[0].PnL)
	}
}

func TestPositionSizeScalesPnL(t *testing.T) {
	strat := testStrategy()
	strat.PositionSize = 3
	strat.Entry = []model.Condition{
		{Indicator: "close", Operator: model.OpGreaterEqual, Value: "100"},
	}

	contracts := map[string]model.ContractSpec{
		"TEST": {PointValue: 50, TickSize: 0.25},
	}
	bars := []model.Bar{
		flatBar(0, 100),
		mkBar(1, 100, 121, 99, 120), // target at 120 hit
	}

	sc := NewScanner(contracts, Session{})
	trades, err := sc.Run(context.Background(), strat, bars, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if want := 20.0 * 50 * 3; trades[0].PnL != want {
		t.Errorf("pnl = %f, want %f", trades[0].PnL, want)
	}
}
