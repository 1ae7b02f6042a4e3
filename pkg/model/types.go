package model

import (
	"math"
	"time"
)

// Bar represents a single OHLCV bar plus derived indicator fields.
// Derived fields are NaN until enough history exists to seed them;
// the indicator calculator is the only producer, bars are immutable afterward.
type Bar struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`

	// Derived fields
	VWAP        float64 `json:"vwap"`
	EMA9        float64 `json:"ema9"`
	EMA20       float64 `json:"ema20"`
	EMA50       float64 `json:"ema50"`
	AvgVolume20 float64 `json:"avg_volume_20"`
	ATR14       float64 `json:"atr14"`
	RSI14       float64 `json:"rsi14"`
	PrevDayHigh float64 `json:"prev_day_high"`
	PrevDayLow  float64 `json:"prev_day_low"`
}

// TypicalPrice returns (high+low+close)/3, the price VWAP accumulates.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3.0
}

// MinuteOfDay returns the bar's time as minutes since midnight,
// in the bar's own location. Used by time-of-day conditions.
func (b Bar) MinuteOfDay() float64 {
	return float64(b.Time.Hour()*60 + b.Time.Minute())
}

// SameDay reports whether two instants fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// IsSet reports whether a derived indicator value has been seeded.
func IsSet(v float64) bool {
	return !math.IsNaN(v)
}

// Outcome classifies how a trade ended.
type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomeTimeout Outcome = "timeout"
)

// TradeResult represents a single completed trade
type TradeResult struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   int       `json:"quantity"`
	PnL        float64   `json:"pnl"` // currency, via contract point value
	Outcome    Outcome   `json:"outcome"`
	BarsHeld   int       `json:"bars_held"`
	MAE        float64   `json:"mae"` // max adverse excursion, price points
	MFE        float64   `json:"mfe"` // max favorable excursion, price points
}

// StrategyResult contains the aggregate statistics for one scan
type StrategyResult struct {
	StrategyID   string `json:"strategy_id"`
	StrategyName string `json:"strategy_name"`
	Symbol       string `json:"symbol"`
	Period       string `json:"period"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	TimeoutTrades int     `json:"timeout_trades"`
	WinRate       float64 `json:"win_rate"`

	TotalPnL    float64 `json:"total_pnl"`
	GrossProfit float64 `json:"gross_profit"`
	GrossLoss   float64 `json:"gross_loss"` // negative or zero
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"` // negative or zero

	MaxDrawdown  float64 `json:"max_drawdown"` // zero or negative
	ProfitFactor float64 `json:"profit_factor"`
	SharpeRatio  float64 `json:"sharpe_ratio"`

	BestTrades  []TradeResult `json:"best_trades"`
	WorstTrades []TradeResult `json:"worst_trades"`

	ScanTime time.Duration `json:"scan_time"`
}

// ContractSpec describes a tradable symbol's contract terms,
// used to convert price deltas into currency pnl.
type ContractSpec struct {
	PointValue float64 `yaml:"point_value" json:"point_value"`
	TickSize   float64 `yaml:"tick_size" json:"tick_size"`
}
