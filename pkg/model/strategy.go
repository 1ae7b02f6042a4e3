package model

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Direction is the side(s) a strategy trades.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionBoth  Direction = "both"
)

// Sign returns +1 for long, -1 for short.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// Operator compares an indicator against a resolved operand.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "="
	OpCrossAbove   Operator = "crosses_above"
	OpCrossBelow   Operator = "crosses_below"
)

// Condition is a single indicator comparison. Value is text and is
// resolved lazily per bar: a decimal literal, an indicator name, a
// "<factor>x_<indicator>" multiplier, or an "HH:MM" time of day.
type Condition struct {
	Indicator string   `yaml:"indicator" json:"indicator"`
	Operator  Operator `yaml:"operator" json:"operator"`
	Value     string   `yaml:"value" json:"value"`
}

// ExitType selects how a stop/target distance is derived from the entry.
type ExitType string

const (
	ExitPoints     ExitType = "points"
	ExitPercentage ExitType = "percentage"
	ExitATR        ExitType = "atr"
)

// StopLoss converts to an absolute price distance from entry at entry
// time: points are fixed, percentage scales the entry price, atr scales
// the entry bar's ATR. The distance is fixed for the position's life.
type StopLoss struct {
	Type  ExitType `yaml:"type" json:"type"`
	Value float64  `yaml:"value" json:"value"`
}

// TakeProfit mirrors StopLoss on the favorable side.
type TakeProfit struct {
	Type  ExitType `yaml:"type" json:"type"`
	Value float64  `yaml:"value" json:"value"`
}

// Strategy is a fully-specified declarative strategy. Immutable for the
// duration of one scan.
type Strategy struct {
	ID           string      `yaml:"id" json:"id"`
	Name         string      `yaml:"name" json:"name"`
	Symbol       string      `yaml:"symbol" json:"symbol"`
	Direction    Direction   `yaml:"direction" json:"direction"`
	Timeframe    Timeframe   `yaml:"timeframe" json:"timeframe"`
	MaxPositions int         `yaml:"max_positions" json:"max_positions"`
	PositionSize int         `yaml:"position_size" json:"position_size"`
	Entry        []Condition `yaml:"entry" json:"entry"`
	Exit         []Condition `yaml:"exit,omitempty" json:"exit,omitempty"`
	StopLoss     *StopLoss   `yaml:"stop_loss" json:"stop_loss"`
	TakeProfit   *TakeProfit `yaml:"take_profit" json:"take_profit"`
}

// LoadStrategy reads a strategy definition from a YAML file.
// Missing optional fields get defaults; a missing ID gets a fresh uuid.
// The timeframe field accepts any spelling ParseTimeframe knows and is
// normalized to its canonical form.
func LoadStrategy(path string) (*Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading strategy file: %w", err)
	}

	var s Strategy
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing strategy file: %w", err)
	}

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Direction == "" {
		s.Direction = DirectionLong
	}
	if s.Timeframe == "" {
		s.Timeframe = TF1m
	} else {
		tf, ok := ParseTimeframe(string(s.Timeframe))
		if !ok {
			return nil, fmt.Errorf("parsing strategy file: unknown timeframe %q", s.Timeframe)
		}
		s.Timeframe = tf
	}
	if s.MaxPositions == 0 {
		s.MaxPositions = 1
	}
	if s.PositionSize == 0 {
		s.PositionSize = 1
	}
	return &s, nil
}
