package scan

import (
	"time"

	"backscan/pkg/model"
)

// ValidateRange checks the requested date window.
func ValidateRange(from, to time.Time) error {
	if !to.After(from) {
		return &ValidationError{Field: "range", Reason: "end date must be after start date"}
	}
	return nil
}

// Validate fails fast on a malformed strategy before any bar is scanned.
func Validate(s *model.Strategy, contracts map[string]model.ContractSpec) error {
	if s.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "symbol is required"}
	}
	if _, ok := contracts[s.Symbol]; !ok {
		return &ValidationError{Field: "symbol", Reason: "unsupported symbol " + s.Symbol}
	}
	switch s.Direction {
	case model.DirectionLong, model.DirectionShort, model.DirectionBoth:
	default:
		return &ValidationError{Field: "direction", Reason: "must be long, short or both"}
	}
	if s.Timeframe.Duration() <= 0 {
		return &ValidationError{Field: "timeframe", Reason: "unknown timeframe " + s.Timeframe.String()}
	}
	if s.MaxPositions < 1 {
		return &ValidationError{Field: "max_positions", Reason: "must be at least 1"}
	}
	if s.PositionSize < 1 {
		return &ValidationError{Field: "position_size", Reason: "must be at least 1"}
	}
	if len(s.Entry) == 0 {
		return &ValidationError{Field: "entry", Reason: "at least one entry condition is required"}
	}
	if s.StopLoss == nil {
		return &ValidationError{Field: "stop_loss", Reason: "stop loss is required"}
	}
	if err := validateExit("stop_loss", s.StopLoss.Type, s.StopLoss.Value); err != nil {
		return err
	}
	if s.TakeProfit == nil {
		return &ValidationError{Field: "take_profit", Reason: "take profit is required"}
	}
	if err := validateExit("take_profit", s.TakeProfit.Type, s.TakeProfit.Value); err != nil {
		return err
	}
	return nil
}

func validateExit(field string, t model.ExitType, v float64) error {
	switch t {
	case model.ExitPoints, model.ExitPercentage, model.ExitATR:
	default:
		return &ValidationError{Field: field, Reason: "type must be points, percentage or atr"}
	}
	if v <= 0 {
		return &ValidationError{Field: field, Reason: "magnitude must be positive"}
	}
	return nil
}
