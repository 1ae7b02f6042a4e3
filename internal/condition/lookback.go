package condition

import "backscan/pkg/model"

// minLookback is the floor for the scan window regardless of the
// indicators actually referenced.
const minLookback = 50

// period returns the bar history an indicator needs to seed its
// recurrence. Unknown and history-free names report zero.
func period(name string) int {
	switch normalize(name) {
	case "ema50":
		return 50
	case "ema20", "average", "avg_volume", "average_volume":
		return 20
	case "rsi":
		return 15 // one extra bar for the first close-to-close change
	case "atr":
		return 14
	case "ema9":
		return 9
	default:
		return 0
	}
}

// Lookback sizes a strategy's scan window: the largest indicator period
// referenced by its condition lists (minimum 50), plus one bar so
// crossover detection has a predecessor.
func Lookback(s *model.Strategy) int {
	max := minLookback
	consider := func(name string) {
		if p := period(name); p > max {
			max = p
		}
	}
	for _, list := range [][]model.Condition{s.Entry, s.Exit} {
		for _, c := range list {
			consider(c.Indicator)
			if _, name, ok := parseMultiplier(c.Value); ok {
				consider(name)
			} else {
				consider(c.Value)
			}
		}
	}
	return max + 1
}
