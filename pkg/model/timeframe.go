package model

import (
	"strings"
	"time"
)

// Timeframe is a bar aggregation interval.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
)

func (tf Timeframe) String() string { return string(tf) }

// ParseTimeframe parses common spellings ("5m", "m5", "1h", "h1").
func ParseTimeframe(s string) (Timeframe, bool) {
	switch strings.ToLower(s) {
	case "1m", "m1":
		return TF1m, true
	case "5m", "m5":
		return TF5m, true
	case "15m", "m15":
		return TF15m, true
	case "30m", "m30":
		return TF30m, true
	case "1h", "h1", "60m":
		return TF1h, true
	default:
		return Timeframe(""), false
	}
}

func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF30m:
		return 30 * time.Minute
	case TF1h:
		return time.Hour
	default:
		return 0
	}
}

// Resample aggregates 1-minute bars into tf-sized bars. Buckets are
// aligned to the Unix epoch; partial trailing buckets still emit a bar.
// Input must be chronologically sorted; derived fields are not carried.
func Resample(bars []Bar, tf Timeframe) []Bar {
	if tf == TF1m || len(bars) == 0 {
		return bars
	}
	d := tf.Duration()
	if d <= 0 {
		return bars
	}

	out := make([]Bar, 0, len(bars)/int(d/time.Minute)+1)
	var cur Bar
	var curBucket time.Time
	open := false

	for _, b := range bars {
		bucket := b.Time.Truncate(d)
		if !open || !bucket.Equal(curBucket) {
			if open {
				out = append(out, cur)
			}
			cur = Bar{
				Symbol: b.Symbol,
				Time:   bucket,
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
			}
			curBucket = bucket
			open = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	if open {
		out = append(out, cur)
	}
	return out
}
