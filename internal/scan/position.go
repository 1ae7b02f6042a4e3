package scan

import (
	"time"

	"backscan/pkg/model"
)

// position is one open trade. Positions live in an index-addressed slot
// table (see book) rather than as heap objects, so scans over hundreds
// of thousands of bars reuse the same handful of records.
type position struct {
	open       bool
	direction  model.Direction
	entryIndex int
	entryTime  time.Time
	entryPrice float64
	stopDist   float64 // absolute price distance, fixed at entry
	targetDist float64
	mae        float64 // running extrema, price points, >= 0
	mfe        float64
}

// updateExcursions tracks the worst and best unrealized excursion using
// the bar's full high/low range.
func (p *position) updateExcursions(b model.Bar) {
	var adverse, favorable float64
	if p.direction == model.DirectionShort {
		adverse = b.High - p.entryPrice
		favorable = p.entryPrice - b.Low
	} else {
		adverse = p.entryPrice - b.Low
		favorable = b.High - p.entryPrice
	}
	if adverse > p.mae {
		p.mae = adverse
	}
	if favorable > p.mfe {
		p.mfe = favorable
	}
}

// checkExit tests the bar's range against the stop and target prices.
// When both are breached within the same bar the stop takes precedence.
func (p *position) checkExit(b model.Bar) (price float64, outcome model.Outcome, hit bool) {
	if p.direction == model.DirectionShort {
		if stop := p.entryPrice + p.stopDist; b.High >= stop {
			return stop, model.OutcomeLoss, true
		}
		if target := p.entryPrice - p.targetDist; b.Low <= target {
			return target, model.OutcomeWin, true
		}
		return 0, "", false
	}
	if stop := p.entryPrice - p.stopDist; b.Low <= stop {
		return stop, model.OutcomeLoss, true
	}
	if target := p.entryPrice + p.targetDist; b.High >= target {
		return target, model.OutcomeWin, true
	}
	return 0, "", false
}

// close converts the position into its TradeResult and frees the slot.
func (p *position) close(b model.Bar, index int, price float64, outcome model.Outcome, spec model.ContractSpec, qty int) model.TradeResult {
	delta := (price - p.entryPrice) * p.direction.Sign()
	t := model.TradeResult{
		Symbol:     b.Symbol,
		Direction:  p.direction,
		EntryTime:  p.entryTime,
		ExitTime:   b.Time,
		EntryPrice: p.entryPrice,
		ExitPrice:  price,
		Quantity:   qty,
		PnL:        delta * spec.PointValue * float64(qty),
		Outcome:    outcome,
		BarsHeld:   index - p.entryIndex,
		MAE:        p.mae,
		MFE:        p.mfe,
	}
	p.open = false
	return t
}

// book is the slot table of positions for one scan.
type book struct {
	slots     []position
	openCount int
}

func newBook(capacity int) *book {
	return &book{slots: make([]position, 0, capacity)}
}

func (bk *book) add(p position) {
	p.open = true
	bk.openCount++
	for i := range bk.slots {
		if !bk.slots[i].open {
			bk.slots[i] = p
			return
		}
	}
	bk.slots = append(bk.slots, p)
}

func (bk *book) release() {
	bk.openCount--
}
