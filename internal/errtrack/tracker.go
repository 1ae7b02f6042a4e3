// Package errtrack collects evaluation-failure events raised during a
// scan. The core submits structured events through the narrow Reporter
// interface and performs no I/O itself; callers flush the accumulated
// events once the scan finishes.
package errtrack

import (
	"time"

	"github.com/google/uuid"
)

// ErrorType categorizes a non-fatal scan event.
type ErrorType string

const (
	TypeEvaluation        ErrorType = "evaluation"
	TypeDataInsufficiency ErrorType = "data_insufficiency"
)

// Severity grades an event.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Context pins an event to the bar and strategy that produced it.
type Context struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	StrategyID string    `json:"strategy_id"`
}

// Event is one structured evaluation-failure record.
type Event struct {
	ID               string    `json:"id"`
	Type             ErrorType `json:"error_type"`
	Severity         Severity  `json:"severity"`
	Message          string    `json:"message"`
	FailedExpression string    `json:"failed_expression,omitempty"`
	SuggestedFix     string    `json:"suggested_fix,omitempty"`
	Context          Context   `json:"context"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(t ErrorType, sev Severity, msg string) Event {
	return Event{ID: uuid.NewString(), Type: t, Severity: sev, Message: msg}
}

// Reporter receives events. Implementations must be safe to call from
// the single scan goroutine; no locking is needed inside the core.
type Reporter interface {
	Submit(Event)
}

// Memory accumulates events in order for a post-scan flush.
type Memory struct {
	events []Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Submit(e Event) {
	m.events = append(m.events, e)
}

// Events returns the accumulated events without draining them.
func (m *Memory) Events() []Event {
	return m.events
}

// Count returns how many events of the given type were submitted.
func (m *Memory) Count(t ErrorType) int {
	n := 0
	for _, e := range m.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Noop discards everything.
type Noop struct{}

func (Noop) Submit(Event) {}
