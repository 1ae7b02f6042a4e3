package scan

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed strategy or scan request. It is
// fatal: no bar is scanned after one is raised.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid scan request: %s: %s", e.Field, e.Reason)
}

// ErrCancelled marks a caller-initiated timeout or cancel. The scan's
// partial output is discarded; no TradeResult list is surfaced.
var ErrCancelled = errors.New("scan cancelled")
