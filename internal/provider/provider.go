// Package provider fetches raw minute bars from a remote OHLCV source.
// It exists to seed the local bar store; the backtest core never talks
// to it directly.
package provider

import (
	"context"
	"time"

	"backscan/pkg/model"
)

// Provider defines the interface for bar data providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// GetMinuteBars fetches 1-minute bars for the symbol over [from, to)
	GetMinuteBars(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error)

	// RateLimit returns the rate limit per minute
	RateLimit() int
}

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
