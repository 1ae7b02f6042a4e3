package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"backscan/pkg/model"
)

// Config represents the application configuration
type Config struct {
	Store     StoreConfig                   `yaml:"store"`
	Session   SessionConfig                 `yaml:"session"`
	Scan      ScanConfig                    `yaml:"scan"`
	Provider  ProviderConfig                `yaml:"provider"`
	Contracts map[string]model.ContractSpec `yaml:"contracts"`
}

// StoreConfig holds bar database settings
type StoreConfig struct {
	Path string `yaml:"path"`
}

// SessionConfig bounds the trading hours in which entries may originate
type SessionConfig struct {
	Open     string `yaml:"open"`  // "HH:MM"
	Close    string `yaml:"close"` // "HH:MM"
	Location string `yaml:"location"`
}

// ScanConfig holds simulation settings
type ScanConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ProviderConfig holds remote bar source settings
type ProviderConfig struct {
	BaseURL   string `yaml:"base_url"`
	RateLimit int    `yaml:"rate_limit"` // requests per minute
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path: "backscan.db",
		},
		Session: SessionConfig{
			Open:     "09:30",
			Close:    "16:00",
			Location: "America/New_York",
		},
		Scan: ScanConfig{
			Timeout: 2 * time.Minute,
		},
		Provider: ProviderConfig{
			BaseURL:   "https://query1.finance.yahoo.com/v8/finance/chart",
			RateLimit: 30,
		},
		Contracts: map[string]model.ContractSpec{
			"ES":  {PointValue: 50, TickSize: 0.25},
			"NQ":  {PointValue: 20, TickSize: 0.25},
			"SPY": {PointValue: 1, TickSize: 0.01},
		},
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if file doesn't exist
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Override with environment variables if set
	if p := os.Getenv("BACKSCAN_DB"); p != "" {
		cfg.Store.Path = p
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	if _, _, err := c.SessionMinutes(); err != nil {
		return err
	}
	if _, err := c.SessionLocation(); err != nil {
		return err
	}
	if len(c.Contracts) == 0 {
		return fmt.Errorf("at least one contract spec is required")
	}
	for sym, spec := range c.Contracts {
		if spec.PointValue <= 0 {
			return fmt.Errorf("contract %s: point_value must be positive", sym)
		}
	}
	return nil
}

// SessionMinutes parses the session bounds as minutes since midnight.
func (c *Config) SessionMinutes() (open, close int, err error) {
	open, err = parseClock(c.Session.Open)
	if err != nil {
		return 0, 0, fmt.Errorf("session open: %w", err)
	}
	close, err = parseClock(c.Session.Close)
	if err != nil {
		return 0, 0, fmt.Errorf("session close: %w", err)
	}
	if close <= open {
		return 0, 0, fmt.Errorf("session close %q must be after open %q", c.Session.Close, c.Session.Open)
	}
	return open, close, nil
}

// SessionLocation resolves the configured time zone.
func (c *Config) SessionLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Session.Location)
	if err != nil {
		return nil, fmt.Errorf("session location %q: %w", c.Session.Location, err)
	}
	return loc, nil
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock out of range: %q", s)
	}
	return h*60 + m, nil
}
