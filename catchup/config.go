package catchup

import (
	"errors"
	"time"

	"github.com/influxdata/coreraft/toml"
)

const (
	// DefaultMaxAttempts is the number of peers tried before a download fails.
	DefaultMaxAttempts = 3

	// DefaultRetryInterval is the minimum time between two attempts.
	DefaultRetryInterval = time.Second

	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = time.Minute
)

// Config represents the configuration of snapshot downloads.
type Config struct {
	MaxAttempts   int           `toml:"max-attempts"`
	RetryInterval toml.Duration `toml:"retry-interval"`
	Timeout       toml.Duration `toml:"timeout"`
}

// NewConfig returns an instance of Config with defaults.
func NewConfig() Config {
	return Config{
		MaxAttempts:   DefaultMaxAttempts,
		RetryInterval: toml.Duration(DefaultRetryInterval),
		Timeout:       toml.Duration(DefaultTimeout),
	}
}

// Validate returns an error if the config is invalid.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("max-attempts must be at least 1")
	}
	if c.RetryInterval < 0 {
		return errors.New("retry-interval must not be negative")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}
