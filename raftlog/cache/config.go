package cache

import (
	"errors"
	"fmt"

	"github.com/influxdata/coreraft/toml"
)

// Type selects the caching policy.
type Type string

const (
	// TypeNone caches nothing; every read goes to the log.
	TypeNone Type = "none"

	// TypeConsecutive caches a contiguous range of indices bounded by count
	// and size, evicting the oldest entries first.
	TypeConsecutive Type = "consecutive"

	// TypeUnbounded never evicts. Only safe where memory is bounded elsewhere.
	TypeUnbounded Type = "unbounded"
)

// UnmarshalText parses and validates a cache type.
func (t *Type) UnmarshalText(text []byte) error {
	switch v := Type(text); v {
	case TypeNone, TypeConsecutive, TypeUnbounded:
		*t = v
		return nil
	default:
		return fmt.Errorf("unknown in-flight cache type %q", text)
	}
}

const (
	DefaultMaxEntries = 1024
	DefaultMaxBytes   = 8 * 1024 * 1024
)

// Config represents the configuration of the in-flight cache.
type Config struct {
	Type       Type      `toml:"type"`
	MaxEntries int       `toml:"max-entries"`
	MaxBytes   toml.Size `toml:"max-bytes"`
}

// NewConfig returns an instance of Config with defaults.
func NewConfig() Config {
	return Config{
		Type:       TypeConsecutive,
		MaxEntries: DefaultMaxEntries,
		MaxBytes:   DefaultMaxBytes,
	}
}

// Validate returns an error if the config is invalid.
func (c Config) Validate() error {
	switch c.Type {
	case TypeNone, TypeUnbounded:
		return nil
	case TypeConsecutive:
		if c.MaxEntries <= 0 {
			return errors.New("max-entries must be positive")
		} else if c.MaxBytes <= 0 {
			return errors.New("max-bytes must be positive")
		}
		return nil
	default:
		return fmt.Errorf("unknown in-flight cache type %q", c.Type)
	}
}

// New returns the cache selected by c.
func New(c Config, m *Metrics) (InFlightCache, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Type {
	case TypeNone:
		return NewVoid(m), nil
	case TypeUnbounded:
		return NewUnbounded(m), nil
	default:
		return NewConsecutive(c.MaxEntries, int64(c.MaxBytes), m), nil
	}
}
