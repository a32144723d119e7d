package apply

import (
	"errors"
)

const (
	// DefaultQueueSize is the number of messages buffered for the applier.
	DefaultQueueSize = 1024

	// DefaultRetainEntries is the number of applied entries kept in the log
	// before older ones are pruned.
	DefaultRetainEntries = 1024
)

// Config represents the configuration of the message applier.
type Config struct {
	QueueSize     int   `toml:"queue-size"`
	RetainEntries int64 `toml:"retain-entries"`
}

// NewConfig returns an instance of Config with defaults.
func NewConfig() Config {
	return Config{
		QueueSize:     DefaultQueueSize,
		RetainEntries: DefaultRetainEntries,
	}
}

// Validate returns an error if the config is invalid.
func (c Config) Validate() error {
	if c.QueueSize < 1 {
		return errors.New("queue-size must be at least 1")
	}
	if c.RetainEntries < 0 {
		return errors.New("retain-entries must not be negative")
	}
	return nil
}
