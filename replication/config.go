package replication

import (
	"errors"
	"time"

	"github.com/influxdata/coreraft/toml"
)

// DefaultRetryInterval is the time the replicator waits for an operation to
// commit before resubmitting it.
const DefaultRetryInterval = 2 * time.Second

// Config represents the configuration of the replicator.
type Config struct {
	RetryInterval toml.Duration `toml:"retry-interval"`
}

// NewConfig returns an instance of Config with defaults.
func NewConfig() Config {
	return Config{RetryInterval: toml.Duration(DefaultRetryInterval)}
}

// Validate returns an error if the config is invalid.
func (c Config) Validate() error {
	if c.RetryInterval <= 0 {
		return errors.New("retry-interval must be positive")
	}
	return nil
}
