package cluster

import (
	"github.com/influxdata/coreraft/apply"
	"github.com/influxdata/coreraft/catchup"
	"github.com/influxdata/coreraft/raft"
	"github.com/influxdata/coreraft/raftlog/cache"
	"github.com/influxdata/coreraft/replication"
	"go.uber.org/multierr"
)

// Config represents the configuration of every member of a cluster.
type Config struct {
	// Dir holds one bolt database per member. Members keep their log and
	// term state in memory if it is empty.
	Dir string `toml:"dir"`

	Raft        raft.Config        `toml:"raft"`
	Cache       cache.Config       `toml:"in-flight-cache"`
	Apply       apply.Config       `toml:"apply"`
	Catchup     catchup.Config     `toml:"catchup"`
	Replication replication.Config `toml:"replication"`
}

// NewConfig returns an instance of Config with defaults.
func NewConfig() Config {
	return Config{
		Raft:        raft.NewConfig(),
		Cache:       cache.NewConfig(),
		Apply:       apply.NewConfig(),
		Catchup:     catchup.NewConfig(),
		Replication: replication.NewConfig(),
	}
}

// Validate returns every problem of the config.
func (c Config) Validate() error {
	return multierr.Combine(
		c.Raft.Validate(),
		c.Cache.Validate(),
		c.Apply.Validate(),
		c.Catchup.Validate(),
		c.Replication.Validate(),
	)
}
