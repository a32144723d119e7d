package raft

import (
	"errors"
	"fmt"
	"time"

	"github.com/influxdata/coreraft/toml"
)

const (
	// DefaultElectionTimeout is the base time a follower waits for a leader.
	DefaultElectionTimeout = 7 * time.Second

	// DefaultHeartbeatInterval is the time between leader heartbeats.
	DefaultHeartbeatInterval = 2 * time.Second

	// DefaultMaxAppendBatch is the most entries shipped in one catch-up request.
	DefaultMaxAppendBatch = 64
)

// Config represents the configuration of the consensus protocol.
type Config struct {
	// ElectionTimeout is the minimum time a follower waits without hearing
	// from a leader before it starts an election. The actual timeout is
	// randomized between this value and twice this value.
	ElectionTimeout toml.Duration `toml:"election-timeout"`

	// HeartbeatInterval is the time between two heartbeats of a leader. It
	// must be well below the election timeout.
	HeartbeatInterval toml.Duration `toml:"heartbeat-interval"`

	// PreVote enables the pre-election phase, where a member asks whether
	// it could win before it increments its term.
	PreVote bool `toml:"pre-vote"`

	// RefuseToBeLeader keeps the member from ever starting an election.
	RefuseToBeLeader bool `toml:"refuse-to-be-leader"`

	// MaxAppendBatch limits the entries shipped in one catch-up request.
	MaxAppendBatch int `toml:"max-append-batch"`

	// LeaderStepDownOnLostQuorum makes a leader step down when it heard from
	// no majority during one election timeout.
	LeaderStepDownOnLostQuorum bool `toml:"leader-step-down-on-lost-quorum"`
}

// NewConfig returns an instance of Config with defaults.
func NewConfig() Config {
	return Config{
		ElectionTimeout:            toml.Duration(DefaultElectionTimeout),
		HeartbeatInterval:          toml.Duration(DefaultHeartbeatInterval),
		MaxAppendBatch:             DefaultMaxAppendBatch,
		LeaderStepDownOnLostQuorum: true,
	}
}

// Validate returns an error if the config is invalid.
func (c Config) Validate() error {
	if c.ElectionTimeout <= 0 {
		return errors.New("election-timeout must be positive")
	} else if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat-interval must be positive")
	} else if c.HeartbeatInterval >= c.ElectionTimeout {
		return fmt.Errorf("heartbeat-interval %s must be less than election-timeout %s",
			time.Duration(c.HeartbeatInterval), time.Duration(c.ElectionTimeout))
	} else if c.MaxAppendBatch <= 0 {
		return errors.New("max-append-batch must be positive")
	}
	return nil
}

// Options returns the protocol switches of the config.
func (c Config) Options() Options {
	return Options{
		PreVote:                    c.PreVote,
		RefuseToBeLeader:           c.RefuseToBeLeader,
		MaxAppendBatch:             c.MaxAppendBatch,
		LeaderStepDownOnLostQuorum: c.LeaderStepDownOnLostQuorum,
	}
}
