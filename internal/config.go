package internal

import (
	"fmt"
	"time"
)

type Config struct {
	BadgerFilepath      string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel            string        `env:"LOG_LEVEL,default=INFO"`
	Host                string        `env:"HOST,default=0.0.0.0"`
	Port                int           `env:"PORT,default=50051"`
	DebugPort           *int          `env:"DEBUG_PORT"`
	RestartInterval     time.Duration `env:"RESTART_INTERVAL,default=1s"`
	SinkTimeout         time.Duration `env:"SINK_TIMEOUT,default=2s"`
	IdleTimeout         time.Duration `env:"IDLE_TIMEOUT,default=3m"`
	HeartbeatInterval   time.Duration `env:"HEARTBEAT_INTERVAL,default=1m"`
	TransactionAttempts int           `env:"TRANSACTION_ATTEMPTS,default=16"`
	PlayerName          string        `env:"PLAYER_NAME"`
}

// Validate rejects settings that would let rooms be reclaimed while their
// players are still sending heartbeats.
func (c Config) Validate() error {
	switch {
	case c.HeartbeatInterval <= 0:
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive, got %s", c.HeartbeatInterval)
	case c.IdleTimeout <= c.HeartbeatInterval:
		return fmt.Errorf("IDLE_TIMEOUT (%s) must exceed HEARTBEAT_INTERVAL (%s)", c.IdleTimeout, c.HeartbeatInterval)
	case c.TransactionAttempts <= 0:
		return fmt.Errorf("TRANSACTION_ATTEMPTS must be positive, got %d", c.TransactionAttempts)
	}
	return nil
}
