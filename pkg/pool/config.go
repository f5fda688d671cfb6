package pool

import (
	"time"

	"github.com/bft-labs/pushwire/pkg/conn"
	"github.com/bft-labs/pushwire/pkg/worker"
)

// DefaultDelayBetweenWorkers staggers worker starts.
const DefaultDelayBetweenWorkers = 500 * time.Millisecond

// Config tunes a Pool.
type Config struct {
	Worker worker.Config

	// DelayBetweenWorkers is the pause between two worker starts. Negative
	// starts every worker at once.
	DelayBetweenWorkers time.Duration

	// Breaker, when set, wraps the dialer shared by every worker in a
	// circuit breaker.
	Breaker *conn.BreakerConfig
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Worker:              worker.DefaultConfig(),
		DelayBetweenWorkers: DefaultDelayBetweenWorkers,
	}
}

func (c Config) withDefaults() Config {
	if c.DelayBetweenWorkers == 0 {
		c.DelayBetweenWorkers = DefaultDelayBetweenWorkers
	}
	if c.DelayBetweenWorkers < 0 {
		c.DelayBetweenWorkers = 0
	}
	return c
}
