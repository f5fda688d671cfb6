package worker

import (
	"time"

	"github.com/bft-labs/pushwire/pkg/session"
)

// Defaults.
const (
	DefaultMaxPerConnection = 200
	DefaultIdleWait         = 10 * time.Second
	DefaultCriticalBackoff  = time.Second
)

// Config tunes a Worker.
type Config struct {
	Session session.Config

	// MaxPerConnection restarts the connection after this many notifications.
	MaxPerConnection int

	// SleepBetween spaces consecutive notifications. Zero sends back to back.
	SleepBetween time.Duration

	// IdleWait is how long an idle queue worker parks before re-checking.
	IdleWait time.Duration

	// LedgerCapacity bounds retained outcomes. Zero means the batch size
	// for batch workers and ledger.DefaultCapacity for queue workers.
	LedgerCapacity int

	// CriticalBackoff is the initial pause of a queue worker after a
	// critical error.
	CriticalBackoff time.Duration
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		Session:          session.DefaultConfig(),
		MaxPerConnection: DefaultMaxPerConnection,
		IdleWait:         DefaultIdleWait,
		CriticalBackoff:  DefaultCriticalBackoff,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxPerConnection <= 0 {
		c.MaxPerConnection = DefaultMaxPerConnection
	}
	if c.IdleWait <= 0 {
		c.IdleWait = DefaultIdleWait
	}
	if c.CriticalBackoff <= 0 {
		c.CriticalBackoff = DefaultCriticalBackoff
	}
	return c
}
