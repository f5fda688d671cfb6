package session

import (
	"time"

	"github.com/bft-labs/pushwire/pkg/wire"
)

// Defaults.
const (
	DefaultRetries          = 3
	DefaultSocketTimeout    = 30 * time.Second
	DefaultReconcileTimeout = 5 * time.Second
)

// Config tunes a Session.
type Config struct {
	// Format selects enhanced (default) or simple frames. Simple frames carry
	// no identifier, so nothing is reconciled.
	Format wire.Format

	// Retries is the maximum number of write attempts per frame.
	Retries int

	// SocketTimeout is the write deadline per attempt. A stalled write
	// counts as a failed attempt. Negative disables the deadline.
	SocketTimeout time.Duration

	// ReconcileTimeout bounds each read while draining error responses.
	ReconcileTimeout time.Duration

	// RetryBackoff is the initial delay before reconnecting after a failed
	// write. Zero retries immediately.
	RetryBackoff time.Duration

	// Debug logs every frame written.
	Debug bool
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Format:           wire.FormatEnhanced,
		Retries:          DefaultRetries,
		SocketTimeout:    DefaultSocketTimeout,
		ReconcileTimeout: DefaultReconcileTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.Retries <= 0 {
		c.Retries = DefaultRetries
	}
	if c.SocketTimeout == 0 {
		c.SocketTimeout = DefaultSocketTimeout
	}
	if c.ReconcileTimeout <= 0 {
		c.ReconcileTimeout = DefaultReconcileTimeout
	}
	return c
}
