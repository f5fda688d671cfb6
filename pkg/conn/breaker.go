package conn

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/bft-labs/pushwire/pkg/log"
)

// BreakerConfig configures a BreakerDialer.
type BreakerConfig struct {
	Name string
	// FailureThreshold is the number of consecutive dial failures that
	// opens the breaker. Default 5.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before a trial dial.
	// Default 30s.
	OpenTimeout time.Duration
}

// BreakerDialer fails dials fast while the wrapped dialer keeps failing.
// One BreakerDialer is meant to be shared by every worker of a pool.
type BreakerDialer struct {
	next Dialer
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerDialer wraps next with a circuit breaker.
func NewBreakerDialer(next Dialer, cfg BreakerConfig, logger log.Logger) *BreakerDialer {
	logger = log.OrNoop(logger)
	if cfg.Name == "" {
		cfg.Name = "dial"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("dial circuit breaker state changed",
				log.String("breaker", name),
				log.String("from", from.String()),
				log.String("to", to.String()),
			)
		},
	})
	return &BreakerDialer{next: next, cb: cb}
}

// Dial dials through the wrapped dialer unless the breaker is open.
func (b *BreakerDialer) Dial(ctx context.Context, d Descriptor) (*Connection, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Dial(ctx, d)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &Error{Op: "breaker", Addr: d.Addr(), Err: err}
		}
		return nil, err
	}
	return v.(*Connection), nil
}

// State returns the breaker state name.
func (b *BreakerDialer) State() string {
	return b.cb.State().String()
}
