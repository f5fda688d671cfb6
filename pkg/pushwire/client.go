package pushwire

import (
	"context"
	"errors"
	"sync"

	"github.com/bft-labs/pushwire/pkg/conn"
	"github.com/bft-labs/pushwire/pkg/feedback"
	"github.com/bft-labs/pushwire/pkg/ledger"
	"github.com/bft-labs/pushwire/pkg/lifecycle"
	"github.com/bft-labs/pushwire/pkg/log"
	"github.com/bft-labs/pushwire/pkg/payload"
	"github.com/bft-labs/pushwire/pkg/pool"
	"github.com/bft-labs/pushwire/pkg/session"
	"github.com/bft-labs/pushwire/pkg/worker"
)

// Client sends notifications through one gateway descriptor.
type Client struct {
	desc     conn.Descriptor
	feedback conn.Descriptor
	dialer   conn.Dialer
	cfg      pool.Config
	logger   log.Logger
	plugins  []Plugin

	mu      sync.Mutex
	started bool
	queues  []*pool.Pool
}

// New creates a client for desc. The client is usable immediately; Start is
// only needed to run plugins.
func New(desc conn.Descriptor, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.OrNoop(o.logger)

	dialer := o.dialer
	if dialer == nil {
		d := conn.NewTLSDialer(logger)
		d.Debug = o.config.Worker.Session.Debug
		dialer = d
	}
	if o.config.Breaker != nil {
		dialer = conn.NewBreakerDialer(dialer, *o.config.Breaker, logger)
		o.config.Breaker = nil
	}

	fb := conn.NewFeedbackDescriptor(desc.Credentials, desc.Host == conn.ProductionGatewayHost)
	fb.ProxyHost, fb.ProxyPort = desc.ProxyHost, desc.ProxyPort
	fb.VerifyServerCertificate, fb.RootCAs = desc.VerifyServerCertificate, desc.RootCAs
	fb.DialTimeout = desc.DialTimeout
	if o.feedback != nil {
		fb = *o.feedback
	}

	return &Client{
		desc:     desc,
		feedback: fb,
		dialer:   dialer,
		cfg:      o.config,
		logger:   logger,
		plugins:  o.plugins,
	}
}

// Descriptor returns the gateway descriptor.
func (c *Client) Descriptor() conn.Descriptor { return c.desc }

// Start initializes plugins in registration order. If one fails, those
// already initialized are shut down.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return lifecycle.ErrAlreadyRunning
	}

	cfg := PluginConfig{Descriptor: c.desc, Credentials: c.desc.Credentials, Logger: c.logger}
	for i, p := range c.plugins {
		if err := p.Initialize(ctx, cfg); err != nil {
			c.logger.Error("plugin initialization failed", log.String("plugin", p.Name()), log.Err(err))
			for j := i - 1; j >= 0; j-- {
				_ = c.plugins[j].Shutdown(ctx)
			}
			return err
		}
		c.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}
	c.started = true
	return nil
}

// SubmitOne sends one notification on a dedicated session and reconciles
// before returning, so a rejection by the gateway is visible on the outcome.
func (c *Client) SubmitOne(ctx context.Context, token string, p payload.Payload) (*ledger.Outcome, error) {
	s := session.New(c.desc, c.dialer, c.cfg.Worker.Session, c.logger)
	o, err := s.Send(ctx, session.Item{Token: token, Payload: p})
	if closeErr := s.Close(context.WithoutCancel(ctx)); err == nil {
		err = closeErr
	}
	return o, err
}

// SubmitMany sends p to every token in order on one connection.
func (c *Client) SubmitMany(ctx context.Context, tokens []string, p payload.Payload) ([]*ledger.Outcome, error) {
	return c.SubmitPairs(ctx, worker.Items(p, tokens))
}

// SubmitPairs sends each item in order on one connection.
func (c *Client) SubmitPairs(ctx context.Context, items []session.Item) ([]*ledger.Outcome, error) {
	w := worker.NewBatch(c.desc, c.dialer, items, c.cfg.Worker, c.logger)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	if err := w.Wait(ctx); err != nil {
		return w.Outcomes(), err
	}
	return w.Outcomes(), w.CriticalError()
}

// SubmitConcurrent partitions tokens across up to workers connections and
// blocks until every worker finished. Outcomes are in worker order, followed
// by every critical error.
func (c *Client) SubmitConcurrent(ctx context.Context, tokens []string, p payload.Payload, workers int) ([]*ledger.Outcome, []error) {
	pl, err := pool.NewBatchPayload(c.desc, c.dialer, p, tokens, workers, c.cfg, c.logger)
	if err != nil {
		if errors.Is(err, pool.ErrNoWorkers) {
			return nil, nil
		}
		return nil, []error{err}
	}
	if err := pl.Start(ctx); err != nil {
		return pl.Outcomes(), []error{err}
	}
	if err := pl.Wait(ctx); err != nil {
		return pl.Outcomes(), append(pl.CriticalErrors(), err)
	}
	return pl.Outcomes(), pl.CriticalErrors()
}

// Queue starts a pool of queue workers. Items added to it are sent in the
// background; Close stops every queue the client started.
func (c *Client) Queue(ctx context.Context, workers int) (*pool.Pool, error) {
	pl, err := pool.NewQueue(c.desc, c.dialer, workers, c.cfg, c.logger)
	if err != nil {
		return nil, err
	}
	if err := pl.Start(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.queues = append(c.queues, pl)
	c.mu.Unlock()
	return pl, nil
}

// Feedback fetches the devices reported by the feedback service.
func (c *Client) Feedback(ctx context.Context) ([]feedback.Record, error) {
	return feedback.Fetch(ctx, c.dialer, c.feedback, c.logger)
}

// Close stops every queue started by the client, waits for them to drain
// and shuts plugins down in reverse order.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	queues := c.queues
	c.queues = nil
	started := c.started
	c.started = false
	c.mu.Unlock()

	var errs []error
	var drained lifecycle.Group
	for _, q := range queues {
		q.Stop()
		drained.Go(func() { <-q.Done() })
	}
	if err := drained.Wait(ctx); err != nil {
		errs = append(errs, err)
	}

	if started {
		for i := len(c.plugins) - 1; i >= 0; i-- {
			p := c.plugins[i]
			if err := p.Shutdown(ctx); err != nil {
				c.logger.Warn("plugin shutdown failed", log.String("plugin", p.Name()), log.Err(err))
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
