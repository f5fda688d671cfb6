package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/pushwire/pkg/conn"
	"github.com/bft-labs/pushwire/pkg/ledger"
	"github.com/bft-labs/pushwire/pkg/log"
	"github.com/bft-labs/pushwire/pkg/payload"
	"github.com/bft-labs/pushwire/pkg/session"
	"github.com/bft-labs/pushwire/pkg/worker"
)

var (
	// ErrNoWorkers is returned when a pool would have no worker.
	ErrNoWorkers = errors.New("pool has no workers")

	// ErrNotStarted is returned when items are added before Start.
	ErrNotStarted = errors.New("pool is not started")
)

// Pool groups workers that share a descriptor and dialer.
type Pool struct {
	cfg      Config
	logger   log.Logger
	mode     worker.Mode
	workers  []*worker.Worker
	listener worker.ProgressListener

	mu       sync.Mutex
	started  bool
	next     int
	finished atomic.Int32
	done     chan struct{}
}

func dialerFor(dialer conn.Dialer, cfg Config, logger log.Logger) conn.Dialer {
	if dialer == nil {
		d := conn.NewTLSDialer(logger)
		d.Debug = cfg.Worker.Session.Debug
		dialer = d
	}
	if cfg.Breaker != nil {
		dialer = conn.NewBreakerDialer(dialer, *cfg.Breaker, logger)
	}
	return dialer
}

// NewBatch partitions items across up to n batch workers.
func NewBatch(desc conn.Descriptor, dialer conn.Dialer, items []session.Item, n int, cfg Config, logger log.Logger) (*Pool, error) {
	cfg = cfg.withDefaults()
	logger = log.OrNoop(logger)
	dialer = dialerFor(dialer, cfg, logger)

	groups := Partition(items, n)
	if len(groups) == 0 {
		return nil, ErrNoWorkers
	}
	workers := make([]*worker.Worker, len(groups))
	for i, g := range groups {
		workers[i] = worker.NewBatch(desc, dialer, g, cfg.Worker, logger)
	}
	return newPool(worker.ModeBatch, workers, cfg, logger), nil
}

// NewBatchPayload sends p to every token using up to n batch workers.
func NewBatchPayload(desc conn.Descriptor, dialer conn.Dialer, p payload.Payload, tokens []string, n int, cfg Config, logger log.Logger) (*Pool, error) {
	return NewBatch(desc, dialer, worker.Items(p, tokens), n, cfg, logger)
}

// NewWithWorkers partitions items across caller-built batch workers. Workers
// left without a group are dropped from the pool.
func NewWithWorkers(items []session.Item, workers []*worker.Worker, cfg Config, logger log.Logger) (*Pool, error) {
	groups := Partition(items, len(workers))
	if len(groups) == 0 {
		return nil, ErrNoWorkers
	}
	used := workers[:len(groups)]
	for i, g := range groups {
		used[i].SetItems(g)
	}
	return newPool(worker.ModeBatch, used, cfg.withDefaults(), log.OrNoop(logger)), nil
}

// NewQueue creates n queue workers.
func NewQueue(desc conn.Descriptor, dialer conn.Dialer, n int, cfg Config, logger log.Logger) (*Pool, error) {
	if n < 1 {
		return nil, ErrNoWorkers
	}
	cfg = cfg.withDefaults()
	logger = log.OrNoop(logger)
	dialer = dialerFor(dialer, cfg, logger)

	workers := make([]*worker.Worker, n)
	for i := range workers {
		workers[i] = worker.NewQueue(desc, dialer, cfg.Worker, logger)
	}
	return newPool(worker.ModeQueue, workers, cfg, logger), nil
}

func newPool(mode worker.Mode, workers []*worker.Worker, cfg Config, logger log.Logger) *Pool {
	return &Pool{
		cfg:      cfg,
		logger:   logger,
		mode:     mode,
		workers:  workers,
		listener: worker.NopListener{},
		done:     make(chan struct{}),
	}
}

// SetListener sets the progress listener of the pool and its workers. It
// must be called before Start.
func (p *Pool) SetListener(l worker.ProgressListener) {
	if l == nil {
		l = worker.NopListener{}
	}
	p.listener = l
	for _, w := range p.workers {
		w.SetListener(l)
	}
}

// Workers returns the pool's workers.
func (p *Pool) Workers() []*worker.Worker {
	return append([]*worker.Worker(nil), p.workers...)
}

// Mode returns the mode shared by every worker.
func (p *Pool) Mode() worker.Mode { return p.mode }

// Start numbers the workers from 1 and starts them, pausing
// DelayBetweenWorkers between two starts. Calling Start again is a no-op.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	n := len(p.workers)
	for i, w := range p.workers {
		w.SetNumber(i + 1)
		w.OnFinish(p.workerFinished)
	}

	p.logger.Info("starting workers", log.Int("workers", n), log.String("mode", p.mode.String()))
	for i, w := range p.workers {
		if i > 0 && p.cfg.DelayBetweenWorkers > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.DelayBetweenWorkers):
			}
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
	}
	p.listener.AllWorkersStarted(n)
	return nil
}

func (p *Pool) workerFinished(*worker.Worker) {
	n := len(p.workers)
	if int(p.finished.Add(1)) == n {
		p.logger.Info("all workers finished", log.Int("workers", n))
		p.listener.AllWorkersFinished(n)
		close(p.done)
	}
}

// Add hands item to the first worker after the last one used that is not
// busy. When every worker is busy the next one in strict order gets it.
func (p *Pool) Add(item session.Item) error {
	if p.mode != worker.ModeQueue {
		return worker.ErrNotQueue
	}
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	n := len(p.workers)
	chosen := -1
	for i := 0; i < n; i++ {
		k := (p.next + i) % n
		if !p.workers[k].Busy() {
			chosen = k
			break
		}
	}
	if chosen < 0 {
		chosen = p.next % n
	}
	p.next = (chosen + 1) % n
	w := p.workers[chosen]
	p.mu.Unlock()

	return w.Add(item)
}

// AddAll adds every token with payload pl.
func (p *Pool) AddAll(pl payload.Payload, tokens []string) error {
	for _, it := range worker.Items(pl, tokens) {
		if err := p.Add(it); err != nil {
			return err
		}
	}
	return nil
}

// Stop asks every queue worker to drain and exit.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
}

// Done is closed once every worker finished.
func (p *Pool) Done() <-chan struct{} { return p.done }

// Wait blocks until every worker finished or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitOrError waits like Wait and then returns the first critical error of
// any worker, in worker order.
func (p *Pool) WaitOrError(ctx context.Context) error {
	if err := p.Wait(ctx); err != nil {
		return err
	}
	if errs := p.CriticalErrors(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Outcomes concatenates every worker's outcomes in worker order.
func (p *Pool) Outcomes() []*ledger.Outcome {
	ledgers := make([]*ledger.Ledger, len(p.workers))
	for i, w := range p.workers {
		ledgers[i] = w.Ledger()
	}
	return ledger.Concat(ledgers...)
}

// Successful returns the successful outcomes of every worker.
func (p *Pool) Successful() []*ledger.Outcome { return ledger.Successful(p.Outcomes()) }

// Failed returns the failed outcomes of every worker.
func (p *Pool) Failed() []*ledger.Outcome { return ledger.Failed(p.Outcomes()) }

// ClearOutcomes empties every worker's ledger.
func (p *Pool) ClearOutcomes() {
	for _, w := range p.workers {
		w.ClearOutcomes()
	}
}

// CriticalErrors returns every worker's critical errors in worker order.
func (p *Pool) CriticalErrors() []error {
	var errs []error
	for _, w := range p.workers {
		errs = append(errs, w.CriticalErrors()...)
	}
	return errs
}
