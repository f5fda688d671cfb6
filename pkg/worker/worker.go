package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/bft-labs/pushwire/pkg/conn"
	"github.com/bft-labs/pushwire/pkg/ledger"
	"github.com/bft-labs/pushwire/pkg/lifecycle"
	"github.com/bft-labs/pushwire/pkg/log"
	"github.com/bft-labs/pushwire/pkg/payload"
	"github.com/bft-labs/pushwire/pkg/session"
)

var (
	// ErrNotQueue is returned when items are added to a batch worker.
	ErrNotQueue = errors.New("worker is not in queue mode")

	// ErrStopped is returned when items are added to a stopped worker.
	ErrStopped = errors.New("worker is stopped")
)

// Mode is the worker lifecycle.
type Mode int

const (
	ModeBatch Mode = iota
	ModeQueue
)

func (m Mode) String() string {
	if m == ModeQueue {
		return "queue"
	}
	return "batch"
}

// Worker owns one Session and drives it from a dedicated goroutine.
type Worker struct {
	mode    Mode
	cfg     Config
	logger  log.Logger
	sess    *session.Session
	ledger  *ledger.Ledger
	machine *lifecycle.Machine
	limiter *rate.Limiter

	mu       sync.Mutex
	items    []session.Item
	number   int
	seq      uint32
	firstID  uint32
	lastID   uint32
	critical []error
	listener ProgressListener
	onFinish func(*Worker)
	started  bool
	stopping bool

	sending atomic.Bool
	wake    chan struct{}
	done    chan struct{}
}

func newWorker(mode Mode, desc conn.Descriptor, dialer conn.Dialer, cfg Config, logger log.Logger) *Worker {
	cfg = cfg.withDefaults()
	logger = log.OrNoop(logger)
	w := &Worker{
		mode:     mode,
		cfg:      cfg,
		logger:   logger,
		sess:     session.New(desc, dialer, cfg.Session, logger),
		ledger:   ledger.New(cfg.LedgerCapacity),
		listener: NopListener{},
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	w.machine = lifecycle.NewMachine(logger, nil, log.String("mode", mode.String()))
	if cfg.SleepBetween > 0 {
		w.limiter = rate.NewLimiter(rate.Every(cfg.SleepBetween), 1)
	}
	return w
}

// NewBatch creates a worker that sends items in order and then exits.
func NewBatch(desc conn.Descriptor, dialer conn.Dialer, items []session.Item, cfg Config, logger log.Logger) *Worker {
	w := newWorker(ModeBatch, desc, dialer, cfg, logger)
	w.SetItems(items)
	return w
}

// NewBatchPayload creates a batch worker sending p to every token.
func NewBatchPayload(desc conn.Descriptor, dialer conn.Dialer, p payload.Payload, tokens []string, cfg Config, logger log.Logger) *Worker {
	return NewBatch(desc, dialer, Items(p, tokens), cfg, logger)
}

// NewQueue creates a worker that sends items as they are added.
func NewQueue(desc conn.Descriptor, dialer conn.Dialer, cfg Config, logger log.Logger) *Worker {
	return newWorker(ModeQueue, desc, dialer, cfg, logger)
}

// Items pairs one payload with many tokens.
func Items(p payload.Payload, tokens []string) []session.Item {
	items := make([]session.Item, len(tokens))
	for i, t := range tokens {
		items[i] = session.Item{Token: t, Payload: p}
	}
	return items
}

// Mode returns the worker mode.
func (w *Worker) Mode() Mode { return w.mode }

// Number returns the worker number; zero when the worker is not numbered.
func (w *Worker) Number() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.number
}

// SetNumber numbers the worker. It must be called before Start.
func (w *Worker) SetNumber(n int) {
	w.mu.Lock()
	w.number = n
	w.mu.Unlock()
}

// SetItems replaces the batch. It must be called before Start.
func (w *Worker) SetItems(items []session.Item) {
	w.mu.Lock()
	w.items = append([]session.Item(nil), items...)
	w.mu.Unlock()
	if w.mode == ModeBatch && w.cfg.LedgerCapacity <= 0 && len(items) > 0 {
		w.ledger.SetCapacity(len(items))
	}
}

// Size returns the number of items in the batch, or queued in a queue worker.
func (w *Worker) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// SetListener sets the progress listener. It must be called before Start.
func (w *Worker) SetListener(l ProgressListener) {
	if l == nil {
		l = NopListener{}
	}
	w.mu.Lock()
	w.listener = l
	w.mu.Unlock()
}

// OnFinish registers fn to run after the worker goroutine finished.
func (w *Worker) OnFinish(fn func(*Worker)) {
	w.mu.Lock()
	w.onFinish = fn
	w.mu.Unlock()
}

func (w *Worker) progress() ProgressListener {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.listener
}

// State returns the lifecycle state.
func (w *Worker) State() lifecycle.State { return w.machine.State() }

// Session returns the worker's session.
func (w *Worker) Session() *session.Session { return w.sess }

// Busy reports whether the worker is sending or has queued items.
func (w *Worker) Busy() bool {
	if w.sending.Load() {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode == ModeQueue && len(w.items) > 0
}

// Done is closed when the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Wait blocks until the worker finished or ctx is done.
func (w *Worker) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the worker goroutine. Calling Start again is a no-op.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	if err := w.machine.TransitionTo(lifecycle.StateStarting, "start called"); err != nil {
		return err
	}
	go w.run(ctx)
	return nil
}

// Stop makes a queue worker refuse new items, send what is queued, close its
// session and exit. It does not wait; use Wait.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopping = true
	w.mu.Unlock()
	w.signal()
}

// Add queues an item and returns immediately.
func (w *Worker) Add(item session.Item) error {
	if w.mode != ModeQueue {
		return ErrNotQueue
	}
	w.mu.Lock()
	if w.stopping {
		w.mu.Unlock()
		return ErrStopped
	}
	w.items = append(w.items, item)
	w.mu.Unlock()
	w.signal()
	return nil
}

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) pop() (session.Item, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.items) == 0 {
		return session.Item{}, false
	}
	it := w.items[0]
	w.items[0] = session.Item{}
	w.items = w.items[1:]
	return it, true
}

func (w *Worker) isStopping() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopping
}

// nextIdentifier returns number<<24 | seq for the next notification.
func (w *Worker) nextIdentifier() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq = (w.seq + 1) & 0xFFFFFF
	if w.seq == 0 {
		w.seq = 1
	}
	id := uint32(w.number)<<24 | w.seq
	if w.firstID == 0 {
		w.firstID = id
	}
	w.lastID = id
	return id
}

// FirstIdentifier returns the first identifier the worker assigned.
func (w *Worker) FirstIdentifier() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.firstID
}

// LastIdentifier returns the latest identifier the worker assigned.
func (w *Worker) LastIdentifier() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastID
}

// Ledger returns the worker's outcome ledger.
func (w *Worker) Ledger() *ledger.Ledger { return w.ledger }

// Outcomes returns a snapshot of every retained outcome.
func (w *Worker) Outcomes() []*ledger.Outcome { return w.ledger.All() }

// Successful returns the successful outcomes.
func (w *Worker) Successful() []*ledger.Outcome { return w.ledger.Successful() }

// Failed returns the failed outcomes.
func (w *Worker) Failed() []*ledger.Outcome { return w.ledger.Failed() }

// ClearOutcomes empties the ledger.
func (w *Worker) ClearOutcomes() { w.ledger.Clear() }

// CriticalError returns the latest critical error, or nil.
func (w *Worker) CriticalError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.critical) == 0 {
		return nil
	}
	return w.critical[len(w.critical)-1]
}

// CriticalErrors returns every critical error in order.
func (w *Worker) CriticalErrors() []error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]error(nil), w.critical...)
}

func (w *Worker) recordCritical(err error) {
	w.mu.Lock()
	w.critical = append(w.critical, err)
	w.mu.Unlock()
	w.logger.Error("critical error", log.Worker(w.Number()), log.String("mode", w.mode.String()), log.Err(err))
	w.progress().CriticalError(w, err)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	_ = w.machine.TransitionTo(lifecycle.StateRunning, "worker started")
	w.progress().WorkerStarted(w)
	w.logger.Debug("worker started", log.Worker(w.Number()), log.String("mode", w.mode.String()), log.Int("items", w.Size()))

	var crashed bool
	if w.mode == ModeBatch {
		crashed = w.runBatch(ctx)
	} else {
		w.runQueue(ctx)
	}

	if crashed {
		_ = w.machine.TransitionTo(lifecycle.StateCrashed, "critical error")
	} else {
		_ = w.machine.TransitionTo(lifecycle.StateStopping, "work finished")
		_ = w.machine.TransitionTo(lifecycle.StateStopped, "session closed")
	}

	w.logger.Debug("worker finished",
		log.Worker(w.Number()),
		log.Int("outcomes", w.ledger.Len()),
		log.Int("critical", len(w.CriticalErrors())),
	)
	w.progress().WorkerFinished(w)

	w.mu.Lock()
	fn := w.onFinish
	w.mu.Unlock()
	if fn != nil {
		fn(w)
	}
}

// send paces, tags and sends one item, returning only critical errors. Items
// rejected before any I/O are recorded in the ledger like any other.
func (w *Worker) send(ctx context.Context, it session.Item) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	it.ID = w.nextIdentifier()

	w.sending.Store(true)
	o, err := w.sess.Send(ctx, it)
	w.sending.Store(false)

	w.ledger.Add(o)
	if err != nil && session.IsFatal(err) {
		return err
	}
	return nil
}

func (w *Worker) restart(ctx context.Context) error {
	if err := w.sess.Restart(ctx); err != nil {
		return err
	}
	w.logger.Debug("connection restarted", log.Worker(w.Number()), log.ConnID(w.sess.ConnID()))
	w.progress().ConnectionRestarted(w)
	return nil
}

func (w *Worker) runBatch(ctx context.Context) (crashed bool) {
	w.mu.Lock()
	items := append([]session.Item(nil), w.items...)
	w.mu.Unlock()

	perConn := 0
	for i, it := range items {
		if err := w.send(ctx, it); err != nil {
			w.recordCritical(err)
			crashed = true
			break
		}
		// Every submission counts, delivered or not.
		perConn++
		if perConn >= w.cfg.MaxPerConnection && i < len(items)-1 {
			if err := w.restart(ctx); err != nil {
				w.recordCritical(err)
				crashed = true
				break
			}
			perConn = 0
		}
	}

	if err := w.sess.Close(context.WithoutCancel(ctx)); err != nil {
		w.recordCritical(err)
		crashed = true
	}
	return crashed
}

func (w *Worker) runQueue(ctx context.Context) {
	backoff := lifecycle.NewBackoff(w.cfg.CriticalBackoff, 30*w.cfg.CriticalBackoff)
	idle := time.NewTimer(w.cfg.IdleWait)
	defer idle.Stop()

	perConn := 0
	for ctx.Err() == nil {
		it, ok := w.pop()
		if !ok {
			if w.isStopping() {
				break
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(w.cfg.IdleWait)
			select {
			case <-ctx.Done():
			case <-w.wake:
			case <-idle.C:
			}
			continue
		}

		if err := w.send(ctx, it); err != nil {
			if ctx.Err() != nil {
				break
			}
			w.recordCritical(err)
			perConn = 0
			if backoff.Wait(ctx) != nil {
				break
			}
			continue
		}
		backoff.Reset()
		perConn++
		if perConn >= w.cfg.MaxPerConnection {
			if err := w.restart(ctx); err != nil {
				w.recordCritical(err)
			}
			perConn = 0
		}
	}

	if err := w.sess.Close(context.WithoutCancel(ctx)); err != nil {
		w.recordCritical(err)
	}
}
