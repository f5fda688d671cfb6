package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/pushwire/pkg/conn"
	"github.com/bft-labs/pushwire/pkg/ledger"
	"github.com/bft-labs/pushwire/pkg/lifecycle"
	"github.com/bft-labs/pushwire/pkg/log"
	"github.com/bft-labs/pushwire/pkg/payload"
	"github.com/bft-labs/pushwire/pkg/wire"
)

// ErrRetriesExhausted is returned when a frame could not be written within
// Config.Retries attempts.
var ErrRetriesExhausted = errors.New("write retries exhausted")

// State is the connection state of a Session.
type State int32

const (
	StateIdle State = iota
	StateConnected
	StateSending
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateSending:
		return "sending"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Item is one notification to send. A zero ID lets the session assign the
// next sequential identifier.
type Item struct {
	Token   string
	Payload payload.Payload
	ID      uint32
}

// IsFatal reports whether err from Send or Close should stop the caller from
// sending further items on this session. Item-level errors (bad token, empty
// or oversized payload) are not fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRetriesExhausted) ||
		errors.Is(err, conn.ErrConnection) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Session streams frames over one connection at a time.
type Session struct {
	desc   conn.Descriptor
	dialer conn.Dialer
	cfg    Config
	logger log.Logger
	now    func() time.Time

	state atomic.Int32

	mu sync.RWMutex
	c  *conn.Connection

	// Frames written since the last reconciliation, in send order.
	pending []*ledger.Outcome
	byID    map[uint32]*ledger.Outcome
	nextID  uint32
}

// New creates an idle session. The first Send opens the connection.
func New(desc conn.Descriptor, dialer conn.Dialer, cfg Config, logger log.Logger) *Session {
	logger = log.OrNoop(logger)
	if dialer == nil {
		d := conn.NewTLSDialer(logger)
		d.Debug = cfg.Debug
		dialer = d
	}
	return &Session{
		desc:   desc,
		dialer: dialer,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
		byID:   make(map[uint32]*ledger.Outcome),
	}
}

// State returns the connection state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// ConnID returns the id of the open connection, or "".
func (s *Session) ConnID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.c == nil {
		return ""
	}
	return s.c.ID()
}

// Pending returns how many written frames await reconciliation.
func (s *Session) Pending() int { return len(s.pending) }

// Config returns the effective configuration.
func (s *Session) Config() Config { return s.cfg }

func (s *Session) connection() *conn.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.c
}

// Open dials the gateway. It is a no-op when a connection is already open.
func (s *Session) Open(ctx context.Context) error {
	if s.connection() != nil && s.State() != StateFailed {
		return nil
	}
	s.dropConnection()

	c, err := s.dialer.Dial(ctx, s.desc)
	if err != nil {
		s.setState(StateFailed)
		s.logger.Error("connection failed", log.Host(s.desc.Addr()), log.Err(err))
		return err
	}

	s.mu.Lock()
	s.c = c
	s.mu.Unlock()
	s.setState(StateConnected)
	s.logger.Debug("connection opened", log.Host(s.desc.Addr()), log.ConnID(c.ID()))
	return nil
}

// dropConnection closes the socket without reconciling.
func (s *Session) dropConnection() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		_ = c.Close()
		s.logger.Debug("connection closed", log.Host(s.desc.Addr()), log.ConnID(c.ID()))
	}
}

func (s *Session) assignID(id uint32) uint32 {
	if id != 0 {
		return id
	}
	s.nextID++
	return s.nextID
}

// Send writes one notification and returns its outcome. The outcome is
// returned even when err is non-nil; err is also recorded on it.
func (s *Session) Send(ctx context.Context, item Item) (*ledger.Outcome, error) {
	o := ledger.NewOutcome(s.assignID(item.ID), item.Token, item.Payload)

	frame, err := s.encode(o)
	if err != nil {
		o.SetErr(err)
		s.logger.Warn("notification rejected", log.ID(o.ID()), log.Token(o.Token()), log.Err(err))
		return o, err
	}

	if err := s.Open(ctx); err != nil {
		o.SetErr(err)
		return o, err
	}

	s.track(o)
	return o, s.transmit(ctx, o, frame)
}

// encode validates the item and builds its frame. It does no I/O.
func (s *Session) encode(o *ledger.Outcome) ([]byte, error) {
	p := o.Payload()
	if p == nil {
		return nil, wire.ErrPayloadEmpty
	}
	body, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}
	if err := wire.CheckPayload(body, p.MaxSize()); err != nil {
		return nil, err
	}
	tok, err := wire.DecodeToken(o.Token())
	if err != nil {
		return nil, err
	}

	if o.Expiry() == 0 {
		o.SetExpiry(s.expiry(p.Expiry()))
	}
	return wire.Frame{
		Format:     s.cfg.Format,
		Identifier: o.ID(),
		Expiry:     o.Expiry(),
		Token:      tok,
		Payload:    body,
	}.MarshalBinary()
}

func (s *Session) expiry(ttl int) uint32 {
	if ttl <= 0 {
		return 0
	}
	return uint32(s.now().Unix()) + uint32(ttl)
}

func (s *Session) track(o *ledger.Outcome) {
	if prev, ok := s.byID[o.ID()]; !ok || prev != o {
		s.pending = append(s.pending, o)
	}
	s.byID[o.ID()] = o
}

// transmit writes frame, reconnecting and rewriting on failure.
func (s *Session) transmit(ctx context.Context, o *ledger.Outcome, frame []byte) error {
	simulate := payload.IsSimulation(o.Payload())
	var backoff *lifecycle.Backoff
	if s.cfg.RetryBackoff > 0 {
		backoff = lifecycle.NewBackoff(s.cfg.RetryBackoff, 10*s.cfg.RetryBackoff)
	}

	for {
		attempt := o.AddAttempt()
		c := s.connection()
		if c == nil {
			if err := s.Open(ctx); err != nil {
				o.SetErr(err)
				return err
			}
			c = s.connection()
		}

		s.setState(StateSending)
		err := s.writeFrame(c, frame, simulate)
		if err == nil {
			s.setState(StateConnected)
			o.SetCompleted(true)
			o.SetConnID(c.ID())
			o.SetErr(nil)
			if s.cfg.Debug {
				s.logger.Debug("frame written",
					log.ID(o.ID()),
					log.Token(o.Token()),
					log.Int("bytes", len(frame)),
					log.String(log.KeyAttempt, o.AttemptLabel()),
					log.Bool("simulated", simulate),
					log.ConnID(c.ID()),
				)
			}
			return nil
		}

		if attempt >= s.cfg.Retries {
			s.setState(StateFailed)
			s.dropConnection()
			err = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
			o.SetCompleted(false)
			o.SetErr(err)
			s.logger.Error("notification not delivered",
				log.ID(o.ID()), log.Token(o.Token()), log.Int(log.KeyAttempt, attempt), log.Err(err))
			return err
		}

		s.logger.Info("write failed, reconnecting",
			log.ID(o.ID()), log.Int(log.KeyAttempt, attempt), log.ConnID(c.ID()), log.Err(err))
		s.dropConnection()
		if backoff != nil {
			if err := backoff.Wait(ctx); err != nil {
				o.SetErr(err)
				return err
			}
		}
		if err := s.Open(ctx); err != nil {
			o.SetErr(err)
			return err
		}
	}
}

func (s *Session) writeFrame(c *conn.Connection, frame []byte, simulate bool) error {
	if simulate {
		return nil
	}
	if s.cfg.SocketTimeout > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(s.cfg.SocketTimeout)); err != nil {
			return err
		}
	}
	_, err := c.Write(frame)
	return err
}

// Restart reconciles, closes the connection and opens a new one.
func (s *Session) Restart(ctx context.Context) error {
	if err := s.Close(ctx); err != nil {
		return err
	}
	return s.Open(ctx)
}

// Close reconciles pending frames and closes the connection. Socket close
// errors are swallowed; an error is returned only when a resend failed.
func (s *Session) Close(ctx context.Context) error {
	var err error
	if s.connection() != nil {
		_, err = s.Reconcile(ctx)
	}
	s.dropConnection()
	s.clearPending()
	s.setState(StateIdle)
	return err
}

func (s *Session) clearPending() {
	s.pending = nil
	s.byID = make(map[uint32]*ledger.Outcome)
}
