package session

import (
	"context"
	"time"

	"github.com/bft-labs/pushwire/pkg/ledger"
	"github.com/bft-labs/pushwire/pkg/log"
	"github.com/bft-labs/pushwire/pkg/wire"
)

// Reconcile drains error responses from the open connection and resends
// every frame written after the first rejected one over a new connection,
// repeating until a drain yields nothing. It returns how many frames were
// resent in total. Simple-format sessions have nothing to reconcile.
func (s *Session) Reconcile(ctx context.Context) (int, error) {
	if s.cfg.Format == wire.FormatSimple || s.connection() == nil {
		return 0, nil
	}

	resent := 0
	received := s.drain()
	for received > 0 {
		resend := s.afterFirstFailure()
		s.clearPending()
		s.logger.Debug("reconciled responses",
			log.Int("responses", received), log.Int("resend", len(resend)), log.Host(s.desc.Addr()))

		if len(resend) > 0 {
			// The gateway discarded these along with the connection.
			for _, o := range resend {
				o.SetCompleted(false)
			}
			s.dropConnection()
			if err := s.Open(ctx); err != nil {
				abandon(resend, err)
				return resent, err
			}
			for i, o := range resend {
				if err := s.resend(ctx, o); err != nil {
					abandon(resend[i+1:], err)
					return resent, err
				}
				resent++
			}
		}
		received = s.drain()
	}
	return resent, nil
}

// drain reads error responses until none is available and links each to its
// outcome. Frames for unknown identifiers are ignored.
func (s *Session) drain() int {
	c := s.connection()
	if c == nil {
		return 0
	}
	defer c.SetReadDeadline(time.Time{})

	n := 0
	for {
		if err := c.SetReadDeadline(time.Now().Add(s.cfg.ReconcileTimeout)); err != nil {
			return n
		}
		resp, ok := wire.ReadErrorResponse(c)
		if !ok {
			return n
		}
		n++
		if !resp.IsErrorResponse() {
			s.logger.Warn("unexpected response", log.String("message", resp.Message()), log.ConnID(c.ID()))
			continue
		}
		o, found := s.byID[resp.Identifier]
		if !found {
			s.logger.Debug("response for unknown notification", log.ID(resp.Identifier), log.Int(log.KeyStatus, int(resp.Status)))
			continue
		}
		o.LinkResponse(resp)
		s.logger.Warn("notification rejected by gateway",
			log.ID(o.ID()),
			log.Token(o.Token()),
			log.Int(log.KeyStatus, int(resp.Status)),
			log.String("message", resp.Message()),
		)
	}
}

// afterFirstFailure returns the outcomes written after the first one carrying
// a failure response. The failed outcome itself is final and not included.
func (s *Session) afterFirstFailure() []*ledger.Outcome {
	for i, o := range s.pending {
		if r, ok := o.Response(); ok && r.IsValidError() {
			return append([]*ledger.Outcome(nil), s.pending[i+1:]...)
		}
	}
	return nil
}

func (s *Session) resend(ctx context.Context, o *ledger.Outcome) error {
	frame, err := s.encode(o)
	if err != nil {
		o.SetErr(err)
		return nil
	}
	o.ResetAttempts()
	o.ClearResponse()
	s.track(o)
	return s.transmit(ctx, o, frame)
}

// abandon attaches err to outcomes that were discarded by the gateway and
// could not be resent.
func abandon(outcomes []*ledger.Outcome, err error) {
	for _, o := range outcomes {
		o.SetErr(err)
	}
}
