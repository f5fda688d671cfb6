package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/pushwire/pkg/conn"
	"github.com/bft-labs/pushwire/pkg/ledger"
	"github.com/bft-labs/pushwire/pkg/wire"
)

func sendAll(t *testing.T, s *Session, items ...Item) []*ledger.Outcome {
	t.Helper()
	var out []*ledger.Outcome
	for _, it := range items {
		o, err := s.Send(context.Background(), it)
		require.NoError(t, err)
		out = append(out, o)
	}
	return out
}

func TestReconcileResendsAfterRejectedFrame(t *testing.T) {
	gw, desc := startGateway(t)
	gw.RejectID(2, wire.StatusInvalidToken)

	s := New(desc, conn.NewTLSDialer(nil), fastConfig(), nil)
	outcomes := sendAll(t, s, item(tokenA, "one"), item(tokenB, "two"), item(tokenC, "three"))
	firstConn := outcomes[0].ConnID()

	require.NoError(t, s.Close(context.Background()))

	o1, o2, o3 := outcomes[0], outcomes[1], outcomes[2]
	assert.True(t, o1.Successful())

	assert.False(t, o2.Successful())
	resp, ok := o2.Response()
	require.True(t, ok)
	assert.Equal(t, wire.StatusInvalidToken, resp.Status)

	assert.True(t, o3.Successful())
	assert.NotEqual(t, firstConn, o3.ConnID(), "resend must use a new connection")
	assert.Equal(t, "first attempt", o3.AttemptLabel())

	require.True(t, gw.WaitDelivered(2, 2*time.Second))
	var ids []uint32
	for _, r := range gw.Delivered() {
		ids = append(ids, r.Frame.Identifier)
	}
	assert.Equal(t, []uint32{1, 3}, ids)
	assert.Equal(t, 2, gw.Connections())
	assert.Equal(t, 2, gw.Delivered()[1].Conn)
}

func TestReconcileResendsExactlyTail(t *testing.T) {
	gw, desc := startGateway(t)
	gw.RejectID(4, wire.StatusProcessingError)

	s := New(desc, conn.NewTLSDialer(nil), fastConfig(), nil)
	var items []Item
	for i := 0; i < 7; i++ {
		items = append(items, item(tokenA, "n"))
	}
	outcomes := sendAll(t, s, items...)

	resent, err := s.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, resent, "items 5..7 are resent")
	require.NoError(t, s.Close(context.Background()))

	for i, o := range outcomes {
		if i == 3 {
			assert.True(t, o.Failed())
			continue
		}
		assert.True(t, o.Successful(), "outcome %d", o.ID())
	}

	require.True(t, gw.WaitDelivered(6, 2*time.Second))
	byConn := map[int][]uint32{}
	for _, r := range gw.Delivered() {
		byConn[r.Conn] = append(byConn[r.Conn], r.Frame.Identifier)
	}
	assert.Equal(t, []uint32{1, 2, 3}, byConn[1])
	assert.Equal(t, []uint32{5, 6, 7}, byConn[2])
}

func TestReconcileGatewayClosesAfterError(t *testing.T) {
	gw, desc := startGateway(t)
	gw.CloseOnError(true)
	gw.RejectToken(tokenB, wire.StatusInvalidToken)

	s := New(desc, conn.NewTLSDialer(nil), fastConfig(), nil)
	outcomes := sendAll(t, s, item(tokenA, "one"), item(tokenB, "two"))
	require.NoError(t, s.Close(context.Background()))

	assert.True(t, outcomes[0].Successful())
	assert.True(t, outcomes[1].Failed())
	assert.Equal(t, 1, gw.Connections(), "nothing follows the rejected frame")
}

func TestReconcileIgnoresUnknownIdentifier(t *testing.T) {
	gw, desc := startGateway(t)
	s := New(desc, conn.NewTLSDialer(nil), fastConfig(), nil)
	outcomes := sendAll(t, s, item(tokenA, "one"))

	gw.RejectID(2, wire.StatusInvalidToken)
	o, err := s.Send(context.Background(), Item{Token: tokenB, Payload: item(tokenB, "x").Payload, ID: 2})
	require.NoError(t, err)
	// Forget the second notification so the rejection refers to an
	// identifier this session no longer tracks.
	s.byID = map[uint32]*ledger.Outcome{outcomes[0].ID(): outcomes[0]}
	s.pending = []*ledger.Outcome{outcomes[0]}

	resent, err := s.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, resent)
	_, linked := o.Response()
	assert.False(t, linked)
	assert.True(t, outcomes[0].Successful())
	require.NoError(t, s.Close(context.Background()))
}

func TestAfterFirstFailure(t *testing.T) {
	s := New(conn.Descriptor{}, &pipeDialer{}, fastConfig(), nil)
	for i := uint32(1); i <= 5; i++ {
		o := ledger.NewOutcome(i, tokenA, nil)
		o.SetCompleted(true)
		s.track(o)
	}
	assert.Empty(t, s.afterFirstFailure(), "no failure, nothing to resend")

	s.pending[2].LinkResponse(wire.ErrorResponse{Command: 8, Status: wire.StatusNoErrors, Identifier: 3})
	assert.Empty(t, s.afterFirstFailure(), "status 0 is not a failure")

	s.pending[1].LinkResponse(wire.ErrorResponse{Command: 8, Status: wire.StatusMissingPayload, Identifier: 2})
	s.pending[3].LinkResponse(wire.ErrorResponse{Command: 8, Status: wire.StatusInvalidToken, Identifier: 4})
	var ids []uint32
	for _, o := range s.afterFirstFailure() {
		ids = append(ids, o.ID())
	}
	assert.Equal(t, []uint32{3, 4, 5}, ids)
}

var errRefused = errors.New("refused")

// flakyDialer dials the gateway for the first connection. Later dials are
// handed to next.
func flakyDialer(next func(ctx context.Context, d conn.Descriptor, n int32, tls conn.Dialer) (*conn.Connection, error)) conn.Dialer {
	tls := conn.NewTLSDialer(nil)
	var dials atomic.Int32
	return conn.DialerFunc(func(ctx context.Context, d conn.Descriptor) (*conn.Connection, error) {
		n := dials.Add(1)
		if n == 1 {
			return tls.Dial(ctx, d)
		}
		return next(ctx, d, n, tls)
	})
}

func TestReconcileRedialFailureMarksTailFailed(t *testing.T) {
	gw, desc := startGateway(t)
	gw.RejectID(1, wire.StatusInvalidToken)

	dialer := flakyDialer(func(_ context.Context, d conn.Descriptor, _ int32, _ conn.Dialer) (*conn.Connection, error) {
		return nil, &conn.Error{Op: "dial", Addr: d.Addr(), Err: errRefused}
	})
	s := New(desc, dialer, fastConfig(), nil)
	outcomes := sendAll(t, s, item(tokenA, "one"), item(tokenB, "two"), item(tokenC, "three"))

	err := s.Close(context.Background())
	require.ErrorIs(t, err, conn.ErrConnection)

	assert.True(t, outcomes[0].Failed())
	for _, o := range outcomes[1:] {
		assert.False(t, o.Successful(), "outcome %d", o.ID())
		assert.False(t, o.Completed(), "outcome %d", o.ID())
		assert.ErrorIs(t, o.Err(), errRefused, "outcome %d", o.ID())
	}
}

func TestReconcilePartialResendMarksRemainderFailed(t *testing.T) {
	gw, desc := startGateway(t)
	gw.RejectID(1, wire.StatusInvalidToken)

	dialer := flakyDialer(func(ctx context.Context, d conn.Descriptor, n int32, tls conn.Dialer) (*conn.Connection, error) {
		if n == 2 {
			c, err := tls.Dial(ctx, d)
			if err != nil {
				return nil, err
			}
			return conn.Wrap(failingConn{c}, d), nil
		}
		return nil, &conn.Error{Op: "dial", Addr: d.Addr(), Err: errRefused}
	})
	s := New(desc, dialer, fastConfig(), nil)
	outcomes := sendAll(t, s, item(tokenA, "one"), item(tokenB, "two"), item(tokenC, "three"))

	require.Error(t, s.Close(context.Background()))

	for _, o := range outcomes[1:] {
		assert.False(t, o.Successful(), "outcome %d", o.ID())
		assert.Error(t, o.Err(), "outcome %d", o.ID())
	}
	assert.ErrorIs(t, outcomes[2].Err(), errRefused)
}

func TestResendClearsStaleResponse(t *testing.T) {
	gw, desc := startGateway(t)
	gw.RejectID(1, wire.StatusInvalidToken)

	s := New(desc, conn.NewTLSDialer(nil), fastConfig(), nil)
	outcomes := sendAll(t, s, item(tokenA, "one"), item(tokenB, "two"), item(tokenC, "three"))
	outcomes[2].LinkResponse(wire.ErrorResponse{Command: 8, Status: wire.StatusProcessingError, Identifier: 3})

	require.NoError(t, s.Close(context.Background()))

	assert.True(t, outcomes[0].Failed())
	assert.True(t, outcomes[1].Successful())
	assert.True(t, outcomes[2].Successful())
	_, linked := outcomes[2].Response()
	assert.False(t, linked)
}
