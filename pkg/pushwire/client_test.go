package pushwire

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/pushwire/internal/testgateway"
	"github.com/bft-labs/pushwire/pkg/conn"
	"github.com/bft-labs/pushwire/pkg/credentials"
	"github.com/bft-labs/pushwire/pkg/lifecycle"
	"github.com/bft-labs/pushwire/pkg/payload"
	"github.com/bft-labs/pushwire/pkg/pool"
	"github.com/bft-labs/pushwire/pkg/session"
	"github.com/bft-labs/pushwire/pkg/wire"
)

func token(i int) string {
	b := make([]byte, wire.TokenSize)
	b[wire.TokenSize-1] = byte(i)
	return wire.EncodeToken(b)
}

func tokens(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = token(i + 1)
	}
	return out
}

func descriptor(t *testing.T, srv *testgateway.Server) conn.Descriptor {
	t.Helper()
	kp, err := testgateway.NewKeyPair("client")
	require.NoError(t, err)
	return conn.Descriptor{
		Host:        srv.Host(),
		Port:        srv.Port(),
		Credentials: credentials.FromCertificate(kp.Cert),
		DialTimeout: 5 * time.Second,
	}
}

func newClient(t *testing.T, opts ...Option) (*Client, *testgateway.Server) {
	t.Helper()
	gw, err := testgateway.Start()
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })

	cfg := pool.DefaultConfig()
	cfg.DelayBetweenWorkers = 10 * time.Millisecond
	cfg.Worker.Session.ReconcileTimeout = 200 * time.Millisecond
	cfg.Worker.IdleWait = 50 * time.Millisecond

	c := New(descriptor(t, gw), append([]Option{WithConfig(cfg)}, opts...)...)
	return c, gw
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSubmitOne(t *testing.T) {
	c, gw := newClient(t)
	ctx := testContext(t)

	o, err := c.SubmitOne(ctx, token(1), payload.Alert("hi"))
	require.NoError(t, err)
	assert.True(t, o.Successful())
	assert.Len(t, gw.Delivered(), 1)
}

func TestSubmitOneRejected(t *testing.T) {
	c, gw := newClient(t)
	gw.RejectToken(token(1), wire.StatusInvalidToken)
	ctx := testContext(t)

	o, err := c.SubmitOne(ctx, token(1), payload.Alert("hi"))
	require.NoError(t, err)
	assert.True(t, o.Failed())
	resp, ok := o.Response()
	require.True(t, ok)
	assert.Equal(t, wire.StatusInvalidToken, resp.Status)
}

func TestSubmitOneInvalidToken(t *testing.T) {
	c, gw := newClient(t)
	o, err := c.SubmitOne(testContext(t), "bad", payload.Alert("hi"))
	assert.ErrorIs(t, err, wire.ErrInvalidToken)
	assert.False(t, o.Successful())
	assert.Zero(t, gw.Connections())
}

func TestSubmitMany(t *testing.T) {
	c, gw := newClient(t)
	outcomes, err := c.SubmitMany(testContext(t), tokens(4), payload.Alert("hi"))
	require.NoError(t, err)
	require.Len(t, outcomes, 4)
	assert.Len(t, gw.Delivered(), 4)
	assert.Equal(t, 1, gw.Connections())
}

func TestSubmitPairs(t *testing.T) {
	c, gw := newClient(t)
	items := []session.Item{
		{Token: token(1), Payload: payload.Alert("one")},
		{Token: token(2), Payload: payload.Alert("two")},
	}
	outcomes, err := c.SubmitPairs(testContext(t), items)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for i, r := range gw.Delivered() {
		assert.Equal(t, items[i].Token, r.Token())
	}
}

func TestSubmitConcurrent(t *testing.T) {
	c, gw := newClient(t)
	outcomes, errs := c.SubmitConcurrent(testContext(t), tokens(9), payload.Alert("hi"), 3)
	assert.Empty(t, errs)
	assert.Len(t, outcomes, 9)
	assert.Len(t, gw.Delivered(), 9)
	assert.Equal(t, 3, gw.Connections())

	outcomes, errs = c.SubmitConcurrent(testContext(t), nil, payload.Alert("hi"), 3)
	assert.Empty(t, outcomes)
	assert.Empty(t, errs)
}

func TestQueueAndClose(t *testing.T) {
	c, gw := newClient(t)
	ctx := testContext(t)

	q, err := c.Queue(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, q.AddAll(payload.Alert("hi"), tokens(5)))
	require.True(t, gw.WaitDelivered(5, 5*time.Second))

	require.NoError(t, c.Close(ctx))
	assert.Len(t, q.Successful(), 5)
}

func TestFeedback(t *testing.T) {
	tuple := make([]byte, 38)
	binary.BigEndian.PutUint32(tuple, 1700000000)
	binary.BigEndian.PutUint16(tuple[4:], wire.TokenSize)
	tuple[37] = 7

	srv, err := testgateway.StartFeedback(tuple)
	require.NoError(t, err)
	defer srv.Close()

	c, _ := newClient(t, WithFeedbackDescriptor(descriptor(t, srv)))
	records, err := c.Feedback(testContext(t))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, token(7), records[0].Token)
}

func TestFeedbackDescriptorDerived(t *testing.T) {
	c := New(conn.NewDescriptor(nil, true).WithProxy("proxy", 3128))
	assert.Equal(t, conn.ProductionFeedbackHost, c.feedback.Host)
	assert.Equal(t, conn.FeedbackPort, c.feedback.Port)
	assert.Equal(t, "proxy", c.feedback.ProxyHost)

	c = New(conn.NewDescriptor(nil, false))
	assert.Equal(t, conn.SandboxFeedbackHost, c.feedback.Host)
}

type fakePlugin struct {
	name    string
	initErr error
	events  *[]string
}

func (p *fakePlugin) Name() string { return p.name }

func (p *fakePlugin) Initialize(ctx context.Context, cfg PluginConfig) error {
	*p.events = append(*p.events, "init "+p.name)
	return p.initErr
}

func (p *fakePlugin) Shutdown(ctx context.Context) error {
	*p.events = append(*p.events, "shutdown "+p.name)
	return nil
}

func TestPluginLifecycle(t *testing.T) {
	var events []string
	c := New(conn.NewDescriptor(nil, false),
		WithPlugin(&fakePlugin{name: "a", events: &events}),
		WithPlugin(&fakePlugin{name: "b", events: &events}),
	)
	ctx := testContext(t)

	require.NoError(t, c.Start(ctx))
	assert.ErrorIs(t, c.Start(ctx), lifecycle.ErrAlreadyRunning)
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, []string{"init a", "init b", "shutdown b", "shutdown a"}, events)
}

func TestPluginInitFailureRollsBack(t *testing.T) {
	var events []string
	boom := errors.New("boom")
	c := New(conn.NewDescriptor(nil, false),
		WithPlugin(&fakePlugin{name: "a", events: &events}),
		WithPlugin(&fakePlugin{name: "b", initErr: boom, events: &events}),
	)
	ctx := testContext(t)

	assert.ErrorIs(t, c.Start(ctx), boom)
	assert.Equal(t, []string{"init a", "init b", "shutdown a"}, events)
	require.NoError(t, c.Close(ctx))
	assert.Len(t, events, 3, "Close after a failed Start does not shut plugins down again")
}
