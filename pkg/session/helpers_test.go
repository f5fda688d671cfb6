package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/pushwire/internal/testgateway"
	"github.com/bft-labs/pushwire/pkg/conn"
	"github.com/bft-labs/pushwire/pkg/credentials"
	"github.com/bft-labs/pushwire/pkg/payload"
	"github.com/bft-labs/pushwire/pkg/wire"
)

const (
	tokenA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	tokenB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	tokenC = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
)

var errBrokenPipe = errors.New("broken pipe")

func startGateway(t *testing.T) (*testgateway.Server, conn.Descriptor) {
	t.Helper()
	gw, err := testgateway.Start()
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })

	kp, err := testgateway.NewKeyPair("client")
	require.NoError(t, err)
	return gw, conn.Descriptor{
		Host:        gw.Host(),
		Port:        gw.Port(),
		Credentials: credentials.FromCertificate(kp.Cert),
		DialTimeout: 5 * time.Second,
	}
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.ReconcileTimeout = 200 * time.Millisecond
	cfg.SocketTimeout = 2 * time.Second
	return cfg
}

func item(token string, body string) Item {
	return Item{Token: token, Payload: payload.NewRaw([]byte(body))}
}

// failingConn rejects every write.
type failingConn struct {
	net.Conn
}

func (failingConn) Write([]byte) (int, error) { return 0, errBrokenPipe }

// pipeDialer hands out in-memory connections. Connections listed in failing
// (by dial number, from 1) reject every write. Frames written on the others
// are decoded and collected.
type pipeDialer struct {
	failing map[int]bool
	dialErr error

	mu     sync.Mutex
	dials  int
	frames []wire.Frame
	peers  []net.Conn
}

func (p *pipeDialer) Dial(ctx context.Context, d conn.Descriptor) (*conn.Connection, error) {
	p.mu.Lock()
	p.dials++
	n := p.dials
	p.mu.Unlock()

	if p.dialErr != nil {
		return nil, &conn.Error{Op: "dial", Addr: d.Addr(), Err: p.dialErr}
	}

	client, server := net.Pipe()
	p.mu.Lock()
	p.peers = append(p.peers, server)
	p.mu.Unlock()

	go func() {
		for {
			f, err := wire.ReadFrame(server)
			if err != nil {
				return
			}
			p.mu.Lock()
			p.frames = append(p.frames, f)
			p.mu.Unlock()
		}
	}()

	if p.failing[n] {
		return conn.Wrap(failingConn{client}, d), nil
	}
	return conn.Wrap(client, d), nil
}

func (p *pipeDialer) dialCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials
}

func (p *pipeDialer) received() []wire.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]wire.Frame(nil), p.frames...)
}

func (p *pipeDialer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.peers {
		c.Close()
	}
}
