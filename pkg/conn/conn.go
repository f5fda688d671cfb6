package conn

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/pushwire/pkg/log"
)

// Connection is an open duplex stream to a server. Close is idempotent.
type Connection struct {
	net.Conn

	id       string
	desc     Descriptor
	openedAt time.Time

	closeOnce sync.Once
	closeErr  error
}

// Wrap adopts an already established net.Conn.
func Wrap(nc net.Conn, d Descriptor) *Connection {
	return &Connection{
		Conn:     nc,
		id:       uuid.New().String(),
		desc:     d,
		openedAt: time.Now(),
	}
}

// ID uniquely identifies the connection for logging and outcome tracking.
func (c *Connection) ID() string { return c.id }

// Descriptor returns the descriptor the connection was built from.
func (c *Connection) Descriptor() Descriptor { return c.desc }

// OpenedAt returns when the connection was established.
func (c *Connection) OpenedAt() time.Time { return c.openedAt }

// Close closes the underlying stream once; later calls return the first result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, d Descriptor) (*Connection, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, d Descriptor) (*Connection, error)

func (f DialerFunc) Dial(ctx context.Context, d Descriptor) (*Connection, error) {
	return f(ctx, d)
}

// DefaultUserAgent is sent in proxy CONNECT requests.
const DefaultUserAgent = "pushwire"

// TLSDialer opens TLS connections, tunnelling through a proxy when one applies.
type TLSDialer struct {
	Logger    log.Logger
	UserAgent string
	// Debug logs the negotiated TLS parameters after every handshake.
	Debug bool
}

// NewTLSDialer creates a dialer logging to logger.
func NewTLSDialer(logger log.Logger) *TLSDialer {
	return &TLSDialer{Logger: log.OrNoop(logger), UserAgent: DefaultUserAgent}
}

// Dial opens a connection described by d.
func (t *TLSDialer) Dial(ctx context.Context, d Descriptor) (*Connection, error) {
	logger := log.OrNoop(t.Logger)
	addr := d.Addr()

	cfg, err := clientConfig(d)
	if err != nil {
		return nil, &Error{Op: "credentials", Addr: addr, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, d.dialTimeout())
	defer cancel()

	var nd net.Dialer
	var raw net.Conn
	if proxy := ResolveProxy(d); proxy != "" {
		logger.Debug("dialing through proxy", log.Host(addr), log.String("proxy", proxy))
		raw, err = nd.DialContext(ctx, "tcp", proxy)
		if err != nil {
			return nil, &Error{Op: "dial proxy", Addr: proxy, Err: err}
		}
		if err := tunnel(ctx, raw, addr, t.userAgent()); err != nil {
			raw.Close()
			return nil, &Error{Op: "proxy", Addr: proxy, Err: err}
		}
	} else {
		raw, err = nd.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, &Error{Op: "dial", Addr: addr, Err: err}
		}
	}

	tc := tls.Client(raw, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, &Error{Op: "handshake", Addr: addr, Err: err}
	}

	c := Wrap(tc, d)
	if t.Debug {
		st := tc.ConnectionState()
		logger.Debug("handshake finished",
			log.Host(addr),
			log.ConnID(c.ID()),
			log.String("version", tls.VersionName(st.Version)),
			log.String("cipher_suite", tls.CipherSuiteName(st.CipherSuite)),
			log.String("server_name", st.ServerName),
		)
	}
	return c, nil
}

func (t *TLSDialer) userAgent() string {
	if t.UserAgent == "" {
		return DefaultUserAgent
	}
	return t.UserAgent
}

func clientConfig(d Descriptor) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         d.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !d.VerifyServerCertificate,
	}
	if d.VerifyServerCertificate {
		cfg.RootCAs = d.RootCAs
	}
	if d.Credentials != nil {
		cert, err := d.Credentials.Certificate()
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
