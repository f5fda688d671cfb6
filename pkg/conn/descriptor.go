package conn

import (
	"crypto/x509"
	"net"
	"strconv"
	"time"

	"github.com/bft-labs/pushwire/pkg/credentials"
)

// Gateway servers.
const (
	ProductionGatewayHost = "gateway.push.apple.com"
	SandboxGatewayHost    = "gateway.sandbox.push.apple.com"
	GatewayPort           = 2195

	ProductionFeedbackHost = "feedback.push.apple.com"
	SandboxFeedbackHost    = "feedback.sandbox.push.apple.com"
	FeedbackPort           = 2196
)

// DefaultDialTimeout bounds TCP connect, proxy negotiation and handshake.
const DefaultDialTimeout = 30 * time.Second

// Descriptor identifies a server and how to reach it. It is read-only once
// handed to a Dialer.
type Descriptor struct {
	Host        string
	Port        int
	Credentials credentials.Provider

	// ProxyHost and ProxyPort select an HTTP CONNECT proxy for this server.
	ProxyHost string
	ProxyPort int

	// VerifyServerCertificate enables validation of the gateway certificate
	// against RootCAs, or the system pool when RootCAs is nil.
	VerifyServerCertificate bool
	RootCAs                 *x509.CertPool

	// DialTimeout defaults to DefaultDialTimeout.
	DialTimeout time.Duration
}

// NewDescriptor returns the notification gateway descriptor.
func NewDescriptor(cred credentials.Provider, production bool) Descriptor {
	host := SandboxGatewayHost
	if production {
		host = ProductionGatewayHost
	}
	return Descriptor{Host: host, Port: GatewayPort, Credentials: cred}
}

// NewFeedbackDescriptor returns the feedback service descriptor.
func NewFeedbackDescriptor(cred credentials.Provider, production bool) Descriptor {
	host := SandboxFeedbackHost
	if production {
		host = ProductionFeedbackHost
	}
	return Descriptor{Host: host, Port: FeedbackPort, Credentials: cred}
}

// Addr returns host:port.
func (d Descriptor) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// WithProxy returns a copy of d routed through the given proxy.
func (d Descriptor) WithProxy(host string, port int) Descriptor {
	d.ProxyHost = host
	d.ProxyPort = port
	return d
}

func (d Descriptor) dialTimeout() time.Duration {
	if d.DialTimeout > 0 {
		return d.DialTimeout
	}
	return DefaultDialTimeout
}
