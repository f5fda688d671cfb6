// Package conn builds the TLS connections the engine writes frames on.
//
// A Descriptor names the server, the client credentials and an optional
// proxy. A Dialer turns a Descriptor into a Connection; TLSDialer is the
// production implementation and BreakerDialer wraps any Dialer with a shared
// circuit breaker.
//
// # Proxies
//
// The proxy used for a descriptor is resolved in this order:
//
//  1. Descriptor.ProxyHost / Descriptor.ProxyPort
//  2. the process-wide proxy set with SetProxy
//  3. HTTPS_PROXY / NO_PROXY from the environment
//
// When a proxy applies, the dialer opens a plain socket to it, issues an
// HTTP CONNECT for the gateway address and only layers TLS on top once the
// proxy answered "200 Connection established".
//
// # Trust
//
// Gateway certificates are accepted without verification unless
// Descriptor.VerifyServerCertificate is set, in which case the system pool
// (or Descriptor.RootCAs) is used.
package conn
