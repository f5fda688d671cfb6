package conn

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http/httpproxy"
)

// maxStatusLine bounds how much of the proxy status line is kept.
const maxStatusLine = 200

var processProxy struct {
	sync.RWMutex
	host string
	port int
}

// SetProxy sets a proxy used by every descriptor that has none of its own.
func SetProxy(host string, port int) {
	processProxy.Lock()
	processProxy.host = host
	processProxy.port = port
	processProxy.Unlock()
}

// ClearProxy removes the process-wide proxy.
func ClearProxy() {
	SetProxy("", 0)
}

// ResolveProxy returns the proxy address for d, or "" for a direct connection.
func ResolveProxy(d Descriptor) string {
	if d.ProxyHost != "" {
		return net.JoinHostPort(d.ProxyHost, strconv.Itoa(d.ProxyPort))
	}

	processProxy.RLock()
	host, port := processProxy.host, processProxy.port
	processProxy.RUnlock()
	if host != "" {
		return net.JoinHostPort(host, strconv.Itoa(port))
	}

	return environmentProxy(d)
}

func environmentProxy(d Descriptor) string {
	target := &url.URL{Scheme: "https", Host: d.Addr()}
	u, err := httpproxy.FromEnvironment().ProxyFunc()(target)
	if err != nil || u == nil {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// tunnel asks the proxy on c to open a tunnel to target. The reply header is
// consumed byte by byte so nothing past it is read off the wire.
func tunnel(ctx context.Context, c net.Conn, target, userAgent string) error {
	if dl, ok := ctx.Deadline(); ok {
		c.SetDeadline(dl)
		defer c.SetDeadline(time.Time{})
	}

	req := "CONNECT " + target + " HTTP/1.0\r\n" + "User-Agent: " + userAgent + "\r\n\r\n"
	if _, err := io.WriteString(c, req); err != nil {
		return fmt.Errorf("write CONNECT: %w", err)
	}

	status := make([]byte, 0, maxStatusLine)
	var b [1]byte
	newlines := 0
	statusDone := false
	for newlines < 2 {
		if _, err := io.ReadFull(c, b[:]); err != nil {
			return fmt.Errorf("unexpected EOF from proxy: %w", err)
		}
		switch b[0] {
		case '\n':
			statusDone = true
			newlines++
		case '\r':
		default:
			newlines = 0
			if !statusDone && len(status) < maxStatusLine {
				status = append(status, b[0])
			}
		}
	}

	if !strings.Contains(strings.ToLower(string(status)), "200 connection established") {
		return fmt.Errorf("unable to tunnel through proxy: %q", status)
	}
	return nil
}
