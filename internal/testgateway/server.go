package testgateway

import (
	"crypto/tls"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bft-labs/pushwire/pkg/wire"
)

// Received is a frame read by the gateway on its n-th accepted connection
// (counted from 1).
type Received struct {
	Conn  int
	Frame wire.Frame
}

// Token returns the frame token as lowercase hex.
func (r Received) Token() string { return wire.EncodeToken(r.Frame.Token) }

// Server is a fake gateway. A frame matching a rejection rule is answered
// with an error response; it and every later frame on the same connection
// are dropped, as the real gateway does.
type Server struct {
	ln       net.Listener
	feedback []byte

	mu           sync.Mutex
	rejectTokens map[string]wire.Status
	rejectIDs    map[uint32]wire.Status
	closeOnError bool
	delivered    []Received
	rejected     []Received
	dropped      []Received
	conns        int
	active       map[net.Conn]struct{}

	wg sync.WaitGroup
}

// Start launches a gateway on a random loopback port.
func Start() (*Server, error) {
	return start(nil)
}

// StartFeedback launches a feedback service that writes data to every
// connection and closes it.
func StartFeedback(data []byte) (*Server, error) {
	if data == nil {
		data = []byte{}
	}
	return start(data)
}

func start(feedback []byte) (*Server, error) {
	kp, err := NewKeyPair("localhost")
	if err != nil {
		return nil, err
	}
	tcp, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		ln: tls.NewListener(tcp, &tls.Config{
			Certificates: []tls.Certificate{kp.Cert},
			ClientAuth:   tls.RequestClientCert,
		}),
		feedback:     feedback,
		rejectTokens: map[string]wire.Status{},
		rejectIDs:    map[uint32]wire.Status{},
		active:       map[net.Conn]struct{}{},
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Host returns the listening host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.ln.Addr().String())
	return host
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.ln.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// RejectToken answers every frame for token with status.
func (s *Server) RejectToken(token string, status wire.Status) {
	tok, err := wire.DecodeToken(token)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.rejectTokens[wire.EncodeToken(tok)] = status
	s.mu.Unlock()
}

// RejectID answers every frame carrying identifier id with status.
func (s *Server) RejectID(id uint32, status wire.Status) {
	s.mu.Lock()
	s.rejectIDs[id] = status
	s.mu.Unlock()
}

// CloseOnError makes the gateway close a connection right after sending an
// error response.
func (s *Server) CloseOnError(v bool) {
	s.mu.Lock()
	s.closeOnError = v
	s.mu.Unlock()
}

// Delivered returns the frames the gateway accepted.
func (s *Server) Delivered() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.delivered...)
}

// Rejected returns the frames answered with an error response.
func (s *Server) Rejected() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.rejected...)
}

// Dropped returns the frames discarded after a rejection.
func (s *Server) Dropped() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.dropped...)
}

// Connections returns how many connections were accepted.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// WaitDelivered polls until at least n frames were delivered or timeout
// elapses.
func (s *Server) WaitDelivered(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(s.Delivered()) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return len(s.Delivered()) >= n
}

// Close stops accepting, closes open connections and waits for handlers.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	for c := range s.active {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		n := s.conns
		s.active[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.active, c)
				s.mu.Unlock()
				c.Close()
			}()
			if s.feedback != nil {
				c.Write(s.feedback)
				return
			}
			s.serve(c, n)
		}()
	}
}

func (s *Server) serve(c net.Conn, n int) {
	poisoned := false
	for {
		f, err := wire.ReadFrame(c)
		if err != nil {
			return
		}
		rec := Received{Conn: n, Frame: f}

		s.mu.Lock()
		if poisoned {
			s.dropped = append(s.dropped, rec)
			s.mu.Unlock()
			continue
		}
		status, bad := s.rejectIDs[f.Identifier]
		if !bad {
			status, bad = s.rejectTokens[wire.EncodeToken(f.Token)]
		}
		if !bad {
			s.delivered = append(s.delivered, rec)
			s.mu.Unlock()
			continue
		}
		s.rejected = append(s.rejected, rec)
		closeAfter := s.closeOnError
		s.mu.Unlock()

		poisoned = true
		resp, _ := wire.ErrorResponse{
			Command:    wire.CommandErrorResponse,
			Status:     status,
			Identifier: f.Identifier,
		}.MarshalBinary()
		if _, err := c.Write(resp); err != nil || closeAfter {
			return
		}
	}
}
