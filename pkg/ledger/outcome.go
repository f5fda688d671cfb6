package ledger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bft-labs/pushwire/pkg/log"
	"github.com/bft-labs/pushwire/pkg/payload"
	"github.com/bft-labs/pushwire/pkg/wire"
)

// Outcome records what happened to one notification. It is mutated by the
// session that owns it and may be read concurrently through its accessors.
type Outcome struct {
	mu sync.RWMutex

	id      uint32
	token   string
	payload payload.Payload
	expiry  uint32

	attempts  int
	completed bool
	response  *wire.ErrorResponse
	err       error
	connID    string
}

// NewOutcome creates an outcome for a notification that has not been sent yet.
func NewOutcome(id uint32, token string, p payload.Payload) *Outcome {
	return &Outcome{id: id, token: token, payload: p}
}

// ID returns the identifier assigned to the notification.
func (o *Outcome) ID() uint32 { return o.id }

// Token returns the device token the notification targets.
func (o *Outcome) Token() string { return o.token }

// Payload returns the notification body.
func (o *Outcome) Payload() payload.Payload { return o.payload }

// Expiry returns the absolute expiry encoded in the frame.
func (o *Outcome) Expiry() uint32 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.expiry
}

// SetExpiry records the absolute expiry encoded in the frame.
func (o *Outcome) SetExpiry(e uint32) {
	o.mu.Lock()
	o.expiry = e
	o.mu.Unlock()
}

// Attempts returns how many times a write was attempted.
func (o *Outcome) Attempts() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.attempts
}

// AddAttempt increments the attempt counter and returns the new value.
func (o *Outcome) AddAttempt() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
	return o.attempts
}

// ResetAttempts clears the attempt counter ahead of a resend.
func (o *Outcome) ResetAttempts() {
	o.mu.Lock()
	o.attempts = 0
	o.mu.Unlock()
}

// AttemptLabel describes the latest attempt in words.
func (o *Outcome) AttemptLabel() string {
	return attemptLabel(o.Attempts())
}

func attemptLabel(n int) string {
	switch {
	case n <= 0:
		return "no attempt yet"
	case n == 1:
		return "first attempt"
	case n == 2:
		return "second attempt"
	case n == 3:
		return "third attempt"
	case n == 4:
		return "fourth attempt"
	default:
		return fmt.Sprintf("attempt #%d", n)
	}
}

// Completed reports whether the frame was fully written.
func (o *Outcome) Completed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.completed
}

// SetCompleted records whether the frame was fully written.
func (o *Outcome) SetCompleted(v bool) {
	o.mu.Lock()
	o.completed = v
	o.mu.Unlock()
}

// Response returns the error response linked to the notification, if any.
func (o *Outcome) Response() (wire.ErrorResponse, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.response == nil {
		return wire.ErrorResponse{}, false
	}
	return *o.response, true
}

// LinkResponse attaches an error response received for this notification.
func (o *Outcome) LinkResponse(r wire.ErrorResponse) {
	o.mu.Lock()
	o.response = &r
	o.mu.Unlock()
}

// ClearResponse forgets a linked error response, before a resend.
func (o *Outcome) ClearResponse() {
	o.mu.Lock()
	o.response = nil
	o.mu.Unlock()
}

// Err returns the local error that prevented delivery, if any.
func (o *Outcome) Err() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.err
}

// SetErr records a local error.
func (o *Outcome) SetErr(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

// ConnID returns the id of the connection the frame was last written on.
func (o *Outcome) ConnID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.connID
}

// SetConnID records the connection the frame was written on.
func (o *Outcome) SetConnID(id string) {
	o.mu.Lock()
	o.connID = id
	o.mu.Unlock()
}

// Successful reports whether the frame was written and no error response
// flagged it.
func (o *Outcome) Successful() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.completed {
		return false
	}
	return o.response == nil || !o.response.IsValidError()
}

// Failed is the negation of Successful.
func (o *Outcome) Failed() bool { return !o.Successful() }

func (o *Outcome) String() string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d]", o.id)
	if o.completed {
		fmt.Fprintf(&sb, " transmitted %s on %s", describe(o.payload), attemptLabel(o.attempts))
	} else {
		sb.WriteString(" not transmitted")
	}
	sb.WriteString(" to token ")
	sb.WriteString(log.ShortToken(o.token))
	if o.response != nil {
		sb.WriteString("  ")
		sb.WriteString(o.response.Message())
	}
	if o.err != nil {
		sb.WriteString("  ")
		sb.WriteString(o.err.Error())
	}
	return sb.String()
}

func describe(p payload.Payload) string {
	if p == nil {
		return "<nil>"
	}
	b, err := p.Bytes()
	if err != nil {
		return "<unserializable>"
	}
	return string(b)
}
