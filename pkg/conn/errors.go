package conn

import (
	"errors"
	"fmt"
)

// ErrConnection is matched by every connection setup failure.
var ErrConnection = errors.New("connection error")

// Error describes a failed connection step.
type Error struct {
	Op   string
	Addr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("conn: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is ErrConnection.
func (e *Error) Is(target error) bool {
	return target == ErrConnection
}
