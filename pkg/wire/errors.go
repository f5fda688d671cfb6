package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is returned when a device token is not 64 hex characters.
	ErrInvalidToken = errors.New("invalid device token")

	// ErrPayloadEmpty is returned when a payload has no bytes.
	ErrPayloadEmpty = errors.New("payload is empty")

	// ErrPayloadTooLarge is matched by every CapacityError.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// CapacityError reports a payload exceeding its maximum size.
type CapacityError struct {
	Max  int
	Size int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("payload too large: %d bytes exceeds maximum of %d", e.Size, e.Max)
}

// Is reports whether target is ErrPayloadTooLarge.
func (e *CapacityError) Is(target error) bool {
	return target == ErrPayloadTooLarge
}

// CheckPayload rejects empty payloads and payloads larger than max.
// A max of zero or less disables the size check.
func CheckPayload(b []byte, max int) error {
	if len(b) == 0 {
		return ErrPayloadEmpty
	}
	if max > 0 && len(b) > max {
		return &CapacityError{Max: max, Size: len(b)}
	}
	return nil
}
