package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// CommandErrorResponse is the only inbound command the gateway sends.
const CommandErrorResponse byte = 8

// ErrorResponseSize is the fixed length of an inbound error response.
const ErrorResponseSize = 6

// Status is the status code carried by an error response.
type Status byte

const (
	StatusNoErrors           Status = 0
	StatusProcessingError    Status = 1
	StatusMissingToken       Status = 2
	StatusMissingTopic       Status = 3
	StatusMissingPayload     Status = 4
	StatusInvalidTokenSize   Status = 5
	StatusInvalidTopicSize   Status = 6
	StatusInvalidPayloadSize Status = 7
	StatusInvalidToken       Status = 8
	StatusUnknown            Status = 255
)

var statusText = map[Status]string{
	StatusNoErrors:           "No errors encountered",
	StatusProcessingError:    "Processing error",
	StatusMissingToken:       "Missing device token",
	StatusMissingTopic:       "Missing topic",
	StatusMissingPayload:     "Missing payload",
	StatusInvalidTokenSize:   "Invalid token size",
	StatusInvalidTopicSize:   "Invalid topic size",
	StatusInvalidPayloadSize: "Invalid payload size",
	StatusInvalidToken:       "Invalid token",
	StatusUnknown:            "None (unknown)",
}

func (s Status) String() string {
	if txt, ok := statusText[s]; ok {
		return txt
	}
	return fmt.Sprintf("Undocumented status code: %d", byte(s))
}

// ErrorResponse is a decoded inbound error response frame.
type ErrorResponse struct {
	Command    byte
	Status     Status
	Identifier uint32
}

// IsErrorResponse reports whether the frame carries the error-response command.
func (r ErrorResponse) IsErrorResponse() bool {
	return r.Command == CommandErrorResponse
}

// IsValidError reports whether the frame flags an actual failure.
func (r ErrorResponse) IsValidError() bool {
	return r.IsErrorResponse() && r.Status != StatusNoErrors
}

// Message returns the human readable description of the response.
func (r ErrorResponse) Message() string {
	if !r.IsErrorResponse() {
		return fmt.Sprintf("APNS: Undocumented response command: %d", r.Command)
	}
	return fmt.Sprintf("APNS: [%d] %s", r.Identifier, r.Status)
}

// Err returns the response as an error, or nil when it flags no failure.
func (r ErrorResponse) Err() error {
	if !r.IsValidError() {
		return nil
	}
	return &ResponseError{Response: r}
}

// MarshalBinary encodes the response as the gateway sends it.
func (r ErrorResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 2, ErrorResponseSize)
	buf[0] = r.Command
	buf[1] = byte(r.Status)
	return binary.BigEndian.AppendUint32(buf, r.Identifier), nil
}

// ReadErrorResponse reads one error response from r. The second return value
// is false when no complete frame is available, which includes a clean close,
// a short read and a read deadline.
func ReadErrorResponse(r io.Reader) (ErrorResponse, bool) {
	var buf [ErrorResponseSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return ErrorResponse{}, false
	}
	return ErrorResponse{
		Command:    buf[0],
		Status:     Status(buf[1]),
		Identifier: binary.BigEndian.Uint32(buf[2:6]),
	}, true
}

// ResponseError wraps an error response that flags a failure.
type ResponseError struct {
	Response ErrorResponse
}

func (e *ResponseError) Error() string {
	return e.Response.Message()
}
