package log

import "time"

// Logger provides structured logging capabilities.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// OrNoop returns l, or a NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Uint32 creates a uint32 field. Identifiers are logged through it.
func Uint32(key string, value uint32) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field with key "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Common field keys.
const (
	KeyHost    = "host"
	KeyConnID  = "conn_id"
	KeyID      = "id"
	KeyToken   = "token"
	KeyAttempt = "attempt"
	KeyStatus  = "status"
	KeyWorker  = "worker"
)

// Host creates a host field.
func Host(addr string) Field { return String(KeyHost, addr) }

// ConnID creates a connection id field.
func ConnID(id string) Field { return String(KeyConnID, id) }

// ID creates a notification identifier field.
func ID(id uint32) Field { return Uint32(KeyID, id) }

// Worker creates a worker number field.
func Worker(n int) Field { return Int(KeyWorker, n) }

// Token creates a device token field, shortened to its first and last five
// characters.
func Token(token string) Field { return String(KeyToken, ShortToken(token)) }

// ShortToken renders a device token as "abcde..vwxyz". Tokens of ten
// characters or fewer are returned unchanged.
func ShortToken(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:5] + ".." + token[len(token)-5:]
}
