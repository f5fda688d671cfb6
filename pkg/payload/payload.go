// Package payload defines what the engine needs from a notification body:
// its serialized bytes, a size bound and a requested time-to-live.
//
// Building rich notification content is left to callers; Raw, Big and JSON
// cover the common cases.
package payload

import (
	"encoding/json"
	"fmt"
)

const (
	// MaxSize is the gateway limit for a regular notification.
	MaxSize = 256

	// MaxBigSize is the gateway limit for an extended notification.
	MaxBigSize = 2048

	// DefaultExpiry is the default time-to-live in seconds (one day).
	DefaultExpiry = 24 * 60 * 60

	// SimulationExpiry is a reserved expiry that makes the session perform
	// every step except writing to the connection.
	SimulationExpiry = 919191
)

// Payload is a serializable notification body.
type Payload interface {
	// Bytes returns the serialized form sent on the wire.
	Bytes() ([]byte, error)
	// MaxSize is the largest accepted serialized length.
	MaxSize() int
	// Expiry is the requested time-to-live in seconds. Zero or less asks
	// the gateway not to store the notification.
	Expiry() int
}

// IsSimulation reports whether p requests a dry run.
func IsSimulation(p Payload) bool {
	return p != nil && p.Expiry() == SimulationExpiry
}

// Raw is a pre-serialized payload limited to MaxSize bytes.
type Raw struct {
	data   []byte
	expiry int
	max    int
}

// NewRaw wraps b as a regular payload with the default expiry.
func NewRaw(b []byte) Raw {
	return Raw{data: b, expiry: DefaultExpiry, max: MaxSize}
}

// NewBig wraps b as an extended payload limited to MaxBigSize bytes.
func NewBig(b []byte) Raw {
	return Raw{data: b, expiry: DefaultExpiry, max: MaxBigSize}
}

// Alert returns a regular payload displaying message.
func Alert(message string) Raw {
	b, _ := json.Marshal(map[string]interface{}{"aps": map[string]interface{}{"alert": message}})
	return NewRaw(b)
}

func (r Raw) Bytes() ([]byte, error) { return r.data, nil }
func (r Raw) MaxSize() int           { return r.max }
func (r Raw) Expiry() int            { return r.expiry }

// WithExpiry returns a copy of r with the given time-to-live in seconds.
func (r Raw) WithExpiry(seconds int) Raw {
	r.expiry = seconds
	return r
}

// Simulated returns a copy of r flagged for a dry run.
func (r Raw) Simulated() Raw {
	return r.WithExpiry(SimulationExpiry)
}

// JSON is a payload assembled from an "aps" dictionary plus custom keys.
type JSON struct {
	aps    map[string]interface{}
	custom map[string]interface{}
	expiry int
	max    int
}

// NewJSON creates an empty JSON payload limited to MaxSize bytes.
func NewJSON() *JSON {
	return &JSON{
		aps:    map[string]interface{}{},
		custom: map[string]interface{}{},
		expiry: DefaultExpiry,
		max:    MaxSize,
	}
}

// Alert sets the alert text.
func (j *JSON) Alert(message string) *JSON {
	j.aps["alert"] = message
	return j
}

// Badge sets the badge number.
func (j *JSON) Badge(n int) *JSON {
	j.aps["badge"] = n
	return j
}

// Sound sets the sound name.
func (j *JSON) Sound(name string) *JSON {
	j.aps["sound"] = name
	return j
}

// Set adds a custom top-level key. The "aps" key is reserved.
func (j *JSON) Set(key string, value interface{}) error {
	if key == "aps" {
		return fmt.Errorf("payload: key %q is reserved", key)
	}
	j.custom[key] = value
	return nil
}

// SetExpiry sets the time-to-live in seconds.
func (j *JSON) SetExpiry(seconds int) *JSON {
	j.expiry = seconds
	return j
}

// Big raises the size limit to MaxBigSize.
func (j *JSON) Big() *JSON {
	j.max = MaxBigSize
	return j
}

func (j *JSON) Bytes() ([]byte, error) {
	doc := make(map[string]interface{}, len(j.custom)+1)
	for k, v := range j.custom {
		doc[k] = v
	}
	doc["aps"] = j.aps
	return json.Marshal(doc)
}

func (j *JSON) MaxSize() int { return j.max }
func (j *JSON) Expiry() int  { return j.expiry }
