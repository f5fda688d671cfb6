package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Frame kinds.
const (
	KindSimple   byte = 0
	KindEnhanced byte = 1
)

// Format selects the outbound frame layout.
type Format int

const (
	FormatEnhanced Format = iota
	FormatSimple
)

func (f Format) String() string {
	if f == FormatSimple {
		return "simple"
	}
	return "enhanced"
}

// Frame is one outbound notification.
type Frame struct {
	Format     Format
	Identifier uint32
	// Expiry is an absolute epoch time in seconds. Zero asks the gateway
	// not to store the notification.
	Expiry  uint32
	Token   []byte
	Payload []byte
}

// Len returns the encoded size of the frame.
func (f Frame) Len() int {
	n := 1 + 2 + len(f.Token) + 2 + len(f.Payload)
	if f.Format == FormatEnhanced {
		n += 8
	}
	return n
}

// MarshalBinary encodes the frame.
func (f Frame) MarshalBinary() ([]byte, error) {
	if len(f.Token) > math.MaxUint16 || len(f.Payload) > math.MaxUint16 {
		return nil, fmt.Errorf("frame field exceeds %d bytes", math.MaxUint16)
	}
	buf := make([]byte, 0, f.Len())
	if f.Format == FormatEnhanced {
		buf = append(buf, KindEnhanced)
		buf = binary.BigEndian.AppendUint32(buf, f.Identifier)
		buf = binary.BigEndian.AppendUint32(buf, f.Expiry)
	} else {
		buf = append(buf, KindSimple)
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.Token)))
	buf = append(buf, f.Token...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.Payload)))
	buf = append(buf, f.Payload...)
	return buf, nil
}

// Encode builds an outbound frame from a hex token and payload bytes.
func Encode(format Format, token string, payload []byte, identifier, expiry uint32) ([]byte, error) {
	tok, err := DecodeToken(token)
	if err != nil {
		return nil, err
	}
	return Frame{
		Format:     format,
		Identifier: identifier,
		Expiry:     expiry,
		Token:      tok,
		Payload:    payload,
	}.MarshalBinary()
}

// ReadFrame decodes one outbound frame from r the way the gateway reads it.
// It returns io.EOF when r is exhausted before the first byte.
func ReadFrame(r io.Reader) (Frame, error) {
	var f Frame
	var kind [1]byte
	if _, err := io.ReadFull(r, kind[:]); err != nil {
		return f, err
	}
	switch kind[0] {
	case KindEnhanced:
		f.Format = FormatEnhanced
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return f, unexpected(err)
		}
		f.Identifier = binary.BigEndian.Uint32(hdr[0:4])
		f.Expiry = binary.BigEndian.Uint32(hdr[4:8])
	case KindSimple:
		f.Format = FormatSimple
	default:
		return f, fmt.Errorf("unknown frame kind %d", kind[0])
	}

	var err error
	if f.Token, err = readField(r); err != nil {
		return f, err
	}
	if f.Payload, err = readField(r); err != nil {
		return f, err
	}
	return f, nil
}

func readField(r io.Reader) ([]byte, error) {
	var n [2]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, unexpected(err)
	}
	b := make([]byte, binary.BigEndian.Uint16(n[:]))
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, unexpected(err)
	}
	return b, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
