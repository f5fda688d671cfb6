// Package feedback reads the list of devices that should no longer receive
// notifications from the feedback service.
//
// The service writes a flat sequence of 38-byte tuples and closes the
// connection:
//
//	timestamp   4 bytes, big endian, seconds since the epoch
//	length      2 bytes, big endian, token length
//	token      32 bytes
package feedback

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/bft-labs/pushwire/pkg/conn"
	"github.com/bft-labs/pushwire/pkg/log"
	"github.com/bft-labs/pushwire/pkg/wire"
)

// TupleSize is the size of one feedback tuple.
const TupleSize = 4 + 2 + wire.TokenSize

// Record is one device reported by the feedback service.
type Record struct {
	// Token is the 64 character lowercase hex device token.
	Token string
	// Timestamp is when the service determined the device was gone.
	Timestamp time.Time
	// TokenLength is the length announced by the tuple.
	TokenLength int
}

// Decode parses buf into records. A trailing partial tuple is ignored.
func Decode(buf []byte) []Record {
	n := len(buf) / TupleSize
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		t := buf[i*TupleSize : (i+1)*TupleSize]
		records = append(records, Record{
			Timestamp:   time.Unix(int64(binary.BigEndian.Uint32(t[0:4])), 0).UTC(),
			TokenLength: int(binary.BigEndian.Uint16(t[4:6])),
			Token:       wire.EncodeToken(t[6:TupleSize]),
		})
	}
	return records
}

// Fetch dials the feedback service described by desc, reads until the
// service closes the connection and decodes the result.
func Fetch(ctx context.Context, dialer conn.Dialer, desc conn.Descriptor, logger log.Logger) ([]Record, error) {
	logger = log.OrNoop(logger)
	if dialer == nil {
		dialer = conn.NewTLSDialer(logger)
	}

	c, err := dialer.Dial(ctx, desc)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	stop := context.AfterFunc(ctx, func() { _ = c.SetReadDeadline(time.Now()) })
	defer stop()

	buf, err := io.ReadAll(c)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &conn.Error{Op: "read feedback", Addr: desc.Addr(), Err: err}
	}

	records := Decode(buf)
	if rest := len(buf) % TupleSize; rest != 0 {
		logger.Warn("ignoring partial feedback tuple", log.Int("bytes", rest))
	}
	logger.Info("feedback received", log.Host(desc.Addr()), log.Int("devices", len(records)))
	for _, r := range records {
		logger.Debug("feedback device", log.Token(r.Token), log.String("timestamp", r.Timestamp.Format(time.RFC3339)))
	}
	return records, nil
}

func (r Record) String() string {
	return fmt.Sprintf("%s;%d;%s", r.Timestamp.Format(time.RFC3339), r.TokenLength, r.Token)
}
