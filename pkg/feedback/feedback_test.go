package feedback

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/pushwire/internal/testgateway"
	"github.com/bft-labs/pushwire/pkg/conn"
	"github.com/bft-labs/pushwire/pkg/credentials"
	"github.com/bft-labs/pushwire/pkg/wire"
)

func tuple(ts uint32, fill byte) []byte {
	b := make([]byte, TupleSize)
	binary.BigEndian.PutUint32(b[0:4], ts)
	binary.BigEndian.PutUint16(b[4:6], wire.TokenSize)
	copy(b[6:], bytes.Repeat([]byte{fill}, wire.TokenSize))
	return b
}

func TestDecode(t *testing.T) {
	two := append(tuple(1700000000, 0xab), tuple(1700000060, 0x01)...)

	tests := []struct {
		name string
		buf  []byte
		want int
	}{
		{"empty", nil, 0},
		{"two tuples", two, 2},
		{"trailing partial", append(tuple(1, 0xff), make([]byte, 10)...), 1},
		{"short", make([]byte, TupleSize-1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Decode(tt.buf), tt.want)
		})
	}

	records := Decode(two)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), records[0].Timestamp)
	assert.Equal(t, time.Unix(1700000060, 0).UTC(), records[1].Timestamp)
	assert.Equal(t, "abababababababababababababababababababababababababababababababab", records[0].Token)
	assert.Len(t, records[1].Token, 64)
	assert.Equal(t, wire.TokenSize, records[0].TokenLength)
}

func TestRecordString(t *testing.T) {
	r := Decode(tuple(0, 0x0f))[0]
	assert.Equal(t, "1970-01-01T00:00:00Z;32;"+string(bytes.Repeat([]byte("0f"), 32)), r.String())
}

func TestFetch(t *testing.T) {
	data := append(tuple(1700000000, 0xab), tuple(1700000001, 0xcd)...)
	srv, err := testgateway.StartFeedback(data)
	require.NoError(t, err)
	defer srv.Close()

	kp, err := testgateway.NewKeyPair("client")
	require.NoError(t, err)
	desc := conn.Descriptor{
		Host:        srv.Host(),
		Port:        srv.Port(),
		Credentials: credentials.FromCertificate(kp.Cert),
		DialTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	records, err := Fetch(ctx, nil, desc, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint8(0xcd), mustDecode(t, records[1].Token)[0])
}

func TestFetchDialError(t *testing.T) {
	refused := conn.DialerFunc(func(ctx context.Context, d conn.Descriptor) (*conn.Connection, error) {
		return nil, &conn.Error{Op: "dial", Addr: d.Addr(), Err: assert.AnError}
	})
	_, err := Fetch(context.Background(), refused, conn.NewFeedbackDescriptor(nil, false), nil)
	assert.ErrorIs(t, err, conn.ErrConnection)
}

func mustDecode(t *testing.T, token string) []byte {
	t.Helper()
	b, err := wire.DecodeToken(token)
	require.NoError(t, err)
	return b
}
