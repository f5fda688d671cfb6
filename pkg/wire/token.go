package wire

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// TokenSize is the binary length of a device token.
const TokenSize = 32

// DecodeToken converts a 64 character hex token to its binary form.
// Upper and lower case digits are accepted; surrounding whitespace and
// inner spaces are ignored.
func DecodeToken(token string) ([]byte, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(token), " ", "")
	if len(clean) != TokenSize*2 {
		return nil, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidToken, TokenSize*2, len(clean))
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return b, nil
}

// EncodeToken renders a binary token as lowercase hex.
func EncodeToken(b []byte) string {
	return hex.EncodeToString(b)
}

// ValidToken reports whether token decodes to exactly TokenSize bytes.
func ValidToken(token string) bool {
	_, err := DecodeToken(token)
	return err == nil
}
