package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewRandomString returns a cryptographically random string of the given
// length, suitable for tracking codes.
func NewRandomString(length int) (string, error) {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))

	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}

	return string(buf), nil
}

// NewSessionID generates a session identifier in the form
// "sess_<base36 unix millis><9 random base36 chars>". The time prefix keeps
// identifiers roughly sortable; the random suffix makes them unguessable.
func NewSessionID(now time.Time) (string, error) {
	suffix := make([]byte, 9)
	max := big.NewInt(int64(len(base36)))

	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		suffix[i] = base36[n.Int64()]
	}

	return "sess_" + strconv.FormatInt(now.UnixMilli(), 36) + string(suffix), nil
}
