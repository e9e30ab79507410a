package orders

import (
	"crypto/rand"
	"fmt"
	"time"
)

const orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NumberGenerator produces candidate order numbers; uniqueness is enforced by the
// database and collisions are retried.
type NumberGenerator func(now time.Time) (string, error)

// RandomOrderNumber returns ORD-YYYYMMDD-XXXXXX with a random suffix.
func RandomOrderNumber(now time.Time) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random order suffix: %w", err)
	}
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return "ORD-" + now.UTC().Format("20060102") + "-" + string(buf), nil
}
