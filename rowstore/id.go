package rowstore

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/google/uuid"
)

// how many times Insert re-draws an id that is already taken
const maxIDAttempts = 8

// ErrIDExhausted is returned by Insert when it can't generate an id
// that is not already used
var ErrIDExhausted = errors.New("failed to generate a unique id")

// RandomID returns a random non-negative id: the high 64 bits of a
// random UUID with the sign bit cleared
func RandomID() int64 {
	u := uuid.New()
	msb := binary.BigEndian.Uint64(u[:8])
	return int64(msb & math.MaxInt64)
}
