package random

import (
	crand "crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"time"
)

// Ambiguous characters (0/O, 1/I/L) are left out of references read back
// to customers.
const charset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const referenceLength = 10

func init() {
	var b [8]byte
	_, err := crand.Read(b[:])
	if err != nil {
		mrand.Seed(time.Now().UnixNano())
		return
	}
	mrand.Seed(int64(binary.LittleEndian.Uint64(b[:])))
}

func String(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[mrand.Intn(len(charset))]
	}
	return string(b)
}

// Reference returns a human-facing order reference code.
func Reference() string {
	return String(referenceLength)
}
