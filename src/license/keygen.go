package license

import (
	"crypto/rand"
	"strings"
)

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	keyGroups    = 4
	keyGroupSize = 4
)

// GenerateKey returns a random license key of four dash-separated groups of
// four characters, e.g. "8F2K-Q0ZD-11XP-A9TR". Keys are independent of record
// content; 36^16 possible values make collisions within one document
// vanishingly rare.
func GenerateKey() string {
	buf := make([]byte, keyGroups*keyGroupSize)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails if the OS entropy source is broken.
		panic(err)
	}

	var sb strings.Builder
	for i, b := range buf {
		if i > 0 && i%keyGroupSize == 0 {
			sb.WriteByte('-')
		}
		sb.WriteByte(keyAlphabet[int(b)%len(keyAlphabet)])
	}

	return sb.String()
}
