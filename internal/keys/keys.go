// Package keys generates and validates human-typable access keys of the form
// XXXX-XXXX-XXXX-XXXX. The alphabet drops I, O, 0 and 1 so keys can be read
// aloud or copied by hand without ambiguity.
package keys

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Alphabet is the 32-symbol set every key character is drawn from.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	groups    = 4
	groupSize = 4

	// Length is the total length of a formatted key, hyphens included.
	Length = groups*groupSize + groups - 1
)

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Generate returns a new random key. Each character is chosen independently
// and uniformly from Alphabet using crypto/rand, giving 80 bits per key.
// Uniqueness is not implied; callers inserting keys must handle collisions.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(Length)
	for g := 0; g < groups; g++ {
		if g > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < groupSize; i++ {
			n, err := rand.Int(rand.Reader, alphabetSize)
			if err != nil {
				return "", fmt.Errorf("read random: %w", err)
			}
			b.WriteByte(Alphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

// Normalize trims surrounding whitespace and upper-cases s, the form keys are
// stored and compared in.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Valid reports whether s is a well-formed key: four hyphen-separated groups
// of four Alphabet characters.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if (i+1)%(groupSize+1) == 0 {
			if s[i] != '-' {
				return false
			}
			continue
		}
		if strings.IndexByte(Alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
