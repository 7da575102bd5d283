// Package gameid generates identifiers for game sessions.
package gameid

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Base32 alphabet used by TypeID (Crockford's base32)
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length of an encoded ID.
const Length = 26

// Generator produces session IDs from a configurable entropy stream.
type Generator struct {
	entropy io.Reader
}

// NewGenerator creates a generator reading random bits from entropy. A nil
// reader falls back to crypto/rand.
func NewGenerator(entropy io.Reader) *Generator {
	if entropy == nil {
		entropy = rand.Reader
	}
	return &Generator{entropy: entropy}
}

// Generate creates a new session ID using crypto/rand.
func Generate() (string, error) {
	return NewGenerator(nil).Generate()
}

// Generate creates a UUIDv7 and encodes it as a 26-character base32 string.
// IDs created later sort after IDs created earlier.
func (g *Generator) Generate() (string, error) {
	id, err := uuid.NewV7FromReader(g.entropy)
	if err != nil {
		return "", fmt.Errorf("generate uuidv7: %w", err)
	}
	return encodeBase32(id), nil
}

// encodeBase32 encodes the 128 bits as 130 bits with two leading zero bits,
// five bits per character, so the first character is always 0-7.
func encodeBase32(data [16]byte) string {
	var sb strings.Builder
	sb.Grow(Length)

	bit := func(p int) byte {
		if p < 2 {
			return 0
		}
		p -= 2
		return (data[p/8] >> (7 - uint(p%8))) & 1
	}

	for i := 0; i < Length; i++ {
		var value byte
		for j := 0; j < 5; j++ {
			value = value<<1 | bit(i*5+j)
		}
		sb.WriteByte(alphabet[value])
	}

	return sb.String()
}

// Validate checks if an ID is valid (26 characters, valid base32)
func Validate(id string) error {
	if len(id) != Length {
		return fmt.Errorf("game ID must be exactly %d characters, got %d", Length, len(id))
	}

	if id[0] > '7' {
		return fmt.Errorf("game ID first character must be 0-7, got %c", id[0])
	}

	for i, char := range id {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}

	return nil
}
