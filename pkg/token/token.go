package token

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"
)

const DefaultSize = 32

// Generator produces URL-safe random tokens of a fixed byte size.
// Uniqueness is not checked here; the store's primary key enforces it on insert.
type Generator struct {
	size int
}

func NewGenerator(size int) *Generator {
	if size <= 0 {
		size = DefaultSize
	}
	return &Generator{size: size}
}

func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.size)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IsWellFormed is a syntactic check only: non-blank, within the length band
// of the configured byte size, URL-safe alphabet. It never touches storage.
func (g *Generator) IsWellFormed(token string) bool {
	if strings.TrimSpace(token) == "" {
		return false
	}
	expected := base64.RawURLEncoding.EncodedLen(g.size)
	if len(token) < expected-2 || len(token) > expected+2 {
		return false
	}
	for _, c := range token {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
