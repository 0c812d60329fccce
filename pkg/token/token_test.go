package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	g := NewGenerator(DefaultSize)

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		tok, err := g.Generate()
		require.NoError(t, err)
		require.True(t, g.IsWellFormed(tok), "generated token must be well formed: %q", tok)

		_, dup := seen[tok]
		require.False(t, dup, "duplicate token %q", tok)
		seen[tok] = struct{}{}
	}
}

func TestGenerateLength(t *testing.T) {
	g := NewGenerator(16)
	tok, err := g.Generate()
	require.NoError(t, err)
	// 16 raw bytes encode to 22 url-safe characters
	assert.Len(t, tok, 22)
	assert.True(t, g.IsWellFormed(tok))
}

func TestIsWellFormed(t *testing.T) {
	g := NewGenerator(DefaultSize)
	valid, err := g.Generate()
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
		want  bool
	}{
		{name: "valid", token: valid, want: true},
		{name: "empty", token: "", want: false},
		{name: "blank", token: "   ", want: false},
		{name: "too short", token: valid[:10], want: false},
		{name: "too long", token: valid + strings.Repeat("a", 10), want: false},
		{name: "bad characters", token: strings.Repeat("$", len(valid)), want: false},
		{name: "embedded space", token: valid[:len(valid)-1] + " ", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, g.IsWellFormed(tc.token))
		})
	}
}

func TestZeroSizeFallsBack(t *testing.T) {
	g := NewGenerator(0)
	tok, err := g.Generate()
	require.NoError(t, err)
	assert.Len(t, tok, 43)
}
