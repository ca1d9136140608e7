package grading

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAnswer(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases and trims", "  The Answer  ", "the answer"},
		{"strips punctuation", "It's: the answer!", "its the answer"},
		{"keeps decimals and hyphens", "3.14 twenty-one", "3.14 twenty-one"},
		{"collapses whitespace", "a \t b\n\nc", "a b c"},
		{"empty input", "   ", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, NormalizeAnswer(tc.input))
		})
	}
}

func TestNumericEquivalent(t *testing.T) {
	require.True(t, numericEquivalent("0.5", ".5"))
	require.True(t, numericEquivalent("1000000", "1000000.00001"))
	require.False(t, numericEquivalent("1", "2"))
	require.False(t, numericEquivalent("abc", "1"))
	require.True(t, numericEquivalent("0", "0"))
}

func TestTokenOverlap(t *testing.T) {
	require.Equal(t, 1.0, tokenOverlap("a b c", "c b a"))
	require.Equal(t, 0.0, tokenOverlap("a b", "c d"))
	require.Equal(t, 0.0, tokenOverlap("", "a"))
	require.InDelta(t, 0.6, tokenOverlap("plants use sunlight", "plants use sunlight water and carbon dioxide"), 1e-9)
}
