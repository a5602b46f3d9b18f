package tokens

import (
	"strings"
	"testing"
)

func TestApproximate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{
			name:     "empty",
			input:    "",
			expected: 0,
		},
		{
			name:     "single char rounds up",
			input:    "a",
			expected: 1,
		},
		{
			name:     "four chars",
			input:    "abcd",
			expected: 1,
		},
		{
			name:     "five chars",
			input:    "abcde",
			expected: 2,
		},
		{
			name:     "eight chars",
			input:    "abcdefgh",
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Approximate(tt.input)
			if result != tt.expected {
				t.Errorf("Approximate(%q) = %d, expected %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestApproximate_CountsRunesNotBytes(t *testing.T) {
	// Four multi-byte runes should count like four ASCII chars
	if got := Approximate("日本語字"); got != 1 {
		t.Errorf("expected 1 token for four runes, got %d", got)
	}
}

func TestApproximate_GrowsWithLength(t *testing.T) {
	short := Approximate("hello world")
	long := Approximate(strings.Repeat("hello world ", 50))
	if long <= short {
		t.Errorf("expected longer text to cost more tokens, got %d <= %d", long, short)
	}
}

func TestApprox_ImplementsCounter(t *testing.T) {
	var c Counter = Approx{}
	if got := c.Count("hello"); got < 1 {
		t.Errorf("expected positive count, got %d", got)
	}
}

func TestTiktoken_NonEmptyTextCostsTokens(t *testing.T) {
	// Works with or without the vocabulary available; the counter
	// approximates when the encoding cannot be loaded.
	c := NewTiktoken("cl100k_base")
	if got := c.Count("the quick brown fox"); got < 1 {
		t.Errorf("expected positive count, got %d", got)
	}
	if got := c.Count(""); got != 0 {
		t.Errorf("expected 0 for empty text, got %d", got)
	}
}
