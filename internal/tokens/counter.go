// Package tokens counts text tokens for context budget enforcement.
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter reports how many tokens a text consumes.
type Counter interface {
	Count(text string) int
}

// Tiktoken counts tokens with a BPE encoding. The vocabulary is loaded on
// first use; if loading fails the counter falls back to an approximation
// so budget enforcement keeps working offline.
type Tiktoken struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTiktoken returns a counter for the named encoding, e.g. "cl100k_base".
func NewTiktoken(encoding string) *Tiktoken {
	return &Tiktoken{encoding: encoding}
}

// Count returns the number of tokens in text.
func (t *Tiktoken) Count(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err == nil {
			t.enc = enc
		}
	})
	if t.enc == nil {
		return Approximate(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Approx is a Counter that uses Approximate for every text.
type Approx struct{}

// Count returns the approximate number of tokens in text.
func (Approx) Count(text string) int { return Approximate(text) }

// Approximate estimates a token count without a vocabulary, assuming
// roughly four characters per token. Never returns 0 for non-empty text.
func Approximate(text string) int {
	if text == "" {
		return 0
	}
	n := (utf8.RuneCountInString(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

var (
	_ Counter = (*Tiktoken)(nil)
	_ Counter = Approx{}
)
