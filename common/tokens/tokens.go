// Package tokens estimates token counts for budget accounting.
package tokens

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates the token count of a text.
type Counter interface {
	Count(text string) int
}

// Tiktoken counts with a BPE encoding and falls back to a character
// heuristic when the encoding could not be loaded (e.g. offline).
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken builds a counter for the given encoding name. cl100k_base
// matches the embedding and chat models used by the default providers.
func NewTiktoken(encoding string) *Tiktoken {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		// Heuristic fallback keeps budgets working without the BPE files.
		return &Tiktoken{}
	}
	return &Tiktoken{enc: enc}
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	return Heuristic{}.Count(text)
}

// Heuristic approximates tokens as ceil(runes/4), biased high for CJK text
// where one rune is roughly one token.
type Heuristic struct{}

func (Heuristic) Count(text string) int {
	if text == "" {
		return 0
	}
	runes := utf8.RuneCountInString(text)
	wide := 0
	for _, r := range text {
		if r > 0x2E80 {
			wide++
		}
	}
	narrow := runes - wide
	return wide + (narrow+3)/4
}
