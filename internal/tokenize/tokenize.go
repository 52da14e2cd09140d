// Package tokenize normalises quote text for the matching engine. It
// lower-cases input and splits on non-alphanumeric boundaries. Every word
// is kept, including single letters: the matcher scores token sequences
// positionally, so dropping or rewriting words would corrupt alignments.
package tokenize

import (
	"strings"
	"unicode"
)

// Words splits text into lowercased word tokens. Runs of characters that
// are neither letters nor digits separate tokens and are discarded.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Runes decomposes a single token into its runes, one string per rune. It
// satisfies the matcher's split contract: word tokens of more than one
// rune become character-level sub-patterns.
func Runes(token string) []string {
	parts := make([]string, 0, len(token))
	for _, r := range token {
		parts = append(parts, string(r))
	}
	return parts
}
