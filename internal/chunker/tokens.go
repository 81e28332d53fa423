package chunker

import (
	"strings"
	"unicode"
)

// EstimateTokens approximates the token count of text without calling a
// tokenizer: word count plus half the punctuation-character count, rounded
// up. Deterministic, so chunk boundaries are reproducible across runs.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	punct := 0
	for _, r := range text {
		if unicode.IsPunct(r) {
			punct++
		}
	}
	return words + (punct+1)/2
}
