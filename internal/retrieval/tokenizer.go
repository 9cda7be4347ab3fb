package retrieval

import (
	"iter"
	"strings"
)

// MinTokenLength is the shortest token kept by the tokenizer.
const MinTokenLength = 3

// Tokens yields the lowercase alphanumeric words of text in order.
// Every rune outside [a-z0-9] (after lowercasing) is a separator, and
// words shorter than MinTokenLength are dropped.
func Tokens(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		lower := strings.ToLower(text)
		start := -1
		for i := 0; i <= len(lower); i++ {
			if i < len(lower) && isTokenByte(lower[i]) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if i-start >= MinTokenLength {
					if !yield(lower[start:i]) {
						return
					}
				}
				start = -1
			}
		}
	}
}

// Tokenize collects Tokens(text) into a slice.
func Tokenize(text string) []string {
	var out []string
	for tok := range Tokens(text) {
		out = append(out, tok)
	}
	return out
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for tok := range Tokens(text) {
		set[tok] = struct{}{}
	}
	return set
}

func isTokenByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
