package lesson

import "strings"

const trailingPunctuation = ".,!?"

// Strip removes the trailing run of '.', ',', '!' and '?' from a token.
func Strip(token string) string {
	return strings.TrimRight(token, trailingPunctuation)
}

// Punctuation returns the trailing punctuation that Strip removes.
func Punctuation(token string) string {
	return token[len(Strip(token)):]
}

// NormalizeAnswer trims, strips trailing punctuation and lowercases s for
// case-insensitive comparison against a stripped token.
func NormalizeAnswer(s string) string {
	return strings.ToLower(Strip(strings.TrimSpace(s)))
}
