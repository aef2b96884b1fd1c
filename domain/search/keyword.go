package search

import (
	"strings"
	"unicode"
)

const (
	minTokenLength = 3
	maxTokens      = 10
)

// stopWords are dropped from keyword queries; they carry no lexical signal.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "his": {}, "has": {}, "had": {}, "how": {},
	"its": {}, "who": {}, "did": {}, "yes": {}, "get": {}, "may": {},
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "will": {}, "would": {},
	"there": {}, "their": {}, "about": {}, "into": {}, "does": {},
}

// Tokenize lowercases the query, strips non-word characters, drops stop words
// and short tokens, and caps the token count.
func Tokenize(query string) []string {
	words := splitWords(query)

	tokens := make([]string, 0, maxTokens)
	for _, w := range words {
		if len(w) < minTokenLength {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		tokens = append(tokens, w)
		if len(tokens) == maxTokens {
			break
		}
	}
	return tokens
}

// keywordScore is sum over tokens of count(token in content) / len(words).
func keywordScore(tokens []string, content string) float32 {
	words := splitWords(content)
	if len(words) == 0 {
		return 0
	}

	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}

	var score float32
	for _, tok := range tokens {
		score += float32(counts[tok]) / float32(len(words))
	}
	return score
}

// splitWords lowercases and splits on every non-letter, non-digit rune.
func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
