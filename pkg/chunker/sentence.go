package chunker

import (
	"strings"
	"unicode"
)

// abbreviations are tokens whose trailing period does not end a sentence.
// Multi-dot entries like "e.g" match the token with interior dots kept.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {},
	"sr": {}, "jr": {}, "etc": {}, "e.g": {}, "i.e": {},
	"vs": {}, "st": {}, "no": {}, "fig": {}, "a.m": {}, "p.m": {},
}

// sentenceSpans splits on ., ! and ? followed by whitespace, skipping
// terminators that close a known abbreviation.
func sentenceSpans(runes []rune) []span {
	var spans []span
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		// Absorb terminator runs like "?!" or "..." into one boundary.
		j := i
		for j+1 < len(runes) && isTerminator(runes[j+1]) {
			j++
		}
		if j+1 < len(runes) && !unicode.IsSpace(runes[j+1]) {
			i = j
			continue
		}
		if r == '.' && i == j && isAbbreviation(runes, i) {
			continue
		}

		spans = appendSpan(spans, runes, start, j+1)
		start = j + 1
		i = j
	}
	return appendSpan(spans, runes, start, len(runes))
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// isAbbreviation reports whether the token ending at the period at dot is in
// the abbreviation set. The token is the run of letters and interior dots
// immediately before the period.
func isAbbreviation(runes []rune, dot int) bool {
	start := dot
	for start > 0 && (unicode.IsLetter(runes[start-1]) || runes[start-1] == '.') {
		start--
	}
	if start == dot {
		return false
	}
	tok := strings.ToLower(strings.Trim(string(runes[start:dot]), "."))
	_, ok := abbreviations[tok]
	return ok
}
