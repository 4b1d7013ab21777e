package search

import (
	"strings"
	"unicode"
)

// subsequenceScore tests whether pattern's characters appear in order in
// text (both already lowercased) and, if so, returns a score rewarding
// contiguous runs and an earlier starting position (spec §4.5 fuzzy mode).
// ok is false if pattern is not a subsequence of text at all.
func subsequenceScore(pattern, text string) (score float64, ok bool) {
	if pattern == "" {
		return 0, true
	}

	p := []rune(pattern)
	t := []rune(text)

	pi := 0
	firstMatch := -1
	lastMatch := -1
	contiguousRun := 0
	bestContiguous := 0

	for ti := 0; ti < len(t) && pi < len(p); ti++ {
		if t[ti] != p[pi] {
			contiguousRun = 0
			continue
		}
		if firstMatch < 0 {
			firstMatch = ti
		}
		if lastMatch == ti-1 {
			contiguousRun++
		} else {
			contiguousRun = 1
		}
		if contiguousRun > bestContiguous {
			bestContiguous = contiguousRun
		}
		lastMatch = ti
		pi++
	}

	if pi < len(p) {
		return 0, false
	}

	// Base score rewards matching at all; bonuses for contiguity (runs of
	// matched characters with no gaps) and for starting earlier in text.
	contiguityBonus := float64(bestContiguous) / float64(len(p))
	positionBonus := 1.0 / float64(1+firstMatch)
	return 1.0 + contiguityBonus + positionBonus, true
}

// fuzzyPlusScore implements the tightened fuzzy_plus scoring of spec
// §4.5: query is split into whitespace-delimited tokens; an ASCII token of
// length >= 3 requires a contiguous substring match of the entire token,
// while shorter ASCII tokens and any CJK token fall back to subsequence
// matching. All tokens must match (AND) for the item to be a candidate.
func fuzzyPlusScore(lowerQuery, text string) (score float64, ok bool) {
	tokens := strings.Fields(lowerQuery)
	if len(tokens) == 0 {
		return 0, true
	}

	var total float64
	for _, tok := range tokens {
		if isASCII(tok) && len([]rune(tok)) >= 3 {
			if !strings.Contains(text, tok) {
				return 0, false
			}
			total += 2.0 // contiguous substring outranks a mere subsequence
			continue
		}
		s, matched := subsequenceScore(tok, text)
		if !matched {
			return 0, false
		}
		total += s
	}
	return total, true
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
