package ingest

import (
	"strings"
	"unicode/utf8"
)

const (
	bom  = "﻿"
	nbsp = " "
)

// Normalize converts line endings to "\n", trims leading/trailing
// whitespace, and strips NBSP and BOM (spec §4.4.3). This normalized text
// is what gets hashed and indexed, so normalization must run before
// hashing, not just before display.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, bom, "")
	text = strings.ReplaceAll(text, nbsp, " ")
	return strings.TrimSpace(text)
}

// Summarize implements the indexable-summary truncation policy (spec
// §4.4.8, SummaryTruncate): for text beyond budgetBytes, keep a head and
// tail slice and drop the middle, so the stored plain_text stays bounded
// while the full text is preserved externally by the caller.
func Summarize(text string, budgetBytes int) (summary string, truncated bool) {
	if len(text) <= budgetBytes {
		return text, false
	}

	half := budgetBytes / 2
	head := text[:runeSafeEnd(text, half)]
	tail := text[runeSafeStart(text, len(text)-half):]
	return head + "\n…\n" + tail, true
}

// runeSafeEnd returns the largest index <= n that does not split a UTF-8
// rune, so truncation never produces invalid UTF-8 at the head boundary.
func runeSafeEnd(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// runeSafeStart returns the smallest index >= n that does not split a
// UTF-8 rune, so truncation never produces invalid UTF-8 at the tail
// boundary.
func runeSafeStart(s string, n int) int {
	if n <= 0 {
		return 0
	}
	for n < len(s) && !utf8.RuneStart(s[n]) {
		n++
	}
	return n
}
