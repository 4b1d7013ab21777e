package search

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
)

// regexMatchTimeout bounds a single item's match attempt (spec §4.5): a
// pathological pattern that exceeds it on any one item fails the whole
// request with ErrTimeout (see regexMatches) instead of hanging it.
const regexMatchTimeout = 200 * time.Millisecond

// compileRegex compiles pattern with dlclark/regexp2, since the spec calls
// for a "bounded-complexity" engine rather than stdlib regexp's backtrack-
// free but less expressive RE2 dialect. Compile errors surface as
// ErrRegexCompile, matching spec §6.3's error taxonomy.
func compileRegex(pattern string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRegexCompile, pattern, err)
	}
	re.MatchTimeout = regexMatchTimeout
	return re, nil
}

// regexMatches runs re against text, mapping the per-match timeout
// regexp2 signals through its returned error into the request-level
// ErrTimeout (spec: "exceeding it fails the whole request with Timeout").
func regexMatches(re *regexp2.Regexp, text string) (bool, error) {
	matched, err := re.MatchString(text)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return matched, nil
}
