package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubsequenceScore_MatchesInOrder(t *testing.T) {
	score, ok := subsequenceScore("abc", "xaxbxc")
	assert.True(t, ok)
	assert.Greater(t, score, 0.0)
}

func TestSubsequenceScore_RejectsOutOfOrder(t *testing.T) {
	_, ok := subsequenceScore("cba", "abc")
	assert.False(t, ok)
}

func TestSubsequenceScore_ContiguousRunScoresHigherThanScattered(t *testing.T) {
	// Both start matching at the same index so position bonus is equal;
	// only the contiguity bonus should differ.
	contiguous, _ := subsequenceScore("cat", "bcatd")
	scattered, _ := subsequenceScore("cat", "bc-a-td")
	assert.Greater(t, contiguous, scattered)
}

func TestFuzzyPlusScore_RequiresContiguousSubstringForLongASCIIToken(t *testing.T) {
	_, ok := fuzzyPlusScore("foobar", "f o o b a r")
	assert.False(t, ok)

	_, ok = fuzzyPlusScore("foobar", "prefix foobar suffix")
	assert.True(t, ok)
}

func TestFuzzyPlusScore_ShortTokenFallsBackToSubsequence(t *testing.T) {
	_, ok := fuzzyPlusScore("ab", "x a x b x")
	assert.True(t, ok)
}

func TestFuzzyPlusScore_AllTokensMustMatch(t *testing.T) {
	_, ok := fuzzyPlusScore("foobar missing", "prefix foobar suffix")
	assert.False(t, ok)
}

func TestFTSMatchExpr_EscapesAndAndsTokens(t *testing.T) {
	expr := ftsMatchExpr(`say "hi" now`)
	assert.Equal(t, `"say" AND """hi""" AND "now"`, expr)
}
