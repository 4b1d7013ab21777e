package search

import (
	"strings"
)

// ftsMatchExpr builds the MATCH expression for exact mode (spec §4.5):
// split the query on whitespace, escape FTS metacharacters per token, and
// AND the tokens together so every token must appear.
func ftsMatchExpr(query string) string {
	tokens := strings.Fields(query)
	escaped := make([]string, len(tokens))
	for i, tok := range tokens {
		escaped[i] = escapeFTSToken(tok)
	}
	return strings.Join(escaped, " AND ")
}

// escapeFTSToken quotes a token as an FTS5 string literal, doubling any
// embedded double-quote so the token can never break out of the literal
// and inject additional query syntax.
func escapeFTSToken(tok string) string {
	escaped := strings.ReplaceAll(tok, `"`, `""`)
	return `"` + escaped + `"`
}
