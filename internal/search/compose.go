package search

import (
	"strings"
)

var literalEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// EscapeTerm escapes term for use inside a double-quoted JQL string literal.
func EscapeTerm(term string) string {
	return literalEscaper.Replace(term)
}

// TextClause returns the summary/key prefix-match clause for term.
func TextClause(term string) string {
	t := EscapeTerm(strings.TrimSpace(term))
	return `summary ~ "` + t + `*" OR key ~ "` + t + `*"`
}

// Compose returns the effective JQL for a typeahead search. A blank term
// leaves base unmodified; otherwise base and the text clause are conjoined,
// each parenthesised so neither can change the other's precedence.
func Compose(base, term string) string {
	if strings.TrimSpace(term) == "" {
		return base
	}
	clause := TextClause(term)
	if strings.TrimSpace(base) == "" {
		return clause
	}
	return "(" + base + ") AND (" + clause + ")"
}
