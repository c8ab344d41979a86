package lexical

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"do": {}, "does": {}, "for": {}, "from": {}, "has": {}, "have": {}, "how": {}, "in": {},
	"is": {}, "it": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "with": {},
}

// Tokenize lowercases text and splits on every non-alphanumeric rune.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// Terms tokenizes and drops stop words.
func Terms(text string) []string {
	toks := Tokenize(text)
	if len(toks) == 0 {
		return nil
	}
	out := toks[:0]
	for _, t := range toks {
		if _, stop := stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// IsStopword reports whether a lowercased token is filtered before scoring.
func IsStopword(t string) bool {
	_, ok := stopwords[t]
	return ok
}
