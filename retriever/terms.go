package retriever

import "strings"

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "how": {},
	"why": {}, "are": {}, "was": {}, "were": {}, "does": {}, "did": {},
	"can": {}, "could": {}, "would": {}, "should": {}, "about": {},
	"from": {}, "into": {}, "have": {}, "has": {}, "had": {}, "not": {},
	"you": {}, "your": {}, "please": {}, "tell": {},
}

// ExtractTerms lowercases the question and keeps distinct terms of at least
// minLength runes, dropping stopwords. Order follows first appearance.
func ExtractTerms(question string, minLength int) []string {
	if minLength <= 0 {
		minLength = 3
	}
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !isTermRune(r)
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minLength {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

func isTermRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_':
		return true
	case r > 0x7F: // keep non-ASCII word characters intact
		return true
	}
	return false
}
