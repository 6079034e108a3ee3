package searcher

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {},
	"by": {}, "for": {}, "from": {}, "how": {}, "in": {}, "into": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "with": {},
}

// Terms splits text into lowercase letter/digit tokens of at least two
// runes, dropping stopwords.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

func phrase(text string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

// LexicalOverlap scores literal overlap between a query and a candidate's
// title and excerpt. Containment of the whole query phrase scores 1;
// otherwise the score is the fraction of distinct query terms present.
func LexicalOverlap(query, title, excerpt string) float64 {
	q := phrase(query)
	if q == "" {
		return 0
	}
	haystack := " " + phrase(title) + " " + phrase(excerpt) + " "
	if strings.Contains(haystack, " "+q+" ") {
		return 1
	}

	terms := Terms(query)
	if len(terms) == 0 {
		return 0
	}
	present := make(map[string]struct{})
	for _, t := range Terms(title + " " + excerpt) {
		present[t] = struct{}{}
	}

	seen := make(map[string]struct{}, len(terms))
	hits := 0
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := present[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(seen))
}

// ApplyLexicalBoost adds weight*LexicalOverlap to every fused score and
// re-sorts.
func ApplyLexicalBoost(fused []Fused, query string, weight float64) {
	if weight <= 0 || strings.TrimSpace(query) == "" {
		return
	}
	for i := range fused {
		meta := fused[i].Best.Vector.Metadata
		if fused[i].Root != nil {
			meta = fused[i].Root.Metadata
		}
		fused[i].Score += weight * LexicalOverlap(query, meta.Title, meta.Excerpt)
	}
	SortFused(fused)
}
