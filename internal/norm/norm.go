// Package norm folds externally-controlled free text into a canonical
// form so status phrases from the booking board can be compared without
// caring about case, diacritics, or spacing.
package norm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases the input, strips diacritics, and collapses runs of
// whitespace and dashes into a single space.
func Fold(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if unicode.IsSpace(r) || r == '-' || r == '_' {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Matcher reports whether a status string matches any of a phrase set,
// compared under Fold.
type Matcher struct {
	phrases map[string]struct{}
}

func NewMatcher(phrases []string) Matcher {
	set := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		key := Fold(p)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	return Matcher{phrases: set}
}

func (m Matcher) Match(status string) bool {
	_, ok := m.phrases[Fold(status)]
	return ok
}
