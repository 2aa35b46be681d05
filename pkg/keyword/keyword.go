// Package keyword builds the prefix token sets stored on searchable records.
//
// Every word of an indexed field contributes all of its non-empty prefixes, so
// an exact array-contains lookup on the stored set behaves like a starts-with
// search.
package keyword

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Field is the record field the set is persisted under.
const Field = "keywords"

// Set is a set of lowercase prefix tokens.
type Set map[string]struct{}

// Add inserts tokens, ignoring empty ones.
func (s Set) Add(tokens ...string) {
	for _, t := range tokens {
		if t != "" {
			s[t] = struct{}{}
		}
	}
}

// Contains reports whether token is in the set.
func (s Set) Contains(token string) bool {
	_, ok := s[token]
	return ok
}

func (s Set) Len() int {
	return len(s)
}

// Union returns a new set holding the tokens of s and other.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for t := range s {
		out[t] = struct{}{}
	}
	for t := range other {
		out[t] = struct{}{}
	}
	return out
}

// Sorted returns the tokens in ascending order. This is the persisted form.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Normalize applies the case and Unicode folding used by Generate. Search
// terms go through it so that they match stored tokens.
func Normalize(text string) string {
	// Casers keep state and must not be shared across goroutines.
	return cases.Lower(language.Und).String(norm.NFC.String(strings.TrimSpace(text)))
}

// Words splits normalized text into words. Letters, digits and combining marks
// belong to words; every other rune separates them.
func Words(text string) []string {
	return strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})
}

// Generate returns every non-empty prefix of every word of text.
func Generate(text string) Set {
	set := make(Set)
	for _, word := range Words(text) {
		runes := []rune(word)
		for i := 1; i <= len(runes); i++ {
			set[string(runes[:i])] = struct{}{}
		}
	}
	return set
}

// Index generates the sets of several fields and unions them.
func Index(texts ...string) Set {
	set := make(Set)
	for _, text := range texts {
		for t := range Generate(text) {
			set[t] = struct{}{}
		}
	}
	return set
}
