package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// combiningDiacritics is the Combining Diacritical Marks block (U+0300..U+036F),
// which holds every tone and vowel mark used in Vietnamese once text is decomposed.
var combiningDiacritics = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0300, Hi: 0x036f, Stride: 1}},
}

func mapStroke(r rune) rune {
	switch r {
	case 'đ':
		return 'd'
	case 'Đ':
		return 'D'
	}
	return r
}

// FoldAccents removes Vietnamese diacritics and maps đ/Đ to d/D.
// Case and every other character are left as they are; FoldAccents(FoldAccents(s)) == FoldAccents(s).
//
//	FoldAccents("Nguyễn Văn A") -> "Nguyen Van A"
func FoldAccents(s string) string {
	if s == "" {
		return s
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(combiningDiacritics)), runes.Map(mapStroke), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return foldSlow(s)
	}
	return out
}

func foldSlow(s string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.Is(combiningDiacritics, r) {
			return -1
		}
		return mapStroke(r)
	}, norm.NFD.String(s))
	return norm.NFC.String(stripped)
}

// Matcher performs accent- and case-insensitive substring search for one term.
type Matcher struct {
	term string
}

// NewMatcher folds the term once so it can be matched against many fields.
func NewMatcher(term string) Matcher {
	return Matcher{term: foldForSearch(term)}
}

// Empty reports whether the matcher has no term; an empty matcher matches everything.
func (m Matcher) Empty() bool {
	return m.term == ""
}

// Match reports whether any field contains the term.
func (m Matcher) Match(fields ...string) bool {
	if m.term == "" {
		return true
	}
	for _, f := range fields {
		if f == "" {
			continue
		}
		if strings.Contains(foldForSearch(f), m.term) {
			return true
		}
	}
	return false
}

// ContainsFolded reports whether haystack contains needle, ignoring accents and case.
func ContainsFolded(haystack, needle string) bool {
	return NewMatcher(needle).Match(haystack)
}

func foldForSearch(s string) string {
	return cases.Fold().String(FoldAccents(s))
}
