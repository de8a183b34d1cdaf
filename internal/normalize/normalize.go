// Package normalize folds titles, names, topics and venues into comparison
// keys used by the matching components.
package normalize

import (
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// honorifics are dropped from person names before comparison.
var honorifics = map[string]bool{
	"dr": true, "prof": true, "professor": true,
	"mr": true, "mrs": true, "ms": true, "mx": true, "sir": true, "dame": true,
	"jr": true, "sr": true, "phd": true, "md": true,
}

// FoldAccents strips combining marks: "Mérienboer" becomes "Merienboer".
func FoldAccents(s string) string {
	// transform.Chain keeps state, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Squash reduces s to lower-case ASCII letters and digits only. It is the
// normalized title key: case, accents, whitespace and punctuation all fold
// away.
func Squash(s string) string {
	s = strings.ToLower(FoldAccents(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Text lower-cases and accent-folds s, turns punctuation into spaces and
// collapses runs of whitespace. Used for set members such as topics.
func Text(s string) string {
	s = strings.ToLower(FoldAccents(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// PersonName normalizes an author name: "Last, First" is reordered to
// "First Last", then the result is folded like Text with honorifics
// removed. "Dr. Bart van Merriënboer" and "van Merrienboer, Bart" both
// become "bart van merrienboer".
func PersonName(name string) string {
	if last, first, ok := strings.Cut(name, ","); ok && strings.TrimSpace(first) != "" {
		name = strings.TrimSpace(first) + " " + strings.TrimSpace(last)
	}
	fields := strings.Fields(Text(name))
	kept := fields[:0]
	for _, f := range fields {
		if honorifics[f] {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// VenueKey identifies a venue by its normalized name and series.
func VenueKey(name, series string) string {
	return Text(name) + "|" + Text(series)
}

// Similarity returns a score in [0, 1] between two already-normalized
// strings, 1 meaning identical. Empty strings only match each other.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.Similarity(a, b, nil)
}
