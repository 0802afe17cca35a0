// Package matcher extracts structured fingerprints from raw release titles
// and fuzzy-matches them against subscriptions (§4.4).
package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCase = cases.Fold()

// Normalize case-folds, strips non-alphanumeric runes except whitespace, and
// collapses whitespace (§4.4). Normalizing a title twice is the same as
// normalizing it once.
func Normalize(title string) string {
	s := norm.NFC.String(title)
	s = foldCase.String(s)

	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
		default:
			// dropped: punctuation, brackets, dashes act as word breaks
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
