// Package textnorm canonicalises learner answers and reference texts before
// they are compared.
//
// The transformation is deterministic, total, and idempotent: applying
// [Normalize] to its own output returns the output unchanged. Both sides of
// every comparison in the scoring layer must go through the same
// normalisation, otherwise accent folding would make canonical forms diverge.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldMarks decomposes text into NFD form and removes all combining
// diacritical marks, so that "Ñandú" and "nandu" fold to the same string.
var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// Normalize canonicalises text for similarity scoring. Steps, in order:
// Unicode canonical decomposition, strip combining marks, lower-case, drop
// every rune that is not a letter, apostrophe, or space (the Unicode letter
// category keeps any base letter of the answer language alive after accent
// folding), collapse whitespace runs to a single space, trim.
func Normalize(text string) string {
	folded, _, err := transform.String(foldMarks, text)
	if err != nil {
		// The mark-stripping transform cannot fail on valid UTF-8; on a
		// malformed input fall back to the raw text so Normalize stays total.
		folded = text
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsLetter(r) || r == '\'':
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
