package score

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// hintThreshold is the minimum Jaro-Winkler score for a reference word to be
// offered as a "did you mean" hint.
const hintThreshold = 0.7

// SuggestWord proposes the reference word the learner most likely meant by a
// mismatched answer word. Candidates are filtered by Double Metaphone code
// overlap and ranked by Jaro-Winkler similarity; without a phonetic
// candidate the best plain Jaro-Winkler match above the threshold is used.
//
// This is feedback decoration only. It never feeds back into the overlap
// scores or the hit/error decision.
func SuggestWord(word string, reference []string) (suggestion string, ok bool) {
	word = strings.TrimSpace(word)
	if word == "" || len(reference) == 0 {
		return "", false
	}

	wp, ws := matchr.DoubleMetaphone(word)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, ref := range reference {
		ref = strings.TrimSpace(ref)
		if ref == "" || ref == word {
			continue
		}

		rp, rs := matchr.DoubleMetaphone(ref)
		phonetic := codeOverlap(wp, ws, rp, rs)
		jw := matchr.JaroWinkler(word, ref, false)
		if jw < hintThreshold {
			continue
		}

		if phonetic && !bestPhonetic {
			best, bestScore, bestPhonetic = ref, jw, true
		} else if phonetic == bestPhonetic && jw > bestScore {
			best, bestScore = ref, jw
		}
	}

	return best, best != ""
}

// codeOverlap reports whether any non-empty Double Metaphone code of the
// first word equals any code of the second.
func codeOverlap(ap, as, bp, bs string) bool {
	for _, a := range []string{ap, as} {
		if a == "" {
			continue
		}
		if a == bp || (bs != "" && a == bs) {
			return true
		}
	}
	return false
}
