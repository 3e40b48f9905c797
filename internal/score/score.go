// Package score judges learner answers against reference texts.
//
// Two interchangeable similarity strategies operate on pre-normalised text
// (see [github.com/7spvzk7dmv-jpg/listen-ES/internal/textnorm]):
//
//   - [WordOverlap] grades free-text translation answers by duplicate-
//     insensitive word membership.
//   - [PositionalOverlap] grades spoken answers by positional rune equality,
//     a coarse proxy for pronunciation closeness.
//
// [Diff] classifies each reference word for feedback highlighting and is
// never part of the hit/error decision. All functions are pure and total:
// every path returns a score in [0, 1], never an error.
package score

import "strings"

// Decision thresholds. A translation answer is a hit at or above
// CorrectThreshold; a spoken answer counts as good pronunciation at or above
// PronunciationThreshold.
const (
	CorrectThreshold       = 0.6
	PronunciationThreshold = 0.75
)

// Tier boundaries for the per-word feedback diff.
const (
	exactTier   = 0.85
	partialTier = 0.5
)

// WordOverlap returns the share of a's word positions whose word occurs
// anywhere in b, relative to the longer of the two word sequences. The
// membership test against b is a set test, so repeats in b do not matter;
// every position of a counts. Either input empty yields 0.
//
// The measure equals 1 for any non-empty string compared with itself and
// is symmetric when neither side repeats a word.
func WordOverlap(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	wa := strings.Fields(a)
	wb := strings.Fields(b)

	seen := make(map[string]struct{}, len(wb))
	for _, w := range wb {
		seen[w] = struct{}{}
	}

	hits := 0
	for _, w := range wa {
		if _, ok := seen[w]; ok {
			hits++
		}
	}

	return float64(hits) / float64(max(len(wa), len(wb)))
}

// PositionalOverlap returns the share of rune positions at which the two
// strings agree, relative to the longer string. It is deliberately not an
// edit distance: a single dropped syllable misaligns every later position.
// That brittleness is a known property of the pronunciation check and is
// kept for score compatibility. Either input empty yields 0.
func PositionalOverlap(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	shorter := min(len(ra), len(rb))
	same := 0
	for i := 0; i < shorter; i++ {
		if ra[i] == rb[i] {
			same++
		}
	}
	return float64(same) / float64(max(len(ra), len(rb)))
}

// MatchTier classifies a single reference word in a feedback diff.
type MatchTier int

const (
	// TierMismatch marks a word the learner missed or got mostly wrong.
	TierMismatch MatchTier = iota

	// TierPartial marks a word that is close but not convincing.
	TierPartial

	// TierExact marks a word the learner reproduced (near-)exactly.
	TierExact
)

// String returns the tier name used in API responses and logs.
func (t MatchTier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierPartial:
		return "partial"
	default:
		return "mismatch"
	}
}

// WordMatch pairs one reference word with its feedback classification.
type WordMatch struct {
	Word string
	Tier MatchTier
}

// Diff classifies every word of target against the word at the same index in
// spoken, using [PositionalOverlap] per word pair. Alignment is strictly
// positional, not by content: when spoken has fewer words, the unmatched
// tail of target is all mismatches. Tiers: exact >= 0.85, partial >= 0.5.
func Diff(target, spoken string) []WordMatch {
	tw := strings.Fields(target)
	sw := strings.Fields(spoken)

	out := make([]WordMatch, len(tw))
	for i, w := range tw {
		var s float64
		if i < len(sw) {
			s = PositionalOverlap(w, sw[i])
		}
		tier := TierMismatch
		switch {
		case s >= exactTier:
			tier = TierExact
		case s >= partialTier:
			tier = TierPartial
		}
		out[i] = WordMatch{Word: w, Tier: tier}
	}
	return out
}
