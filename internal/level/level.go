// Package level implements the CEFR proficiency ladder that gates item
// selection. The ladder is a closed ordered set; the only transitions are
// one rung up on a successful attempt and one rung down on a failed one,
// both clamped at the ends.
package level

import "fmt"

// Level is one rung of the CEFR ladder.
type Level string

// The full ladder, weakest to strongest.
const (
	A1 Level = "A1"
	A2 Level = "A2"
	B1 Level = "B1"
	B2 Level = "B2"
	C1 Level = "C1"
	C2 Level = "C2"
)

// ladder holds the rungs in ascending order. Index arithmetic in this
// package relies on this ordering.
var ladder = []Level{A1, A2, B1, B2, C1, C2}

// Bottom returns the weakest rung, the starting level for a fresh learner.
func Bottom() Level { return ladder[0] }

// Parse maps s to a known rung. Unknown values return ok=false; callers
// decide the fallback (ingestion keeps the item unlevelled, learner state
// restarts at the bottom rung).
func Parse(s string) (Level, bool) {
	for _, l := range ladder {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

// Ladder is the difficulty state machine for one learner. The zero value is
// not usable; construct with [NewLadder].
type Ladder struct {
	idx int
}

// NewLadder returns a ladder positioned at start. An unknown start level
// falls back to the bottom rung.
func NewLadder(start Level) *Ladder {
	l := &Ladder{}
	for i, rung := range ladder {
		if rung == start {
			l.idx = i
			break
		}
	}
	return l
}

// Current returns the rung the learner is on.
func (l *Ladder) Current() Level { return ladder[l.idx] }

// Advance moves one rung up after a successful attempt. At the top rung it
// is a no-op.
func (l *Ladder) Advance() {
	if l.idx < len(ladder)-1 {
		l.idx++
	}
}

// Retreat moves one rung down after a failed attempt. At the bottom rung it
// is a no-op.
func (l *Ladder) Retreat() {
	if l.idx > 0 {
		l.idx--
	}
}

// String implements fmt.Stringer for log output.
func (l *Ladder) String() string {
	return fmt.Sprintf("level %s (%d/%d)", l.Current(), l.idx+1, len(ladder))
}
