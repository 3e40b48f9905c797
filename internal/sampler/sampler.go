// Package sampler chooses the next practice item, biased toward items the
// learner keeps getting wrong.
//
// Selection is a weighted draw over the level-filtered pool. Weight updates
// are deliberately asymmetric: a failure raises an item's weight by 2, a
// success lowers it by only 1 (floored at 1), so trouble items resurface
// faster than mastered items fade.
package sampler

import (
	"errors"
	"math/rand/v2"

	"github.com/7spvzk7dmv-jpg/listen-ES/internal/dataset"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/level"
)

// ErrEmptyPool is returned by [Pick] when the item set is empty. The
// level-filter fallback means this only happens when the whole dataset is
// empty, which callers are expected to have rejected at ingestion.
var ErrEmptyPool = errors.New("sampler: empty item pool")

// Weights maps item IDs to sampling weights. Absent entries count as 1;
// stored entries are always >= 1.
type Weights map[string]int

// Get returns the weight for id, defaulting to 1 and enforcing the floor on
// whatever a deserialized state may contain.
func (w Weights) Get(id string) int {
	if v, ok := w[id]; ok && v > 1 {
		return v
	}
	return 1
}

// RecordHit lowers the weight of id by 1 after a successful attempt,
// floored at 1 so mastered items still reappear occasionally.
func (w Weights) RecordHit(id string) {
	if v := w.Get(id) - 1; v > 1 {
		w[id] = v
	} else {
		delete(w, id)
	}
}

// RecordMiss raises the weight of id by 2 after a failed attempt.
func (w Weights) RecordMiss(id string) {
	w[id] = w.Get(id) + 2
}

// Pick draws one item from items with probability proportional to each
// item's weight. Items are first filtered to the requested level; when no
// item carries that level yet (a fresh learner, or a dataset without that
// rung) the whole set is used instead, so a non-empty dataset always yields
// a pick. An empty items slice returns [ErrEmptyPool].
func Pick(rng *rand.Rand, items []dataset.Item, lvl level.Level, weights Weights) (dataset.Item, error) {
	if len(items) == 0 {
		return dataset.Item{}, ErrEmptyPool
	}

	pool := items[:0:0]
	for _, it := range items {
		if it.Level == lvl {
			pool = append(pool, it)
		}
	}
	if len(pool) == 0 {
		pool = items
	}

	total := 0
	for _, it := range pool {
		total += weights.Get(it.ID)
	}

	r := rng.IntN(total)
	for _, it := range pool {
		r -= weights.Get(it.ID)
		if r < 0 {
			return it, nil
		}
	}

	// Unreachable: the cumulative walk always terminates inside the loop.
	return pool[len(pool)-1], nil
}
