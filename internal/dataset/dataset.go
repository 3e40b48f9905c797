// Package dataset loads practice-item pools and resolves the assorted field
// spellings found in raw dataset files into one canonical item shape.
//
// Raw files accumulated aliased field names over time ("es"/"frase" for the
// prompt, "ptbr"/"translation" for the reference, and so on). The alias
// lists live here, are resolved exactly once at ingestion, and downstream
// code only ever sees [Item].
package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/7spvzk7dmv-jpg/listen-ES/internal/level"
)

// ErrEmptyDataset is returned when a dataset yields no usable items after
// ingestion filtering. It is a visible error state, not a crash: the caller
// reports it to the learner.
var ErrEmptyDataset = errors.New("dataset: no usable items")

// Item is one practice item. Items are immutable once loaded and shared by
// reference between the sampler and the scorer.
type Item struct {
	// ID is stable and unique within a dataset. When the raw item carries no
	// id it is synthesized from the dataset key and ordinal position, which
	// keeps it stable across reloads but not across edits that reorder the
	// file. That limitation is preserved for compatibility with existing
	// learner weight maps.
	ID string

	// Source is the prompt shown (or spoken) to the learner.
	Source string

	// Reference is the expected answer the learner is graded against.
	Reference string

	// Level is the CEFR rung of the item, or empty when the raw item had
	// none (unlevelled items only ever surface through the sampler's
	// whole-set fallback).
	Level level.Level
}

// Field alias lists, resolved case-insensitively. First match wins.
var (
	idAliases        = []string{"id"}
	sourceAliases    = []string{"source", "es", "frase", "text"}
	referenceAliases = []string{"reference", "ptbr", "pt", "translation"}
	levelAliases     = []string{"level", "cefr"}
)

// Ingest converts raw decoded items into canonical [Item] values. Malformed
// items (missing source or reference) are dropped with a debug log, never
// surfaced per-item. Missing ids become "<datasetKey>_<ordinal>". An
// entirely empty result is [ErrEmptyDataset].
func Ingest(datasetKey string, raw []map[string]any) ([]Item, error) {
	items := make([]Item, 0, len(raw))
	for i, r := range raw {
		item := Item{
			ID:        lookupString(r, idAliases),
			Source:    lookupString(r, sourceAliases),
			Reference: lookupString(r, referenceAliases),
		}
		if item.Source == "" || item.Reference == "" {
			slog.Debug("dataset: dropping malformed item",
				"dataset", datasetKey, "ordinal", i)
			continue
		}
		if item.ID == "" {
			item.ID = fmt.Sprintf("%s_%d", datasetKey, i)
		}
		if raw := lookupString(r, levelAliases); raw != "" {
			if lvl, ok := level.Parse(strings.ToUpper(raw)); ok {
				item.Level = lvl
			} else {
				slog.Debug("dataset: unknown level, keeping item unlevelled",
					"dataset", datasetKey, "id", item.ID, "level", raw)
			}
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: dataset %q", ErrEmptyDataset, datasetKey)
	}
	return items, nil
}

// lookupString resolves the first alias present in the raw item, matching
// keys case-insensitively and accepting only non-empty string values.
func lookupString(raw map[string]any, aliases []string) string {
	for _, alias := range aliases {
		for k, v := range raw {
			if !strings.EqualFold(k, alias) {
				continue
			}
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
