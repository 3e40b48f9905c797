// Package session orchestrates one learner's drill loop. The Controller
// owns the learner state for the lifetime of the session and sequences the
// other components: the sampler picks the current item, the normalizer and
// scorer grade answers, the level ladder and weight map absorb the outcome,
// and the persistence gateway stores the result after every mutation.
//
// The controller holds no grading logic of its own. All operations run
// under one mutex, matching the single-logical-thread model: per learner
// there is never more than one state mutation in flight.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/7spvzk7dmv-jpg/listen-ES/internal/dataset"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/learnerstore"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/level"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/observe"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/sampler"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/score"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/textnorm"
	"github.com/7spvzk7dmv-jpg/listen-ES/pkg/speech/stt"
	"github.com/7spvzk7dmv-jpg/listen-ES/pkg/speech/tts"
)

// Persisted record keys. Each is independently mergeable in the learner's
// remote document.
const (
	keyStats    = "stats"
	keyDataset  = "dataset"
	keyExamMode = "examMode"
)

const defaultLocale = "es-ES"

var (
	// ErrNoCurrentItem is returned by operations that need an item on deck
	// before Next has ever been called.
	ErrNoCurrentItem = errors.New("session: no current item, request the next one first")

	// ErrSpeechUnavailable is returned when no speech provider is
	// configured. The session continues text-only.
	ErrSpeechUnavailable = errors.New("session: speech provider not configured")
)

// Stats is the persisted core of the learner state.
type Stats struct {
	Level   level.Level     `json:"level"`
	Hits    int             `json:"hits"`
	Errors  int             `json:"errors"`
	Weights sampler.Weights `json:"weights"`
}

// Attempt is the transient result of one graded answer. It is reported to
// the caller and kept for the next state snapshot, never persisted.
type Attempt struct {
	Score   float64           `json:"score"`
	Correct bool              `json:"correct"`
	Level   level.Level       `json:"level"`
	Hits    int               `json:"hits"`
	Errors  int               `json:"errors"`
	Diff    []WordFeedback    `json:"diff,omitempty"`
	Hints   map[string]string `json:"hints,omitempty"`
}

// WordFeedback is one reference word with its highlight class.
type WordFeedback struct {
	Word string `json:"word"`
	Tier string `json:"tier"`
}

// ItemView is the current item as exposed to the caller. In exam mode the
// source text is withheld until the answer has been revealed; the reference
// translation is withheld until then in every mode.
type ItemView struct {
	ID        string      `json:"id"`
	Source    string      `json:"source,omitempty"`
	Reference string      `json:"reference,omitempty"`
	Level     level.Level `json:"level,omitempty"`
}

// Snapshot is the full state view for the caller.
type Snapshot struct {
	Level       level.Level `json:"level"`
	Hits        int         `json:"hits"`
	Errors      int         `json:"errors"`
	DatasetKey  string      `json:"dataset"`
	ExamMode    bool        `json:"examMode"`
	Item        *ItemView   `json:"item,omitempty"`
	LastAttempt *Attempt    `json:"lastAttempt,omitempty"`
}

// Config holds the collaborators for a [Controller].
type Config struct {
	// LearnerID scopes persistence. Empty runs anonymously.
	LearnerID string

	// Store is the persistence gateway. Required.
	Store *learnerstore.Gateway

	// Datasets fetches practice items. Required.
	Datasets dataset.Provider

	// DatasetKeys is the toggle ring of dataset keys, first entry is the
	// default. Required non-empty.
	DatasetKeys []string

	// Locale is the BCP-47 drill language. Default "es-ES".
	Locale string

	// TTS is optional; nil disables Speak and Audio.
	TTS tts.Provider

	// STT is optional; nil disables captures.
	STT stt.Provider

	// TTSName and STTName label speech metrics. Defaults "tts"/"stt".
	TTSName string
	STTName string

	// Metrics is optional.
	Metrics *observe.Metrics

	// Rand drives sampling. Nil seeds from the clock.
	Rand *rand.Rand
}

// Controller runs one learner's session. All exported methods are safe for
// concurrent use.
type Controller struct {
	learnerID string
	store     *learnerstore.Gateway
	datasets  dataset.Provider
	ring      []string
	locale    string
	tts       tts.Provider
	stt       stt.Provider
	ttsName   string
	sttName   string
	metrics   *observe.Metrics

	mu          sync.Mutex
	rng         *rand.Rand
	stats       Stats
	ladder      *level.Ladder
	datasetKey  string
	examMode    bool
	items       []dataset.Item
	current     *dataset.Item
	revealed    bool
	lastAttempt *Attempt

	speakCancel   context.CancelFunc
	capture       stt.Session
	captureCancel context.CancelFunc
}

// New builds a Controller, restores persisted state and fetches the active
// dataset. A dataset fetch failure is terminal for session creation.
func New(ctx context.Context, cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if cfg.Datasets == nil {
		return nil, errors.New("session: dataset provider is required")
	}
	if len(cfg.DatasetKeys) == 0 {
		return nil, errors.New("session: at least one dataset key is required")
	}
	if cfg.Locale == "" {
		cfg.Locale = defaultLocale
	}
	if cfg.TTSName == "" {
		cfg.TTSName = "tts"
	}
	if cfg.STTName == "" {
		cfg.STTName = "stt"
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}

	c := &Controller{
		learnerID: cfg.LearnerID,
		store:     cfg.Store,
		datasets:  cfg.Datasets,
		ring:      cfg.DatasetKeys,
		locale:    cfg.Locale,
		tts:       cfg.TTS,
		stt:       cfg.STT,
		ttsName:   cfg.TTSName,
		sttName:   cfg.STTName,
		metrics:   cfg.Metrics,
		rng:       cfg.Rand,
	}

	c.stats = defaultStats()
	if err := c.store.Load(ctx, c.learnerID, keyStats, &c.stats); err != nil && !errors.Is(err, learnerstore.ErrNotFound) {
		slog.Warn("session: stats unreadable, starting fresh", "learner", c.learnerID, "err", err)
		c.stats = defaultStats()
	}
	if c.stats.Weights == nil {
		c.stats.Weights = sampler.Weights{}
	}
	c.ladder = level.NewLadder(c.stats.Level)
	c.stats.Level = c.ladder.Current()

	c.datasetKey = cfg.DatasetKeys[0]
	var saved string
	if err := c.store.Load(ctx, c.learnerID, keyDataset, &saved); err == nil && inRing(cfg.DatasetKeys, saved) {
		c.datasetKey = saved
	}
	if err := c.store.Load(ctx, c.learnerID, keyExamMode, &c.examMode); err != nil {
		c.examMode = false
	}

	items, err := c.datasets.Fetch(ctx, c.datasetKey)
	if err != nil {
		return nil, fmt.Errorf("session: fetch dataset %q: %w", c.datasetKey, err)
	}
	c.items = items
	return c, nil
}

func defaultStats() Stats {
	return Stats{Level: level.Bottom(), Weights: sampler.Weights{}}
}

func inRing(ring []string, key string) bool {
	for _, k := range ring {
		if k == key {
			return true
		}
	}
	return false
}

// Next draws the next practice item and makes it current. Any speech
// activity against the previous item is cancelled.
func (c *Controller) Next(_ context.Context) (ItemView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, err := sampler.Pick(c.rng, c.items, c.ladder.Current(), c.stats.Weights)
	if err != nil {
		return ItemView{}, fmt.Errorf("session: pick item: %w", err)
	}
	c.current = &item
	c.revealed = false
	c.lastAttempt = nil
	c.stopSpeakLocked()
	c.stopCaptureLocked()
	return c.itemViewLocked(), nil
}

// SubmitAnswer grades a typed translation against the current item's
// reference, updates progress and persists it.
func (c *Controller) SubmitAnswer(ctx context.Context, answer string) (Attempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Attempt{}, ErrNoCurrentItem
	}

	ref := textnorm.Normalize(c.current.Reference)
	got := textnorm.Normalize(answer)
	s := score.WordOverlap(ref, got)
	correct := s >= score.CorrectThreshold

	att := c.applyOutcomeLocked(ctx, correct, s)
	att.Diff = feedback(score.Diff(ref, got))
	c.revealed = true
	c.lastAttempt = &att
	return att, nil
}

// SubmitSpeech grades a spoken transcript against the current item's source
// text using the pronunciation check, updates progress and persists it.
func (c *Controller) SubmitSpeech(ctx context.Context, transcript string) (Attempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Attempt{}, ErrNoCurrentItem
	}
	att := c.gradeSpeechLocked(ctx, transcript)
	return att, nil
}

// gradeSpeechLocked runs the pronunciation check. Caller holds the mutex
// and has verified a current item exists.
func (c *Controller) gradeSpeechLocked(ctx context.Context, transcript string) Attempt {
	target := textnorm.Normalize(c.current.Source)
	spoken := textnorm.Normalize(transcript)
	s := score.PositionalOverlap(target, spoken)
	correct := s >= score.PronunciationThreshold

	att := c.applyOutcomeLocked(ctx, correct, s)
	diff := score.Diff(target, spoken)
	att.Diff = feedback(diff)
	att.Hints = pronunciationHints(diff, target, spoken)
	c.revealed = true
	c.lastAttempt = &att
	return att
}

// applyOutcomeLocked records one graded attempt: counters, weight map,
// level ladder, metrics, persistence. Caller holds the mutex.
func (c *Controller) applyOutcomeLocked(ctx context.Context, correct bool, s float64) Attempt {
	before := c.ladder.Current()
	if correct {
		c.stats.Hits++
		c.stats.Weights.RecordHit(c.current.ID)
		c.ladder.Advance()
	} else {
		c.stats.Errors++
		c.stats.Weights.RecordMiss(c.current.ID)
		c.ladder.Retreat()
	}
	c.stats.Level = c.ladder.Current()

	if c.metrics != nil {
		c.metrics.RecordAttempt(ctx, c.datasetKey, correct, s)
		if c.stats.Level != before {
			direction := "advance"
			if !correct {
				direction = "retreat"
			}
			c.metrics.RecordLevelChange(ctx, direction)
		}
	}
	c.persistLocked(ctx, keyStats, c.stats)

	return Attempt{
		Score:   s,
		Correct: correct,
		Level:   c.stats.Level,
		Hits:    c.stats.Hits,
		Errors:  c.stats.Errors,
	}
}

// ToggleDataset switches to the next dataset in the ring. The new dataset
// is fetched before the switch is applied, so a failed fetch leaves the
// session on the old dataset. Progress is kept; only the current item and
// the revealed flag reset.
func (c *Controller) ToggleDataset(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.ring[0]
	for i, k := range c.ring {
		if k == c.datasetKey {
			next = c.ring[(i+1)%len(c.ring)]
			break
		}
	}

	items, err := c.datasets.Fetch(ctx, next)
	if err != nil {
		return "", fmt.Errorf("session: fetch dataset %q: %w", next, err)
	}

	c.datasetKey = next
	c.items = items
	c.current = nil
	c.revealed = false
	c.lastAttempt = nil
	c.stopSpeakLocked()
	c.stopCaptureLocked()
	c.persistLocked(ctx, keyDataset, c.datasetKey)
	return next, nil
}

// SetExamMode switches listening-only mode on or off and persists it.
func (c *Controller) SetExamMode(ctx context.Context, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.examMode == on {
		return
	}
	c.examMode = on
	c.revealed = false
	c.lastAttempt = nil
	c.persistLocked(ctx, keyExamMode, c.examMode)
}

// ResetProgress restores the learner's stats and exam mode to their
// defaults and persists them. The active dataset is kept: resetting
// progress must not depend on a dataset refetch succeeding.
func (c *Controller) ResetProgress(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopSpeakLocked()
	c.stopCaptureLocked()
	c.stats = defaultStats()
	c.ladder = level.NewLadder(level.Bottom())
	c.examMode = false
	c.current = nil
	c.revealed = false
	c.lastAttempt = nil
	c.persistLocked(ctx, keyStats, c.stats)
	c.persistLocked(ctx, keyExamMode, c.examMode)
}

// Reveal exposes the current item's reference translation in the next
// snapshot without grading an answer.
func (c *Controller) Reveal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.revealed = true
	}
}

// State returns the current snapshot.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Level:       c.stats.Level,
		Hits:        c.stats.Hits,
		Errors:      c.stats.Errors,
		DatasetKey:  c.datasetKey,
		ExamMode:    c.examMode,
		LastAttempt: c.lastAttempt,
	}
	if c.current != nil {
		view := c.itemViewLocked()
		snap.Item = &view
	}
	return snap
}

func (c *Controller) itemViewLocked() ItemView {
	view := ItemView{
		ID:     c.current.ID,
		Source: c.current.Source,
		Level:  c.current.Level,
	}
	if c.examMode && !c.revealed {
		// Listening drill: the learner hears the item, never reads it.
		view.Source = ""
	}
	if c.revealed {
		view.Reference = c.current.Reference
	}
	return view
}

// Close stops any live speech activity. The controller stays usable for
// text operations afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopSpeakLocked()
	c.stopCaptureLocked()
}

// persistLocked saves one key, absorbing persistence failures. Caller
// holds the mutex.
func (c *Controller) persistLocked(ctx context.Context, key string, value any) {
	if err := c.store.Save(ctx, c.learnerID, key, value); err != nil {
		slog.Warn("session: persist failed on both backends",
			"learner", c.learnerID, "key", key, "err", err)
	}
}

// feedback converts scorer output to the API shape.
func feedback(diff []score.WordMatch) []WordFeedback {
	out := make([]WordFeedback, len(diff))
	for i, wm := range diff {
		out[i] = WordFeedback{Word: wm.Word, Tier: wm.Tier.String()}
	}
	return out
}

// pronunciationHints suggests the closest target word for each spoken word
// that landed on a mismatch. Feedback only, never part of grading.
func pronunciationHints(diff []score.WordMatch, target, spoken string) map[string]string {
	targetWords := strings.Fields(target)
	spokenWords := strings.Fields(spoken)

	var hints map[string]string
	for i, wm := range diff {
		if wm.Tier != score.TierMismatch || i >= len(spokenWords) {
			continue
		}
		if sug, ok := score.SuggestWord(spokenWords[i], targetWords); ok {
			if hints == nil {
				hints = make(map[string]string)
			}
			hints[spokenWords[i]] = sug
		}
	}
	return hints
}
