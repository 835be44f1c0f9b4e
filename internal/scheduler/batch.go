// Package scheduler selects the next practice batch for a learner. The
// selection runs client-side over reads from the remote difficulty store;
// it performs no writes, so an abandoned call has no side effects.
package scheduler

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/currentsmms-kd/spelling-stars-sub000/internal/remote"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/srs"
	"github.com/currentsmms-kd/spelling-stars-sub000/pkg/models"
)

// Config holds the batch composition policy. The shares and thresholds are
// tunable product knobs, not contracts: the selector fills each category
// with "approximately this fraction, capped by availability".
type Config struct {
	// LeechShare of the limit goes to chronically missed words pulled in
	// ahead of schedule.
	LeechShare float64
	// ReviewShare of the limit goes to words due within the near-future
	// window, smoothing the due-date cliff.
	ReviewShare float64
	// LeechLapseThreshold is the lapse count at which a word counts as a
	// leech.
	LeechLapseThreshold int
	// ReviewWindowDays bounds how far ahead the review category looks.
	ReviewWindowDays int
}

// DefaultConfig returns the shipped composition policy.
func DefaultConfig() Config {
	return Config{
		LeechShare:          0.2,
		ReviewShare:         0.1,
		LeechLapseThreshold: 4,
		ReviewWindowDays:    2,
	}
}

// Selector composes practice batches from remote difficulty state.
type Selector struct {
	store remote.Store
	cfg   Config
	now   func() time.Time
}

// New creates a selector over the given store.
func New(store remote.Store, cfg Config) *Selector {
	return &Selector{store: store, cfg: cfg, now: time.Now}
}

// NextBatch returns the next practice batch for a learner, optionally
// scoped to one list, at most limit words long. With strict mode on, only
// overdue words are returned; otherwise the batch is padded with leeches, a
// near-future review sample, and unseen words. The call is an idempotent
// read: for a fixed store state and day, repeated calls return the same
// batch.
func (s *Selector) NextBatch(ctx context.Context, learnerID string, listID *string, limit int, strict bool) ([]models.ScheduledWord, error) {
	if limit <= 0 {
		return nil, nil
	}

	states, err := s.store.EntriesForLearner(ctx, learnerID, listID)
	if err != nil {
		return nil, errors.Wrap(err, "load difficulty state")
	}

	now := s.now()
	batch := make([]models.ScheduledWord, 0, limit)
	chosen := make(map[string]bool)

	// Category 1: everything due today or earlier, hardest-first among
	// equally due. Due dates compare by calendar day.
	var due []remote.WordState
	for _, st := range states {
		if srs.DueOn(st.Entry, now) {
			due = append(due, st)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].Entry.DueDate.Equal(due[j].Entry.DueDate) {
			return due[i].Entry.DueDate.Before(due[j].Entry.DueDate)
		}
		return due[i].Entry.Ease < due[j].Entry.Ease
	})
	for _, st := range due {
		if len(batch) == limit {
			break
		}
		batch = append(batch, scheduled(st, models.BatchDue))
		chosen[st.Word.ID] = true
	}

	if strict {
		return batch, nil
	}

	// Deterministic within a learner's day so the batch doesn't flicker
	// between calls in one session.
	rng := rand.New(rand.NewSource(sampleSeed(learnerID, now)))

	// Category 2: leech sample, even if not yet due.
	leechBudget := share(s.cfg.LeechShare, limit, len(batch))
	var leeches []remote.WordState
	for _, st := range states {
		if !chosen[st.Word.ID] && st.Entry.Lapses >= s.cfg.LeechLapseThreshold {
			leeches = append(leeches, st)
		}
	}
	for _, st := range sample(rng, leeches, leechBudget) {
		batch = append(batch, scheduled(st, models.BatchLeech))
		chosen[st.Word.ID] = true
	}

	// Category 3: near-future review sample.
	reviewBudget := share(s.cfg.ReviewShare, limit, len(batch))
	horizon := now.AddDate(0, 0, s.cfg.ReviewWindowDays)
	var upcoming []remote.WordState
	for _, st := range states {
		if !chosen[st.Word.ID] && !srs.DueOn(st.Entry, now) && srs.DueOn(st.Entry, horizon) {
			upcoming = append(upcoming, st)
		}
	}
	for _, st := range sample(rng, upcoming, reviewBudget) {
		batch = append(batch, scheduled(st, models.BatchReview))
		chosen[st.Word.ID] = true
	}

	// Category 4: fill the rest with never-attempted words, in list order.
	if remaining := limit - len(batch); remaining > 0 {
		unseen, err := s.store.UnseenWords(ctx, learnerID, listID)
		if err != nil {
			return nil, errors.Wrap(err, "load unseen words")
		}
		for _, w := range unseen {
			if remaining == 0 {
				break
			}
			if chosen[w.ID] {
				continue
			}
			batch = append(batch, models.ScheduledWord{
				WordID:    w.ID,
				ListID:    w.ListID,
				Text:      w.Text,
				BatchType: models.BatchNew,
				Ease:      srs.DefaultEase,
			})
			chosen[w.ID] = true
			remaining--
		}
	}

	return batch, nil
}

// HardestWords returns the learner's words ordered by ease ascending.
func (s *Selector) HardestWords(ctx context.Context, learnerID string, limit int) ([]remote.WordState, error) {
	states, err := s.store.EntriesForLearner(ctx, learnerID, nil)
	if err != nil {
		return nil, errors.Wrap(err, "load difficulty state")
	}
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].Entry.Ease < states[j].Entry.Ease
	})
	return truncate(states, limit), nil
}

// MostLapsedWords returns the learner's words ordered by lapses descending.
func (s *Selector) MostLapsedWords(ctx context.Context, learnerID string, limit int) ([]remote.WordState, error) {
	states, err := s.store.EntriesForLearner(ctx, learnerID, nil)
	if err != nil {
		return nil, errors.Wrap(err, "load difficulty state")
	}
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].Entry.Lapses > states[j].Entry.Lapses
	})
	return truncate(states, limit), nil
}

// MasteredCount reports how many of the learner's words are mastered.
func (s *Selector) MasteredCount(ctx context.Context, learnerID string) (int, error) {
	states, err := s.store.EntriesForLearner(ctx, learnerID, nil)
	if err != nil {
		return 0, errors.Wrap(err, "load difficulty state")
	}
	count := 0
	for _, st := range states {
		if srs.IsMastered(st.Entry) {
			count++
		}
	}
	return count, nil
}

func scheduled(st remote.WordState, batchType models.BatchType) models.ScheduledWord {
	dueDate := st.Entry.DueDate
	return models.ScheduledWord{
		WordID:    st.Word.ID,
		ListID:    st.Word.ListID,
		Text:      st.Word.Text,
		BatchType: batchType,
		DueDate:   &dueDate,
		Ease:      st.Entry.Ease,
		Lapses:    st.Entry.Lapses,
	}
}

// share converts a fractional share of the limit into a concrete budget,
// capped by the room left in the batch.
func share(fraction float64, limit, used int) int {
	budget := int(math.Round(fraction * float64(limit)))
	if room := limit - used; budget > room {
		budget = room
	}
	if budget < 0 {
		return 0
	}
	return budget
}

// sample draws up to n items without replacement.
func sample(rng *rand.Rand, items []remote.WordState, n int) []remote.WordState {
	if n >= len(items) {
		return items
	}
	picked := make([]remote.WordState, len(items))
	copy(picked, items)
	rng.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:n]
}

// sampleSeed keys the sampling RNG on learner and calendar day.
func sampleSeed(learnerID string, now time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(learnerID))
	h.Write([]byte(now.Format("2006-01-02")))
	return int64(h.Sum64())
}

func truncate(states []remote.WordState, limit int) []remote.WordState {
	if limit > 0 && len(states) > limit {
		return states[:limit]
	}
	return states
}
