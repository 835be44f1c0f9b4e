// Package srs holds the pure difficulty transforms behind word scheduling.
// It is a simplified SM-2 variant: a single ease factor per learner/word
// pair grows the review interval on success and is floored on failure.
// Nothing here performs I/O and nothing here can fail.
package srs

import (
	"math"
	"time"

	"github.com/currentsmms-kd/spelling-stars-sub000/pkg/models"
)

const (
	// DefaultEase is the starting ease for a word the learner has never seen.
	DefaultEase = 2.5
	// MinEase is the floor the ease factor is clamped to on failure.
	MinEase = 1.3

	easeReward  = 0.1
	easePenalty = 0.2
)

// NewEntry returns the default difficulty state for a never-seen word:
// interval 0 means the word is due immediately.
func NewEntry(learnerID, wordID string, now time.Time) models.DifficultyEntry {
	return models.DifficultyEntry{
		LearnerID:    learnerID,
		WordID:       wordID,
		Ease:         DefaultEase,
		IntervalDays: 0,
		DueDate:      now,
		Reps:         0,
		Lapses:       0,
		UpdatedAt:    now,
	}
}

// OnSuccess applies a correct first-try answer to the entry and returns the
// updated state. The first-ever success schedules the word for tomorrow;
// later successes multiply the interval by the new ease.
func OnSuccess(entry models.DifficultyEntry, now time.Time) models.DifficultyEntry {
	entry.Ease += easeReward
	entry.Reps++

	if entry.IntervalDays == 0 {
		entry.IntervalDays = 1
	} else {
		next := int(math.Round(float64(entry.IntervalDays) * entry.Ease))
		if next < 1 {
			next = 1
		}
		entry.IntervalDays = next
	}

	entry.DueDate = now.AddDate(0, 0, entry.IntervalDays)
	entry.UpdatedAt = now
	return entry
}

// OnMiss applies a failed answer: ease drops (floored at MinEase), the
// consecutive-success streak resets, and the word comes back tomorrow.
func OnMiss(entry models.DifficultyEntry, now time.Time) models.DifficultyEntry {
	entry.Ease -= easePenalty
	if entry.Ease < MinEase {
		entry.Ease = MinEase
	}
	entry.Reps = 0
	entry.IntervalDays = 1
	entry.Lapses++
	entry.DueDate = now.AddDate(0, 0, 1)
	entry.UpdatedAt = now
	return entry
}

// Apply dispatches to OnSuccess or OnMiss based on whether the learner got
// the word right on the first try.
func Apply(entry models.DifficultyEntry, correctFirstTry bool, now time.Time) models.DifficultyEntry {
	if correctFirstTry {
		return OnSuccess(entry, now)
	}
	return OnMiss(entry, now)
}

// AttemptQuality classifies an attempt on the classic 0-5 recall scale.
// Used for analytics weighting only, never for the interval math.
func AttemptQuality(correct, firstTry, usedHint bool) int {
	switch {
	case !correct:
		return 1
	case firstTry && !usedHint:
		return 5
	case firstTry && usedHint:
		return 3
	default:
		return 2
	}
}

// IsMastered reports whether a word can be considered learned: a long
// streak of successes and a comfortably wide interval.
func IsMastered(entry models.DifficultyEntry) bool {
	return entry.Reps >= 5 && entry.IntervalDays >= 30
}

// DueOn reports whether the entry is due on the given day. Due dates are
// calendar dates, not instants: a word scheduled yesterday evening is due
// first thing this morning.
func DueOn(entry models.DifficultyEntry, now time.Time) bool {
	due := entry.DueDate.In(now.Location())
	y1, m1, d1 := due.Date()
	y2, m2, d2 := now.Date()
	if y1 != y2 {
		return y1 < y2
	}
	if m1 != m2 {
		return m1 < m2
	}
	return d1 <= d2
}
