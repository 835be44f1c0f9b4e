package srs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/currentsmms-kd/spelling-stars-sub000/pkg/models"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestNewEntryDefaults(t *testing.T) {
	entry := NewEntry("learner-1", "word-1", testNow)

	assert.Equal(t, DefaultEase, entry.Ease)
	assert.Equal(t, 0, entry.IntervalDays)
	assert.Equal(t, 0, entry.Reps)
	assert.Equal(t, 0, entry.Lapses)
	// Interval 0 means due right now.
	assert.False(t, entry.DueDate.After(testNow))
}

func TestOnSuccessFirstEver(t *testing.T) {
	entry := NewEntry("learner-1", "word-1", testNow)

	next := OnSuccess(entry, testNow)

	assert.InDelta(t, 2.6, next.Ease, 1e-9)
	assert.Equal(t, 1, next.IntervalDays)
	assert.Equal(t, 1, next.Reps)
	assert.Equal(t, 0, next.Lapses)
	assert.Equal(t, testNow.AddDate(0, 0, 1), next.DueDate)
}

func TestOnSuccessGrowsInterval(t *testing.T) {
	entry := models.DifficultyEntry{Ease: 2.6, IntervalDays: 1, Reps: 1}

	next := OnSuccess(entry, testNow)

	assert.InDelta(t, 2.7, next.Ease, 1e-9)
	// round(1 * 2.7) = 3
	assert.Equal(t, 3, next.IntervalDays)
	assert.Equal(t, 2, next.Reps)
	assert.Equal(t, testNow.AddDate(0, 0, 3), next.DueDate)
}

func TestOnSuccessEaseNeverDecreases(t *testing.T) {
	for _, ease := range []float64{1.3, 2.0, 2.5, 3.4} {
		entry := models.DifficultyEntry{Ease: ease, IntervalDays: 4}
		next := OnSuccess(entry, testNow)
		assert.GreaterOrEqual(t, next.Ease, ease)
	}
}

func TestOnMissResetsAndFloors(t *testing.T) {
	entry := models.DifficultyEntry{Ease: 1.4, IntervalDays: 5, Reps: 3, Lapses: 2}

	next := OnMiss(entry, testNow)

	// 1.4 - 0.2 = 1.2 is below the floor.
	assert.Equal(t, 1.3, next.Ease)
	assert.Equal(t, 1, next.IntervalDays)
	assert.Equal(t, 0, next.Reps)
	assert.Equal(t, 3, next.Lapses)
	assert.Equal(t, testNow.AddDate(0, 0, 1), next.DueDate)
}

func TestOnMissAboveFloor(t *testing.T) {
	entry := models.DifficultyEntry{Ease: 2.5, IntervalDays: 12, Reps: 4, Lapses: 0}

	next := OnMiss(entry, testNow)

	assert.InDelta(t, 2.3, next.Ease, 1e-9)
	assert.Equal(t, 1, next.Lapses)
	assert.Equal(t, 0, next.Reps)
}

func TestApplyDispatch(t *testing.T) {
	entry := NewEntry("learner-1", "word-1", testNow)

	success := Apply(entry, true, testNow)
	require.Equal(t, 1, success.Reps)

	miss := Apply(entry, false, testNow)
	require.Equal(t, 1, miss.Lapses)
}

func TestAttemptQuality(t *testing.T) {
	tests := []struct {
		name     string
		correct  bool
		firstTry bool
		usedHint bool
		want     int
	}{
		{"wrong answer", false, true, false, 1},
		{"clean first try", true, true, false, 5},
		{"first try with hint", true, true, true, 3},
		{"correct after retry", true, false, false, 2},
		{"correct after retry with hint", true, false, true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AttemptQuality(tt.correct, tt.firstTry, tt.usedHint))
		})
	}
}

func TestDueOnComparesCalendarDays(t *testing.T) {
	evening := time.Date(2024, 3, 9, 18, 0, 0, 0, time.UTC)
	entry := OnSuccess(NewEntry("learner-1", "word-1", evening), evening)
	require.Equal(t, time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC), entry.DueDate)

	// Due the next morning, hours before the scheduled timestamp.
	assert.True(t, DueOn(entry, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)))
	// Not due late the same evening it was scheduled.
	assert.False(t, DueOn(entry, time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)))
	// Overdue words stay due.
	assert.True(t, DueOn(entry, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)))
}

func TestIsMastered(t *testing.T) {
	assert.True(t, IsMastered(models.DifficultyEntry{Reps: 5, IntervalDays: 30}))
	assert.False(t, IsMastered(models.DifficultyEntry{Reps: 4, IntervalDays: 60}))
	assert.False(t, IsMastered(models.DifficultyEntry{Reps: 8, IntervalDays: 10}))
}
