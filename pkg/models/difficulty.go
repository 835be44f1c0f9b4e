package models

import "time"

// DifficultyEntry tracks a learner's scheduling state for a specific word.
// One row exists per learner/word pair; it is created on the first attempt
// and never deleted afterwards.
type DifficultyEntry struct {
	LearnerID    string    `json:"learner_id" db:"learner_id"`
	WordID       string    `json:"word_id" db:"word_id"`
	Ease         float64   `json:"ease" db:"ease"`                   // Interval growth multiplier, floored at 1.3
	IntervalDays int       `json:"interval_days" db:"interval_days"` // Days until next review; 0 = never scheduled
	DueDate      time.Time `json:"due_date" db:"due_date"`
	Reps         int       `json:"reps" db:"reps"`     // Consecutive successful reviews
	Lapses       int       `json:"lapses" db:"lapses"` // Total failures ever recorded
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
