package models

import "time"

// BatchType labels why a word was selected into a practice batch.
type BatchType string

const (
	// BatchDue - the word's due date has passed.
	BatchDue BatchType = "due"
	// BatchLeech - chronically missed word pulled in ahead of schedule.
	BatchLeech BatchType = "leech"
	// BatchReview - due soon, pulled forward to smooth the due-date cliff.
	BatchReview BatchType = "review"
	// BatchNew - never attempted by this learner.
	BatchNew BatchType = "new"
)

// ScheduledWord is one entry of a practice batch handed to the game layer.
type ScheduledWord struct {
	WordID    string     `json:"word_id"`
	ListID    string     `json:"list_id"`
	Text      string     `json:"text"`
	BatchType BatchType  `json:"batch_type"`
	DueDate   *time.Time `json:"due_date,omitempty"` // Nil for new words
	Ease      float64    `json:"ease"`
	Lapses    int        `json:"lapses"`
}
