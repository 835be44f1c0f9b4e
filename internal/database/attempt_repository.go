package database

import (
	"fmt"
	"time"

	"github.com/currentsmms-kd/spelling-stars-sub000/pkg/models"
)

// EnqueueAttempt appends a practice attempt to the queue. The record enters
// pending state; uniqueness of effect comes from the client key at sync
// time, not from any de-duplication here.
func (q *Queue) EnqueueAttempt(attempt *models.QueuedAttempt) error {
	if attempt.ClientKey == "" {
		return fmt.Errorf("attempt is missing a client key")
	}
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = time.Now().UTC()
	}

	res, err := q.db.Exec(`
		INSERT INTO queued_attempts (
			client_key, learner_id, word_id, list_id, mode, correct,
			typed_answer, audio_ref, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		attempt.ClientKey, attempt.LearnerID, attempt.WordID, attempt.ListID,
		attempt.Mode, attempt.Correct, attempt.TypedAnswer, attempt.AudioRef,
		attempt.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue attempt: %w", err)
	}
	attempt.ID, _ = res.LastInsertId()
	return nil
}

// PendingAttempts returns not-yet-synced, not-failed attempts in enqueue
// order (oldest first).
func (q *Queue) PendingAttempts() ([]models.QueuedAttempt, error) {
	var attempts []models.QueuedAttempt
	err := q.db.Select(&attempts,
		"SELECT * FROM queued_attempts WHERE synced = 0 AND failed = 0 ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to load pending attempts: %w", err)
	}
	return attempts, nil
}

// FailedAttempts returns quarantined attempts for the parent-facing
// resolution surface.
func (q *Queue) FailedAttempts() ([]models.QueuedAttempt, error) {
	var attempts []models.QueuedAttempt
	err := q.db.Select(&attempts,
		"SELECT * FROM queued_attempts WHERE failed = 1 ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to load failed attempts: %w", err)
	}
	return attempts, nil
}

// SetAttemptListID fills in the list reference on a pending attempt after
// successful inference, clearing any stale lookup error.
func (q *Queue) SetAttemptListID(id int64, listID string) error {
	_, err := q.db.Exec(
		"UPDATE queued_attempts SET list_id = $1, last_error = NULL WHERE id = $2", listID, id)
	if err != nil {
		return fmt.Errorf("failed to set list on attempt %d: %w", id, err)
	}
	return nil
}

// ReassignFailedAttemptList is the manual-resolution path: a parent picked
// the owning list for a quarantined attempt. The record returns to pending
// with a fresh retry budget.
func (q *Queue) ReassignFailedAttemptList(id int64, listID string) error {
	res, err := q.db.Exec(`
		UPDATE queued_attempts
		SET list_id = $1, failed = 0, retry_count = 0, last_error = NULL
		WHERE id = $2 AND failed = 1
	`, listID, id)
	if err != nil {
		return fmt.Errorf("failed to reassign attempt %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("attempt %d is not in the failed queue", id)
	}
	return nil
}

// MarkAttemptSynced transitions an attempt to synced.
func (q *Queue) MarkAttemptSynced(id int64) error {
	return q.markSynced(tableAttempts, id)
}

// MarkAttemptFailed quarantines an attempt permanently.
func (q *Queue) MarkAttemptFailed(id int64, reason string) error {
	return q.markFailed(tableAttempts, id, reason)
}

// RecordAttemptError notes a transient failure on an attempt.
func (q *Queue) RecordAttemptError(id int64, message string, bumpRetry bool) error {
	return q.recordError(tableAttempts, id, message, bumpRetry)
}
