package database

import (
	"fmt"

	"github.com/currentsmms-kd/spelling-stars-sub000/pkg/models"
)

// EnqueueDifficultyUpdate appends a pending difficulty transform.
func (q *Queue) EnqueueDifficultyUpdate(update *models.QueuedDifficultyUpdate) error {
	res, err := q.db.Exec(`
		INSERT INTO queued_difficulty_updates (learner_id, word_id, correct_first_try)
		VALUES ($1, $2, $3)
	`, update.LearnerID, update.WordID, update.CorrectFirstTry)
	if err != nil {
		return fmt.Errorf("failed to enqueue difficulty update: %w", err)
	}
	update.ID, _ = res.LastInsertId()
	return nil
}

// PendingDifficultyUpdates returns unsynced updates in enqueue order.
func (q *Queue) PendingDifficultyUpdates() ([]models.QueuedDifficultyUpdate, error) {
	var updates []models.QueuedDifficultyUpdate
	err := q.db.Select(&updates,
		"SELECT * FROM queued_difficulty_updates WHERE synced = 0 AND failed = 0 ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to load pending difficulty updates: %w", err)
	}
	return updates, nil
}

// FailedDifficultyUpdates returns quarantined updates.
func (q *Queue) FailedDifficultyUpdates() ([]models.QueuedDifficultyUpdate, error) {
	var updates []models.QueuedDifficultyUpdate
	err := q.db.Select(&updates,
		"SELECT * FROM queued_difficulty_updates WHERE failed = 1 ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to load failed difficulty updates: %w", err)
	}
	return updates, nil
}

// MarkDifficultyUpdateSynced transitions an update to synced.
func (q *Queue) MarkDifficultyUpdateSynced(id int64) error {
	return q.markSynced(tableDifficultyUpdates, id)
}

// MarkDifficultyUpdateFailed quarantines an update permanently.
func (q *Queue) MarkDifficultyUpdateFailed(id int64, reason string) error {
	return q.markFailed(tableDifficultyUpdates, id, reason)
}

// RecordDifficultyUpdateError notes a transient failure on an update.
func (q *Queue) RecordDifficultyUpdateError(id int64, message string, bumpRetry bool) error {
	return q.recordError(tableDifficultyUpdates, id, message, bumpRetry)
}
