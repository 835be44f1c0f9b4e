package database

import (
	"fmt"

	"github.com/currentsmms-kd/spelling-stars-sub000/pkg/models"
)

// EnqueueAudioClip appends a pending recording upload. The clip bytes stay
// on disk; only the path is queued.
func (q *Queue) EnqueueAudioClip(clip *models.QueuedAudioClip) error {
	res, err := q.db.Exec(`
		INSERT INTO queued_audio_clips (attempt_key, learner_id, word_id, local_path)
		VALUES ($1, $2, $3, $4)
	`, clip.AttemptKey, clip.LearnerID, clip.WordID, clip.LocalPath)
	if err != nil {
		return fmt.Errorf("failed to enqueue audio clip: %w", err)
	}
	clip.ID, _ = res.LastInsertId()
	return nil
}

// PendingAudioClips returns unsynced clips in enqueue order.
func (q *Queue) PendingAudioClips() ([]models.QueuedAudioClip, error) {
	var clips []models.QueuedAudioClip
	err := q.db.Select(&clips,
		"SELECT * FROM queued_audio_clips WHERE synced = 0 AND failed = 0 ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to load pending audio clips: %w", err)
	}
	return clips, nil
}

// FailedAudioClips returns quarantined clips.
func (q *Queue) FailedAudioClips() ([]models.QueuedAudioClip, error) {
	var clips []models.QueuedAudioClip
	err := q.db.Select(&clips,
		"SELECT * FROM queued_audio_clips WHERE failed = 1 ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to load failed audio clips: %w", err)
	}
	return clips, nil
}

// MarkAudioClipSynced transitions a clip to synced.
func (q *Queue) MarkAudioClipSynced(id int64) error {
	return q.markSynced(tableAudioClips, id)
}

// MarkAudioClipFailed quarantines a clip permanently.
func (q *Queue) MarkAudioClipFailed(id int64, reason string) error {
	return q.markFailed(tableAudioClips, id, reason)
}

// RecordAudioClipError notes a transient failure on a clip.
func (q *Queue) RecordAudioClipError(id int64, message string, bumpRetry bool) error {
	return q.recordError(tableAudioClips, id, message, bumpRetry)
}
