package models

import "time"

// SyncStatus is the lifecycle state of a queued record, derived from its
// synced/failed flags so the two can never be read inconsistently.
type SyncStatus string

const (
	// StatusPending means the record has not been applied remotely yet.
	StatusPending SyncStatus = "pending"
	// StatusSynced means the record was applied remotely and may be pruned.
	StatusSynced SyncStatus = "synced"
	// StatusFailed means the record is quarantined for manual resolution.
	StatusFailed SyncStatus = "failed"
)

func deriveStatus(synced, failed bool) SyncStatus {
	switch {
	case failed:
		return StatusFailed
	case synced:
		return StatusSynced
	default:
		return StatusPending
	}
}

// QueuedAttempt is a practice attempt recorded while offline, waiting to be
// pushed to the remote store. ClientKey is the idempotency key the remote
// insert is deduplicated on.
type QueuedAttempt struct {
	ID          int64     `json:"id" db:"id"`
	ClientKey   string    `json:"client_key" db:"client_key"`
	LearnerID   string    `json:"learner_id" db:"learner_id"`
	WordID      string    `json:"word_id" db:"word_id"`
	ListID      *string   `json:"list_id" db:"list_id"` // Nil until inferred; required before sync
	Mode        string    `json:"mode" db:"mode"`
	Correct     bool      `json:"correct" db:"correct"`
	TypedAnswer *string   `json:"typed_answer" db:"typed_answer"`
	AudioRef    *string   `json:"audio_ref" db:"audio_ref"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	Synced      bool      `json:"synced" db:"synced"`
	RetryCount  int       `json:"retry_count" db:"retry_count"`
	LastError   *string   `json:"last_error" db:"last_error"`
	Failed      bool      `json:"failed" db:"failed"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Status returns the derived lifecycle state of the attempt.
func (a *QueuedAttempt) Status() SyncStatus { return deriveStatus(a.Synced, a.Failed) }

// QueuedDifficultyUpdate is a pending difficulty transform: the outcome of
// an attempt that has not been folded into the remote difficulty state yet.
type QueuedDifficultyUpdate struct {
	ID              int64     `json:"id" db:"id"`
	LearnerID       string    `json:"learner_id" db:"learner_id"`
	WordID          string    `json:"word_id" db:"word_id"`
	CorrectFirstTry bool      `json:"correct_first_try" db:"correct_first_try"`
	Synced          bool      `json:"synced" db:"synced"`
	RetryCount      int       `json:"retry_count" db:"retry_count"`
	LastError       *string   `json:"last_error" db:"last_error"`
	Failed          bool      `json:"failed" db:"failed"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Status returns the derived lifecycle state of the update.
func (u *QueuedDifficultyUpdate) Status() SyncStatus { return deriveStatus(u.Synced, u.Failed) }

// QueuedRewardTransaction is a pending star-point award not yet applied to
// the remote balance. ClientKey makes a retried award a duplicate no-op
// instead of a double credit.
type QueuedRewardTransaction struct {
	ID         int64     `json:"id" db:"id"`
	ClientKey  string    `json:"client_key" db:"client_key"`
	UserID     string    `json:"user_id" db:"user_id"`
	Amount     int       `json:"amount" db:"amount"`
	Reason     string    `json:"reason" db:"reason"`
	Synced     bool      `json:"synced" db:"synced"`
	RetryCount int       `json:"retry_count" db:"retry_count"`
	LastError  *string   `json:"last_error" db:"last_error"`
	Failed     bool      `json:"failed" db:"failed"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Status returns the derived lifecycle state of the transaction.
func (t *QueuedRewardTransaction) Status() SyncStatus { return deriveStatus(t.Synced, t.Failed) }

// QueuedAudioClip is a recorded pronunciation waiting for upload. The clip
// bytes stay on disk at LocalPath; only the reference is queued.
type QueuedAudioClip struct {
	ID         int64     `json:"id" db:"id"`
	AttemptKey string    `json:"attempt_key" db:"attempt_key"` // ClientKey of the owning attempt
	LearnerID  string    `json:"learner_id" db:"learner_id"`
	WordID     string    `json:"word_id" db:"word_id"`
	LocalPath  string    `json:"local_path" db:"local_path"`
	Synced     bool      `json:"synced" db:"synced"`
	RetryCount int       `json:"retry_count" db:"retry_count"`
	LastError  *string   `json:"last_error" db:"last_error"`
	Failed     bool      `json:"failed" db:"failed"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Status returns the derived lifecycle state of the clip.
func (c *QueuedAudioClip) Status() SyncStatus { return deriveStatus(c.Synced, c.Failed) }

// FailedCounts breaks down quarantined records per queue category.
type FailedCounts struct {
	Attempts           int `json:"attempts"`
	Audio              int `json:"audio"`
	DifficultyUpdates  int `json:"difficulty_updates"`
	RewardTransactions int `json:"reward_transactions"`
}

// PendingCounts reports not-yet-synced work per category. Total must equal
// the sum of the four category counts, never a collapsed boolean.
type PendingCounts struct {
	Attempts           int          `json:"attempts"`
	Audio              int          `json:"audio"`
	DifficultyUpdates  int          `json:"difficulty_updates"`
	RewardTransactions int          `json:"reward_transactions"`
	Total              int          `json:"total"`
	Failed             FailedCounts `json:"failed"`
}

// SyncResult summarizes one drain pass over the queue.
type SyncResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
