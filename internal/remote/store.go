// Package remote defines the interface to the cloud difficulty store and
// its Postgres implementation. Everything the core knows about the backend
// goes through the Store interface so tests can substitute a fake.
package remote

import (
	"context"

	"github.com/pkg/errors"

	"github.com/currentsmms-kd/spelling-stars-sub000/pkg/models"
)

var (
	// ErrUnavailable means the remote store could not be reached. Callers
	// treat it as transient and retry with backoff.
	ErrUnavailable = errors.New("remote store unavailable")
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")
)

// WordState pairs a word with the learner's difficulty state for it. The
// scheduler consumes these to compose practice batches.
type WordState struct {
	Word  models.Word
	Entry models.DifficultyEntry
}

// Store is the remote difficulty store. All write operations are idempotent:
// difficulty upserts key on learner+word, attempt inserts key on the
// client-supplied idempotency key, reward awards key on the transaction row.
type Store interface {
	// Ping checks connectivity with a short deadline.
	Ping(ctx context.Context) error

	// GetDifficultyEntry returns the learner's state for one word, or
	// ErrNotFound if the learner has never attempted it.
	GetDifficultyEntry(ctx context.Context, learnerID, wordID string) (models.DifficultyEntry, error)

	// UpsertDifficultyEntry writes the entry, replacing any prior state for
	// the same learner+word pair.
	UpsertDifficultyEntry(ctx context.Context, entry models.DifficultyEntry) error

	// EntriesForLearner returns all word states for a learner, optionally
	// scoped to one list.
	EntriesForLearner(ctx context.Context, learnerID string, listID *string) ([]WordState, error)

	// UnseenWords returns words in scope the learner has never attempted,
	// in list order.
	UnseenWords(ctx context.Context, learnerID string, listID *string) ([]models.Word, error)

	// ListsForWord returns the ids of every list containing the word. Used
	// to backfill attempts queued without a list reference.
	ListsForWord(ctx context.Context, wordID string) ([]string, error)

	// InsertAttempt records a practice attempt. Re-submitting the same
	// ClientKey is a no-op rather than a duplicate.
	InsertAttempt(ctx context.Context, attempt models.QueuedAttempt) error

	// AwardRewardPoints applies a point transaction and returns the new
	// balance. Re-submitting the same ClientKey does not credit twice.
	AwardRewardPoints(ctx context.Context, tx models.QueuedRewardTransaction) (int, error)

	// UploadAudio pushes a recorded clip referenced by the queue.
	UploadAudio(ctx context.Context, clip models.QueuedAudioClip) error
}
