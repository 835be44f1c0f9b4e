package syncer

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/currentsmms-kd/spelling-stars-sub000/internal/database"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/remote"
	"github.com/currentsmms-kd/spelling-stars-sub000/pkg/models"
)

var syncNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeRemote is an in-memory remote store with call counters, used to
// assert idempotence and failure routing.
type fakeRemote struct {
	entries map[string]models.DifficultyEntry // key learner|word
	lists   map[string][]string
	listErr error

	insertCalls int
	upsertCalls int
	awardCalls  int
	uploadCalls int

	insertErr error
	upsertErr error
	getErr    error
	awardErr  error
	uploadErr error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		entries: map[string]models.DifficultyEntry{},
		lists:   map[string][]string{},
	}
}

func key(learnerID, wordID string) string { return learnerID + "|" + wordID }

func (f *fakeRemote) Ping(context.Context) error { return nil }

func (f *fakeRemote) GetDifficultyEntry(_ context.Context, learnerID, wordID string) (models.DifficultyEntry, error) {
	if f.getErr != nil {
		return models.DifficultyEntry{}, f.getErr
	}
	entry, ok := f.entries[key(learnerID, wordID)]
	if !ok {
		return models.DifficultyEntry{}, remote.ErrNotFound
	}
	return entry, nil
}

func (f *fakeRemote) UpsertDifficultyEntry(_ context.Context, entry models.DifficultyEntry) error {
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.entries[key(entry.LearnerID, entry.WordID)] = entry
	return nil
}

func (f *fakeRemote) EntriesForLearner(context.Context, string, *string) ([]remote.WordState, error) {
	return nil, nil
}

func (f *fakeRemote) UnseenWords(context.Context, string, *string) ([]models.Word, error) {
	return nil, nil
}

func (f *fakeRemote) ListsForWord(_ context.Context, wordID string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.lists[wordID], nil
}

func (f *fakeRemote) InsertAttempt(context.Context, models.QueuedAttempt) error {
	f.insertCalls++
	return f.insertErr
}

func (f *fakeRemote) AwardRewardPoints(_ context.Context, tx models.QueuedRewardTransaction) (int, error) {
	f.awardCalls++
	if f.awardErr != nil {
		return 0, f.awardErr
	}
	return tx.Amount, nil
}

func (f *fakeRemote) UploadAudio(context.Context, models.QueuedAudioClip) error {
	f.uploadCalls++
	return f.uploadErr
}

func testEngine(t *testing.T, store remote.Store) (*Engine, *database.Queue) {
	t.Helper()
	queue, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })

	engine := New(queue, store, DefaultConfig(), slog.Default())
	engine.now = func() time.Time { return syncNow }
	return engine, queue
}

func listRef(s string) *string { return &s }

func enqueueAttempt(t *testing.T, queue *database.Queue, clientKey, wordID string, list *string) *models.QueuedAttempt {
	t.Helper()
	attempt := &models.QueuedAttempt{
		ClientKey: clientKey,
		LearnerID: "learner-1",
		WordID:    wordID,
		ListID:    list,
		Mode:      "spell",
		Correct:   true,
		StartedAt: syncNow,
	}
	require.NoError(t, queue.EnqueueAttempt(attempt))
	return attempt
}

func TestSyncDrainsAllCategories(t *testing.T) {
	store := newFakeRemote()
	engine, queue := testEngine(t, store)

	enqueueAttempt(t, queue, "key-1", "word-1", listRef("list-1"))
	require.NoError(t, queue.EnqueueDifficultyUpdate(&models.QueuedDifficultyUpdate{
		LearnerID: "learner-1", WordID: "word-1", CorrectFirstTry: true,
	}))
	require.NoError(t, queue.EnqueueRewardTransaction(&models.QueuedRewardTransaction{
		ClientKey: "reward-1", UserID: "learner-1", Amount: 10, Reason: "session complete",
	}))

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.SyncResult{Succeeded: 3}, result)

	counts, err := queue.PendingCounts()
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
	assert.Equal(t, models.FailedCounts{}, counts.Failed)
}

func TestSyncSecondPassIsNoOp(t *testing.T) {
	store := newFakeRemote()
	engine, queue := testEngine(t, store)

	enqueueAttempt(t, queue, "key-1", "word-1", listRef("list-1"))
	require.NoError(t, queue.EnqueueRewardTransaction(&models.QueuedRewardTransaction{
		ClientKey: "reward-1", UserID: "learner-1", Amount: 5, Reason: "streak",
	}))

	_, err := engine.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, store.insertCalls)
	require.Equal(t, 1, store.awardCalls)

	// No new enqueues: the second pass must issue zero remote writes.
	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{}, result)
	assert.Equal(t, 1, store.insertCalls)
	assert.Equal(t, 1, store.awardCalls)
}

func TestSyncAppliesDifficultyTransform(t *testing.T) {
	store := newFakeRemote()
	store.entries[key("learner-1", "word-1")] = models.DifficultyEntry{
		LearnerID: "learner-1", WordID: "word-1",
		Ease: 2.6, IntervalDays: 1, Reps: 1,
	}
	engine, queue := testEngine(t, store)

	require.NoError(t, queue.EnqueueDifficultyUpdate(&models.QueuedDifficultyUpdate{
		LearnerID: "learner-1", WordID: "word-1", CorrectFirstTry: true,
	}))

	_, err := engine.Sync(context.Background())
	require.NoError(t, err)

	entry := store.entries[key("learner-1", "word-1")]
	assert.InDelta(t, 2.7, entry.Ease, 1e-9)
	assert.Equal(t, 3, entry.IntervalDays)
	assert.Equal(t, 2, entry.Reps)
}

func TestSyncDefaultsUnknownEntryBeforeTransform(t *testing.T) {
	store := newFakeRemote()
	engine, queue := testEngine(t, store)

	require.NoError(t, queue.EnqueueDifficultyUpdate(&models.QueuedDifficultyUpdate{
		LearnerID: "learner-1", WordID: "brand-new", CorrectFirstTry: false,
	}))

	_, err := engine.Sync(context.Background())
	require.NoError(t, err)

	entry := store.entries[key("learner-1", "brand-new")]
	// Default ease 2.5 minus the miss penalty.
	assert.InDelta(t, 2.3, entry.Ease, 1e-9)
	assert.Equal(t, 1, entry.IntervalDays)
	assert.Equal(t, 1, entry.Lapses)
}

func TestSyncRetriesThenQuarantines(t *testing.T) {
	store := newFakeRemote()
	store.insertErr = remote.ErrUnavailable
	engine, queue := testEngine(t, store)

	enqueueAttempt(t, queue, "key-1", "word-1", listRef("list-1"))

	for i := 0; i < engine.cfg.MaxRetries; i++ {
		result, err := engine.Sync(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)
	}

	// The budget is spent but not exceeded: the record is still pending.
	pending, err := queue.PendingAttempts()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, engine.cfg.MaxRetries, pending[0].RetryCount)

	// The next failure exceeds the budget and quarantines.
	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	counts, err := queue.PendingCounts()
	require.NoError(t, err)
	assert.Zero(t, counts.Attempts)
	assert.Equal(t, 1, counts.Failed.Attempts)

	failed, err := queue.FailedAttempts()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].LastError)
	assert.Contains(t, *failed[0].LastError, "retries exhausted")

	// Quarantined records are skipped on later passes.
	store.insertErr = nil
	result, err = engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Succeeded)
}

func TestSyncEnrichmentOutcomes(t *testing.T) {
	store := newFakeRemote()
	store.lists["word-one"] = []string{"list-1"}
	store.lists["word-many"] = []string{"list-1", "list-2"}
	engine, queue := testEngine(t, store)

	enqueueAttempt(t, queue, "key-one", "word-one", nil)
	enqueueAttempt(t, queue, "key-zero", "word-zero", nil)
	enqueueAttempt(t, queue, "key-many", "word-many", nil)

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)

	// One attempt enriched and written; two quarantined before any write.
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 1, store.insertCalls)

	failed, err := queue.FailedAttempts()
	require.NoError(t, err)
	assert.Len(t, failed, 2)
}

func TestSyncEnrichmentLookupErrorLeavesPending(t *testing.T) {
	store := newFakeRemote()
	store.listErr = remote.ErrUnavailable
	engine, queue := testEngine(t, store)

	enqueueAttempt(t, queue, "key-1", "word-1", nil)

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)

	// Deferred by backfill and skipped by the write loop, counted once.
	assert.Zero(t, result.Succeeded)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, store.insertCalls)

	pending, err := queue.PendingAttempts()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 0, pending[0].RetryCount)
	require.NotNil(t, pending[0].LastError)
}

func TestSyncAudioMissingFileQuarantined(t *testing.T) {
	store := newFakeRemote()
	store.uploadErr = assertErr("read audio clip: no such file")
	engine, queue := testEngine(t, store)

	require.NoError(t, queue.EnqueueAudioClip(&models.QueuedAudioClip{
		AttemptKey: "key-1", LearnerID: "learner-1", WordID: "word-1", LocalPath: "/nope",
	}))

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	counts, err := queue.PendingCounts()
	require.NoError(t, err)
	assert.Zero(t, counts.Audio)
	assert.Equal(t, 1, counts.Failed.Audio)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestSyncSingleFlight(t *testing.T) {
	store := newFakeRemote()
	engine, _ := testEngine(t, store)

	engine.running.Lock()
	_, err := engine.Sync(context.Background())
	engine.running.Unlock()
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestSyncIfDueHonorsBackoff(t *testing.T) {
	store := newFakeRemote()
	store.insertErr = remote.ErrUnavailable
	engine, queue := testEngine(t, store)

	enqueueAttempt(t, queue, "key-1", "word-1", listRef("list-1"))

	// First pass fails and opens the backoff window.
	result, ran, err := engine.SyncIfDue(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 1, result.Failed)

	// Within the window nothing runs.
	_, ran, err = engine.SyncIfDue(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, store.insertCalls)

	// Past the window the pass runs again.
	engine.now = func() time.Time { return syncNow.Add(time.Hour) }
	_, ran, err = engine.SyncIfDue(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 2, store.insertCalls)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	store := newFakeRemote()
	engine, _ := testEngine(t, store)

	for i := 0; i < 10; i++ {
		engine.noteOutcome(models.SyncResult{Failed: 1})
	}
	engine.mu.Lock()
	wait := engine.nextAllowedAt.Sub(syncNow)
	engine.mu.Unlock()
	assert.Equal(t, engine.cfg.BackoffMax, wait)

	engine.noteOutcome(models.SyncResult{})
	engine.mu.Lock()
	reset := engine.nextAllowedAt.IsZero()
	engine.mu.Unlock()
	assert.True(t, reset)
}
