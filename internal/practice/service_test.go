package practice

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/currentsmms-kd/spelling-stars-sub000/internal/database"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/remote"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/scheduler"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/syncer"
	"github.com/currentsmms-kd/spelling-stars-sub000/pkg/models"
)

var practiceNow = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

// fakeStore is an in-memory remote store tracking writes. The background
// drain pass reaches it from its own goroutine, so access is locked.
type fakeStore struct {
	mu      sync.Mutex
	entries map[string]models.DifficultyEntry
	lists   map[string][]string

	insertCalls int
	upsertCalls int
	awardCalls  int
	uploadCalls int

	failWrites bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries: map[string]models.DifficultyEntry{},
		lists:   map[string][]string{},
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) GetDifficultyEntry(_ context.Context, learnerID, wordID string) (models.DifficultyEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[learnerID+"|"+wordID]
	if !ok {
		return models.DifficultyEntry{}, remote.ErrNotFound
	}
	return entry, nil
}

func (f *fakeStore) UpsertDifficultyEntry(_ context.Context, entry models.DifficultyEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.failWrites {
		return remote.ErrUnavailable
	}
	f.entries[entry.LearnerID+"|"+entry.WordID] = entry
	return nil
}

func (f *fakeStore) EntriesForLearner(context.Context, string, *string) ([]remote.WordState, error) {
	return nil, nil
}

func (f *fakeStore) UnseenWords(context.Context, string, *string) ([]models.Word, error) {
	return nil, nil
}

func (f *fakeStore) ListsForWord(_ context.Context, wordID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists[wordID], nil
}

func (f *fakeStore) InsertAttempt(context.Context, models.QueuedAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.failWrites {
		return remote.ErrUnavailable
	}
	return nil
}

func (f *fakeStore) AwardRewardPoints(_ context.Context, tx models.QueuedRewardTransaction) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awardCalls++
	if f.failWrites {
		return 0, remote.ErrUnavailable
	}
	return tx.Amount, nil
}

func (f *fakeStore) UploadAudio(context.Context, models.QueuedAudioClip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	if f.failWrites {
		return remote.ErrUnavailable
	}
	return nil
}

// staticProbe forces the connectivity decision in tests.
type staticProbe bool

func (p staticProbe) Online(context.Context) bool { return bool(p) }

func testService(t *testing.T, store *fakeStore, online bool) (*Service, *database.Queue) {
	t.Helper()
	queue, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })

	selector := scheduler.New(store, scheduler.DefaultConfig())
	engine := syncer.New(queue, store, syncer.DefaultConfig(), slog.Default())
	svc := New(queue, store, selector, engine, staticProbe(online), slog.Default())
	svc.now = func() time.Time { return practiceNow }

	n := 0
	svc.newKey = func() string {
		n++
		return "key-" + string(rune('0'+n))
	}
	return svc, queue
}

func correctAttempt() AttemptInput {
	return AttemptInput{
		LearnerID: "learner-1",
		WordID:    "word-1",
		Mode:      "spell",
		Correct:   true,
		FirstTry:  true,
	}
}

func TestRecordAttemptOnlineWritesThrough(t *testing.T) {
	store := newFakeStore()
	svc, queue := testService(t, store, true)

	require.NoError(t, svc.RecordAttempt(context.Background(), correctAttempt()))

	assert.Equal(t, 1, store.insertCalls)
	assert.Equal(t, 1, store.upsertCalls)
	assert.Equal(t, 1, store.awardCalls)

	// Nothing queued when the online path succeeds.
	counts, err := queue.PendingCounts()
	require.NoError(t, err)
	assert.Zero(t, counts.Total)

	// First success schedules the word for tomorrow.
	entry := store.entries["learner-1|word-1"]
	assert.Equal(t, 1, entry.IntervalDays)
	assert.Equal(t, 1, entry.Reps)
}

func TestRecordAttemptOfflineQueuesEverything(t *testing.T) {
	store := newFakeStore()
	svc, queue := testService(t, store, false)

	input := correctAttempt()
	input.AudioPath = "/tmp/clip.webm"
	require.NoError(t, svc.RecordAttempt(context.Background(), input))

	assert.Zero(t, store.insertCalls)

	counts, err := queue.PendingCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Attempts)
	assert.Equal(t, 1, counts.DifficultyUpdates)
	assert.Equal(t, 1, counts.RewardTransactions)
	assert.Equal(t, 1, counts.Audio)
	assert.Equal(t, 4, counts.Total)
}

func TestRecordAttemptFallsBackWhenOnlineWriteFails(t *testing.T) {
	store := newFakeStore()
	store.failWrites = true
	svc, queue := testService(t, store, true)

	require.NoError(t, svc.RecordAttempt(context.Background(), correctAttempt()))

	counts, err := queue.PendingCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Attempts)
	assert.Equal(t, 1, counts.DifficultyUpdates)
}

func TestRecordAttemptOnlineDrainsOfflineBacklog(t *testing.T) {
	store := newFakeStore()
	store.lists["word-1"] = []string{"list-1"}
	svc, queue := testService(t, store, false)

	// An offline session leaves a backlog behind.
	require.NoError(t, svc.RecordAttempt(context.Background(), correctAttempt()))
	counts, err := queue.PendingCounts()
	require.NoError(t, err)
	require.Equal(t, 3, counts.Total)

	// Back online: the next successful write-through flushes the backlog
	// without waiting for the periodic timer.
	svc.probe = staticProbe(true)
	input := correctAttempt()
	input.WordID = "word-2"
	require.NoError(t, svc.RecordAttempt(context.Background(), input))

	require.Eventually(t, func() bool {
		counts, err := queue.PendingCounts()
		return err == nil && counts.Total == 0
	}, 2*time.Second, 10*time.Millisecond)

	counts, err = queue.PendingCounts()
	require.NoError(t, err)
	assert.Equal(t, models.FailedCounts{}, counts.Failed)
}

func TestRecordAttemptIncorrectAwardsNoPoints(t *testing.T) {
	store := newFakeStore()
	svc, queue := testService(t, store, false)

	input := correctAttempt()
	input.Correct = false
	require.NoError(t, svc.RecordAttempt(context.Background(), input))

	counts, err := queue.PendingCounts()
	require.NoError(t, err)
	assert.Zero(t, counts.RewardTransactions)
	assert.Equal(t, 1, counts.DifficultyUpdates)
}

func TestRecordAttemptValidation(t *testing.T) {
	store := newFakeStore()
	svc, _ := testService(t, store, false)

	assert.Error(t, svc.RecordAttempt(context.Background(), AttemptInput{WordID: "w"}))
	assert.Error(t, svc.RecordAttempt(context.Background(), AttemptInput{LearnerID: "l"}))
}

func TestPointsFor(t *testing.T) {
	assert.Equal(t, pointsPerfect, pointsFor(AttemptInput{Correct: true, FirstTry: true}))
	assert.Equal(t, pointsCorrect, pointsFor(AttemptInput{Correct: true, FirstTry: true, UsedHint: true}))
	assert.Equal(t, pointsCorrect, pointsFor(AttemptInput{Correct: true}))
	assert.Zero(t, pointsFor(AttemptInput{}))
}

func TestOfflineRoundTripThroughSync(t *testing.T) {
	store := newFakeStore()
	store.lists["word-1"] = []string{"list-1"}
	svc, queue := testService(t, store, false)

	require.NoError(t, svc.RecordAttempt(context.Background(), correctAttempt()))

	result, err := svc.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Succeeded)

	counts, err := queue.PendingCounts()
	require.NoError(t, err)
	assert.Zero(t, counts.Total)

	// The queued difficulty update landed as a real transform.
	entry := store.entries["learner-1|word-1"]
	assert.Equal(t, 1, entry.Reps)
}

func TestListAndReassignFailedItems(t *testing.T) {
	store := newFakeStore() // word-1 in no list: enrichment quarantines
	svc, queue := testService(t, store, false)

	require.NoError(t, svc.RecordAttempt(context.Background(), correctAttempt()))

	_, err := svc.SyncNow(context.Background())
	require.NoError(t, err)

	items, err := svc.ListFailedSyncItems()
	require.NoError(t, err)
	require.Len(t, items.Attempts, 1)

	require.NoError(t, svc.ReassignFailedAttemptList(items.Attempts[0].ID, "list-9"))

	pending, err := queue.PendingAttempts()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].ListID)
	assert.Equal(t, "list-9", *pending[0].ListID)

	assert.Error(t, svc.ReassignFailedAttemptList(42, ""))
}
