// Package practice is the surface the game layer talks to: it records
// attempts (routing between direct remote writes and the offline queue),
// serves practice batches, and exposes the sync-status and manual
// resolution paths for the parent UI.
package practice

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/currentsmms-kd/spelling-stars-sub000/internal/database"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/remote"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/scheduler"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/srs"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/syncer"
	"github.com/currentsmms-kd/spelling-stars-sub000/pkg/models"
)

// Star points per attempt outcome.
const (
	pointsPerfect = 2 // clean first try
	pointsCorrect = 1 // correct with help or retries
)

// ConnectivityProbe reports whether the remote store is reachable right
// now. The default probe pings the store with its own short deadline.
type ConnectivityProbe interface {
	Online(ctx context.Context) bool
}

type pingProbe struct {
	store remote.Store
}

func (p pingProbe) Online(ctx context.Context) bool {
	return p.store.Ping(ctx) == nil
}

// AttemptInput is one practice attempt as reported by a game screen.
type AttemptInput struct {
	LearnerID   string
	WordID      string
	ListID      *string
	Mode        string
	Correct     bool
	FirstTry    bool
	UsedHint    bool
	TypedAnswer *string
	AudioPath   string // local recording, empty if none
	StartedAt   time.Time
}

// FailedItems is everything currently quarantined, for the parent-facing
// resolution screen.
type FailedItems struct {
	Attempts           []models.QueuedAttempt           `json:"attempts"`
	DifficultyUpdates  []models.QueuedDifficultyUpdate  `json:"difficulty_updates"`
	RewardTransactions []models.QueuedRewardTransaction `json:"reward_transactions"`
	AudioClips         []models.QueuedAudioClip         `json:"audio_clips"`
}

// Service wires the queue, remote store, selector, and sync engine behind
// one API for the game and parent screens.
type Service struct {
	queue    *database.Queue
	store    remote.Store
	selector *scheduler.Selector
	engine   *syncer.Engine
	probe    ConnectivityProbe
	logger   *slog.Logger
	now      func() time.Time
	newKey   func() string
}

// New creates the practice service. Pass a nil probe to ping the remote
// store for connectivity.
func New(queue *database.Queue, store remote.Store, selector *scheduler.Selector, engine *syncer.Engine, probe ConnectivityProbe, logger *slog.Logger) *Service {
	if probe == nil {
		probe = pingProbe{store: store}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		queue:    queue,
		store:    store,
		selector: selector,
		engine:   engine,
		probe:    probe,
		logger:   logger,
		now:      time.Now,
		newKey:   uuid.NewString,
	}
}

// RecordAttempt persists one practice attempt. Online, the attempt, the
// difficulty transform, and the point award go straight to the remote
// store; offline (or when the online write fails partway), everything is
// enqueued durably instead. The same client keys cover both paths, so a
// replayed attempt or point award after a half-completed online write
// dedupes at the remote store.
func (s *Service) RecordAttempt(ctx context.Context, input AttemptInput) error {
	if input.LearnerID == "" || input.WordID == "" {
		return errors.New("attempt needs a learner and a word")
	}
	if input.StartedAt.IsZero() {
		input.StartedAt = s.now()
	}

	clientKey := s.newKey()
	attempt := models.QueuedAttempt{
		ClientKey:   clientKey,
		LearnerID:   input.LearnerID,
		WordID:      input.WordID,
		ListID:      input.ListID,
		Mode:        input.Mode,
		Correct:     input.Correct,
		TypedAnswer: input.TypedAnswer,
		StartedAt:   input.StartedAt,
	}
	if input.AudioPath != "" {
		ref := input.AudioPath
		attempt.AudioRef = &ref
	}

	if s.probe.Online(ctx) {
		err := s.recordOnline(ctx, attempt, input)
		if err == nil {
			// A successful write-through means the device is back online;
			// flush whatever an earlier offline stretch left behind.
			s.drainQueued()
			return nil
		}
		s.logger.Warn("online write failed, queueing attempt",
			"learner", input.LearnerID, "word", input.WordID, "error", err)
	}
	return s.recordOffline(attempt, input)
}

func (s *Service) recordOnline(ctx context.Context, attempt models.QueuedAttempt, input AttemptInput) error {
	if err := s.store.InsertAttempt(ctx, attempt); err != nil {
		return err
	}

	entry, err := s.store.GetDifficultyEntry(ctx, input.LearnerID, input.WordID)
	if errors.Is(err, remote.ErrNotFound) {
		entry = srs.NewEntry(input.LearnerID, input.WordID, s.now())
	} else if err != nil {
		return err
	}
	next := srs.Apply(entry, input.Correct && input.FirstTry, s.now())
	if err := s.store.UpsertDifficultyEntry(ctx, next); err != nil {
		return err
	}

	if points := pointsFor(input); points > 0 {
		award := models.QueuedRewardTransaction{
			ClientKey: attempt.ClientKey + "-reward",
			UserID:    input.LearnerID,
			Amount:    points,
			Reason:    "correct spelling",
		}
		if _, err := s.store.AwardRewardPoints(ctx, award); err != nil {
			return err
		}
	}

	if input.AudioPath != "" {
		clip := models.QueuedAudioClip{
			AttemptKey: attempt.ClientKey,
			LearnerID:  input.LearnerID,
			WordID:     input.WordID,
			LocalPath:  input.AudioPath,
		}
		if err := s.store.UploadAudio(ctx, clip); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordOffline(attempt models.QueuedAttempt, input AttemptInput) error {
	if err := s.queue.EnqueueAttempt(&attempt); err != nil {
		return err
	}
	if err := s.queue.EnqueueDifficultyUpdate(&models.QueuedDifficultyUpdate{
		LearnerID:       input.LearnerID,
		WordID:          input.WordID,
		CorrectFirstTry: input.Correct && input.FirstTry,
	}); err != nil {
		return err
	}
	if points := pointsFor(input); points > 0 {
		if err := s.queue.EnqueueRewardTransaction(&models.QueuedRewardTransaction{
			ClientKey: attempt.ClientKey + "-reward",
			UserID:    input.LearnerID,
			Amount:    points,
			Reason:    "correct spelling",
		}); err != nil {
			return err
		}
	}
	if input.AudioPath != "" {
		if err := s.queue.EnqueueAudioClip(&models.QueuedAudioClip{
			AttemptKey: attempt.ClientKey,
			LearnerID:  input.LearnerID,
			WordID:     input.WordID,
			LocalPath:  input.AudioPath,
		}); err != nil {
			return err
		}
	}
	return nil
}

// drainQueued fires one background drain pass when queued records are
// waiting, so an online transition flushes the backlog immediately instead
// of on the next timer tick. The engine's single-flight guard absorbs
// overlapping triggers.
func (s *Service) drainQueued() {
	counts, err := s.queue.PendingCounts()
	if err != nil || counts.Total == 0 {
		return
	}
	go func() {
		if _, err := s.engine.Sync(context.Background()); err != nil && !errors.Is(err, syncer.ErrSyncInProgress) {
			s.logger.Warn("queued backlog drain failed", "error", err)
		}
	}()
}

func pointsFor(input AttemptInput) int {
	switch srs.AttemptQuality(input.Correct, input.FirstTry, input.UsedHint) {
	case 5:
		return pointsPerfect
	case 2, 3:
		return pointsCorrect
	default:
		return 0
	}
}

// NextBatch returns the learner's next practice batch.
func (s *Service) NextBatch(ctx context.Context, learnerID string, listID *string, limit int, strict bool) ([]models.ScheduledWord, error) {
	return s.selector.NextBatch(ctx, learnerID, listID, limit, strict)
}

// HardestWords returns the learner's lowest-ease words.
func (s *Service) HardestWords(ctx context.Context, learnerID string, limit int) ([]remote.WordState, error) {
	return s.selector.HardestWords(ctx, learnerID, limit)
}

// MostLapsedWords returns the learner's most-missed words.
func (s *Service) MostLapsedWords(ctx context.Context, learnerID string, limit int) ([]remote.WordState, error) {
	return s.selector.MostLapsedWords(ctx, learnerID, limit)
}

// PendingSyncCounts reports the true per-category pending and failed
// counts for the sync indicator.
func (s *Service) PendingSyncCounts() (models.PendingCounts, error) {
	return s.queue.PendingCounts()
}

// SyncNow triggers an immediate drain pass, typically on an online
// transition.
func (s *Service) SyncNow(ctx context.Context) (models.SyncResult, error) {
	return s.engine.Sync(ctx)
}

// ListFailedSyncItems returns everything awaiting manual resolution.
func (s *Service) ListFailedSyncItems() (FailedItems, error) {
	var items FailedItems
	var err error
	if items.Attempts, err = s.queue.FailedAttempts(); err != nil {
		return items, err
	}
	if items.DifficultyUpdates, err = s.queue.FailedDifficultyUpdates(); err != nil {
		return items, err
	}
	if items.RewardTransactions, err = s.queue.FailedRewardTransactions(); err != nil {
		return items, err
	}
	if items.AudioClips, err = s.queue.FailedAudioClips(); err != nil {
		return items, err
	}
	return items, nil
}

// ReassignFailedAttemptList resolves a quarantined attempt to the list a
// parent picked; the record returns to the pending queue for the next
// sync pass.
func (s *Service) ReassignFailedAttemptList(attemptID int64, listID string) error {
	if listID == "" {
		return errors.New("a list id is required")
	}
	return s.queue.ReassignFailedAttemptList(attemptID, listID)
}
