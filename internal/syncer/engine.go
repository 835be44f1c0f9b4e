// Package syncer drains the local durable queue into the remote store. One
// drain pass runs at a time; records move through an explicit
// pending → synced | failed lifecycle driven only by this engine.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/currentsmms-kd/spelling-stars-sub000/internal/database"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/remote"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/srs"
	"github.com/currentsmms-kd/spelling-stars-sub000/pkg/models"
)

// ErrSyncInProgress is returned when a drain pass is requested while one is
// already running.
var ErrSyncInProgress = errors.New("sync already in progress")

// Config holds the retry and backoff policy.
type Config struct {
	// MaxRetries is the per-record retry budget: a record is quarantined
	// once its failure count exceeds it.
	MaxRetries int
	// BackoffBase is the delay after the first failed pass.
	BackoffBase time.Duration
	// BackoffMax caps the delay between passes.
	BackoffMax time.Duration
}

// DefaultConfig returns the shipped retry policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  5,
		BackoffBase: 5 * time.Second,
		BackoffMax:  5 * time.Minute,
	}
}

// Engine drains the queue against the remote store.
type Engine struct {
	queue  *database.Queue
	store  remote.Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	running sync.Mutex // single-flight guard for Sync

	mu                  sync.Mutex // guards backoff state
	consecutiveFailures int
	nextAllowedAt       time.Time
}

// New creates a sync engine over the given queue and remote store.
func New(queue *database.Queue, store remote.Store, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		queue:  queue,
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Sync runs one drain pass over all four queue categories in enqueue order:
// attempts, difficulty updates, reward transactions, audio clips. It is
// single-flight: a concurrent call returns ErrSyncInProgress instead of
// racing on the same records.
func (e *Engine) Sync(ctx context.Context) (models.SyncResult, error) {
	if !e.running.TryLock() {
		return models.SyncResult{}, ErrSyncInProgress
	}
	defer e.running.Unlock()

	var result models.SyncResult

	// Resolve missing list references first so enrichment outcomes are
	// settled before any remote write.
	backfill, err := e.queue.BackfillAttemptLists(ctx, e.store)
	if err != nil {
		return result, err
	}
	result.Failed += backfill.Quarantined
	// Deferred records are not counted here; the write loop skips them and
	// counts each once.
	if backfill.Quarantined > 0 {
		e.logger.Warn("quarantined attempts with unresolvable lists", "count", backfill.Quarantined)
	}

	if err := e.syncAttempts(ctx, &result); err != nil {
		return result, err
	}
	if err := e.syncDifficultyUpdates(ctx, &result); err != nil {
		return result, err
	}
	if err := e.syncRewardTransactions(ctx, &result); err != nil {
		return result, err
	}
	if err := e.syncAudioClips(ctx, &result); err != nil {
		return result, err
	}

	e.noteOutcome(result)
	e.logger.Info("sync pass complete",
		"succeeded", result.Succeeded, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}

// SyncIfDue runs a pass unless the backoff window from previous failures is
// still open. Returns ran=false when the pass was withheld.
func (e *Engine) SyncIfDue(ctx context.Context) (models.SyncResult, bool, error) {
	e.mu.Lock()
	wait := e.nextAllowedAt.Sub(e.now())
	e.mu.Unlock()
	if wait > 0 {
		e.logger.Debug("sync withheld by backoff", "retry_in", wait)
		return models.SyncResult{}, false, nil
	}
	result, err := e.Sync(ctx)
	if errors.Is(err, ErrSyncInProgress) {
		return models.SyncResult{}, false, nil
	}
	return result, true, err
}

// noteOutcome updates the pass-level backoff state: delay doubles with each
// consecutive pass that left failures behind, and resets on a clean one.
func (e *Engine) noteOutcome(result models.SyncResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if result.Failed == 0 {
		e.consecutiveFailures = 0
		e.nextAllowedAt = time.Time{}
		return
	}
	e.consecutiveFailures++
	delay := e.cfg.BackoffBase << (e.consecutiveFailures - 1)
	if delay > e.cfg.BackoffMax || delay <= 0 {
		delay = e.cfg.BackoffMax
	}
	e.nextAllowedAt = e.now().Add(delay)
}

// transientFailure applies the shared retry bookkeeping: bump the counter,
// quarantine once the budget is spent.
func (e *Engine) transientFailure(
	result *models.SyncResult,
	retryCount int,
	cause error,
	bump func(message string) error,
	quarantine func(message string) error,
) error {
	result.Failed++
	if retryCount+1 > e.cfg.MaxRetries {
		return quarantine(fmt.Sprintf("retries exhausted after %d attempts: %v", retryCount+1, cause))
	}
	return bump(cause.Error())
}

func (e *Engine) syncAttempts(ctx context.Context, result *models.SyncResult) error {
	attempts, err := e.queue.PendingAttempts()
	if err != nil {
		return err
	}
	for i := range attempts {
		attempt := attempts[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		// Enrichment was deferred for this record; don't write it with a
		// missing reference.
		if attempt.ListID == nil || *attempt.ListID == "" {
			result.Skipped++
			continue
		}

		if err := e.store.InsertAttempt(ctx, attempt); err != nil {
			if ferr := e.transientFailure(result, attempt.RetryCount, err,
				func(msg string) error { return e.queue.RecordAttemptError(attempt.ID, msg, true) },
				func(msg string) error { return e.queue.MarkAttemptFailed(attempt.ID, msg) },
			); ferr != nil {
				return ferr
			}
			continue
		}
		if err := e.queue.MarkAttemptSynced(attempt.ID); err != nil {
			return err
		}
		result.Succeeded++
	}
	return nil
}

func (e *Engine) syncDifficultyUpdates(ctx context.Context, result *models.SyncResult) error {
	updates, err := e.queue.PendingDifficultyUpdates()
	if err != nil {
		return err
	}
	for i := range updates {
		update := updates[i]
		if err := ctx.Err(); err != nil {
			return err
		}

		entry, err := e.store.GetDifficultyEntry(ctx, update.LearnerID, update.WordID)
		if errors.Is(err, remote.ErrNotFound) {
			entry = srs.NewEntry(update.LearnerID, update.WordID, e.now())
		} else if err != nil {
			if ferr := e.transientFailure(result, update.RetryCount, err,
				func(msg string) error { return e.queue.RecordDifficultyUpdateError(update.ID, msg, true) },
				func(msg string) error { return e.queue.MarkDifficultyUpdateFailed(update.ID, msg) },
			); ferr != nil {
				return ferr
			}
			continue
		}

		next := srs.Apply(entry, update.CorrectFirstTry, e.now())
		if err := e.store.UpsertDifficultyEntry(ctx, next); err != nil {
			if ferr := e.transientFailure(result, update.RetryCount, err,
				func(msg string) error { return e.queue.RecordDifficultyUpdateError(update.ID, msg, true) },
				func(msg string) error { return e.queue.MarkDifficultyUpdateFailed(update.ID, msg) },
			); ferr != nil {
				return ferr
			}
			continue
		}
		if err := e.queue.MarkDifficultyUpdateSynced(update.ID); err != nil {
			return err
		}
		result.Succeeded++
	}
	return nil
}

func (e *Engine) syncRewardTransactions(ctx context.Context, result *models.SyncResult) error {
	txs, err := e.queue.PendingRewardTransactions()
	if err != nil {
		return err
	}
	for i := range txs {
		tx := txs[i]
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := e.store.AwardRewardPoints(ctx, tx); err != nil {
			if ferr := e.transientFailure(result, tx.RetryCount, err,
				func(msg string) error { return e.queue.RecordRewardTransactionError(tx.ID, msg, true) },
				func(msg string) error { return e.queue.MarkRewardTransactionFailed(tx.ID, msg) },
			); ferr != nil {
				return ferr
			}
			continue
		}
		if err := e.queue.MarkRewardTransactionSynced(tx.ID); err != nil {
			return err
		}
		result.Succeeded++
	}
	return nil
}

func (e *Engine) syncAudioClips(ctx context.Context, result *models.SyncResult) error {
	clips, err := e.queue.PendingAudioClips()
	if err != nil {
		return err
	}
	for i := range clips {
		clip := clips[i]
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.store.UploadAudio(ctx, clip); err != nil {
			// A clip whose local file is gone can never upload; only
			// connectivity problems earn a retry.
			if !errors.Is(err, remote.ErrUnavailable) {
				result.Failed++
				if ferr := e.queue.MarkAudioClipFailed(clip.ID, err.Error()); ferr != nil {
					return ferr
				}
				continue
			}
			if ferr := e.transientFailure(result, clip.RetryCount, err,
				func(msg string) error { return e.queue.RecordAudioClipError(clip.ID, msg, true) },
				func(msg string) error { return e.queue.MarkAudioClipFailed(clip.ID, msg) },
			); ferr != nil {
				return ferr
			}
			continue
		}
		if err := e.queue.MarkAudioClipSynced(clip.ID); err != nil {
			return err
		}
		result.Succeeded++
	}
	return nil
}
