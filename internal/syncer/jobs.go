package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/currentsmms-kd/spelling-stars-sub000/internal/database"
)

// Jobs runs the engine's background work: a periodic drain pass and a
// nightly prune of confirmed queue records.
type Jobs struct {
	scheduler *gocron.Scheduler
	engine    *Engine
	queue     *database.Queue
	logger    *slog.Logger
}

// NewJobs creates the background job runner.
func NewJobs(engine *Engine, queue *database.Queue, logger *slog.Logger) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{
		scheduler: gocron.NewScheduler(time.UTC),
		engine:    engine,
		queue:     queue,
		logger:    logger,
	}
}

// Start schedules the jobs and runs them in the background.
func (j *Jobs) Start(ctx context.Context, syncInterval time.Duration) error {
	_, err := j.scheduler.Every(syncInterval).Do(func() {
		result, ran, err := j.engine.SyncIfDue(ctx)
		if err != nil {
			j.logger.Error("periodic sync failed", "error", err)
			return
		}
		if ran && result.Succeeded+result.Failed+result.Skipped > 0 {
			j.logger.Info("periodic sync",
				"succeeded", result.Succeeded, "failed", result.Failed, "skipped", result.Skipped)
		}
	})
	if err != nil {
		return err
	}

	_, err = j.scheduler.Every(1).Day().At("03:00").Do(func() {
		pruned, err := j.queue.PruneSynced()
		if err != nil {
			j.logger.Error("queue prune failed", "error", err)
			return
		}
		if pruned > 0 {
			j.logger.Info("pruned synced queue records", "count", pruned)
		}
	})
	if err != nil {
		return err
	}

	j.scheduler.StartAsync()
	return nil
}

// Stop terminates all scheduled jobs.
func (j *Jobs) Stop() {
	j.scheduler.Stop()
}
