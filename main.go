package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/currentsmms-kd/spelling-stars-sub000/internal/api"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/config"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/database"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/practice"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/remote"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/scheduler"
	"github.com/currentsmms-kd/spelling-stars-sub000/internal/syncer"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue, err := database.Open(cfg.LocalDBPath)
	if err != nil {
		logger.Error("failed to open local queue", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	store, err := remote.NewPostgresStore(cfg.RemoteDatabaseURL, cfg.RemoteCallTimeout)
	if err != nil {
		logger.Error("failed to open remote store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	selector := scheduler.New(store, scheduler.DefaultConfig())
	engine := syncer.New(queue, store, syncer.DefaultConfig(), logger)
	svc := practice.New(queue, store, selector, engine, nil, logger)

	jobs := syncer.NewJobs(engine, queue, logger)
	if err := jobs.Start(ctx, cfg.SyncInterval); err != nil {
		logger.Error("failed to start background jobs", "error", err)
		os.Exit(1)
	}
	defer jobs.Stop()

	// Drain anything left over from the last offline session.
	go func() {
		if result, err := engine.Sync(ctx); err != nil {
			logger.Warn("startup sync failed", "error", err)
		} else if result.Succeeded > 0 {
			logger.Info("startup sync drained queue", "succeeded", result.Succeeded)
		}
	}()

	server := api.NewServer(svc, logger)

	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", "error", err)
		}
		close(done)
	}()

	logger.Info("spelling-stars core started")
	go func() {
		if err := server.Start(cfg.HTTPAddr); err != nil {
			logger.Error("server error", "error", err)
		}
	}()

	<-done
	logger.Info("stopped")
}
