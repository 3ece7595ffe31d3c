package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/notify"
	"github.com/p-n-ai/pai-progress/internal/platform/cache"
	"github.com/p-n-ai/pai-progress/internal/platform/config"
	"github.com/p-n-ai/pai-progress/internal/platform/database"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/quiz"
	"github.com/p-n-ai/pai-progress/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	loader, err := curriculum.NewLoader(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading curriculum: %w", err)
	}

	var (
		store       progress.Store = progress.NewMemoryStore()
		activityLog notify.Log     = notify.NewMemoryLog()
		checkpoints quiz.CheckpointStore
		checks      []server.HealthCheck
	)

	if cfg.UsesPostgres() {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
		}
		pg, err := progress.NewPostgresStore(db.Pool)
		if err != nil {
			return err
		}
		store = pg
		activityLog = notify.NewPostgresLog(db.Pool)
		checks = append(checks, server.HealthCheck{Name: "database", Check: db.HealthCheck})
		slog.Info("using postgres store")
	}

	if cfg.UsesRedis() {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return err
		}
		defer c.Close()
		checkpoints = quiz.NewRedisCheckpoints(c.Client)
		checks = append(checks, server.HealthCheck{Name: "cache", Check: c.HealthCheck})
		slog.Info("using redis quiz deadlines")
	} else {
		checkpoints = quiz.NewMemoryCheckpoints()
	}

	hub := notify.NewHub(activityLog)
	thresholds := progress.Thresholds{
		Unlock:      cfg.Progress.UnlockThreshold,
		Completion:  cfg.Progress.CompletionThreshold,
		Achievement: cfg.Progress.AchievementThreshold,
	}
	writer := progress.NewWriter(progress.WriterConfig{
		Catalog:    loader.Catalog(),
		Store:      store,
		Activity:   hub,
		Thresholds: &thresholds,
	})
	manager := quiz.NewManager(quiz.ManagerConfig{
		Source:      loader,
		Writer:      writer,
		Checkpoints: checkpoints,
	})

	sweeper := quiz.NewSweeper(manager, time.Duration(cfg.Quiz.SweepInterval)*time.Second)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.New(server.Config{
			Content: loader,
			Writer:  writer,
			Store:   store,
			Quizzes: manager,
			Hub:     hub,
			Checks:  checks,
		}).Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			"addr", srv.Addr,
			"topics", len(loader.Catalog().Topics()),
			"quizzes", len(loader.AllQuizzes()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

// newLogger builds the process logger from LEARN_LOG_LEVEL and
// LEARN_LOG_FORMAT. Unknown values fall back to info and JSON.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
