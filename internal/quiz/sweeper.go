package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

const sweepTimeout = 30 * time.Second

// Sweeper periodically force-submits sessions whose countdown reached zero,
// so a student who closes the tab still gets a recorded attempt.
type Sweeper struct {
	manager   *Manager
	interval  time.Duration
	scheduler *gocron.Scheduler
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(manager *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{
		manager:   manager,
		interval:  interval,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules the sweep and returns immediately.
func (s *Sweeper) Start() error {
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.Sweep)
	if err != nil {
		return fmt.Errorf("scheduling quiz sweeper: %w", err)
	}
	s.scheduler.StartAsync()
	slog.Info("quiz sweeper started", "interval", s.interval)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

// Sweep runs one expiry pass.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if n := s.manager.ExpireDue(ctx); n > 0 {
		slog.Info("expired quiz sessions", "count", n)
	}
}
