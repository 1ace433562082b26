package app

import (
	"context"
	"time"

	"github.com/riskibarqy/manager-sync/internal/domain/synclog"
	"github.com/riskibarqy/manager-sync/internal/platform/logging"
	"github.com/riskibarqy/manager-sync/internal/usecase"
)

type syncAllRunner interface {
	SyncAllActive(ctx context.Context, input usecase.SyncAllInput) (usecase.SyncAllResult, error)
}

// Scheduler runs due game syncs on a fixed tick. Each tick blocks until its
// pass finishes, so passes never overlap.
type Scheduler struct {
	runner   syncAllRunner
	interval time.Duration
	logger   *logging.Logger
}

func NewScheduler(runner syncAllRunner, interval time.Duration, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Run evaluates once immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.InfoContext(ctx, "sync scheduler starting", "interval", s.interval)
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sync scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	result, err := s.runner.SyncAllActive(ctx, usecase.SyncAllInput{
		Trigger: synclog.TriggerScheduled,
		OnlyDue: true,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "scheduled sync pass failed", "error", err)
		return
	}
	if result.Considered == 0 {
		s.logger.DebugContext(ctx, "scheduled sync pass found no due games")
		return
	}
	if result.BudgetExhausted {
		s.logger.WarnContext(ctx, "scheduled sync pass stopped by api budget", "skipped", result.Skipped)
	}
}
