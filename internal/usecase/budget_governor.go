package usecase

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/riskibarqy/manager-sync/internal/domain/budget"
	"github.com/riskibarqy/manager-sync/internal/platform/logging"
	"github.com/riskibarqy/manager-sync/internal/platform/metrics"
)

type BudgetConfig struct {
	DailyLimit int64
	// Reserve is held back from scheduled work; only WithReserve callers may use it.
	Reserve int64
}

type BudgetStatus struct {
	Day        string `json:"day"`
	Used       int64  `json:"used"`
	DailyLimit int64  `json:"daily_limit"`
	Reserve    int64  `json:"reserve"`
	Remaining  int64  `json:"remaining"`
}

type reserveKey struct{}

// WithReserve marks ctx as allowed to spend the reserved headroom, up to the
// full daily limit. Manual syncs use it.
func WithReserve(ctx context.Context) context.Context {
	return context.WithValue(ctx, reserveKey{}, true)
}

// ReserveAllowed reports whether ctx was marked with WithReserve.
func ReserveAllowed(ctx context.Context) bool {
	v, _ := ctx.Value(reserveKey{}).(bool)
	return v
}

type tallyKey struct{}

// withRequestTally attaches a counter that Consume bumps for every attempted
// call made under ctx.
func withRequestTally(ctx context.Context) (context.Context, *atomic.Int64) {
	tally := &atomic.Int64{}
	return context.WithValue(ctx, tallyKey{}, tally), tally
}

// BudgetGovernor enforces the daily request quota shared by every instance.
type BudgetGovernor struct {
	repo    budget.Repository
	cfg     BudgetConfig
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewBudgetGovernor(repo budget.Repository, cfg BudgetConfig, logger *logging.Logger, m *metrics.Metrics) *BudgetGovernor {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = 1000
	}
	if cfg.Reserve < 0 {
		cfg.Reserve = 0
	}
	if cfg.Reserve > cfg.DailyLimit {
		cfg.Reserve = cfg.DailyLimit
	}

	return &BudgetGovernor{
		repo:    repo,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Consume counts one attempted call against today and reports whether it may
// proceed. The counter is bumped before the check, so denied attempts are
// counted too. Storage failures fail open.
func (g *BudgetGovernor) Consume(ctx context.Context) bool {
	if tally, ok := ctx.Value(tallyKey{}).(*atomic.Int64); ok {
		tally.Add(1)
	}
	day := budget.DayOf(g.now())

	count, err := g.increment(ctx, day)
	if err != nil {
		g.logger.WarnContext(ctx, "api budget storage unavailable, allowing request", "day", budget.DayKey(day), "error", err)
		g.metrics.IncBudgetDecision(metrics.BudgetFailOpen)
		return true
	}

	if count > g.ceiling(ctx) {
		g.logger.WarnContext(ctx, "api budget exhausted",
			"day", budget.DayKey(day),
			"count", count,
			"daily_limit", g.cfg.DailyLimit,
			"reserve", g.cfg.Reserve,
			"reserve_allowed", ReserveAllowed(ctx),
		)
		g.metrics.IncBudgetDecision(metrics.BudgetDenied)
		return false
	}

	g.metrics.IncBudgetDecision(metrics.BudgetAllowed)
	return true
}

// Remaining is how many calls scheduled work may still make today. A storage
// failure reports the full allowance, matching the fail-open policy.
func (g *BudgetGovernor) Remaining(ctx context.Context) int64 {
	status := g.Status(ctx)
	return status.Remaining
}

func (g *BudgetGovernor) Status(ctx context.Context) BudgetStatus {
	ctx, span := startUsecaseSpan(ctx, "usecase.BudgetGovernor.Status")
	defer span.End()

	day := budget.DayOf(g.now())
	status := BudgetStatus{
		Day:        budget.DayKey(day),
		DailyLimit: g.cfg.DailyLimit,
		Reserve:    g.cfg.Reserve,
	}

	used, err := g.repo.Count(ctx, day)
	if err != nil {
		g.logger.WarnContext(ctx, "read api budget failed", "day", status.Day, "error", err)
		used = 0
	}
	status.Used = used
	status.Remaining = max(g.cfg.DailyLimit-g.cfg.Reserve-used, 0)
	return status
}

func (g *BudgetGovernor) ceiling(ctx context.Context) int64 {
	if ReserveAllowed(ctx) {
		return g.cfg.DailyLimit
	}
	return g.cfg.DailyLimit - g.cfg.Reserve
}

// increment tries the atomic path first and falls back to a read-then-write
// that can lose updates under contention.
func (g *BudgetGovernor) increment(ctx context.Context, day time.Time) (int64, error) {
	count, err := g.repo.Increment(ctx, day)
	if err == nil {
		return count, nil
	}
	g.logger.WarnContext(ctx, "atomic api budget increment failed, using fallback", "day", budget.DayKey(day), "error", err)

	if err := g.repo.EnsureDay(ctx, day); err != nil {
		return 0, err
	}
	current, err := g.repo.Count(ctx, day)
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := g.repo.SetCount(ctx, day, next); err != nil {
		return 0, err
	}
	return next, nil
}
