package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/riskibarqy/manager-sync/internal/domain/game"
	"github.com/riskibarqy/manager-sync/internal/platform/logging"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityOverdue  Priority = "overdue"
	PriorityRoutine  Priority = "routine"
	PriorityIdle     Priority = "idle"
)

func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityOverdue:
		return 1
	case PriorityRoutine:
		return 2
	default:
		return 3
	}
}

// ScheduleConfig defines the critical window around a round deadline.
type ScheduleConfig struct {
	// CriticalLead is how long before a deadline the window opens.
	CriticalLead time.Duration
	// CriticalLag is how long after a deadline the window stays open.
	CriticalLag time.Duration
	// CriticalInterval caps the sync interval inside the window.
	CriticalInterval time.Duration
}

func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		CriticalLead:     time.Hour,
		CriticalLag:      30 * time.Minute,
		CriticalInterval: 5 * time.Minute,
	}
}

type ScheduleEntry struct {
	GameID            int64      `json:"game_id"`
	SubsiteKey        string     `json:"subsite_key"`
	GameKey           string     `json:"game_key"`
	Name              string     `json:"name"`
	Due               bool       `json:"due"`
	Priority          Priority   `json:"priority"`
	EffectiveInterval string     `json:"effective_interval,omitempty"`
	LastSyncedAt      *time.Time `json:"last_synced_at,omitempty"`
	NextDueAt         *time.Time `json:"next_due_at,omitempty"`
	NextDeadline      *time.Time `json:"next_deadline,omitempty"`
	Reason            string     `json:"reason"`
}

// EvaluateSchedule decides, for each game, whether a sync is due and how
// urgent it is. It has no side effects. Entries come back ordered by priority,
// then by next due time, then by game id.
func EvaluateSchedule(games []game.Game, now time.Time, cfg ScheduleConfig) []ScheduleEntry {
	out := make([]ScheduleEntry, 0, len(games))
	for _, g := range games {
		out = append(out, evaluateGame(g, now, cfg))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if ri, rj := out[i].Priority.rank(), out[j].Priority.rank(); ri != rj {
			return ri < rj
		}
		di, dj := out[i].NextDueAt, out[j].NextDueAt
		switch {
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.Before(*dj)
		case di != nil && dj == nil:
			return true
		case di == nil && dj != nil:
			return false
		}
		return out[i].GameID < out[j].GameID
	})
	return out
}

func evaluateGame(g game.Game, now time.Time, cfg ScheduleConfig) ScheduleEntry {
	entry := ScheduleEntry{
		GameID:       g.ID,
		SubsiteKey:   g.SubsiteKey,
		GameKey:      g.GameKey,
		Name:         g.Name,
		LastSyncedAt: g.LastSyncedAt,
		NextDeadline: g.NextDeadline,
	}

	if !g.IsActive {
		entry.Priority = PriorityIdle
		entry.Reason = "game is inactive"
		return entry
	}

	critical := inCriticalWindow(g.NextDeadline, now, cfg)
	interval, valid := g.SyncInterval()
	if critical && valid && cfg.CriticalInterval > 0 && cfg.CriticalInterval < interval {
		interval = cfg.CriticalInterval
	}

	if g.LastSyncedAt == nil {
		entry.Due = true
		entry.NextDueAt = &now
		entry.Priority = PriorityOverdue
		entry.Reason = "never synced"
		if critical {
			entry.Priority = PriorityCritical
			entry.Reason = "never synced, inside deadline window"
		}
		if valid {
			entry.EffectiveInterval = interval.String()
		}
		return entry
	}

	if !valid {
		entry.Priority = PriorityRoutine
		entry.Reason = fmt.Sprintf("sync interval %d minutes is outside [%d, %d]", g.SyncIntervalMinutes, game.MinSyncIntervalMinutes, game.MaxSyncIntervalMinutes)
		return entry
	}

	entry.EffectiveInterval = interval.String()
	nextDue := g.LastSyncedAt.Add(interval)
	entry.NextDueAt = &nextDue
	entry.Due = !now.Before(nextDue)

	switch {
	case critical:
		entry.Priority = PriorityCritical
		entry.Reason = "inside deadline window"
	case entry.Due:
		entry.Priority = PriorityOverdue
		entry.Reason = "interval elapsed"
	default:
		entry.Priority = PriorityRoutine
		entry.Reason = "synced within interval"
	}
	return entry
}

// inCriticalWindow reports whether now is within [deadline-lead, deadline+lag].
func inCriticalWindow(deadline *time.Time, now time.Time, cfg ScheduleConfig) bool {
	if deadline == nil {
		return false
	}
	start := deadline.Add(-cfg.CriticalLead)
	end := deadline.Add(cfg.CriticalLag)
	return !now.Before(start) && !now.After(end)
}

// ScheduleService exposes the evaluator over persisted games.
type ScheduleService struct {
	games  game.Repository
	cfg    ScheduleConfig
	logger *logging.Logger
	now    func() time.Time
}

func NewScheduleService(games game.Repository, cfg ScheduleConfig, logger *logging.Logger) *ScheduleService {
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultScheduleConfig()
	if cfg.CriticalLead < 0 {
		cfg.CriticalLead = defaults.CriticalLead
	}
	if cfg.CriticalLag < 0 {
		cfg.CriticalLag = defaults.CriticalLag
	}
	if cfg.CriticalInterval <= 0 {
		cfg.CriticalInterval = defaults.CriticalInterval
	}
	return &ScheduleService{
		games:  games,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *ScheduleService) Config() ScheduleConfig {
	return s.cfg
}

// Evaluate loads every game and returns its schedule entry.
func (s *ScheduleService) Evaluate(ctx context.Context) ([]ScheduleEntry, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScheduleService.Evaluate")
	defer span.End()

	games, err := s.games.List(ctx)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("list games: %w", err)
	}
	return EvaluateSchedule(games, s.now().UTC(), s.cfg), nil
}

// DueGames filters games down to those that need a sync now, keeping the
// input order.
func (s *ScheduleService) DueGames(ctx context.Context, games []game.Game) []game.Game {
	due := make(map[int64]bool, len(games))
	for _, entry := range EvaluateSchedule(games, s.now().UTC(), s.cfg) {
		due[entry.GameID] = entry.Due
	}

	out := make([]game.Game, 0, len(games))
	for _, g := range games {
		if due[g.ID] {
			out = append(out, g)
		}
	}
	s.logger.DebugContext(ctx, "schedule evaluated", "games", len(games), "due", len(out))
	return out
}
