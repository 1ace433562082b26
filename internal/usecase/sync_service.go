package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/manager-sync/internal/domain/element"
	"github.com/riskibarqy/manager-sync/internal/domain/game"
	"github.com/riskibarqy/manager-sync/internal/domain/synclog"
	"github.com/riskibarqy/manager-sync/internal/domain/userstat"
	"github.com/riskibarqy/manager-sync/internal/platform/logging"
	"github.com/riskibarqy/manager-sync/internal/platform/metrics"
	"go.opentelemetry.io/otel/attribute"
)

const defaultSyncBatchSize = 100

type SyncConfig struct {
	BatchSize int
}

type SyncGameInput struct {
	GameID  int64           `json:"game_id" validate:"required,gt=0"`
	Trigger synclog.Trigger `json:"trigger" validate:"omitempty,oneof=manual scheduled"`
	// Round restricts the element fetch; zero means the current round.
	Round int `json:"round" validate:"gte=0"`
}

type SyncAllInput struct {
	Trigger synclog.Trigger `json:"trigger" validate:"omitempty,oneof=manual scheduled"`
	OnlyDue bool            `json:"only_due"`
}

type SyncResult struct {
	GameID               int64  `json:"game_id"`
	SyncLogID            int64  `json:"sync_log_id"`
	Status               string `json:"status"`
	ElementsSynced       int    `json:"elements_synced"`
	UsersSynced          int    `json:"users_synced"`
	UsersWithoutID       int    `json:"users_without_id"`
	FailedElementBatches int    `json:"failed_element_batches"`
	FailedUserBatches    int    `json:"failed_user_batches"`
	FailedUserPages      []int  `json:"failed_user_pages,omitempty"`
	RequestsUsed         int    `json:"requests_used"`
	DurationMs           int64  `json:"duration_ms"`
	Error                string `json:"error,omitempty"`
}

type SyncAllResult struct {
	Trigger         string       `json:"trigger"`
	Considered      int          `json:"considered"`
	Completed       int          `json:"completed"`
	Failed          int          `json:"failed"`
	Skipped         int          `json:"skipped"`
	BudgetExhausted bool         `json:"budget_exhausted"`
	SkippedGameIDs  []int64      `json:"skipped_game_ids,omitempty"`
	Results         []SyncResult `json:"results"`
}

// SyncService mirrors partner data for one game at a time. Stages run strictly
// in order: metadata, elements, users. A failed fetch aborts the run; a failed
// upsert batch is skipped.
type SyncService struct {
	games    game.Repository
	elements element.Repository
	users    userstat.Repository
	logs     synclog.Repository
	partner  PartnerAPI
	schedule *ScheduleService
	events   SyncEventPublisher
	cfg      SyncConfig
	logger   *logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.Mutex
	running map[int64]struct{}
}

type SyncDependencies struct {
	Games    game.Repository
	Elements element.Repository
	Users    userstat.Repository
	Logs     synclog.Repository
	Partner  PartnerAPI
	Schedule *ScheduleService
	Events   SyncEventPublisher
}

func NewSyncService(deps SyncDependencies, cfg SyncConfig, logger *logging.Logger, m *metrics.Metrics) *SyncService {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSyncBatchSize
	}
	events := deps.Events
	if events == nil {
		events = noopSyncEventPublisher{}
	}
	schedule := deps.Schedule
	if schedule == nil {
		schedule = NewScheduleService(deps.Games, DefaultScheduleConfig(), logger)
	}

	return &SyncService{
		games:    deps.Games,
		elements: deps.Elements,
		users:    deps.Users,
		logs:     deps.Logs,
		partner:  deps.Partner,
		schedule: schedule,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		running:  make(map[int64]struct{}),
	}
}

func (s *SyncService) SyncGame(ctx context.Context, input SyncGameInput) (SyncResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.SyncGame",
		attribute.Int64("game.id", input.GameID),
		attribute.String("sync.trigger", string(input.Trigger)),
	)
	defer span.End()

	if input.GameID <= 0 {
		return SyncResult{}, fmt.Errorf("%w: game id is required", ErrInvalidInput)
	}
	if input.Trigger == "" {
		input.Trigger = synclog.TriggerManual
	}
	if !input.Trigger.Valid() {
		return SyncResult{}, fmt.Errorf("%w: unknown trigger %q", ErrInvalidInput, input.Trigger)
	}
	if input.Round < 0 {
		return SyncResult{}, fmt.Errorf("%w: round must be >= 0", ErrInvalidInput)
	}

	release, ok := s.acquire(input.GameID)
	if !ok {
		return SyncResult{GameID: input.GameID}, fmt.Errorf("%w: game_id=%d", ErrSyncInProgress, input.GameID)
	}
	defer release()

	g, found, err := s.games.GetByID(ctx, input.GameID)
	if err != nil {
		recordSpanError(span, err)
		return SyncResult{GameID: input.GameID}, fmt.Errorf("get game id=%d: %w", input.GameID, err)
	}
	if !found {
		return SyncResult{GameID: input.GameID}, fmt.Errorf("%w: game id=%d", ErrNotFound, input.GameID)
	}

	result, err := s.syncGame(ctx, g, input)
	if err != nil {
		recordSpanError(span, err)
	}
	return result, err
}

func (s *SyncService) syncGame(ctx context.Context, g game.Game, input SyncGameInput) (SyncResult, error) {
	if input.Trigger == synclog.TriggerManual {
		ctx = WithReserve(ctx)
	}
	ctx, tally := withRequestTally(ctx)
	logger := s.logger.With("game_id", g.ID, "subsite", g.SubsiteKey, "game", g.GameKey, "trigger", string(input.Trigger))

	startedAt := s.now().UTC()
	logID, err := s.logs.Start(ctx, synclog.Entry{
		GameID:    g.ID,
		Trigger:   input.Trigger,
		Status:    synclog.StatusStarted,
		StartedAt: startedAt,
	})
	if err != nil {
		return SyncResult{GameID: g.ID}, fmt.Errorf("start sync log game_id=%d: %w", g.ID, err)
	}

	result := SyncResult{GameID: g.ID, SyncLogID: logID}
	logger.InfoContext(ctx, "game sync started", "sync_log_id", logID)

	stageErr := s.runStages(ctx, logger, g, input, &result)

	completedAt := s.now().UTC()
	result.RequestsUsed = int(tally.Load())
	result.DurationMs = completedAt.Sub(startedAt).Milliseconds()
	outcome := synclog.Outcome{
		Status:         synclog.StatusCompleted,
		ElementsSynced: result.ElementsSynced,
		UsersSynced:    result.UsersSynced,
		RequestsUsed:   result.RequestsUsed,
		CompletedAt:    completedAt,
	}
	if stageErr != nil {
		outcome.Status = synclog.StatusFailed
		outcome.ErrorMessage = stageErr.Error()
		result.Error = stageErr.Error()
	}
	result.Status = string(outcome.Status)

	// Terminal bookkeeping must land even if the caller went away mid-run.
	finishCtx := context.WithoutCancel(ctx)
	if err := s.logs.Finish(finishCtx, logID, outcome); err != nil {
		logger.ErrorContext(ctx, "finish sync log failed", "sync_log_id", logID, "error", err)
	}
	if stageErr == nil {
		if err := s.games.MarkSynced(finishCtx, g.ID, completedAt); err != nil {
			logger.ErrorContext(ctx, "mark game synced failed", "error", err)
		}
	}

	s.metrics.ObserveSyncRun(string(input.Trigger), result.Status, completedAt.Sub(startedAt))
	s.publish(finishCtx, logger, SyncEvent{
		GameID:         g.ID,
		SubsiteKey:     g.SubsiteKey,
		GameKey:        g.GameKey,
		SyncLogID:      logID,
		Trigger:        string(input.Trigger),
		Status:         result.Status,
		ElementsSynced: result.ElementsSynced,
		UsersSynced:    result.UsersSynced,
		ErrorMessage:   result.Error,
		StartedAt:      startedAt,
		CompletedAt:    completedAt,
		DurationMs:     result.DurationMs,
	})

	if stageErr != nil {
		logger.WarnContext(ctx, "game sync failed",
			"sync_log_id", logID,
			"elements_synced", result.ElementsSynced,
			"users_synced", result.UsersSynced,
			"requests_used", result.RequestsUsed,
			"error", stageErr,
		)
		return result, fmt.Errorf("sync game id=%d: %w", g.ID, stageErr)
	}

	logger.InfoContext(ctx, "game sync completed",
		"sync_log_id", logID,
		"elements_synced", result.ElementsSynced,
		"users_synced", result.UsersSynced,
		"failed_element_batches", result.FailedElementBatches,
		"failed_user_batches", result.FailedUserBatches,
		"failed_user_pages", len(result.FailedUserPages),
		"requests_used", result.RequestsUsed,
		"duration_ms", result.DurationMs,
	)
	return result, nil
}

func (s *SyncService) runStages(ctx context.Context, logger *logging.Logger, g game.Game, input SyncGameInput, result *SyncResult) error {
	if err := s.syncMetadata(ctx, g); err != nil {
		return err
	}
	if err := s.syncElements(ctx, logger, g, input.Round, result); err != nil {
		return err
	}
	return s.syncUsers(ctx, logger, g, result)
}

func (s *SyncService) syncMetadata(ctx context.Context, g game.Game) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.syncMetadata")
	defer span.End()

	meta, err := s.partner.FetchGame(ctx, g.SubsiteKey, g.GameKey)
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("fetch game metadata: %w", err)
	}
	meta.RoundState = game.NormalizeRoundState(meta.RoundState)
	if err := s.games.UpdateMetadata(ctx, g.ID, meta); err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("persist game metadata: %w", err)
	}
	return nil
}

func (s *SyncService) syncElements(ctx context.Context, logger *logging.Logger, g game.Game, round int, result *SyncResult) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.syncElements")
	defer span.End()

	rows, err := s.partner.FetchElements(ctx, g.SubsiteKey, g.GameKey, round)
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("fetch elements: %w", err)
	}
	for i := range rows {
		rows[i].GameID = g.ID
	}

	for idx, batch := range chunk(rows, s.cfg.BatchSize) {
		if err := s.elements.UpsertBatch(ctx, batch); err != nil {
			result.FailedElementBatches++
			s.metrics.IncFailedBatch("elements")
			logger.WarnContext(ctx, "element batch upsert failed, skipping", "batch", idx, "size", len(batch), "error", err)
			continue
		}
		result.ElementsSynced += len(batch)
	}
	s.metrics.AddRowsUpserted("elements", result.ElementsSynced)
	return nil
}

func (s *SyncService) syncUsers(ctx context.Context, logger *logging.Logger, g game.Game, result *SyncResult) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.syncUsers")
	defer span.End()

	fetched, err := s.partner.FetchAllUsers(ctx, g.SubsiteKey, g.GameKey)
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("fetch users: %w", err)
	}
	result.FailedUserPages = fetched.FailedPages

	rows := make([]userstat.UserGameStat, 0, len(fetched.Users))
	for _, row := range fetched.Users {
		if !row.HasExternalID() {
			result.UsersWithoutID++
			continue
		}
		row.GameID = g.ID
		rows = append(rows, row)
	}
	if result.UsersWithoutID > 0 {
		logger.DebugContext(ctx, "skipped users without external id", "count", result.UsersWithoutID)
	}

	for idx, batch := range chunk(rows, s.cfg.BatchSize) {
		if err := s.users.UpsertBatch(ctx, batch); err != nil {
			result.FailedUserBatches++
			s.metrics.IncFailedBatch("users")
			logger.WarnContext(ctx, "user batch upsert failed, skipping", "batch", idx, "size", len(batch), "error", err)
			continue
		}
		result.UsersSynced += len(batch)
	}
	s.metrics.AddRowsUpserted("users", result.UsersSynced)
	return nil
}

// SyncAllActive syncs active games one at a time in id order. A failed game
// does not stop the loop; budget exhaustion does, since every later game
// would fail the same way.
func (s *SyncService) SyncAllActive(ctx context.Context, input SyncAllInput) (SyncAllResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.SyncAllActive")
	defer span.End()

	if input.Trigger == "" {
		input.Trigger = synclog.TriggerScheduled
	}
	if !input.Trigger.Valid() {
		return SyncAllResult{}, fmt.Errorf("%w: unknown trigger %q", ErrInvalidInput, input.Trigger)
	}

	games, err := s.games.ListActive(ctx)
	if err != nil {
		recordSpanError(span, err)
		return SyncAllResult{}, fmt.Errorf("list active games: %w", err)
	}
	sort.SliceStable(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	if input.OnlyDue {
		games = s.schedule.DueGames(ctx, games)
	}

	out := SyncAllResult{
		Trigger:    string(input.Trigger),
		Considered: len(games),
		Results:    make([]SyncResult, 0, len(games)),
	}

	for i, g := range games {
		if ctx.Err() != nil || out.BudgetExhausted {
			for _, rest := range games[i:] {
				out.SkippedGameIDs = append(out.SkippedGameIDs, rest.ID)
			}
			break
		}

		res, err := s.SyncGame(ctx, SyncGameInput{GameID: g.ID, Trigger: input.Trigger})
		switch {
		case err == nil:
			out.Completed++
			out.Results = append(out.Results, res)
		case errors.Is(err, ErrSyncInProgress):
			out.SkippedGameIDs = append(out.SkippedGameIDs, g.ID)
		default:
			out.Failed++
			if res.Error == "" {
				res.Error = err.Error()
				res.Status = string(synclog.StatusFailed)
			}
			out.Results = append(out.Results, res)
			if IsBudgetExhausted(err) {
				out.BudgetExhausted = true
				s.logger.WarnContext(ctx, "api budget exhausted, stopping sync loop", "game_id", g.ID, "remaining_games", len(games)-i-1)
			}
		}
	}
	out.Skipped = len(out.SkippedGameIDs)

	s.logger.InfoContext(ctx, "sync all active finished",
		"trigger", out.Trigger,
		"considered", out.Considered,
		"completed", out.Completed,
		"failed", out.Failed,
		"skipped", out.Skipped,
		"budget_exhausted", out.BudgetExhausted,
	)
	return out, nil
}

func (s *SyncService) ListSyncLogs(ctx context.Context, gameID int64, limit int) ([]synclog.Entry, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.ListSyncLogs")
	defer span.End()

	if gameID <= 0 {
		return nil, fmt.Errorf("%w: game id is required", ErrInvalidInput)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if _, found, err := s.games.GetByID(ctx, gameID); err != nil {
		return nil, fmt.Errorf("get game id=%d: %w", gameID, err)
	} else if !found {
		return nil, fmt.Errorf("%w: game id=%d", ErrNotFound, gameID)
	}

	entries, err := s.logs.ListByGame(ctx, gameID, limit)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("list sync logs game_id=%d: %w", gameID, err)
	}
	return entries, nil
}

func (s *SyncService) publish(ctx context.Context, logger *logging.Logger, event SyncEvent) {
	if err := s.events.PublishSyncEvent(ctx, event); err != nil {
		s.metrics.IncEventPublished("error")
		logger.WarnContext(ctx, "publish sync event failed", "sync_log_id", event.SyncLogID, "error", err)
		return
	}
	s.metrics.IncEventPublished("ok")
}

func (s *SyncService) acquire(gameID int64) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[gameID]; busy {
		return nil, false
	}
	s.running[gameID] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.running, gameID)
		s.mu.Unlock()
	}, true
}

func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(items)
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
