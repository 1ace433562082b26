package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/riskibarqy/manager-sync/internal/domain/synclog"
	"github.com/riskibarqy/manager-sync/internal/usecase"
	"go.opentelemetry.io/otel/attribute"
)

type syncLogDTO struct {
	ID             int64      `json:"id"`
	GameID         int64      `json:"game_id"`
	Trigger        string     `json:"trigger"`
	Status         string     `json:"status"`
	ElementsSynced int        `json:"elements_synced"`
	UsersSynced    int        `json:"users_synced"`
	RequestsUsed   int        `json:"requests_used"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	DurationMs     int64      `json:"duration_ms"`
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetSchedule")
	defer span.End()

	if h.schedule == nil {
		writeError(ctx, w, fmt.Errorf("%w: schedule service is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	entries, err := h.schedule.Evaluate(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "evaluate schedule failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	due := 0
	for _, entry := range entries {
		if entry.Due {
			due++
		}
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"due":   due,
		"items": entries,
	})
}

func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetBudget")
	defer span.End()

	if h.budget == nil {
		writeError(ctx, w, fmt.Errorf("%w: budget governor is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	writeSuccess(w, http.StatusOK, h.budget.Status(ctx))
}

func (h *Handler) ListSyncLogs(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListSyncLogs")
	defer span.End()

	if h.sync == nil {
		writeError(ctx, w, fmt.Errorf("%w: sync service is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	gameID, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("gameID")), 10, 64)
	if err != nil || gameID <= 0 {
		writeError(ctx, w, fmt.Errorf("%w: gameID must be a positive integer", usecase.ErrInvalidInput))
		return
	}
	annotateSpan(ctx, attribute.Int64("game.id", gameID))

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: limit must be an integer", usecase.ErrInvalidInput))
			return
		}
	}

	entries, err := h.sync.ListSyncLogs(ctx, gameID, limit)
	if err != nil {
		h.logger.WarnContext(ctx, "list sync logs failed", "game_id", gameID, "error", err)
		writeError(ctx, w, err)
		return
	}

	items := make([]syncLogDTO, 0, len(entries))
	for _, entry := range entries {
		items = append(items, syncLogToDTO(entry))
	}
	writeSuccess(w, http.StatusOK, map[string]any{"items": items})
}

// ValidatePartnerKey checks the configured API key upstream. The client caches
// the answer briefly; a cache miss spends one request from the reserve.
func (h *Handler) ValidatePartnerKey(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ValidatePartnerKey")
	defer span.End()

	if h.partner == nil {
		writeError(ctx, w, fmt.Errorf("%w: partner client is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	result, err := h.partner.ValidateKey(usecase.WithReserve(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "validate partner key failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result)
}

func syncLogToDTO(entry synclog.Entry) syncLogDTO {
	return syncLogDTO{
		ID:             entry.ID,
		GameID:         entry.GameID,
		Trigger:        string(entry.Trigger),
		Status:         string(entry.Status),
		ElementsSynced: entry.ElementsSynced,
		UsersSynced:    entry.UsersSynced,
		RequestsUsed:   entry.RequestsUsed,
		ErrorMessage:   entry.ErrorMessage,
		StartedAt:      entry.StartedAt,
		CompletedAt:    entry.CompletedAt,
		DurationMs:     entry.DurationMs,
	}
}
