package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/riskibarqy/manager-sync/internal/domain/synclog"
	"github.com/riskibarqy/manager-sync/internal/usecase"
	"go.opentelemetry.io/otel/attribute"
)

type syncGameRequest struct {
	GameID  int64  `json:"game_id" validate:"required,gt=0"`
	Trigger string `json:"trigger" validate:"omitempty,oneof=manual scheduled"`
	Round   int    `json:"round" validate:"gte=0"`
}

type syncAllRequest struct {
	Trigger string `json:"trigger" validate:"omitempty,oneof=manual scheduled"`
	OnlyDue bool   `json:"only_due"`
}

// RunSyncGameJob syncs one game. The run is detached from the request so a
// dropped connection cannot leave the sync log stuck in started.
func (h *Handler) RunSyncGameJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunSyncGameJob")
	defer span.End()

	if h.sync == nil {
		writeError(ctx, w, fmt.Errorf("%w: sync service is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	var req syncGameRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	trigger := synclog.TriggerManual
	if req.Trigger != "" {
		trigger = synclog.Trigger(req.Trigger)
	}
	annotateSpan(ctx,
		attribute.Int64("game.id", req.GameID),
		attribute.String("sync.trigger", string(trigger)),
	)

	result, err := h.sync.SyncGame(context.WithoutCancel(ctx), usecase.SyncGameInput{
		GameID:  req.GameID,
		Trigger: trigger,
		Round:   req.Round,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "run sync game job failed",
			"game_id", req.GameID,
			"trigger", trigger,
			"sync_log_id", result.SyncLogID,
			"error", err,
		)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result)
}

// RunSyncAllJob syncs every active game. External schedulers call it with
// only_due=true; the trigger defaults to scheduled.
func (h *Handler) RunSyncAllJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunSyncAllJob")
	defer span.End()

	if h.sync == nil {
		writeError(ctx, w, fmt.Errorf("%w: sync service is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	var req syncAllRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	annotateSpan(ctx, attribute.Bool("sync.only_due", req.OnlyDue))
	result, err := h.sync.SyncAllActive(context.WithoutCancel(ctx), usecase.SyncAllInput{
		Trigger: synclog.Trigger(req.Trigger),
		OnlyDue: req.OnlyDue,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "run sync all job failed", "only_due", req.OnlyDue, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result)
}
