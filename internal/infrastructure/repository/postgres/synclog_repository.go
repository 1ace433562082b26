package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/manager-sync/internal/domain/synclog"
	qb "github.com/riskibarqy/manager-sync/internal/platform/querybuilder"
)

// maxErrorMessageLength bounds error_message; upstream bodies can be large.
const maxErrorMessageLength = 2000

type SyncLogRepository struct {
	db *sqlx.DB
}

func NewSyncLogRepository(db *sqlx.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

func (r *SyncLogRepository) Start(ctx context.Context, entry synclog.Entry) (int64, error) {
	startedAt := entry.StartedAt.UTC()
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	query, args, err := qb.InsertModel("sync_logs", syncLogInsertModel{
		GameID:    entry.GameID,
		Trigger:   string(entry.Trigger),
		Status:    string(synclog.StatusStarted),
		StartedAt: startedAt,
	}, "RETURNING id")
	if err != nil {
		return 0, fmt.Errorf("build insert sync log query: %w", err)
	}

	var id int64
	if err := r.db.GetContext(ctx, &id, query, args...); err != nil {
		return 0, fmt.Errorf("insert sync log game_id=%d: %w", entry.GameID, err)
	}
	return id, nil
}

// Finish moves a started entry to its terminal state. An entry that already
// finished is left untouched and reported as not found.
func (r *SyncLogRepository) Finish(ctx context.Context, id int64, outcome synclog.Outcome) error {
	completedAt := outcome.CompletedAt.UTC()
	b := qb.Update("sync_logs").
		Set("status", string(outcome.Status)).
		Set("elements_synced", outcome.ElementsSynced).
		Set("users_synced", outcome.UsersSynced).
		Set("requests_used", outcome.RequestsUsed).
		Set("completed_at", completedAt).
		SetExpr("duration_ms", "GREATEST(0, (EXTRACT(EPOCH FROM (?::timestamptz - started_at)) * 1000)::bigint)", completedAt)
	if outcome.ErrorMessage != "" {
		b.Set("error_message", truncate(outcome.ErrorMessage, maxErrorMessageLength))
	}
	query, args, err := b.
		Where(
			qb.Eq("id", id),
			qb.Eq("status", string(synclog.StatusStarted)),
		).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build finish sync log query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish sync log id=%d: %w", id, err)
	}
	return requireAffected(res, fmt.Sprintf("finish sync log id=%d", id))
}

func (r *SyncLogRepository) ListByGame(ctx context.Context, gameID int64, limit int) ([]synclog.Entry, error) {
	query, args, err := qb.Select("*").From("sync_logs").
		Where(qb.Eq("game_id", gameID)).
		OrderBy("started_at DESC", "id DESC").
		Limit(limit).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select sync logs query: %w", err)
	}

	var rows []syncLogTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select sync logs game_id=%d: %w", gameID, err)
	}

	out := make([]synclog.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, synclog.Entry{
			ID:             row.ID,
			GameID:         row.GameID,
			Trigger:        synclog.Trigger(row.Trigger),
			Status:         synclog.Status(row.Status),
			ElementsSynced: row.ElementsSynced,
			UsersSynced:    row.UsersSynced,
			RequestsUsed:   row.RequestsUsed,
			ErrorMessage:   row.ErrorMessage.String,
			StartedAt:      row.StartedAt,
			CompletedAt:    row.CompletedAt,
			DurationMs:     row.DurationMs.Int64,
		})
	}
	return out, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
