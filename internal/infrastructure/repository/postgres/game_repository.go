package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/manager-sync/internal/domain/game"
	qb "github.com/riskibarqy/manager-sync/internal/platform/querybuilder"
)

type GameRepository struct {
	db *sqlx.DB
}

func NewGameRepository(db *sqlx.DB) *GameRepository {
	return &GameRepository{db: db}
}

func (r *GameRepository) List(ctx context.Context) ([]game.Game, error) {
	query, args, err := qb.Select("*").From("games").
		OrderBy("id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select games query: %w", err)
	}

	var rows []gameTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	return gamesFromRows(rows), nil
}

func (r *GameRepository) ListActive(ctx context.Context) ([]game.Game, error) {
	query, args, err := qb.Select("*").From("games").
		Where(qb.Eq("is_active", true)).
		OrderBy("id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select active games query: %w", err)
	}

	var rows []gameTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select active games: %w", err)
	}
	return gamesFromRows(rows), nil
}

func (r *GameRepository) GetByID(ctx context.Context, id int64) (game.Game, bool, error) {
	query, args, err := qb.Select("*").From("games").
		Where(qb.Eq("id", id)).
		Limit(1).
		ToSQL()
	if err != nil {
		return game.Game{}, false, fmt.Errorf("build select game by id query: %w", err)
	}

	var row gameTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return game.Game{}, false, nil
		}
		return game.Game{}, false, fmt.Errorf("select game by id: %w", err)
	}
	return gameFromRow(row), true, nil
}

func (r *GameRepository) UpdateMetadata(ctx context.Context, id int64, meta game.Metadata) error {
	query, args, err := qb.Update("games").
		Set("name", meta.Name).
		Set("current_round", meta.CurrentRound).
		Set("total_rounds", meta.TotalRounds).
		Set("round_state", meta.RoundState).
		Set("next_deadline", meta.NextDeadline).
		Set("user_count", meta.UserCount).
		SetExpr("updated_at", "NOW()").
		Where(qb.Eq("id", id)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update game metadata query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update game metadata id=%d: %w", id, err)
	}
	return requireAffected(res, fmt.Sprintf("update game metadata id=%d", id))
}

func (r *GameRepository) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	query, args, err := qb.Update("games").
		Set("last_synced_at", at.UTC()).
		SetExpr("updated_at", "NOW()").
		Where(qb.Eq("id", id)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build mark game synced query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark game synced id=%d: %w", id, err)
	}
	return requireAffected(res, fmt.Sprintf("mark game synced id=%d", id))
}

func gamesFromRows(rows []gameTableModel) []game.Game {
	out := make([]game.Game, 0, len(rows))
	for _, row := range rows {
		out = append(out, gameFromRow(row))
	}
	return out
}

func gameFromRow(row gameTableModel) game.Game {
	return game.Game{
		ID:                  row.ID,
		SubsiteKey:          row.SubsiteKey,
		GameKey:             row.GameKey,
		Name:                row.Name,
		CurrentRound:        row.CurrentRound,
		TotalRounds:         row.TotalRounds,
		RoundState:          row.RoundState,
		NextDeadline:        row.NextDeadline,
		IsActive:            row.IsActive,
		SyncIntervalMinutes: row.SyncIntervalMinutes,
		LastSyncedAt:        row.LastSyncedAt,
		UserCount:           row.UserCount,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}
