package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/riskibarqy/manager-sync/internal/domain/userstat"
	qb "github.com/riskibarqy/manager-sync/internal/platform/querybuilder"
)

var userGameStatConflictColumns = []string{"external_user_id", "game_id"}

type UserGameStatRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewUserGameStatRepository(db *sqlx.DB) *UserGameStatRepository {
	return &UserGameStatRepository{db: db, now: time.Now}
}

func (r *UserGameStatRepository) UpsertBatch(ctx context.Context, rows []userstat.UserGameStat) error {
	if len(rows) == 0 {
		return nil
	}
	query, args, err := r.upsertQuery(rows)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert user game stats batch size=%d: %w", len(rows), err)
	}
	return nil
}

func (r *UserGameStatRepository) upsertQuery(rows []userstat.UserGameStat) (string, []any, error) {
	now := r.now().UTC()
	models := make([]userGameStatTableModel, 0, len(rows))
	for _, row := range rows {
		lineup := row.LineupElementIDs
		if lineup == nil {
			lineup = []int64{}
		}
		models = append(models, userGameStatTableModel{
			ExternalUserID:   strings.TrimSpace(row.ExternalUserID),
			GameID:           row.GameID,
			TeamName:         row.TeamName,
			Score:            row.Score,
			Rank:             row.Rank,
			RoundScore:       row.RoundScore,
			RoundRank:        row.RoundRank,
			InjuredCount:     row.InjuredCount,
			SuspendedCount:   row.SuspendedCount,
			LineupElementIDs: pq.Int64Array(lineup),
			LastSyncedAt:     now,
		})
	}
	models = dedupeByKey(models, func(m userGameStatTableModel) userGameStatKey {
		return userGameStatKey{userID: m.ExternalUserID, gameID: m.GameID}
	})

	updateCols, err := qb.Columns(userGameStatTableModel{}, userGameStatConflictColumns...)
	if err != nil {
		return "", nil, fmt.Errorf("user game stat update columns: %w", err)
	}
	query, args, err := qb.InsertModels("user_game_stats", models, qb.OnConflictUpdate(userGameStatConflictColumns, updateCols))
	if err != nil {
		return "", nil, fmt.Errorf("build upsert user game stats query: %w", err)
	}
	return query, args, nil
}

func (r *UserGameStatRepository) CountByGame(ctx context.Context, gameID int64) (int, error) {
	query, args, err := qb.Select("COUNT(1)").From("user_game_stats").
		Where(qb.Eq("game_id", gameID)).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count user game stats query: %w", err)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count user game stats game_id=%d: %w", gameID, err)
	}
	return count, nil
}
