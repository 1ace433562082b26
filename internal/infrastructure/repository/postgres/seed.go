package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/manager-sync/internal/domain/game"
)

// BootstrapGames registers games in one transaction. Existing rows keep their
// sync history; only activation and interval are refreshed.
func BootstrapGames(ctx context.Context, db *sqlx.DB, games []game.Game) error {
	if len(games) == 0 {
		return nil
	}
	for _, g := range games {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("bootstrap game %s/%s: %w", g.SubsiteKey, g.GameKey, err)
		}
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bootstrap games tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, g := range games {
		sqlQuery, args, err := sqlx.Named(`
INSERT INTO games (subsite_key, game_key, name, is_active, sync_interval_minutes)
VALUES (:subsite_key, :game_key, :name, :is_active, :sync_interval_minutes)
ON CONFLICT (subsite_key, game_key) DO UPDATE
SET is_active = EXCLUDED.is_active,
    sync_interval_minutes = EXCLUDED.sync_interval_minutes,
    updated_at = NOW()`, map[string]any{
			"subsite_key":           g.SubsiteKey,
			"game_key":              g.GameKey,
			"name":                  g.Name,
			"is_active":             g.IsActive,
			"sync_interval_minutes": g.SyncIntervalMinutes,
		})
		if err != nil {
			return fmt.Errorf("bind bootstrap game %s/%s query: %w", g.SubsiteKey, g.GameKey, err)
		}
		sqlQuery = tx.Rebind(sqlQuery)
		if _, err := tx.ExecContext(ctx, sqlQuery, args...); err != nil {
			return fmt.Errorf("bootstrap game %s/%s: %w", g.SubsiteKey, g.GameKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap games tx: %w", err)
	}
	return nil
}
