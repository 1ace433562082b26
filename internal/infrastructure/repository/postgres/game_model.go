package postgres

import "time"

type gameTableModel struct {
	ID                  int64      `db:"id"`
	SubsiteKey          string     `db:"subsite_key"`
	GameKey             string     `db:"game_key"`
	Name                string     `db:"name"`
	CurrentRound        int        `db:"current_round"`
	TotalRounds         int        `db:"total_rounds"`
	RoundState          string     `db:"round_state"`
	NextDeadline        *time.Time `db:"next_deadline"`
	IsActive            bool       `db:"is_active"`
	SyncIntervalMinutes int        `db:"sync_interval_minutes"`
	LastSyncedAt        *time.Time `db:"last_synced_at"`
	UserCount           int        `db:"user_count"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}
