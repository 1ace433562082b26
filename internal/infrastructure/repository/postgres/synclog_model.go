package postgres

import (
	"database/sql"
	"time"
)

type syncLogTableModel struct {
	ID             int64          `db:"id"`
	GameID         int64          `db:"game_id"`
	Trigger        string         `db:"trigger"`
	Status         string         `db:"status"`
	ElementsSynced int            `db:"elements_synced"`
	UsersSynced    int            `db:"users_synced"`
	RequestsUsed   int            `db:"requests_used"`
	ErrorMessage   sql.NullString `db:"error_message"`
	StartedAt      time.Time      `db:"started_at"`
	CompletedAt    *time.Time     `db:"completed_at"`
	DurationMs     sql.NullInt64  `db:"duration_ms"`
}

type syncLogInsertModel struct {
	GameID    int64     `db:"game_id"`
	Trigger   string    `db:"trigger"`
	Status    string    `db:"status"`
	StartedAt time.Time `db:"started_at"`
}
