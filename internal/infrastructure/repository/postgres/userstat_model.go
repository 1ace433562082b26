package postgres

import (
	"time"

	"github.com/lib/pq"
)

type userGameStatTableModel struct {
	ExternalUserID   string        `db:"external_user_id"`
	GameID           int64         `db:"game_id"`
	TeamName         string        `db:"team_name"`
	Score            int64         `db:"score"`
	Rank             int           `db:"rank"`
	RoundScore       int64         `db:"round_score"`
	RoundRank        int           `db:"round_rank"`
	InjuredCount     int           `db:"injured_count"`
	SuspendedCount   int           `db:"suspended_count"`
	LineupElementIDs pq.Int64Array `db:"lineup_element_ids"`
	LastSyncedAt     time.Time     `db:"last_synced_at"`
}

type userGameStatKey struct {
	userID string
	gameID int64
}
