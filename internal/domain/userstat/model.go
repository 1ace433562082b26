package userstat

import (
	"strings"
	"time"
)

// UserGameStat is one partner user's standing in one game, keyed by
// (ExternalUserID, GameID).
type UserGameStat struct {
	ExternalUserID   string
	GameID           int64
	TeamName         string
	Score            int64
	Rank             int
	RoundScore       int64
	RoundRank        int
	InjuredCount     int
	SuspendedCount   int
	LineupElementIDs []int64
	LastSyncedAt     time.Time
}

// HasExternalID reports whether the row can be keyed at all.
func (s UserGameStat) HasExternalID() bool {
	return strings.TrimSpace(s.ExternalUserID) != ""
}
