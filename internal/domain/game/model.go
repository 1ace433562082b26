package game

import (
	"fmt"
	"strings"
	"time"
)

const (
	MinSyncIntervalMinutes = 5
	MaxSyncIntervalMinutes = 1440
)

const (
	RoundStatePending  = "pending"
	RoundStateOpen     = "open"
	RoundStateLocked   = "locked"
	RoundStateFinished = "finished"
)

// Game is one partner-hosted fantasy game mirrored locally.
type Game struct {
	ID                  int64
	SubsiteKey          string
	GameKey             string
	Name                string
	CurrentRound        int
	TotalRounds         int
	RoundState          string
	NextDeadline        *time.Time
	IsActive            bool
	SyncIntervalMinutes int
	LastSyncedAt        *time.Time
	UserCount           int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (g Game) Validate() error {
	if strings.TrimSpace(g.SubsiteKey) == "" {
		return fmt.Errorf("subsite key is required")
	}
	if strings.TrimSpace(g.GameKey) == "" {
		return fmt.Errorf("game key is required")
	}
	if !ValidSyncInterval(g.SyncIntervalMinutes) {
		return fmt.Errorf("sync interval must be between %d and %d minutes", MinSyncIntervalMinutes, MaxSyncIntervalMinutes)
	}
	return nil
}

func ValidSyncInterval(minutes int) bool {
	return minutes >= MinSyncIntervalMinutes && minutes <= MaxSyncIntervalMinutes
}

// SyncInterval reports the configured interval and whether it is usable.
func (g Game) SyncInterval() (time.Duration, bool) {
	if !ValidSyncInterval(g.SyncIntervalMinutes) {
		return 0, false
	}
	return time.Duration(g.SyncIntervalMinutes) * time.Minute, true
}

// Metadata is the per-sync snapshot of round progress taken from upstream.
type Metadata struct {
	Name         string
	CurrentRound int
	TotalRounds  int
	RoundState   string
	NextDeadline *time.Time
	UserCount    int
}

func NormalizeRoundState(value string) string {
	state := strings.ToLower(strings.TrimSpace(value))
	if state == "" {
		return RoundStatePending
	}
	return state
}
