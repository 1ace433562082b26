package usecase

import (
	"context"
	"time"

	"github.com/riskibarqy/manager-sync/internal/domain/element"
	"github.com/riskibarqy/manager-sync/internal/domain/game"
	"github.com/riskibarqy/manager-sync/internal/domain/userstat"
)

// PartnerUsers is the accumulated result of a paginated user fetch.
type PartnerUsers struct {
	Users       []userstat.UserGameStat
	Total       int // user count reported upstream on page 1
	FailedPages []int
}

// PartnerAPI is the upstream surface the sync pipeline consumes.
type PartnerAPI interface {
	FetchGame(ctx context.Context, subsiteKey, gameKey string) (game.Metadata, error)
	FetchElements(ctx context.Context, subsiteKey, gameKey string, round int) ([]element.Element, error)
	FetchAllUsers(ctx context.Context, subsiteKey, gameKey string) (PartnerUsers, error)
}

// SyncEvent is emitted once per finished game sync.
type SyncEvent struct {
	GameID         int64     `json:"gameId"`
	SubsiteKey     string    `json:"subsiteKey"`
	GameKey        string    `json:"gameKey"`
	SyncLogID      int64     `json:"syncLogId"`
	Trigger        string    `json:"trigger"`
	Status         string    `json:"status"`
	ElementsSynced int       `json:"elementsSynced"`
	UsersSynced    int       `json:"usersSynced"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	CompletedAt    time.Time `json:"completedAt"`
	DurationMs     int64     `json:"durationMs"`
}

type SyncEventPublisher interface {
	PublishSyncEvent(ctx context.Context, event SyncEvent) error
}

type noopSyncEventPublisher struct{}

func (noopSyncEventPublisher) PublishSyncEvent(context.Context, SyncEvent) error {
	return nil
}
