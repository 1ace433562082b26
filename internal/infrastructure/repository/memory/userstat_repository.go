package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/riskibarqy/manager-sync/internal/domain/userstat"
)

type userGameStatKey struct {
	userID string
	gameID int64
}

type UserGameStatRepository struct {
	mu    sync.RWMutex
	items map[userGameStatKey]userstat.UserGameStat
}

func NewUserGameStatRepository() *UserGameStatRepository {
	return &UserGameStatRepository{items: make(map[userGameStatKey]userstat.UserGameStat)}
}

func (r *UserGameStatRepository) UpsertBatch(_ context.Context, rows []userstat.UserGameStat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, row := range rows {
		row.ExternalUserID = strings.TrimSpace(row.ExternalUserID)
		row.LineupElementIDs = append([]int64(nil), row.LineupElementIDs...)
		row.LastSyncedAt = now
		r.items[userGameStatKey{userID: row.ExternalUserID, gameID: row.GameID}] = row
	}
	return nil
}

func (r *UserGameStatRepository) CountByGame(_ context.Context, gameID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for key := range r.items {
		if key.gameID == gameID {
			count++
		}
	}
	return count, nil
}
