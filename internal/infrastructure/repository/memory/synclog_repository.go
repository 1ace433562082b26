package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/manager-sync/internal/domain/synclog"
)

type SyncLogRepository struct {
	mu     sync.RWMutex
	items  map[int64]synclog.Entry
	nextID int64
}

func NewSyncLogRepository() *SyncLogRepository {
	return &SyncLogRepository{items: make(map[int64]synclog.Entry)}
}

func (r *SyncLogRepository) Start(_ context.Context, entry synclog.Entry) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	entry.ID = r.nextID
	entry.Status = synclog.StatusStarted
	entry.CompletedAt = nil
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}
	r.items[entry.ID] = entry
	return entry.ID, nil
}

func (r *SyncLogRepository) Finish(_ context.Context, id int64, outcome synclog.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.items[id]
	if !ok || entry.Status != synclog.StatusStarted {
		return fmt.Errorf("sync log id=%d is not in started state", id)
	}
	completedAt := outcome.CompletedAt.UTC()
	entry.Status = outcome.Status
	entry.ElementsSynced = outcome.ElementsSynced
	entry.UsersSynced = outcome.UsersSynced
	entry.RequestsUsed = outcome.RequestsUsed
	entry.ErrorMessage = outcome.ErrorMessage
	entry.CompletedAt = &completedAt
	entry.DurationMs = max(completedAt.Sub(entry.StartedAt).Milliseconds(), 0)
	r.items[id] = entry
	return nil
}

func (r *SyncLogRepository) ListByGame(_ context.Context, gameID int64, limit int) ([]synclog.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]synclog.Entry, 0)
	for _, entry := range r.items {
		if entry.GameID == gameID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
