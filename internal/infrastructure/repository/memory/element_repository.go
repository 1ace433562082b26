package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/manager-sync/internal/domain/element"
)

type elementKey struct {
	gameID    int64
	elementID int64
}

type ElementRepository struct {
	mu    sync.RWMutex
	items map[elementKey]element.Element
}

func NewElementRepository() *ElementRepository {
	return &ElementRepository{items: make(map[elementKey]element.Element)}
}

func (r *ElementRepository) UpsertBatch(_ context.Context, rows []element.Element) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, row := range rows {
		row.UpdatedAt = now
		r.items[elementKey{gameID: row.GameID, elementID: row.ExternalElementID}] = row
	}
	return nil
}

func (r *ElementRepository) ListByGame(_ context.Context, gameID int64) ([]element.Element, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]element.Element, 0)
	for key, row := range r.items {
		if key.gameID == gameID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalElementID < out[j].ExternalElementID })
	return out, nil
}
