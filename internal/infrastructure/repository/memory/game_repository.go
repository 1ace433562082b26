package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/manager-sync/internal/domain/game"
)

type GameRepository struct {
	mu     sync.RWMutex
	items  map[int64]game.Game
	nextID int64
}

// NewGameRepository seeds the store. Games without an id get one assigned in
// slice order.
func NewGameRepository(games []game.Game) *GameRepository {
	r := &GameRepository{items: make(map[int64]game.Game, len(games))}
	for _, g := range games {
		if g.ID <= 0 {
			r.nextID++
			g.ID = r.nextID
		} else if g.ID > r.nextID {
			r.nextID = g.ID
		}
		r.items[g.ID] = g
	}
	return r
}

func (r *GameRepository) List(_ context.Context) ([]game.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sorted(func(game.Game) bool { return true }), nil
}

func (r *GameRepository) ListActive(_ context.Context) ([]game.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sorted(func(g game.Game) bool { return g.IsActive }), nil
}

func (r *GameRepository) GetByID(_ context.Context, id int64) (game.Game, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.items[id]
	if !ok {
		return game.Game{}, false, nil
	}
	return g, true, nil
}

func (r *GameRepository) UpdateMetadata(_ context.Context, id int64, meta game.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.items[id]
	if !ok {
		return fmt.Errorf("game id=%d not found", id)
	}
	g.Name = meta.Name
	g.CurrentRound = meta.CurrentRound
	g.TotalRounds = meta.TotalRounds
	g.RoundState = meta.RoundState
	g.NextDeadline = meta.NextDeadline
	g.UserCount = meta.UserCount
	g.UpdatedAt = time.Now().UTC()
	r.items[id] = g
	return nil
}

func (r *GameRepository) MarkSynced(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.items[id]
	if !ok {
		return fmt.Errorf("game id=%d not found", id)
	}
	at = at.UTC()
	g.LastSyncedAt = &at
	g.UpdatedAt = time.Now().UTC()
	r.items[id] = g
	return nil
}

func (r *GameRepository) sorted(keep func(game.Game) bool) []game.Game {
	out := make([]game.Game, 0, len(r.items))
	for _, g := range r.items {
		if keep(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
