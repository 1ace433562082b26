package memory

import (
	"context"
	"sync"
	"time"

	"github.com/riskibarqy/manager-sync/internal/domain/budget"
)

// BudgetRepository counts requests for a single process. It is only suitable
// when one instance runs.
type BudgetRepository struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewBudgetRepository() *BudgetRepository {
	return &BudgetRepository{counts: make(map[string]int64)}
}

func (r *BudgetRepository) Increment(_ context.Context, day time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := budget.DayKey(day)
	r.counts[key]++
	return r.counts[key], nil
}

func (r *BudgetRepository) EnsureDay(_ context.Context, day time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := budget.DayKey(day)
	if _, ok := r.counts[key]; !ok {
		r.counts[key] = 0
	}
	return nil
}

func (r *BudgetRepository) Count(_ context.Context, day time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.counts[budget.DayKey(day)], nil
}

func (r *BudgetRepository) SetCount(_ context.Context, day time.Time, count int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[budget.DayKey(day)] = count
	return nil
}
