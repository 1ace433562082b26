package budget

import (
	"context"
	"time"
)

// Repository stores the shared day counter. Increment is the atomic path;
// EnsureDay, Count and SetCount form the best-effort fallback.
type Repository interface {
	Increment(ctx context.Context, day time.Time) (int64, error)
	EnsureDay(ctx context.Context, day time.Time) error
	Count(ctx context.Context, day time.Time) (int64, error)
	SetCount(ctx context.Context, day time.Time, count int64) error
}
