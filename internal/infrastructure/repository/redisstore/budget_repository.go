package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/riskibarqy/manager-sync/internal/domain/budget"
)

const (
	budgetKeyPrefix = "manager-sync:api-budget:"
	// budgetKeyTTL keeps yesterday's counter around for inspection.
	budgetKeyTTL = 48 * time.Hour
)

// BudgetRepository shares the day counter across instances through Redis.
type BudgetRepository struct {
	client redis.UniversalClient
}

func NewBudgetRepository(client redis.UniversalClient) *BudgetRepository {
	return &BudgetRepository{client: client}
}

func budgetKey(day time.Time) string {
	return budgetKeyPrefix + budget.DayKey(day)
}

func (r *BudgetRepository) Increment(ctx context.Context, day time.Time) (int64, error) {
	key := budgetKey(day)
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, budgetKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (r *BudgetRepository) EnsureDay(ctx context.Context, day time.Time) error {
	key := budgetKey(day)
	if err := r.client.SetNX(ctx, key, 0, budgetKeyTTL).Err(); err != nil {
		return fmt.Errorf("setnx %s: %w", key, err)
	}
	return nil
}

func (r *BudgetRepository) Count(ctx context.Context, day time.Time) (int64, error) {
	key := budgetKey(day)
	count, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return count, nil
}

func (r *BudgetRepository) SetCount(ctx context.Context, day time.Time, count int64) error {
	key := budgetKey(day)
	if err := r.client.Set(ctx, key, count, budgetKeyTTL).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Connect builds a client and verifies it with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}
