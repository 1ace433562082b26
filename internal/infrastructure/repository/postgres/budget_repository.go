package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/manager-sync/internal/domain/budget"
	qb "github.com/riskibarqy/manager-sync/internal/platform/querybuilder"
)

const incrementBudgetSuffix = `ON CONFLICT (day) DO UPDATE SET request_count = api_budget.request_count + 1, updated_at = NOW() RETURNING request_count`

// BudgetRepository keeps one api_budget row per UTC day.
type BudgetRepository struct {
	db *sqlx.DB
}

func NewBudgetRepository(db *sqlx.DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

func (r *BudgetRepository) Increment(ctx context.Context, day time.Time) (int64, error) {
	query, args, err := qb.InsertModel("api_budget", apiBudgetTableModel{
		Day:          budget.DayOf(day),
		RequestCount: 1,
	}, incrementBudgetSuffix)
	if err != nil {
		return 0, fmt.Errorf("build increment api budget query: %w", err)
	}

	var count int64
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("increment api budget day=%s: %w", budget.DayKey(day), err)
	}
	return count, nil
}

func (r *BudgetRepository) EnsureDay(ctx context.Context, day time.Time) error {
	query, args, err := qb.InsertModel("api_budget", apiBudgetTableModel{
		Day: budget.DayOf(day),
	}, qb.OnConflictUpdate([]string{"day"}, nil))
	if err != nil {
		return fmt.Errorf("build ensure api budget day query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ensure api budget day=%s: %w", budget.DayKey(day), err)
	}
	return nil
}

func (r *BudgetRepository) Count(ctx context.Context, day time.Time) (int64, error) {
	query, args, err := qb.Select("request_count").From("api_budget").
		Where(qb.Eq("day", budget.DayOf(day))).
		Limit(1).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build select api budget query: %w", err)
	}

	var count int64
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("select api budget day=%s: %w", budget.DayKey(day), err)
	}
	return count, nil
}

func (r *BudgetRepository) SetCount(ctx context.Context, day time.Time, count int64) error {
	query, args, err := qb.Update("api_budget").
		Set("request_count", count).
		SetExpr("updated_at", "NOW()").
		Where(qb.Eq("day", budget.DayOf(day))).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build set api budget query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set api budget day=%s: %w", budget.DayKey(day), err)
	}
	return nil
}
