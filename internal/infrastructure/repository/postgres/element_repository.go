package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/manager-sync/internal/domain/element"
	qb "github.com/riskibarqy/manager-sync/internal/platform/querybuilder"
)

var elementConflictColumns = []string{"game_id", "external_element_id"}

type ElementRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewElementRepository(db *sqlx.DB) *ElementRepository {
	return &ElementRepository{db: db, now: time.Now}
}

func (r *ElementRepository) UpsertBatch(ctx context.Context, rows []element.Element) error {
	if len(rows) == 0 {
		return nil
	}
	query, args, err := r.upsertQuery(rows)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert elements batch size=%d: %w", len(rows), err)
	}
	return nil
}

func (r *ElementRepository) upsertQuery(rows []element.Element) (string, []any, error) {
	now := r.now().UTC()
	models := make([]elementTableModel, 0, len(rows))
	for _, row := range rows {
		models = append(models, elementToModel(row, now))
	}
	models = dedupeByKey(models, func(m elementTableModel) elementKey {
		return elementKey{gameID: m.GameID, elementID: m.ExternalElementID}
	})

	updateCols, err := qb.Columns(elementTableModel{}, elementConflictColumns...)
	if err != nil {
		return "", nil, fmt.Errorf("element update columns: %w", err)
	}
	query, args, err := qb.InsertModels("elements", models, qb.OnConflictUpdate(elementConflictColumns, updateCols))
	if err != nil {
		return "", nil, fmt.Errorf("build upsert elements query: %w", err)
	}
	return query, args, nil
}

func (r *ElementRepository) ListByGame(ctx context.Context, gameID int64) ([]element.Element, error) {
	query, args, err := qb.Select("*").From("elements").
		Where(qb.Eq("game_id", gameID)).
		OrderBy("external_element_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select elements by game query: %w", err)
	}

	var rows []elementTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select elements by game: %w", err)
	}

	out := make([]element.Element, 0, len(rows))
	for _, row := range rows {
		out = append(out, element.Element{
			GameID:            row.GameID,
			ExternalElementID: row.ExternalElementID,
			FullName:          row.FullName,
			ShortName:         row.ShortName,
			TeamID:            row.TeamID,
			TeamName:          row.TeamName,
			Trend:             row.Trend,
			Growth:            row.Growth,
			TotalGrowth:       row.TotalGrowth,
			Value:             row.Value,
			Popularity:        row.Popularity,
			IsInjured:         row.IsInjured,
			IsSuspended:       row.IsSuspended,
			UpdatedAt:         row.UpdatedAt,
		})
	}
	return out, nil
}

func elementToModel(row element.Element, now time.Time) elementTableModel {
	return elementTableModel{
		GameID:            row.GameID,
		ExternalElementID: row.ExternalElementID,
		FullName:          row.FullName,
		ShortName:         row.ShortName,
		TeamID:            row.TeamID,
		TeamName:          row.TeamName,
		Trend:             row.Trend,
		Growth:            row.Growth,
		TotalGrowth:       row.TotalGrowth,
		Value:             row.Value,
		Popularity:        row.Popularity,
		IsInjured:         row.IsInjured,
		IsSuspended:       row.IsSuspended,
		UpdatedAt:         now,
	}
}
