package game

import (
	"context"
	"time"
)

// Repository describes game persistence needs from use cases.
type Repository interface {
	List(ctx context.Context) ([]Game, error)
	ListActive(ctx context.Context) ([]Game, error)
	GetByID(ctx context.Context, id int64) (Game, bool, error)
	UpdateMetadata(ctx context.Context, id int64, meta Metadata) error
	MarkSynced(ctx context.Context, id int64, at time.Time) error
}
