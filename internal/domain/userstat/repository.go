package userstat

import "context"

type Repository interface {
	UpsertBatch(ctx context.Context, rows []UserGameStat) error
	CountByGame(ctx context.Context, gameID int64) (int, error)
}
