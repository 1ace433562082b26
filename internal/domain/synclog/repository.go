package synclog

import "context"

type Repository interface {
	// Start inserts a started entry and returns its id.
	Start(ctx context.Context, entry Entry) (int64, error)
	Finish(ctx context.Context, id int64, outcome Outcome) error
	ListByGame(ctx context.Context, gameID int64, limit int) ([]Entry, error)
}
