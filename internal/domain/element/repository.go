package element

import "context"

type Repository interface {
	// UpsertBatch writes all rows in one statement; a failure leaves none written.
	UpsertBatch(ctx context.Context, rows []Element) error
	ListByGame(ctx context.Context, gameID int64) ([]Element, error)
}
