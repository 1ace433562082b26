package usecase

import (
	"errors"

	crerr "github.com/cockroachdb/errors"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrSyncInProgress        = errors.New("sync already in progress")

	// ErrBudgetExhausted tags calls refused by the daily request budget. It is
	// distinct from an upstream 429 so callers can alert on it separately.
	ErrBudgetExhausted = crerr.New("api budget exhausted")
)

// IsBudgetExhausted reports whether err carries the budget marker anywhere in its chain.
func IsBudgetExhausted(err error) bool {
	return crerr.Is(err, ErrBudgetExhausted)
}
