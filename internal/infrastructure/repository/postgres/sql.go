package postgres

import (
	"database/sql"
	"errors"
	"fmt"
)

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// dedupeByKey keeps the last occurrence of each key at the position of its
// first occurrence. Postgres rejects an upsert that touches one row twice.
func dedupeByKey[T any, K comparable](rows []T, key func(T) K) []T {
	if len(rows) < 2 {
		return rows
	}
	index := make(map[K]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		k := key(row)
		if i, ok := index[k]; ok {
			out[i] = row
			continue
		}
		index[k] = len(out)
		out = append(out, row)
	}
	return out
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, sql.ErrNoRows)
	}
	return nil
}
