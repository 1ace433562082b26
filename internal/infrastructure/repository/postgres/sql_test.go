package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	if !isNotFound(fmt.Errorf("select game: %w", sql.ErrNoRows)) {
		t.Fatalf("expected wrapped ErrNoRows to be not found")
	}
	if isNotFound(errors.New("pq: relation games does not exist")) {
		t.Fatalf("expected unrelated error to be ignored")
	}
}

func TestDedupeByKey(t *testing.T) {
	type row struct {
		key   string
		value int
	}

	t.Run("keeps last value at first position", func(t *testing.T) {
		got := dedupeByKey([]row{{"a", 1}, {"b", 2}, {"a", 3}}, func(r row) string { return r.key })
		if len(got) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(got))
		}
		if got[0].key != "a" || got[0].value != 3 {
			t.Fatalf("unexpected first row: %+v", got[0])
		}
		if got[1].key != "b" {
			t.Fatalf("unexpected second row: %+v", got[1])
		}
	})

	t.Run("short input unchanged", func(t *testing.T) {
		got := dedupeByKey([]row{{"a", 1}}, func(r row) string { return r.key })
		if len(got) != 1 {
			t.Fatalf("expected 1 row, got %d", len(got))
		}
	})
}

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

func TestRequireAffected(t *testing.T) {
	if err := requireAffected(fakeResult(1), "update game"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := requireAffected(fakeResult(0), "update game")
	if !isNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
