package postgres

import "time"

type apiBudgetTableModel struct {
	Day          time.Time `db:"day"`
	RequestCount int64     `db:"request_count"`
}
