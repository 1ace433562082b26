package postgres

import "time"

type elementTableModel struct {
	GameID            int64     `db:"game_id"`
	ExternalElementID int64     `db:"external_element_id"`
	FullName          string    `db:"full_name"`
	ShortName         string    `db:"short_name"`
	TeamID            int64     `db:"team_id"`
	TeamName          string    `db:"team_name"`
	Trend             int       `db:"trend"`
	Growth            int64     `db:"growth"`
	TotalGrowth       int64     `db:"total_growth"`
	Value             int64     `db:"value"`
	Popularity        float64   `db:"popularity"`
	IsInjured         bool      `db:"is_injured"`
	IsSuspended       bool      `db:"is_suspended"`
	UpdatedAt         time.Time `db:"updated_at"`
}

type elementKey struct {
	gameID    int64
	elementID int64
}
