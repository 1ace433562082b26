package element

import "time"

// Element is one selectable player/asset in a game, keyed by
// (GameID, ExternalElementID). Every sync replaces all fields.
type Element struct {
	GameID            int64
	ExternalElementID int64
	FullName          string
	ShortName         string
	TeamID            int64
	TeamName          string
	Trend             int
	Growth            int64
	TotalGrowth       int64
	Value             int64
	Popularity        float64
	IsInjured         bool
	IsSuspended       bool
	UpdatedAt         time.Time
}
