package synclog

import "time"

type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

func (t Trigger) Valid() bool {
	return t == TriggerManual || t == TriggerScheduled
}

type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Entry records one sync attempt of one game. It is created as started and
// moved exactly once to completed or failed.
type Entry struct {
	ID             int64
	GameID         int64
	Trigger        Trigger
	Status         Status
	ElementsSynced int
	UsersSynced    int
	RequestsUsed   int
	ErrorMessage   string
	StartedAt      time.Time
	CompletedAt    *time.Time
	DurationMs     int64
}

// Outcome is the terminal state written by Repository.Finish.
type Outcome struct {
	Status         Status
	ElementsSynced int
	UsersSynced    int
	RequestsUsed   int
	ErrorMessage   string
	CompletedAt    time.Time
}
