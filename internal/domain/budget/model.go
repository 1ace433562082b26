package budget

import "time"

// Counter is the request tally for one UTC calendar day.
type Counter struct {
	Day          time.Time
	RequestCount int64
}

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayKey is the canonical yyyy-mm-dd form used as a storage key.
func DayKey(t time.Time) string {
	return DayOf(t).Format(time.DateOnly)
}
