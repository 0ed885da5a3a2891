package model

import (
	"time"

	"recurcal/recur"
)

// Schedule is a named recurrence resolved from configuration, with holiday
// exceptions already applied.
type Schedule struct {
	ID   string
	Name string

	Recurrence *recur.Recurrence

	// Holidays counts the exception dates contributed by holiday feeds.
	Holidays int
}

// Occurrence is a single concrete instance of a schedule.
type Occurrence struct {
	ScheduleID string `json:"schedule_id"`

	Date recur.Date `json:"date"`

	// Start is Date at the schedule time of day in the schedule location.
	Start time.Time `json:"start"`
}

// Occurrences pairs generated instants with their schedule.
func Occurrences(scheduleID string, times []time.Time) []Occurrence {
	out := make([]Occurrence, len(times))
	for i, t := range times {
		out[i] = Occurrence{ScheduleID: scheduleID, Date: recur.DateOf(t), Start: t}
	}
	return out
}
