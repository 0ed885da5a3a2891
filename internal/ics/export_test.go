package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurcal/internal/model"
	"recurcal/recur"
)

func exportSchedules(t *testing.T) []model.Schedule {
	t.Helper()

	payday := recur.New(date("2024-01-01"), recur.WithEnd(date("2024-06-30")))
	require.NoError(t, payday.DaysOfMonth(31))
	payday.Except(date("2024-04-30"))

	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	standup := recur.New(date("2024-01-01"),
		recur.WithTimeOfDay(9*time.Hour),
		recur.WithLocation(seoul),
	)
	require.NoError(t, standup.Every(1).Weeks())

	review := recur.New(date("2024-01-01"), recur.WithEnd(date("2024-01-31")))
	require.NoError(t, review.WeeksOfMonth(1))
	require.NoError(t, review.DaysOfWeek("thursday"))

	return []model.Schedule{
		{ID: "payday", Name: "Payday", Recurrence: payday},
		{ID: "standup", Name: "Standup", Recurrence: standup},
		{ID: "review", Name: "Review", Recurrence: review},
	}
}

func TestExport(t *testing.T) {
	out, err := Export(exportSchedules(t), ExportOptions{Now: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	assert.Contains(t, out, "PRODID:-//recurcal//Golang ICS Library")
	assert.Equal(t, 3, strings.Count(out, "BEGIN:VEVENT"))
	assert.Contains(t, out, "UID:payday")
	assert.Contains(t, out, "SUMMARY:Payday")
	assert.Contains(t, out, "DTSTAMP:20240101T000000Z")
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20240131")
	assert.Contains(t, out, "RRULE:FREQ=DAILY;BYMONTHDAY=-1;UNTIL=20240630")
	assert.Contains(t, out, "EXDATE;VALUE=DATE:20240430")

	assert.Contains(t, out, "Asia/Seoul")
	assert.Contains(t, out, "20240101T090000")
	assert.Contains(t, out, "RRULE:FREQ=WEEKLY")

	// Second week Thursdays of January 2024 has no RRULE form.
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20240111")
	assert.NotContains(t, out, "RDATE")
}

func TestExportRoundTrip(t *testing.T) {
	schedules := exportSchedules(t)
	out, err := Export(schedules, ExportOptions{})
	require.NoError(t, err)

	events, err := Parse(Feed{ID: "export"}, []byte(out))
	require.NoError(t, err)
	require.Len(t, events, 3)

	for i, ev := range events {
		assert.Equal(t, schedules[i].ID, ev.UID)
	}

	payday, err := events[0].Recurrence()
	require.NoError(t, err)
	got, err := payday.AllDates()
	require.NoError(t, err)
	want, err := schedules[0].Recurrence.AllDates()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	standup, err := events[1].Recurrence()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Seoul", standup.Location().String())
	assert.Equal(t, 9*time.Hour, standup.TimeOfDay())
	next, err := standup.NextDates(2)
	require.NoError(t, err)
	assert.Equal(t, dates("2024-01-08", "2024-01-15"), next)
}

func TestExportRDates(t *testing.T) {
	r := recur.New(date("2024-01-01"), recur.WithEnd(date("2024-03-31")))
	require.NoError(t, r.WeeksOfMonth(1))
	require.NoError(t, r.DaysOfWeek("monday"))

	out, err := Export([]model.Schedule{{ID: "second-week", Name: "Second week", Recurrence: r}}, ExportOptions{})
	require.NoError(t, err)

	events, err := Parse(Feed{ID: "export"}, []byte(out))
	require.NoError(t, err)
	require.Len(t, events, 1)

	got, err := ExpandDates(events, date("2024-01-01"), date("2024-03-31"), 0)
	require.NoError(t, err)
	want, err := r.AllDates()
	require.NoError(t, err)
	assert.Equal(t, dates("2024-01-08", "2024-02-05", "2024-03-04"), want)
	assert.Equal(t, want, got)
}

func TestExportErrors(t *testing.T) {
	open := recur.New(date("2024-01-01"))
	require.NoError(t, open.WeeksOfYear(10))
	_, err := Export([]model.Schedule{{ID: "open", Recurrence: open}}, ExportOptions{})
	assert.ErrorIs(t, err, recur.ErrNoEnd)

	_, err = Export([]model.Schedule{{ID: "empty"}}, ExportOptions{})
	assert.Error(t, err)
}
