package recur

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const importJSON = `{
	"start": "2014-01-01",
	"end": "2014-12-31",
	"timeOfDay": 500,
	"rules": [{"units": {"2": true}, "measure": "days"}],
	"exceptions": ["2014-01-05"]
}`

func exportable(t *testing.T) *Recurrence {
	t.Helper()
	r := New(date("2014-01-01"), WithEnd(date("2014-12-31")))
	require.NoError(t, r.Add(Days, 2))
	r.Except(date("2014-01-05"))
	return r
}

func TestImport(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(importJSON), &rec))

	r, err := FromRecord(rec)
	require.NoError(t, err)

	assert.Equal(t, "2014-01-01", r.Start().Format(dateFormat))
	end, ok := r.End()
	require.True(t, ok)
	assert.Equal(t, "2014-12-31", end.Format(dateFormat))
	assert.Equal(t, 500*time.Millisecond, r.TimeOfDay())
	assert.Len(t, r.Rules(), 1)
	assert.Len(t, r.Exceptions(), 1)
	assert.True(t, r.Matches(date("2014-01-03")))
	assert.False(t, r.Matches(date("2014-01-05")))
}

func TestUnmarshalRecurrence(t *testing.T) {
	hk, err := time.LoadLocation("Asia/Hong_Kong")
	require.NoError(t, err)

	r := New(Date{}, WithLocation(hk))
	require.NoError(t, json.Unmarshal([]byte(importJSON), r))
	assert.Equal(t, date("2014-01-01"), r.Start())
	assert.Equal(t, hk, r.Location())
	assert.True(t, r.Matches(date("2014-01-03")))
}

func TestSave(t *testing.T) {
	data := exportable(t).Save()

	assert.Equal(t, "2014-01-01", data.Start)
	assert.Equal(t, int64(0), data.TimeOfDay)
	assert.Equal(t, "2014-12-31", data.End)
	assert.Equal(t, "2014-01-05", data.Exceptions[0])
	assert.Equal(t, Units{2}, data.Rules[0].Units)
	assert.Equal(t, Days, data.Rules[0].Measure)
}

func TestMarshalJSON(t *testing.T) {
	raw, err := json.Marshal(exportable(t))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"start": "2014-01-01",
		"end": "2014-12-31",
		"timeOfDay": 0,
		"rules": [{"units": {"2": true}, "measure": "days"}],
		"exceptions": ["2014-01-05"]
	}`, string(raw))

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	rule := generic["rules"].([]any)[0].(map[string]any)
	assert.Equal(t, true, rule["units"].(map[string]any)["2"])
}

func TestMarshalJSONOpenEnded(t *testing.T) {
	r := New(date("2014-01-01"))
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2014-01-01","timeOfDay":0,"rules":[],"exceptions":[]}`, string(raw))
}

func TestExportTimeOfDay(t *testing.T) {
	r := NewAt(time.Date(2014, time.January, 1, 7, 50, 0, 0, time.UTC), WithEnd(date("2014-12-31")))
	require.NoError(t, r.Add(Days, 2))
	r.Except(date("2014-01-05"))

	assert.Equal(t, int64(28200000), r.Save().TimeOfDay)
}

func TestFromRecordStartWithTime(t *testing.T) {
	r, err := FromRecord(Record{Start: "2014-01-01T07:00:00"})
	require.NoError(t, err)
	assert.Equal(t, date("2014-01-01"), r.Start())
	assert.Equal(t, 7*time.Hour, r.TimeOfDay())
}

func TestFromRecordByDayOrder(t *testing.T) {
	rec := Record{
		Start: "2017-09-01",
		Rules: []RuleRecord{
			{Units: Units{3}, Measure: WeeksOfMonthByDay},
			{Units: Units{"Wednesday"}, Measure: DaysOfWeek},
		},
	}
	r, err := FromRecord(rec)
	require.NoError(t, err)
	assert.True(t, r.Matches(date("2017-09-27")))
	assert.False(t, r.Matches(date("2017-09-20")))
}

func TestFromRecordErrors(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want error
	}{
		{name: "missing start", rec: Record{}, want: ErrMissingStart},
		{name: "bad start", rec: Record{Start: "soon"}, want: ErrInvalidDate},
		{name: "bad end", rec: Record{Start: "2014-01-01", End: "later"}, want: ErrInvalidDate},
		{name: "bad exception", rec: Record{Start: "2014-01-01", Exceptions: []string{"x"}}, want: ErrInvalidDate},
		{
			name: "bad unit",
			rec:  Record{Start: "2014-01-01", Rules: []RuleRecord{{Units: Units{0}, Measure: Days}}},
			want: ErrInvalidUnit,
		},
		{
			name: "byDay alone",
			rec:  Record{Start: "2014-01-01", Rules: []RuleRecord{{Units: Units{0}, Measure: WeeksOfMonthByDay}}},
			want: ErrByDayWithoutDaysOfWeek,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromRecord(tt.rec)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUnitsJSONForms(t *testing.T) {
	var u Units
	require.NoError(t, json.Unmarshal([]byte(`{"3": true, "1": true, "2": false}`), &u))
	assert.Equal(t, Units{1, 3}, u)

	require.NoError(t, json.Unmarshal([]byte(`["Sunday", 1]`), &u))
	r := New(date("2015-01-01"))
	require.NoError(t, r.Add(DaysOfWeek, u...))
	assert.Equal(t, []int{0, 1}, r.Rules()[0].Units)

	assert.ErrorIs(t, json.Unmarshal([]byte(`"2"`), &u), ErrInvalidUnit)
}

func TestRecordYAML(t *testing.T) {
	src := `
start: "2014-01-01"
end: "2014-12-31"
timeOfDay: 0
rules:
  - units: {2: true}
    measure: days
  - units: [Sunday, Monday]
    measure: daysOfWeek
exceptions: ["2014-01-05"]
`
	var rec Record
	require.NoError(t, yaml.Unmarshal([]byte(src), &rec))

	r, err := FromRecord(rec)
	require.NoError(t, err)
	assert.True(t, r.Matches(date("2014-01-13")))  // Monday, even offset
	assert.False(t, r.Matches(date("2014-01-05"))) // exception
	assert.False(t, r.Matches(date("2014-01-03"))) // Friday

	out, err := yaml.Marshal(r.Save())
	require.NoError(t, err)

	var back Record
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, r.Save(), back)
}

func TestRoundTrip(t *testing.T) {
	build := []func(r *Recurrence) error{
		func(r *Recurrence) error { return r.Add(Weeks, 2, 3) },
		func(r *Recurrence) error { return r.DaysOfMonth(31) },
		func(r *Recurrence) error {
			if err := r.DaysOfWeek(time.Sunday, time.Thursday); err != nil {
				return err
			}
			return r.WeeksOfMonthByDay(1, LastOccurrence)
		},
		func(r *Recurrence) error { return r.MonthsOfYear(time.February, time.March) },
		func(r *Recurrence) error { return r.WeeksOfYear(1, 20, 52) },
		func(r *Recurrence) error { return r.WeeksOfMonth(0, 4) },
		func(r *Recurrence) error { return r.Years(1) },
	}
	for _, ws := range []time.Weekday{time.Sunday, time.Monday} {
		for i, fn := range build {
			r := New(date("2012-01-31"), WithEnd(date("2014-03-31")), WithTimeOfDay(90*time.Minute), WithWeekStart(ws))
			require.NoError(t, fn(r), "case %d", i)
			r.Except(date("2012-03-04"))

			raw, err := json.Marshal(r)
			require.NoError(t, err)

			loaded := &Recurrence{}
			require.NoError(t, json.Unmarshal(raw, loaded))
			assert.Equal(t, r.TimeOfDay(), loaded.TimeOfDay())
			assert.Equal(t, ws, loaded.WeekStart())

			for d := r.Start(); !d.After(date("2014-03-31")); d = d.AddDays(1) {
				if r.Matches(d) != loaded.Matches(d) {
					t.Fatalf("%s weeks, case %d: %s matches %v before and %v after the round trip",
						ws, i, d, r.Matches(d), loaded.Matches(d))
				}
			}
		}
	}
}

func TestWeekStartRecord(t *testing.T) {
	r := New(date("2024-01-01"), WithEnd(date("2024-12-31")), WithWeekStart(time.Monday))
	require.NoError(t, r.WeeksOfYear(1))

	rec := r.Save()
	assert.Equal(t, "monday", rec.WeekStart)

	loaded, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, loaded.WeekStart())
	// ISO week 1 of 2024 runs Monday Jan 1 to Sunday Jan 7.
	assert.True(t, loaded.Matches(date("2024-01-07")))
	assert.False(t, loaded.Matches(date("2024-12-29")))

	// The recorded week start wins over the caller's option.
	loaded, err = FromRecord(rec, WithWeekStart(time.Sunday))
	require.NoError(t, err)
	assert.Equal(t, time.Monday, loaded.WeekStart())

	// Sunday weeks keep the plain record shape.
	raw, err := json.Marshal(New(date("2024-01-01")))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "weekStart")

	loaded, err = FromRecord(Record{Start: "2024-01-01"}, WithWeekStart(time.Monday))
	require.NoError(t, err)
	assert.Equal(t, time.Monday, loaded.WeekStart())

	loaded, err = FromRecord(Record{Start: "2024-01-01", WeekStart: "Sat"})
	require.NoError(t, err)
	assert.Equal(t, time.Saturday, loaded.WeekStart())

	_, err = FromRecord(Record{Start: "2024-01-01", WeekStart: "someday"})
	assert.ErrorIs(t, err, ErrInvalidUnit)
}

func TestFromRecordTimeOfDayRange(t *testing.T) {
	for _, ms := range []int64{-1, 86_400_000, 90_000_000} {
		_, err := FromRecord(Record{Start: "2024-01-01", TimeOfDay: ms})
		assert.ErrorIs(t, err, ErrInvalidTimeOfDay, "%d", ms)
	}

	r, err := FromRecord(Record{Start: "2024-01-01", TimeOfDay: 86_399_999})
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour-time.Millisecond, r.TimeOfDay())
}
