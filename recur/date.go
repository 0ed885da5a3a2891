package recur

import (
	"cmp"
	"encoding"
	"fmt"
	"strings"
	"time"
)

// Date is a calendar date without time of day or location. It is the key
// used for bounds, exceptions and rule evaluation: two instants that fall on
// the same calendar day in their own timezones produce equal Dates.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// Layouts accepted by ParseTime, tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	dateLayout,
	"20060102T150405Z0700",
	"20060102T150405",
	"20060102",
}

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Date{}
	_ encoding.TextMarshaler   = Date{}
	_ encoding.TextUnmarshaler = (*Date)(nil)
)

// NewDate returns the date for year, month and day. Out-of-range values are
// normalized the way time.Date does (Jan 32 becomes Feb 1).
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseTime parses s in one of the accepted layouts: 2006-01-02,
// 2006-01-02T15:04:05 (optionally with fractional seconds), RFC 3339, and the
// iCalendar basic forms 20060102 and 20060102T150405[Z]. Values that carry
// no zone are read in loc (UTC when loc is nil).
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// ParseDate parses s with ParseTime and returns its calendar date. A value
// with an explicit zone yields the calendar date in that zone.
func ParseDate(s string) (Date, error) {
	t, err := ParseTime(s, time.UTC)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// MustParseDate is like ParseDate but panics on malformed input.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// In returns midnight of d in loc (UTC when loc is nil).
func (d Date) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) utc() time.Time {
	return d.In(time.UTC)
}

// days returns the number of days since the Unix epoch.
func (d Date) days() int64 {
	return d.utc().Unix() / 86400
}

// String formats d as 2006-01-02. The zero Date formats as "".
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.utc().Format(dateLayout)
}

// Format formats midnight of d with a Go time layout.
func (d Date) Format(layout string) string {
	return d.utc().Format(layout)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Date{}
		return nil
	}
	v, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after o.
func (d Date) Compare(o Date) int {
	if c := cmp.Compare(d.Year, o.Year); c != 0 {
		return c
	}
	if c := cmp.Compare(d.Month, o.Month); c != 0 {
		return c
	}
	return cmp.Compare(d.Day, o.Day)
}

// Before reports whether d is before o.
func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

// After reports whether d is after o.
func (d Date) After(o Date) bool { return d.Compare(o) > 0 }

// Weekday returns the day of the week, Sunday = 0.
func (d Date) Weekday() time.Weekday {
	return d.utc().Weekday()
}

// DayOfYear returns the 1-based day of the year.
func (d Date) DayOfYear() int {
	return d.utc().YearDay()
}

// DaysInMonth returns the number of days in d's month.
func (d Date) DaysInMonth() int {
	return daysIn(d.Year, d.Month)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// WeekOfMonth returns the 0-based week of the month, counting weeks that
// begin on weekStart. Days before the first weekStart of the month are in
// week 0.
func (d Date) WeekOfMonth(weekStart time.Weekday) int {
	first := Date{Year: d.Year, Month: d.Month, Day: 1}
	return (d.Day - 1 + weekOffset(first, weekStart)) / 7
}

// WeekOfYear returns the 1-based week of the year. With a Monday week start
// this is the ISO 8601 week. For any other week start, week 1 is the week
// containing January 1st, so the last days of December may already belong
// to week 1 of the following year.
func (d Date) WeekOfYear(weekStart time.Weekday) int {
	if weekStart == time.Monday {
		_, w := d.utc().ISOWeek()
		return w
	}
	next := Date{Year: d.Year + 1, Month: time.January, Day: 1}
	if off := weekOffset(next, weekStart); off > 0 && d.days() >= next.days()-int64(off) {
		return 1
	}
	jan1 := Date{Year: d.Year, Month: time.January, Day: 1}
	return (d.DayOfYear()-1+weekOffset(jan1, weekStart))/7 + 1
}

// weekOffset is the number of days between the start of d's week and d.
func weekOffset(d Date, weekStart time.Weekday) int {
	return (int(d.Weekday()) - int(weekStart) + 7) % 7
}

// OccurrenceInMonth returns how many times d's weekday occurred in the month
// before d: 0 for the first Sunday of a month, 1 for the second, and so on.
func (d Date) OccurrenceInMonth() int {
	return (d.Day - 1) / 7
}

// IsLastOccurrenceInMonth reports whether d is the last day of its weekday
// within its month.
func (d Date) IsLastOccurrenceInMonth() bool {
	return d.Day+7 > d.DaysInMonth()
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.utc().AddDate(0, 0, n))
}

// addMonths shifts d by n months, clamping the day to the end of the target
// month (Jan 31 + 1 month = Feb 28 or 29).
func (d Date) addMonths(n int) Date {
	first := time.Date(d.Year, d.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	y, m, _ := first.Date()
	return Date{Year: y, Month: m, Day: min(d.Day, daysIn(y, m))}
}

// AddUnits returns d shifted by n units of an interval measure. Months and
// years clamp to the end of the month. Calendar measures leave d unchanged.
func (d Date) AddUnits(m Measure, n int) Date {
	switch m {
	case Days:
		return d.AddDays(n)
	case Weeks:
		return d.AddDays(7 * n)
	case Months:
		return d.addMonths(n)
	case Years:
		return d.addMonths(12 * n)
	}
	return d
}

// DiffUnits returns the signed number of whole interval units from b to a,
// truncated toward zero. Calendar measures return 0.
func DiffUnits(a, b Date, m Measure) int {
	switch m {
	case Days:
		return int(a.days() - b.days())
	case Weeks:
		return int((a.days() - b.days()) / 7)
	case Months, Years:
		n := (a.Year-b.Year)*12 + int(a.Month) - int(b.Month)
		if c := b.addMonths(n); n > 0 && c.After(a) {
			n--
		} else if n < 0 && c.Before(a) {
			n++
		}
		if m == Years {
			n /= 12
		}
		return n
	}
	return 0
}
