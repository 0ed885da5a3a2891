package recur

import (
	"encoding"
	"encoding/json"
	"fmt"
	"strings"
)

// Measure is the calendar unit a Rule is defined over.
type Measure int

const (
	Days              Measure = iota + 1 // Every n days from start.
	Weeks                                // Every n weeks from start.
	Months                               // Every n months from start.
	Years                                // Every n years from start.
	DaysOfWeek                           // Day of week, 0 = Sunday.
	DaysOfMonth                          // Day of month, 1-31.
	WeeksOfMonth                         // 0-based week of month.
	WeeksOfYear                          // 1-based week of year.
	MonthsOfYear                         // Month of year, 0 = January.
	WeeksOfMonthByDay                    // 0-based occurrence of the weekday in the month.
)

var (
	measureNames = [...]string{
		Days:              "days",
		Weeks:             "weeks",
		Months:            "months",
		Years:             "years",
		DaysOfWeek:        "daysOfWeek",
		DaysOfMonth:       "daysOfMonth",
		WeeksOfMonth:      "weeksOfMonth",
		WeeksOfYear:       "weeksOfYear",
		MonthsOfYear:      "monthsOfYear",
		WeeksOfMonthByDay: "weeksOfMonthByDay",
	}
	// Keys are lower case; singular forms are accepted as aliases.
	measureByName = map[string]Measure{
		"days":              Days,
		"day":               Days,
		"weeks":             Weeks,
		"week":              Weeks,
		"months":            Months,
		"month":             Months,
		"years":             Years,
		"year":              Years,
		"daysofweek":        DaysOfWeek,
		"dayofweek":         DaysOfWeek,
		"daysofmonth":       DaysOfMonth,
		"dayofmonth":        DaysOfMonth,
		"weeksofmonth":      WeeksOfMonth,
		"weekofmonth":       WeeksOfMonth,
		"weeksofyear":       WeeksOfYear,
		"weekofyear":        WeeksOfYear,
		"monthsofyear":      MonthsOfYear,
		"monthofyear":       MonthsOfYear,
		"weeksofmonthbyday": WeeksOfMonthByDay,
		"weekofmonthbyday":  WeeksOfMonthByDay,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Measure(0)
	_ json.Marshaler           = Measure(0)
	_ json.Unmarshaler         = (*Measure)(nil)
	_ encoding.TextMarshaler   = Measure(0)
	_ encoding.TextUnmarshaler = (*Measure)(nil)
)

// Measures lists every measure in declaration order.
func Measures() []Measure {
	out := make([]Measure, 0, len(measureNames)-1)
	for m := Days; m <= WeeksOfMonthByDay; m++ {
		out = append(out, m)
	}
	return out
}

// ParseMeasure returns the measure named s. Matching is case-insensitive
// and accepts singular aliases ("day", "weekOfYear").
func ParseMeasure(s string) (Measure, error) {
	m, ok := measureByName[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMeasure, s)
	}
	return m, nil
}

func (m Measure) isValid() bool {
	return m >= Days && m <= WeeksOfMonthByDay
}

// IsInterval reports whether m counts elapsed units from the start date
// (days, weeks, months, years) rather than reading a calendar field.
func (m Measure) IsInterval() bool {
	return m >= Days && m <= Years
}

// String returns the wire name of the measure ("days", "daysOfWeek", ...).
// For invalid values it returns "Measure(n)".
func (m Measure) String() string {
	if m.isValid() {
		return measureNames[m]
	}
	return fmt.Sprintf("Measure(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Measure) MarshalText() ([]byte, error) {
	if !m.isValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMeasure, int(m))
	}
	return []byte(measureNames[m]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Measure) UnmarshalText(text []byte) error {
	v, err := ParseMeasure(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// MarshalJSON implements json.Marshaler. Measure serializes as a JSON string.
func (m Measure) MarshalJSON() ([]byte, error) {
	text, err := m.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (m *Measure) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownMeasure, data)
	}
	return m.UnmarshalText([]byte(s))
}
