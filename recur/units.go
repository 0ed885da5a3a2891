package recur

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// LastOccurrence is the weeksOfMonthByDay unit for "the last such weekday
// of the month".
const LastOccurrence = -1

type unitRange struct {
	min, max int
}

// Accepted unit values per measure. Interval measures take any n >= 1.
var unitRanges = map[Measure]unitRange{
	DaysOfWeek:        {0, 6},
	DaysOfMonth:       {1, 31},
	WeeksOfMonth:      {0, 5},
	WeeksOfYear:       {1, 53},
	MonthsOfYear:      {0, 11},
	WeeksOfMonthByDay: {LastOccurrence, 4},
}

var weekdayByName = map[string]int{
	"sunday": 0, "sun": 0,
	"monday": 1, "mon": 1,
	"tuesday": 2, "tue": 2,
	"wednesday": 3, "wed": 3,
	"thursday": 4, "thu": 4,
	"friday": 5, "fri": 5,
	"saturday": 6, "sat": 6,
}

var monthByName = map[string]int{
	"january": 0, "jan": 0,
	"february": 1, "feb": 1,
	"march": 2, "mar": 2,
	"april": 3, "apr": 3,
	"may":  4,
	"june": 5, "jun": 5,
	"july": 6, "jul": 6,
	"august": 7, "aug": 7,
	"september": 8, "sep": 8,
	"october": 9, "oct": 9,
	"november": 10, "nov": 10,
	"december": 11, "dec": 11,
}

// normalizeUnits converts caller-supplied units into the sorted, de-duplicated
// integer set stored on a Rule.
func normalizeUnits(m Measure, units []any) ([]int, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoUnits, m)
	}
	out := make([]int, 0, len(units))
	for _, u := range units {
		v, err := unitValue(m, u)
		if err != nil {
			return nil, err
		}
		if err := checkUnit(m, v); err != nil {
			return nil, err
		}
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out, nil
}

func unitValue(m Measure, u any) (int, error) {
	switch v := u.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) {
			return int(v), nil
		}
	case float32:
		if float64(v) == math.Trunc(float64(v)) {
			return int(v), nil
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), nil
		}
	case time.Weekday:
		if m == DaysOfWeek {
			return int(v), nil
		}
	case time.Month:
		if m == MonthsOfYear {
			return int(v) - 1, nil
		}
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
		var names map[string]int
		switch m {
		case DaysOfWeek:
			names = weekdayByName
		case MonthsOfYear:
			names = monthByName
		}
		if n, ok := names[strings.ToLower(s)]; ok {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: %v (%T) for %s", ErrInvalidUnit, u, u, m)
}

func checkUnit(m Measure, v int) error {
	if m.IsInterval() {
		if v < 1 {
			return fmt.Errorf("%w: interval %d for %s must be at least 1", ErrInvalidUnit, v, m)
		}
		return nil
	}
	r, ok := unitRanges[m]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownMeasure, int(m))
	}
	if v < r.min || v > r.max {
		return fmt.Errorf("%w: %d for %s out of range [%d, %d]", ErrInvalidUnit, v, m, r.min, r.max)
	}
	return nil
}
