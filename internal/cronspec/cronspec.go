// Package cronspec imports day-granular cron expressions as recurrences.
package cronspec

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"recurcal/recur"
)

// ErrUnsupportedCron is returned for cron expressions with no recurrence
// equivalent: sub-daily schedules, @every, and day-of-month combined with
// day-of-week (which cron ORs together).
var ErrUnsupportedCron = errors.New("cronspec: unsupported cron expression")

// starBit marks a field written as * or ?.
const starBit = 1 << 63

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse converts a 5-field cron expression or descriptor (@daily, @weekly,
// @monthly, @yearly) into a recurrence starting on start. The minute and
// hour set the time of day; a CRON_TZ= prefix sets the location.
//
// Days 29-31 follow recurrence semantics and fall back to the last day of
// shorter months, where cron would skip them.
func Parse(expr string, start recur.Date, opts ...recur.Option) (*recur.Recurrence, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	spec, ok := sched.(*cron.SpecSchedule)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not calendar based", ErrUnsupportedCron, expr)
	}

	minute, ok := single(spec.Minute)
	if !ok {
		return nil, fmt.Errorf("%w: %q runs more than once an hour", ErrUnsupportedCron, expr)
	}
	hour, ok := single(spec.Hour)
	if !ok {
		return nil, fmt.Errorf("%w: %q runs more than once a day", ErrUnsupportedCron, expr)
	}

	domStar := spec.Dom&starBit != 0
	dowStar := spec.Dow&starBit != 0
	if !domStar && !dowStar {
		return nil, fmt.Errorf("%w: %q restricts both day of month and day of week", ErrUnsupportedCron, expr)
	}

	opts = append([]recur.Option{recur.WithTimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)}, opts...)
	if hasZone(expr) {
		opts = append(opts, recur.WithLocation(spec.Location))
	}
	r := recur.New(start, opts...)

	if !domStar {
		if err := r.DaysOfMonth(units(spec.Dom, 1, 31, 0)...); err != nil {
			return nil, err
		}
	}
	if spec.Month&starBit == 0 {
		if err := r.MonthsOfYear(units(spec.Month, 1, 12, -1)...); err != nil {
			return nil, err
		}
	}
	if !dowStar {
		if err := r.DaysOfWeek(units(spec.Dow, 0, 6, 0)...); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func hasZone(expr string) bool {
	expr = strings.TrimSpace(expr)
	return strings.HasPrefix(expr, "CRON_TZ=") || strings.HasPrefix(expr, "TZ=")
}

// single returns the only value set in a field.
func single(field uint64) (int, bool) {
	field &^= starBit
	if bits.OnesCount64(field) != 1 {
		return 0, false
	}
	return bits.TrailingZeros64(field), true
}

// units lists the values in [lo, hi] set in field, shifted by offset.
func units(field uint64, lo, hi, offset int) []any {
	var out []any
	for v := lo; v <= hi; v++ {
		if field&(1<<uint(v)) != 0 {
			out = append(out, v+offset)
		}
	}
	return out
}
