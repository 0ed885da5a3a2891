package ics

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	"recurcal/recur"
)

// ErrNotExpressible is returned when a recurrence has no RRULE equivalent,
// or an RRULE has no recurrence equivalent.
var ErrNotExpressible = errors.New("ics: not expressible")

// weekdays maps time.Weekday to the rrule weekday constants.
var weekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

func notExpressible(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotExpressible, fmt.Sprintf(format, args...))
}

// ToRRule converts r into an rrule set: DTSTART is the start date at the
// recurrence time of day, UNTIL the end date, and every exception an EXDATE.
// Within [start, end] the set yields exactly the instants All would.
func ToRRule(r *recur.Recurrence) (*rrule.Set, error) {
	opt, err := ToROption(r)
	if err != nil {
		return nil, err
	}
	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build rrule: %w", err)
	}
	set := &rrule.Set{}
	set.RRule(rr)
	for _, d := range r.Exceptions() {
		set.ExDate(r.At(d))
	}
	return set, nil
}

// RRuleString renders the RRULE value for r (without DTSTART or EXDATE).
func RRuleString(r *recur.Recurrence) (string, error) {
	opt, err := ToROption(r)
	if err != nil {
		return "", err
	}
	return opt.RRuleString(), nil
}

// ToROption maps the rules of r onto RRULE options.
//
//   - no interval rule: FREQ=DAILY with the calendar rules as BY* filters
//   - days n: FREQ=DAILY;INTERVAL=n plus the same filters
//   - weeks n: FREQ=WEEKLY alone, or FREQ=DAILY;INTERVAL=7n with filters
//   - months/years n: FREQ=MONTHLY/YEARLY alone, start day 28 or earlier
//   - weeksOfMonthByDay: FREQ=MONTHLY;BYDAY=+1SU,-1FR,... (+BYMONTH)
//
// weeksOfMonth, weeksOfYear, several interval units, and daysOfMonth 29 or
// 30 have no equivalent and fail with ErrNotExpressible.
func ToROption(r *recur.Recurrence) (rrule.ROption, error) {
	if err := r.Validate(); err != nil {
		return rrule.ROption{}, err
	}

	opt := rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: r.At(r.Start()),
	}
	if end, ok := r.End(); ok {
		opt.Until = r.At(end)
	}

	rules := make(map[recur.Measure]recur.Rule)
	for _, rule := range r.Rules() {
		rules[rule.Measure] = rule
	}
	for _, m := range []recur.Measure{recur.WeeksOfMonth, recur.WeeksOfYear} {
		if _, ok := rules[m]; ok {
			return rrule.ROption{}, notExpressible("%s has no RRULE equivalent", m)
		}
	}

	var interval recur.Rule
	for _, m := range []recur.Measure{recur.Days, recur.Weeks, recur.Months, recur.Years} {
		rule, ok := rules[m]
		if !ok {
			continue
		}
		if interval.Measure != 0 {
			return rrule.ROption{}, notExpressible("both %s and %s intervals", interval.Measure, m)
		}
		if len(rule.Units) != 1 {
			return rrule.ROption{}, notExpressible("%s with several intervals %v", m, rule.Units)
		}
		interval = rule
	}

	if months, ok := rules[recur.MonthsOfYear]; ok {
		for _, m := range months.Units {
			opt.Bymonth = append(opt.Bymonth, m+1)
		}
	}

	if byDay, ok := rules[recur.WeeksOfMonthByDay]; ok {
		if interval.Measure != 0 {
			return rrule.ROption{}, notExpressible("%s combined with %s", recur.WeeksOfMonthByDay, interval.Measure)
		}
		if _, ok := rules[recur.DaysOfMonth]; ok {
			return rrule.ROption{}, notExpressible("%s combined with %s", recur.WeeksOfMonthByDay, recur.DaysOfMonth)
		}
		opt.Freq = rrule.MONTHLY
		for _, d := range rules[recur.DaysOfWeek].Units {
			wd := weekdays[d]
			for _, n := range byDay.Units {
				nth := n + 1
				if n == recur.LastOccurrence {
					nth = -1
				}
				opt.Byweekday = append(opt.Byweekday, wd.Nth(nth))
			}
		}
		return opt, nil
	}

	if dow, ok := rules[recur.DaysOfWeek]; ok {
		for _, d := range dow.Units {
			opt.Byweekday = append(opt.Byweekday, weekdays[d])
		}
	}
	if dom, ok := rules[recur.DaysOfMonth]; ok {
		for _, d := range dom.Units {
			switch {
			case d <= 28:
				opt.Bymonthday = append(opt.Bymonthday, d)
			case d == 31:
				opt.Bymonthday = append(opt.Bymonthday, -1)
			default:
				return rrule.ROption{}, notExpressible("day of month %d falls back to the last day", d)
			}
		}
	}
	filtered := len(opt.Byweekday) > 0 || len(opt.Bymonthday) > 0 || len(opt.Bymonth) > 0

	if interval.Measure == 0 {
		return opt, nil
	}
	n := interval.Units[0]
	switch interval.Measure {
	case recur.Days:
		opt.Interval = n
	case recur.Weeks:
		if filtered {
			opt.Interval = 7 * n
		} else {
			opt.Freq = rrule.WEEKLY
			opt.Interval = n
		}
	case recur.Months, recur.Years:
		if filtered {
			return rrule.ROption{}, notExpressible("%s combined with calendar rules", interval.Measure)
		}
		if r.Start().Day > 28 {
			return rrule.ROption{}, notExpressible("%s from day %d clamps to month end", interval.Measure, r.Start().Day)
		}
		opt.Freq = rrule.MONTHLY
		if interval.Measure == recur.Years {
			opt.Freq = rrule.YEARLY
		}
		opt.Interval = n
	}
	if opt.Interval == 1 {
		opt.Interval = 0
	}
	return opt, nil
}

// FromRRule builds a recurrence from an RRULE value (optionally preceded by
// a DTSTART line). dtstart supplies the start, time of day and location when
// the string has no DTSTART of its own. COUNT and rules outside the
// supported subset fail with ErrNotExpressible.
func FromRRule(s string, dtstart time.Time, opts ...recur.Option) (*recur.Recurrence, error) {
	opt, err := rrule.StrToROptionInLocation(s, dtstart.Location())
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", s, err)
	}
	if !opt.Dtstart.IsZero() {
		dtstart = opt.Dtstart
	}
	if dtstart.IsZero() {
		return nil, recur.ErrMissingStart
	}
	return FromROption(*opt, dtstart, opts...)
}

// FromROption is FromRRule for parsed options.
func FromROption(opt rrule.ROption, dtstart time.Time, opts ...recur.Option) (*recur.Recurrence, error) {
	switch {
	case opt.Count != 0:
		return nil, notExpressible("COUNT")
	case len(opt.Bysetpos) > 0, len(opt.Byyearday) > 0, len(opt.Byweekno) > 0, len(opt.Byeaster) > 0:
		return nil, notExpressible("BYSETPOS, BYYEARDAY, BYWEEKNO and BYEASTER")
	case len(opt.Byhour) > 0, len(opt.Byminute) > 0, len(opt.Bysecond) > 0:
		return nil, notExpressible("sub-daily BY rules")
	}

	r := recur.NewAt(dtstart, opts...)
	if !opt.Until.IsZero() {
		r.SetEnd(recur.DateOf(opt.Until.In(dtstart.Location())))
	}

	var plain []any
	var nth []rrule.Weekday
	for _, wd := range opt.Byweekday {
		if wd.N() == 0 {
			plain = append(plain, rruleWeekday(wd))
		} else {
			nth = append(nth, wd)
		}
	}
	monthDays, err := fromMonthDays(opt.Bymonthday)
	if err != nil {
		return nil, err
	}

	if len(opt.Bymonth) > 0 {
		months := make([]any, len(opt.Bymonth))
		for i, m := range opt.Bymonth {
			months[i] = m - 1
		}
		if err := r.MonthsOfYear(months...); err != nil {
			return nil, err
		}
	}

	if err := applyFreq(r, opt, dtstart, plain, nth, monthDays); err != nil {
		return nil, err
	}
	return r, nil
}

// applyFreq commits the rules for opt.Freq. BYMONTH is already applied.
func applyFreq(r *recur.Recurrence, opt rrule.ROption, dtstart time.Time, plain []any, nth []rrule.Weekday, monthDays []any) error {
	interval := max(opt.Interval, 1)
	switch opt.Freq {
	case rrule.DAILY:
		if len(nth) > 0 {
			return notExpressible("numbered BYDAY with FREQ=DAILY")
		}
		if interval > 1 {
			if err := r.Days(interval); err != nil {
				return err
			}
		}
		return addFilters(r, plain, monthDays)

	case rrule.WEEKLY:
		if len(nth) > 0 || len(monthDays) > 0 {
			return notExpressible("FREQ=WEEKLY with BYMONTHDAY or numbered BYDAY")
		}
		if len(plain) == 0 {
			return r.Weeks(interval)
		}
		if interval > 1 {
			return notExpressible("FREQ=WEEKLY;INTERVAL=%d with BYDAY", interval)
		}
		return r.DaysOfWeek(plain...)

	case rrule.MONTHLY:
		if len(plain)+len(nth)+len(monthDays) == 0 {
			if dtstart.Day() > 28 {
				return notExpressible("FREQ=MONTHLY from day %d skips short months", dtstart.Day())
			}
			return r.Months(interval)
		}
		if interval > 1 {
			return notExpressible("FREQ=MONTHLY;INTERVAL=%d with BY rules", interval)
		}
		return withinMonth(r, plain, nth, monthDays)

	case rrule.YEARLY:
		if len(opt.Bymonth) == 0 {
			if len(plain)+len(nth)+len(monthDays) > 0 {
				return notExpressible("FREQ=YEARLY BY rules without BYMONTH")
			}
			if dtstart.Month() == time.February && dtstart.Day() == 29 {
				return notExpressible("FREQ=YEARLY from February 29th")
			}
			return r.Years(interval)
		}
		if interval > 1 {
			return notExpressible("FREQ=YEARLY;INTERVAL=%d with BY rules", interval)
		}
		if len(plain)+len(nth)+len(monthDays) == 0 {
			if dtstart.Day() > 28 {
				return notExpressible("FREQ=YEARLY from day %d", dtstart.Day())
			}
			monthDays = []any{dtstart.Day()}
		}
		return withinMonth(r, plain, nth, monthDays)
	}
	return notExpressible("FREQ=%s", opt.Freq)
}

func rruleWeekday(wd rrule.Weekday) int {
	// rrule counts from Monday.
	return (wd.Day() + 1) % 7
}

func fromMonthDays(days []int) ([]any, error) {
	out := make([]any, 0, len(days))
	for _, d := range days {
		switch {
		case d >= 1 && d <= 28:
			out = append(out, d)
		case d == -1:
			out = append(out, 31)
		default:
			return nil, notExpressible("BYMONTHDAY=%d", d)
		}
	}
	return out, nil
}

func addFilters(r *recur.Recurrence, days, monthDays []any) error {
	if len(days) > 0 {
		if err := r.DaysOfWeek(days...); err != nil {
			return err
		}
	}
	if len(monthDays) > 0 {
		if err := r.DaysOfMonth(monthDays...); err != nil {
			return err
		}
	}
	return nil
}

// withinMonth applies BY rules that select days inside a month. Numbered
// weekdays must form a full product of weekdays and occurrences (1SU,3SU,
// 1TH,3TH) since the rules match each weekday on each occurrence.
func withinMonth(r *recur.Recurrence, plain []any, nth []rrule.Weekday, monthDays []any) error {
	if len(nth) == 0 {
		return addFilters(r, plain, monthDays)
	}
	if len(plain) > 0 || len(monthDays) > 0 {
		return notExpressible("numbered BYDAY mixed with other day rules")
	}

	var days, occurrences []int
	seen := make(map[[2]int]bool)
	for _, wd := range nth {
		n := wd.N()
		var occ int
		switch {
		case n == -1:
			occ = recur.LastOccurrence
		case n >= 1 && n <= 5:
			occ = n - 1
		default:
			return notExpressible("BYDAY=%s", wd)
		}
		d := rruleWeekday(wd)
		seen[[2]int{d, occ}] = true
		if !slices.Contains(days, d) {
			days = append(days, d)
		}
		if !slices.Contains(occurrences, occ) {
			occurrences = append(occurrences, occ)
		}
	}
	if len(seen) != len(days)*len(occurrences) {
		return notExpressible("BYDAY occurrences differ per weekday")
	}

	dayUnits := make([]any, len(days))
	for i, d := range days {
		dayUnits[i] = d
	}
	occUnits := make([]any, len(occurrences))
	for i, o := range occurrences {
		occUnits[i] = o
	}
	if err := r.DaysOfWeek(dayUnits...); err != nil {
		return err
	}
	return r.WeeksOfMonthByDay(occUnits...)
}
