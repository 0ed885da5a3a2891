package recur

import "slices"

// Rule is a single matching predicate over one measure. Units are sorted and
// unique; a rule matches when any of its units does.
type Rule struct {
	Measure Measure
	Units   []int
}

// Has reports whether v is one of the rule's units.
func (r Rule) Has(v int) bool {
	return slices.Contains(r.Units, v)
}

func (r Rule) clone() Rule {
	return Rule{Measure: r.Measure, Units: slices.Clone(r.Units)}
}

type matchFunc func(rec *Recurrence, rule Rule, d Date) bool

var matchers = map[Measure]matchFunc{
	Days:              matchInterval,
	Weeks:             matchInterval,
	Months:            matchInterval,
	Years:             matchInterval,
	DaysOfWeek:        matchDayOfWeek,
	DaysOfMonth:       matchDayOfMonth,
	WeeksOfMonth:      matchWeekOfMonth,
	WeeksOfYear:       matchWeekOfYear,
	MonthsOfYear:      matchMonthOfYear,
	WeeksOfMonthByDay: matchWeekOfMonthByDay,
}

// matchInterval matches dates a whole number of units away from start where
// that number is a multiple of any unit. [3, 5] days matches offsets 3, 5,
// 6, 9, 10, ...
func matchInterval(rec *Recurrence, rule Rule, d Date) bool {
	n := DiffUnits(d, rec.start, rule.Measure)
	if rec.start.AddUnits(rule.Measure, n) != d {
		return false
	}
	for _, v := range rule.Units {
		if n%v == 0 {
			return true
		}
	}
	return false
}

func matchDayOfWeek(_ *Recurrence, rule Rule, d Date) bool {
	return rule.Has(int(d.Weekday()))
}

// matchDayOfMonth also matches the last day of a month shorter than a unit:
// 31 matches Feb 28/29, Apr 30 and so on.
func matchDayOfMonth(_ *Recurrence, rule Rule, d Date) bool {
	last := d.DaysInMonth()
	for _, v := range rule.Units {
		if v == d.Day || (d.Day == last && v > last) {
			return true
		}
	}
	return false
}

func matchWeekOfMonth(rec *Recurrence, rule Rule, d Date) bool {
	return rule.Has(d.WeekOfMonth(rec.weekStart))
}

func matchWeekOfYear(rec *Recurrence, rule Rule, d Date) bool {
	return rule.Has(d.WeekOfYear(rec.weekStart))
}

func matchMonthOfYear(_ *Recurrence, rule Rule, d Date) bool {
	return rule.Has(int(d.Month) - 1)
}

func matchWeekOfMonthByDay(rec *Recurrence, rule Rule, d Date) bool {
	dow, ok := rec.rule(DaysOfWeek)
	if !ok || !dow.Has(int(d.Weekday())) {
		return false
	}
	if rule.Has(d.OccurrenceInMonth()) {
		return true
	}
	return rule.Has(LastOccurrence) && d.IsLastOccurrenceInMonth()
}
