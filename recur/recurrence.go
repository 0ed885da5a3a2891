package recur

import (
	"fmt"
	"slices"
	"time"

	"github.com/samber/mo"
)

const day = 24 * time.Hour

// Recurrence is a start date, an optional end date, an ordered set of rules
// (at most one per measure) and a set of exception dates.
//
// Rules are attached either directly (r.DaysOfMonth(1, 15)) or by staging
// units with Every and committing them with a measure selector:
//
//	r.Every(2).Weeks()
//	r.Every("Sunday").DaysOfWeek()
//
// Committing a rule for a measure that already has one replaces it.
type Recurrence struct {
	start     Date
	end       mo.Option[Date]
	from      mo.Option[Date]
	timeOfDay time.Duration
	loc       *time.Location
	weekStart time.Weekday
	limit     int

	rules      []Rule
	exceptions []Date

	// pending holds units staged by Every until a measure selector commits them.
	pending []any
}

// Option configures a Recurrence at construction.
type Option func(*Recurrence)

// WithEnd sets the inclusive end date.
func WithEnd(end Date) Option {
	return func(r *Recurrence) {
		r.end = mo.Some(end)
	}
}

// WithFrom sets the enumeration anchor used instead of the start date.
func WithFrom(from Date) Option {
	return func(r *Recurrence) {
		r.from = mo.Some(from)
	}
}

// WithTimeOfDay sets the wall-clock offset applied to generated instants.
// Values outside [0, 24h) wrap around; FromRecord rejects them instead.
func WithTimeOfDay(d time.Duration) Option {
	return func(r *Recurrence) {
		r.timeOfDay = normalizeTimeOfDay(d)
	}
}

// WithLocation sets the location of generated instants. nil is ignored.
func WithLocation(loc *time.Location) Option {
	return func(r *Recurrence) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithWeekStart sets the first day of the week used by the weeksOfMonth and
// weeksOfYear measures. The default is Sunday.
func WithWeekStart(wd time.Weekday) Option {
	return func(r *Recurrence) {
		r.weekStart = wd
	}
}

// WithSearchLimit caps the number of days Next, Previous and All may step
// through before failing with ErrSearchLimit. Zero, the default, means no
// cap: a rule set that never matches makes Next and Previous loop forever,
// and All walks the full start..end span.
func WithSearchLimit(days int) Option {
	return func(r *Recurrence) {
		r.limit = max(days, 0)
	}
}

// New returns a recurrence starting on start with no rules. Without rules
// every date within the bounds matches.
func New(start Date, opts ...Option) *Recurrence {
	r := &Recurrence{
		start:     start,
		end:       mo.None[Date](),
		from:      mo.None[Date](),
		loc:       time.UTC,
		weekStart: time.Sunday,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewAt returns a recurrence starting on the calendar date of start. The
// wall-clock time of start becomes the time of day of generated instants and
// its location their location. Later options override both.
func NewAt(start time.Time, opts ...Option) *Recurrence {
	base := []Option{WithLocation(start.Location()), WithTimeOfDay(wallClock(start))}
	return New(DateOf(start), append(base, opts...)...)
}

func wallClock(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond())
}

func normalizeTimeOfDay(d time.Duration) time.Duration {
	return (d%day + day) % day
}

// Clone returns a deep copy of r.
func (r *Recurrence) Clone() *Recurrence {
	out := *r
	out.rules = make([]Rule, len(r.rules))
	for i, rule := range r.rules {
		out.rules[i] = rule.clone()
	}
	out.exceptions = slices.Clone(r.exceptions)
	out.pending = slices.Clone(r.pending)
	return &out
}

// Start returns the start date.
func (r *Recurrence) Start() Date { return r.start }

// SetStart replaces the start date. It is not checked against the end date
// until All is called.
func (r *Recurrence) SetStart(d Date) *Recurrence {
	r.start = d
	return r
}

// End returns the end date and whether one is set.
func (r *Recurrence) End() (Date, bool) { return r.end.Get() }

// SetEnd sets the inclusive end date.
func (r *Recurrence) SetEnd(d Date) *Recurrence {
	r.end = mo.Some(d)
	return r
}

// ClearEnd makes the recurrence open-ended.
func (r *Recurrence) ClearEnd() *Recurrence {
	r.end = mo.None[Date]()
	return r
}

// From returns the enumeration anchor override and whether one is set.
func (r *Recurrence) From() (Date, bool) { return r.from.Get() }

// SetFrom makes Next, Previous and All enumerate from d instead of the start
// date. Interval rules still count from the start date.
func (r *Recurrence) SetFrom(d Date) *Recurrence {
	r.from = mo.Some(d)
	return r
}

// ClearFrom removes the anchor override.
func (r *Recurrence) ClearFrom() *Recurrence {
	r.from = mo.None[Date]()
	return r
}

func (r *Recurrence) anchor() Date {
	return r.from.OrElse(r.start)
}

// TimeOfDay returns the wall-clock offset applied to generated instants.
func (r *Recurrence) TimeOfDay() time.Duration { return r.timeOfDay }

// SetTimeOfDay sets the wall-clock offset. Values outside [0, 24h) wrap around.
func (r *Recurrence) SetTimeOfDay(d time.Duration) *Recurrence {
	r.timeOfDay = normalizeTimeOfDay(d)
	return r
}

// Location returns the location of generated instants.
func (r *Recurrence) Location() *time.Location {
	if r.loc == nil {
		return time.UTC
	}
	return r.loc
}

// WeekStart returns the first day of the week for week-based measures.
func (r *Recurrence) WeekStart() time.Weekday { return r.weekStart }

// Every stages units for the next measure selector. Calling Every again
// replaces the staged units; a selector consumes them. Units may be ints,
// numeric or name strings ("Sunday", "jan"), time.Weekday or time.Month.
func (r *Recurrence) Every(units ...any) *Recurrence {
	r.pending = slices.Clone(units)
	return r
}

// Pending returns the staged units and whether any are staged.
func (r *Recurrence) Pending() ([]any, bool) {
	return slices.Clone(r.pending), r.pending != nil
}

// Add commits a rule for m with the given units, or with the units staged by
// Every when none are given. An existing rule for m is replaced. The staged
// units are consumed either way.
func (r *Recurrence) Add(m Measure, units ...any) error {
	if len(units) == 0 {
		units = r.pending
	}
	r.pending = nil

	if !m.isValid() {
		return fmt.Errorf("%w: %d", ErrUnknownMeasure, int(m))
	}
	if m == WeeksOfMonthByDay && !r.HasRule(DaysOfWeek) {
		return ErrByDayWithoutDaysOfWeek
	}
	normalized, err := normalizeUnits(m, units)
	if err != nil {
		return err
	}
	r.setRule(Rule{Measure: m, Units: normalized})
	return nil
}

func (r *Recurrence) setRule(rule Rule) {
	r.rules = slices.DeleteFunc(r.rules, func(x Rule) bool { return x.Measure == rule.Measure })
	r.rules = append(r.rules, rule)
}

// Days commits an every-n-days rule.
func (r *Recurrence) Days(units ...any) error { return r.Add(Days, units...) }

// Weeks commits an every-n-weeks rule.
func (r *Recurrence) Weeks(units ...any) error { return r.Add(Weeks, units...) }

// Months commits an every-n-months rule.
func (r *Recurrence) Months(units ...any) error { return r.Add(Months, units...) }

// Years commits an every-n-years rule.
func (r *Recurrence) Years(units ...any) error { return r.Add(Years, units...) }

// DaysOfWeek commits a day-of-week rule (0 = Sunday).
func (r *Recurrence) DaysOfWeek(units ...any) error { return r.Add(DaysOfWeek, units...) }

// DaysOfMonth commits a day-of-month rule. A unit larger than a month's
// length matches that month's last day.
func (r *Recurrence) DaysOfMonth(units ...any) error { return r.Add(DaysOfMonth, units...) }

// WeeksOfMonth commits a 0-based week-of-month rule.
func (r *Recurrence) WeeksOfMonth(units ...any) error { return r.Add(WeeksOfMonth, units...) }

// WeeksOfYear commits a 1-based week-of-year rule.
func (r *Recurrence) WeeksOfYear(units ...any) error { return r.Add(WeeksOfYear, units...) }

// MonthsOfYear commits a month-of-year rule (0 = January).
func (r *Recurrence) MonthsOfYear(units ...any) error { return r.Add(MonthsOfYear, units...) }

// WeeksOfMonthByDay commits a rule on the 0-based occurrence of the weekday
// within the month (LastOccurrence for the last one). A daysOfWeek rule must
// already be present.
func (r *Recurrence) WeeksOfMonthByDay(units ...any) error {
	return r.Add(WeeksOfMonthByDay, units...)
}

// Forget removes the rule for m, if any.
func (r *Recurrence) Forget(m Measure) *Recurrence {
	r.rules = slices.DeleteFunc(r.rules, func(x Rule) bool { return x.Measure == m })
	return r
}

// HasRule reports whether a rule for m is present.
func (r *Recurrence) HasRule(m Measure) bool {
	_, ok := r.rule(m)
	return ok
}

func (r *Recurrence) rule(m Measure) (Rule, bool) {
	i := slices.IndexFunc(r.rules, func(x Rule) bool { return x.Measure == m })
	if i < 0 {
		return Rule{}, false
	}
	return r.rules[i], true
}

// Repeats reports whether at least one rule is present.
func (r *Recurrence) Repeats() bool { return len(r.rules) > 0 }

// Rules returns a copy of the rules in commit order.
func (r *Recurrence) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.clone()
	}
	return out
}

// Except excludes d from matching.
func (r *Recurrence) Except(d Date) *Recurrence {
	if !r.IsException(d) {
		r.exceptions = append(r.exceptions, d)
	}
	return r
}

// ForgetException removes d from the exceptions, if present.
func (r *Recurrence) ForgetException(d Date) *Recurrence {
	r.exceptions = slices.DeleteFunc(r.exceptions, func(x Date) bool { return x == d })
	return r
}

// IsException reports whether d is an exception.
func (r *Recurrence) IsException(d Date) bool {
	return slices.Contains(r.exceptions, d)
}

// Exceptions returns a copy of the exception dates in insertion order.
func (r *Recurrence) Exceptions() []Date {
	return slices.Clone(r.exceptions)
}

// Validate reports a rule set that cannot be evaluated: a weeksOfMonthByDay
// rule whose daysOfWeek rule was forgotten after it was committed.
func (r *Recurrence) Validate() error {
	if r.HasRule(WeeksOfMonthByDay) && !r.HasRule(DaysOfWeek) {
		return ErrByDayWithoutDaysOfWeek
	}
	return nil
}

// Matches reports whether d lies within the bounds, is not an exception and
// satisfies every rule. An invalid rule set (see Validate) matches nothing.
func (r *Recurrence) Matches(d Date) bool {
	return r.matches(d, false)
}

// MatchesTime reports whether the calendar date of t, in t's own location,
// matches.
func (r *Recurrence) MatchesTime(t time.Time) bool {
	return r.Matches(DateOf(t))
}

func (r *Recurrence) matches(d Date, ignoreBounds bool) bool {
	if !ignoreBounds {
		if d.Before(r.start) {
			return false
		}
		if end, ok := r.end.Get(); ok && d.After(end) {
			return false
		}
	}
	if r.IsException(d) {
		return false
	}
	for _, rule := range r.rules {
		if !matchers[rule.Measure](r, rule, d) {
			return false
		}
	}
	return true
}
