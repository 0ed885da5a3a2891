package recur

import (
	"fmt"
	"time"
)

// Next returns the next n matching instants after the anchor (the from date
// when set, otherwise the start date), at the recurrence time of day.
//
// Next and Previous step one day at a time and evaluate the rules without
// the start/end bounds; exceptions still apply. The walk is unbounded unless
// WithSearchLimit was given. A start date after the end date fails with
// ErrStartAfterEnd.
func (r *Recurrence) Next(n int) ([]time.Time, error) {
	dates, err := r.NextDates(n)
	return r.instants(dates), err
}

// Previous returns the n matching instants before the anchor, nearest first.
func (r *Recurrence) Previous(n int) ([]time.Time, error) {
	dates, err := r.PreviousDates(n)
	return r.instants(dates), err
}

// All returns every matching instant from the anchor through the end date,
// inclusive. It fails with ErrNoEnd on an open-ended recurrence and with
// ErrStartAfterEnd when the start date is after the end date.
func (r *Recurrence) All() ([]time.Time, error) {
	dates, err := r.AllDates()
	return r.instants(dates), err
}

// NextDates is Next without the time of day.
func (r *Recurrence) NextDates(n int) ([]Date, error) {
	return r.walk(n, 1)
}

// PreviousDates is Previous without the time of day.
func (r *Recurrence) PreviousDates(n int) ([]Date, error) {
	return r.walk(n, -1)
}

func (r *Recurrence) walk(n, dir int) ([]Date, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if end, ok := r.end.Get(); ok && r.start.After(end) {
		return nil, ErrStartAfterEnd
	}
	out := make([]Date, 0, max(n, 0))
	d := r.anchor()
	for searched := 0; len(out) < n; searched++ {
		if r.limit > 0 && searched >= r.limit {
			return out, fmt.Errorf("%w: %d of %d found after %d days", ErrSearchLimit, len(out), n, searched)
		}
		d = d.AddDays(dir)
		if r.matches(d, true) {
			out = append(out, d)
		}
	}
	return out, nil
}

// AllDates is All without the time of day.
func (r *Recurrence) AllDates() ([]Date, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	end, ok := r.end.Get()
	if !ok {
		return nil, ErrNoEnd
	}
	if r.start.After(end) {
		return nil, ErrStartAfterEnd
	}
	from := r.anchor()
	if span := DiffUnits(end, from, Days); r.limit > 0 && span > r.limit {
		return nil, fmt.Errorf("%w: %d days between %s and %s", ErrSearchLimit, span, from, end)
	}

	out := make([]Date, 0)
	for d := from; !d.After(end); d = d.AddDays(1) {
		if r.matches(d, false) {
			out = append(out, d)
		}
	}
	return out, nil
}

// At returns d at the recurrence time of day in the recurrence location.
func (r *Recurrence) At(d Date) time.Time {
	tod := r.timeOfDay
	h := int(tod / time.Hour)
	m := int(tod % time.Hour / time.Minute)
	s := int(tod % time.Minute / time.Second)
	ns := int(tod % time.Second)
	return time.Date(d.Year, d.Month, d.Day, h, m, s, ns, r.Location())
}

func (r *Recurrence) instants(dates []Date) []time.Time {
	if dates == nil {
		return nil
	}
	out := make([]time.Time, len(dates))
	for i, d := range dates {
		out[i] = r.At(d)
	}
	return out
}

// Format renders instants with a Go time layout.
func Format(layout string, times []time.Time) []string {
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = t.Format(layout)
	}
	return out
}
