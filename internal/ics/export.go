package ics

import (
	"errors"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"recurcal/internal/model"
	"recurcal/recur"
)

const (
	icalDate      = "20060102"
	icalLocalTime = "20060102T150405"
)

// ExportOptions controls calendar serialization.
type ExportOptions struct {
	// Service is used in PRODID. Defaults to "recurcal".
	Service string
	// Now stamps DTSTAMP. Defaults to time.Now.
	Now time.Time
}

// Export renders schedules as a VCALENDAR with one VEVENT each. Schedules
// with an RRULE equivalent carry RRULE and EXDATE; others list their dates
// as RDATE, which requires an end date.
func Export(schedules []model.Schedule, opts ExportOptions) (string, error) {
	if opts.Service == "" {
		opts.Service = "recurcal"
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ical.NewCalendarFor(opts.Service)
	for _, s := range schedules {
		if s.Recurrence == nil {
			return "", fmt.Errorf("schedule %s: no recurrence", s.ID)
		}
		if err := addEvent(cal, s, opts.Now); err != nil {
			return "", fmt.Errorf("schedule %s: %w", s.ID, err)
		}
	}
	return cal.Serialize(), nil
}

func addEvent(cal *ical.Calendar, s model.Schedule, now time.Time) error {
	r := s.Recurrence
	allDay := r.TimeOfDay() == 0

	ev := cal.AddEvent(s.ID)
	ev.SetSummary(s.Name)
	ev.SetDtStampTime(now)

	stamp := func(d recur.Date) (string, []ical.PropertyParameter) {
		if allDay {
			return d.Format(icalDate), []ical.PropertyParameter{ical.WithValue(string(ical.ValueDataTypeDate))}
		}
		t := r.At(d)
		if r.Location() == time.UTC {
			return t.UTC().Format(icalLocalTime) + "Z", nil
		}
		return t.Format(icalLocalTime), []ical.PropertyParameter{ical.WithTZID(r.Location().String())}
	}

	// DTSTART is always an instance for calendar clients.
	value, params := stamp(firstMatch(r))
	ev.SetProperty(ical.ComponentPropertyDtStart, value, params...)

	opt, err := ToROption(r)
	switch {
	case err == nil:
		ev.AddRrule(exportRule(opt, allDay))
		for _, d := range r.Exceptions() {
			value, params := stamp(d)
			ev.AddExdate(value, params...)
		}
		return nil
	case !errors.Is(err, ErrNotExpressible):
		return err
	}

	dates, err := r.AllDates()
	if err != nil {
		return fmt.Errorf("no RRULE equivalent and cannot list dates: %w", err)
	}
	first := firstMatch(r)
	for _, d := range dates {
		if d == first {
			continue
		}
		value, params := stamp(d)
		ev.AddRdate(value, params...)
	}
	return nil
}

// firstMatchScan bounds the search for the first instance.
const firstMatchScan = 4 * 366

// firstMatch returns the first date r matches, or its start when none is
// found nearby.
func firstMatch(r *recur.Recurrence) recur.Date {
	d := r.Start()
	for range firstMatchScan {
		if r.Matches(d) {
			return d
		}
		if end, ok := r.End(); ok && !d.Before(end) {
			break
		}
		d = d.AddDays(1)
	}
	return r.Start()
}

// exportRule renders opt, writing UNTIL as a DATE for all-day events so it
// has the same value type as DTSTART.
func exportRule(opt rrule.ROption, allDay bool) string {
	if !allDay || opt.Until.IsZero() {
		return opt.RRuleString()
	}
	until := opt.Until
	opt.Until = time.Time{}
	return opt.RRuleString() + ";UNTIL=" + until.Format(icalDate)
}
