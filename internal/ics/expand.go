package ics

import (
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "recurcal/internal/log"
	"recurcal/recur"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandDates expands holiday events into the calendar dates they cover
// within [from, to]. It handles:
//
//   - single events, including multi-day all-day events
//   - RRULE recurrence with EXDATE and RDATE
//   - RECURRENCE-ID overrides, which move one instance
//
// Each event contributes at most limit instances (5000 when limit <= 0);
// truncated events are logged. The result is sorted and deduplicated.
func ExpandDates(events []ParsedEvent, from, to recur.Date, limit int) ([]recur.Date, error) {
	if to.Before(from) {
		return nil, errors.New("expand: to is before from")
	}
	if limit <= 0 {
		limit = defaultMaxOccurrencesPerEvent
	}

	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	var out []recur.Date
	for _, ev := range events {
		if ev.IsOverride() {
			continue
		}
		starts, truncated := instanceStarts(ev, from, to, limit)
		if truncated {
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", ev.UID,
				"cap", limit,
			)
		}
		for _, start := range starts {
			inst := ev
			inst.Start = start
			inst.End = start.Add(ev.End.Sub(ev.Start))
			if o, ok := findOverride(overrides[ev.UID], start); ok {
				inst = o
			}
			out = appendDays(out, inst, from, to)
		}
	}

	// Overrides whose original instance falls outside the window may still
	// land inside it.
	for _, list := range overrides {
		for _, o := range list {
			out = appendDays(out, o, from, to)
		}
	}

	slices.SortFunc(out, recur.Date.Compare)
	return slices.Compact(out), nil
}

// instanceStarts returns the start instants of ev that may touch [from, to].
func instanceStarts(ev ParsedEvent, from, to recur.Date, limit int) ([]time.Time, bool) {
	if ev.RawRRule == "" && len(ev.RDates) == 0 {
		return []time.Time{ev.Start}, false
	}

	loc := ev.Start.Location()
	set := rrule.Set{}
	set.DTStart(ev.Start)
	if ev.RawRRule != "" {
		opt, err := rrule.StrToROptionInLocation(ev.RawRRule, loc)
		if err != nil {
			appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
			return nil, false
		}
		opt.Dtstart = ev.Start
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			appLog.Error("expand: failed to build RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
			return nil, false
		}
		set.RRule(r)
	} else {
		set.RDate(ev.Start)
	}
	for _, rd := range ev.RDates {
		set.RDate(rd.In(loc))
	}
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(loc))
	}

	// Widen the window by the event duration so instances that started
	// before from but run into it are kept.
	dur := ev.End.Sub(ev.Start)
	starts := set.Between(from.In(loc).Add(-dur), to.In(loc).Add(24*time.Hour-time.Nanosecond), true)
	if len(starts) > limit {
		return starts[:limit], true
	}
	return starts, false
}

// findOverride finds the override whose RECURRENCE-ID equals start.
func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, o := range overrides {
		if o.RecurrenceID != nil && o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return ParsedEvent{}, false
}

// appendDays adds every date ev covers within [from, to]. DTEND is
// exclusive for all-day events; timed events cover the days they touch.
func appendDays(out []recur.Date, ev ParsedEvent, from, to recur.Date) []recur.Date {
	first := recur.DateOf(ev.Start)
	last := first
	if ev.AllDay {
		if end := recur.DateOf(ev.End).AddDays(-1); end.After(first) {
			last = end
		}
	} else if ev.End.After(ev.Start) {
		last = recur.DateOf(ev.End.Add(-time.Nanosecond).In(ev.Start.Location()))
	}
	for d := first; !d.After(last); d = d.AddDays(1) {
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, d)
	}
	return out
}
