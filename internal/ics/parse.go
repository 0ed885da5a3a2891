package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "recurcal/internal/log"
	"recurcal/recur"
)

// ParsedEvent is the normalized representation of a VEVENT. Holiday
// expansion and RRULE import operate on this type.
type ParsedEvent struct {
	Feed Feed

	UID     string
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time
	RDates   []time.Time

	// RecurrenceID is set on overrides of a single recurring instance.
	RecurrenceID *time.Time
}

// IsOverride reports whether ev replaces one instance of a recurring event.
func (ev ParsedEvent) IsOverride() bool {
	return ev.RecurrenceID != nil
}

// Recurrence converts a recurring event into a Recurrence: the RRULE maps
// onto rules and EXDATEs become exceptions. Events without an RRULE yield a
// single-day recurrence.
func (ev ParsedEvent) Recurrence(opts ...recur.Option) (*recur.Recurrence, error) {
	if ev.Start.IsZero() {
		return nil, recur.ErrMissingStart
	}
	if ev.RawRRule == "" {
		day := recur.DateOf(ev.Start)
		return recur.NewAt(ev.Start, append(opts, recur.WithEnd(day))...), nil
	}
	r, err := FromRRule(ev.RawRRule, ev.Start, opts...)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", ev.UID, err)
	}
	for _, ex := range ev.ExDates {
		r.Except(recur.DateOf(ex.In(ev.Start.Location())))
	}
	return r, nil
}

// Parse parses a single ICS payload into a list of ParsedEvent. VEVENTs
// that fail to parse are logged and skipped.
func Parse(feed Feed, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "feed", feed.ID, "url", redactURL(feed.URL))
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(feed, comp)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "feed", feed.ID, "url", redactURL(feed.URL))
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "feed", feed.ID, "url", redactURL(feed.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(feed Feed, ve *ical.VEvent) (ParsedEvent, error) {
	out := ParsedEvent{Feed: feed}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStartProp == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(&dtStartProp.BaseProperty)

	// All-day values carry no zone; read them in UTC so the calendar date is
	// the one written in the feed.
	var err error
	if out.AllDay {
		out.Start, err = parseICSTime(dtStartProp.Value, time.UTC)
	} else {
		out.Start, err = ve.GetStartAt()
	}
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	if out.AllDay {
		if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
			out.End, _ = parseICSTime(p.Value, time.UTC)
		}
		if out.End.IsZero() {
			out.End = out.Start.AddDate(0, 0, 1)
		}
	} else if end, err := ve.GetEndAt(); err == nil {
		out.End = end
	} else {
		out.End = out.Start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	loc := out.Start.Location()
	out.ExDates = parseTimeList(ve.GetProperties(ical.ComponentPropertyExdate), loc)
	out.RDates = parseTimeList(ve.GetProperties(ical.ComponentPropertyRdate), loc)

	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, err := parseICSTime(p.Value, propLocation(&p.BaseProperty, loc)); err == nil {
			out.RecurrenceID = &t
		}
	}

	return out, nil
}

// isDateValue reports VALUE=DATE or a value without a time part.
func isDateValue(p *ical.BaseProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// propLocation returns the TZID location of p, or def.
func propLocation(p *ical.BaseProperty, def *time.Location) *time.Location {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	return def
}

// parseTimeList reads comma-separated EXDATE/RDATE values, which may
// appear several times.
func parseTimeList(props []*ical.IANAProperty, def *time.Location) []time.Time {
	var out []time.Time
	for _, p := range props {
		loc := propLocation(&p.BaseProperty, def)
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

// parseICSTime parses an ICS DATE or DATE-TIME value. Values without a
// trailing Z are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	return recur.ParseTime(v, loc)
}
