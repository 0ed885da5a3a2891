package recur

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Record is the plain serializable form of a Recurrence. Its JSON field
// names are the interchange contract:
//
//	{"start": "2014-01-01", "end": "2014-12-31", "timeOfDay": 0,
//	 "rules": [{"units": {"2": true}, "measure": "days"}],
//	 "exceptions": ["2014-01-05"]}
//
// WeekStart is only written for weeks that do not start on Sunday.
type Record struct {
	Start      string       `json:"start" yaml:"start"`
	End        string       `json:"end,omitempty" yaml:"end,omitempty"`
	TimeOfDay  int64        `json:"timeOfDay" yaml:"timeOfDay"`
	Rules      []RuleRecord `json:"rules" yaml:"rules"`
	Exceptions []string     `json:"exceptions" yaml:"exceptions"`
	WeekStart  string       `json:"weekStart,omitempty" yaml:"weekStart,omitempty"`
}

// RuleRecord is the serialized form of a Rule.
type RuleRecord struct {
	Units   Units   `json:"units" yaml:"units"`
	Measure Measure `json:"measure" yaml:"measure"`
}

// Units is the serialized unit set of a rule. It encodes as an object keyed
// by unit with true values ({"2": true}) and decodes from that form or from a
// plain array ([2] or ["Sunday", 1]).
type Units []any

// MarshalJSON implements json.Marshaler.
func (u Units) MarshalJSON() ([]byte, error) {
	set := make(map[string]bool, len(u))
	for _, v := range u {
		set[fmt.Sprint(v)] = true
	}
	return json.Marshal(set)
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *Units) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("[")) {
		var list []any
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&list); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidUnit, err)
		}
		*u = list
		return nil
	}
	var set map[string]bool
	if err := json.Unmarshal(data, &set); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUnit, err)
	}
	*u = unitsFromSet(set)
	return nil
}

// MarshalYAML implements yaml.Marshaler with the same object form as JSON.
func (u Units) MarshalYAML() (any, error) {
	ints := make(map[int]bool, len(u))
	for _, v := range u {
		n, ok := v.(int)
		if !ok {
			set := make(map[string]bool, len(u))
			for _, v := range u {
				set[fmt.Sprint(v)] = true
			}
			return set, nil
		}
		ints[n] = true
	}
	return ints, nil
}

// UnmarshalYAML implements yaml.Unmarshaler for the object and array forms.
func (u *Units) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		set := make(map[string]bool, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			var on bool
			if err := value.Content[i+1].Decode(&on); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidUnit, err)
			}
			set[value.Content[i].Value] = on
		}
		*u = unitsFromSet(set)
	case yaml.SequenceNode:
		list := make(Units, 0, len(value.Content))
		for _, n := range value.Content {
			list = append(list, n.Value)
		}
		*u = list
	case yaml.ScalarNode:
		*u = Units{value.Value}
	default:
		return fmt.Errorf("%w: unexpected YAML node at line %d", ErrInvalidUnit, value.Line)
	}
	return nil
}

// unitsFromSet keeps the keys whose value is true, numeric keys as ints in
// ascending order followed by names.
func unitsFromSet(set map[string]bool) Units {
	var nums []int
	var names []string
	for k, on := range set {
		if !on {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(k)); err == nil {
			nums = append(nums, n)
		} else {
			names = append(names, k)
		}
	}
	slices.Sort(nums)
	slices.Sort(names)
	out := make(Units, 0, len(nums)+len(names))
	for _, n := range nums {
		out = append(out, n)
	}
	for _, s := range names {
		out = append(out, s)
	}
	return out
}

// Save returns the serializable form of r. Dates are formatted as
// 2006-01-02 and the time of day as milliseconds since midnight. The
// staged units of Every and the from anchor are not part of the record.
func (r *Recurrence) Save() Record {
	rec := Record{
		Start:      r.start.String(),
		TimeOfDay:  r.timeOfDay.Milliseconds(),
		Rules:      make([]RuleRecord, 0, len(r.rules)),
		Exceptions: make([]string, 0, len(r.exceptions)),
	}
	if end, ok := r.end.Get(); ok {
		rec.End = end.String()
	}
	if r.weekStart != time.Sunday {
		rec.WeekStart = strings.ToLower(r.weekStart.String())
	}
	for _, rule := range r.rules {
		units := make(Units, len(rule.Units))
		for i, v := range rule.Units {
			units[i] = v
		}
		rec.Rules = append(rec.Rules, RuleRecord{Units: units, Measure: rule.Measure})
	}
	for _, d := range r.exceptions {
		rec.Exceptions = append(rec.Exceptions, d.String())
	}
	return rec
}

// FromRecord rebuilds a Recurrence from its serialized form. Start is
// required; an omitted end leaves the recurrence open-ended. A start value
// carrying a time of day supplies the time of day when TimeOfDay is zero;
// TimeOfDay must lie in [0, 86400000). Options apply before the record's
// fields, so a recorded week start overrides WithWeekStart.
func FromRecord(rec Record, opts ...Option) (*Recurrence, error) {
	if strings.TrimSpace(rec.Start) == "" {
		return nil, ErrMissingStart
	}
	if rec.TimeOfDay < 0 || rec.TimeOfDay >= day.Milliseconds() {
		return nil, fmt.Errorf("%w: %d ms", ErrInvalidTimeOfDay, rec.TimeOfDay)
	}
	startAt, err := ParseTime(rec.Start, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	r := New(DateOf(startAt), opts...)
	if ws := strings.ToLower(strings.TrimSpace(rec.WeekStart)); ws != "" {
		wd, ok := weekdayByName[ws]
		if !ok {
			return nil, fmt.Errorf("weekStart: %w: %q", ErrInvalidUnit, rec.WeekStart)
		}
		r.weekStart = time.Weekday(wd)
	}
	if rec.TimeOfDay != 0 {
		r.SetTimeOfDay(time.Duration(rec.TimeOfDay) * time.Millisecond)
	} else if tod := wallClock(startAt); tod != 0 {
		r.SetTimeOfDay(tod)
	}

	if rec.End != "" {
		end, err := ParseDate(rec.End)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		r.SetEnd(end)
	}

	// weeksOfMonthByDay needs daysOfWeek committed first; hand-written
	// records may list them in either order.
	var byDay []RuleRecord
	for _, rr := range rec.Rules {
		if rr.Measure == WeeksOfMonthByDay {
			byDay = append(byDay, rr)
			continue
		}
		if err := r.Add(rr.Measure, rr.Units...); err != nil {
			return nil, fmt.Errorf("rule %s: %w", rr.Measure, err)
		}
	}
	for _, rr := range byDay {
		if err := r.Add(rr.Measure, rr.Units...); err != nil {
			return nil, fmt.Errorf("rule %s: %w", rr.Measure, err)
		}
	}

	for _, s := range rec.Exceptions {
		d, err := ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("exception: %w", err)
		}
		r.Except(d)
	}
	return r, nil
}

// MarshalJSON implements json.Marshaler by encoding Save().
func (r *Recurrence) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Save())
}

// UnmarshalJSON implements json.Unmarshaler by decoding a Record. The
// receiver's location, week start and search limit are kept.
func (r *Recurrence) UnmarshalJSON(data []byte) error {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	loaded, err := FromRecord(rec,
		WithLocation(r.loc),
		WithWeekStart(r.weekStart),
		WithSearchLimit(r.limit),
	)
	if err != nil {
		return err
	}
	*r = *loaded
	return nil
}
