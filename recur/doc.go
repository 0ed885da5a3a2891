// Package recur implements calendar recurrences: a start date, an optional
// end date and a set of calendar rules that together decide whether a given
// day belongs to the recurrence, and which days come next or came before.
//
// Rules are combined with AND across measures; a rule with several units
// matches when any of its units does. Evaluation works on calendar dates
// (year, month, day) rather than instants, so the same calendar day
// expressed in two timezones is the same day for matching and exceptions.
//
// Basic usage:
//
//	r := recur.New(recur.NewDate(2024, time.January, 31))
//	if err := r.Every(31).DaysOfMonth(); err != nil {
//	    log.Fatal(err)
//	}
//	paydays, err := r.NextDates(12)
//
// A Recurrence is a mutable value owned by its caller. It is not safe for
// concurrent mutation.
package recur
