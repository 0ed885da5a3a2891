package recur

import "errors"

// Sentinel errors for the recur package.
// Use errors.Is to check: errors.Is(err, recur.ErrStartAfterEnd)
var (
	ErrByDayWithoutDaysOfWeek = errors.New("weeksOfMonthByDay must be combined with daysOfWeek")
	ErrStartAfterEnd          = errors.New("Start date cannot be later than end date")
	ErrNoEnd                  = errors.New("recur: end date is required")
	ErrNoUnits                = errors.New("recur: no units given")
	ErrInvalidUnit            = errors.New("recur: invalid unit")
	ErrUnknownMeasure         = errors.New("recur: unknown measure")
	ErrInvalidDate            = errors.New("recur: invalid date")
	ErrInvalidTimeOfDay       = errors.New("recur: time of day out of range")
	ErrMissingStart           = errors.New("recur: start date is required")
	ErrSearchLimit            = errors.New("recur: search limit reached")
)
