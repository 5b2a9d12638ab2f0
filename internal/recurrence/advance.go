// Package recurrence generates the child invoices of recurring invoices.
package recurrence

import (
	"fmt"
	"time"

	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// ErrUnknownInterval is returned for an interval Advance cannot step.
var ErrUnknownInterval = fmt.Errorf("unknown recurring interval: %w", shared.ErrValidation)

// Advance steps t forward by one interval. Month-based steps clamp the day
// to the last day of the target month, so Jan 31 becomes Feb 29 in 2024.
func Advance(t time.Time, interval invoices.Interval) (time.Time, error) {
	switch interval {
	case invoices.IntervalWeekly:
		return t.AddDate(0, 0, 7), nil
	case invoices.IntervalMonthly:
		return addMonths(t, 1), nil
	case invoices.IntervalQuarterly:
		return addMonths(t, 3), nil
	case invoices.IntervalYearly:
		return addMonths(t, 12), nil
	default:
		return time.Time{}, ErrUnknownInterval
	}
}

func addMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	// Day 1 never overflows, so this lands in the intended month.
	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
