// Package period computes the boundaries of financial weeks, months and
// years. Every function is pure and keeps the location of its reference time.
package period

import (
	"math"
	"time"

	"fincore/internal/core"
)

// Range is an inclusive [Start, End] interval.
type Range struct {
	Start time.Time
	End   time.Time
}

const day = 24 * time.Hour

// ClampStartDay bounds a financial month start day to 1..28 so every month
// contains it.
func ClampStartDay(d int) int {
	if d < 1 {
		return 1
	}
	if d > 28 {
		return 28
	}
	return d
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func lastDayOfMonth(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// dayInMonth builds year/month/day, clamping day to the month's length.
func dayInMonth(year int, month time.Month, d int, loc *time.Location) time.Time {
	// Normalise month overflow first so the clamp looks at the right month.
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	if last := lastDayOfMonth(first.Year(), first.Month(), loc); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, loc)
}

// Week returns the ISO week (Monday..Sunday) containing ref.
func Week(ref time.Time) Range {
	offset := (int(ref.Weekday()) + 6) % 7 // Monday = 0
	start := startOfDay(ref).AddDate(0, 0, -offset)
	return Range{Start: start, End: EndOfDay(start.AddDate(0, 0, 6))}
}

// FinancialMonthStart returns the first day of the financial month that
// contains ref, given the configured start day.
func FinancialMonthStart(ref time.Time, startDay int) time.Time {
	startDay = ClampStartDay(startDay)
	y, m, d := ref.Date()
	if d >= startDay {
		return dayInMonth(y, m, startDay, ref.Location())
	}
	return dayInMonth(y, m-1, startDay, ref.Location())
}

// FinancialMonthEnd returns the end-of-day instant one day before the next
// financial month starts.
func FinancialMonthEnd(ref time.Time, startDay int) time.Time {
	start := FinancialMonthStart(ref, startDay)
	next := dayInMonth(start.Year(), start.Month()+1, ClampStartDay(startDay), ref.Location())
	return next.Add(-time.Nanosecond)
}

// FinancialMonth returns the financial month containing ref.
func FinancialMonth(ref time.Time, startDay int) Range {
	return Range{Start: FinancialMonthStart(ref, startDay), End: FinancialMonthEnd(ref, startDay)}
}

// Year returns the calendar year containing ref.
func Year(ref time.Time) Range {
	start := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, ref.Location())
	return Range{Start: start, End: start.AddDate(1, 0, 0).Add(-time.Nanosecond)}
}

// For returns the period of the given kind containing ref. Unknown kinds
// fall back to the financial month.
func For(ref time.Time, kind core.BudgetPeriod, startDay int) Range {
	switch kind {
	case core.Weekly:
		return Week(ref)
	case core.Yearly:
		return Year(ref)
	default:
		return FinancialMonth(ref, startDay)
	}
}

// ForBudget returns the budget's current period at now, narrowed to the
// budget's own start and end dates.
func ForBudget(b core.Budget, now time.Time, startDay int) Range {
	r := For(now, b.Period, startDay)
	if !b.StartDate.IsZero() && b.StartDate.After(r.Start) && !b.StartDate.After(r.End) {
		r.Start = b.StartDate
	}
	if b.EndDate != nil && b.EndDate.Before(r.End) && !b.EndDate.Before(r.Start) {
		r.End = *b.EndDate
	}
	return r
}

// DaysBetween counts calendar days from a to b inclusive, never less than 1.
func DaysBetween(a, b time.Time) int {
	if b.Before(a) {
		a, b = b, a
	}
	a, b = startOfDay(a), startOfDay(b.In(a.Location()))
	n := int(math.Round(b.Sub(a).Hours()/24)) + 1
	if n < 1 {
		return 1
	}
	return n
}

// Within reports whether t lies in r, both ends inclusive.
func Within(t time.Time, r Range) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// CeilDays returns ceil(d / 24h) as a float, used by the progress engines.
func CeilDays(d time.Duration) float64 {
	return math.Ceil(float64(d) / float64(day))
}
