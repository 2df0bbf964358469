package period

import (
	"testing"
	"time"

	"fincore/internal/core"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func TestFinancialMonthBoundaries(t *testing.T) {
	cases := []struct {
		ref       time.Time
		startDay  int
		wantStart time.Time
		wantEnd   time.Time
	}{
		{date(2024, 12, 10), 15, date(2024, 11, 15), date(2024, 12, 14)},
		{date(2024, 12, 20), 15, date(2024, 12, 15), date(2025, 1, 14)},
		{date(2024, 12, 15), 15, date(2024, 12, 15), date(2025, 1, 14)},
		{date(2025, 1, 3), 15, date(2024, 12, 15), date(2025, 1, 14)},
		{date(2025, 3, 5), 1, date(2025, 3, 1), date(2025, 3, 31)},
		{date(2024, 3, 1), 31, date(2024, 2, 28), date(2024, 3, 27)}, // clamped to 28
	}
	for _, tc := range cases {
		gotStart := FinancialMonthStart(tc.ref, tc.startDay)
		gotEnd := FinancialMonthEnd(tc.ref, tc.startDay)
		if !gotStart.Equal(tc.wantStart) {
			t.Errorf("start(%s, %d) = %s, want %s", tc.ref.Format("2006-01-02"), tc.startDay, gotStart, tc.wantStart)
		}
		if !sameDay(gotEnd, tc.wantEnd) {
			t.Errorf("end(%s, %d) = %s, want day %s", tc.ref.Format("2006-01-02"), tc.startDay, gotEnd, tc.wantEnd.Format("2006-01-02"))
		}
		if gotEnd.Hour() != 23 || gotEnd.Minute() != 59 || gotEnd.Second() != 59 {
			t.Errorf("end should be end-of-day, got %s", gotEnd)
		}
	}
}

func TestWeekIsMondayToSunday(t *testing.T) {
	// 2025-01-08 is a Wednesday.
	r := Week(time.Date(2025, 1, 8, 15, 30, 0, 0, time.UTC))
	if !r.Start.Equal(date(2025, 1, 6)) {
		t.Fatalf("week start = %s", r.Start)
	}
	if !sameDay(r.End, date(2025, 1, 12)) || r.End.Weekday() != time.Sunday {
		t.Fatalf("week end = %s", r.End)
	}

	sunday := Week(date(2025, 1, 12))
	if !sunday.Start.Equal(date(2025, 1, 6)) {
		t.Fatalf("sunday belongs to the week starting monday, got %s", sunday.Start)
	}
}

func TestYear(t *testing.T) {
	r := Year(time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC))
	if !r.Start.Equal(date(2024, 1, 1)) {
		t.Fatalf("year start = %s", r.Start)
	}
	if !sameDay(r.End, date(2024, 12, 31)) || r.End.Hour() != 23 {
		t.Fatalf("year end = %s", r.End)
	}
}

func TestForDispatch(t *testing.T) {
	ref := date(2025, 5, 20)
	if got := For(ref, core.Weekly, 1); !got.Start.Equal(Week(ref).Start) {
		t.Errorf("weekly dispatch wrong: %v", got)
	}
	if got := For(ref, core.Yearly, 1); !got.Start.Equal(date(2025, 1, 1)) {
		t.Errorf("yearly dispatch wrong: %v", got)
	}
	if got := For(ref, core.Monthly, 10); !got.Start.Equal(date(2025, 5, 10)) {
		t.Errorf("monthly dispatch wrong: %v", got)
	}
}

func TestForBudgetNarrowsToBudgetDates(t *testing.T) {
	end := date(2025, 5, 25)
	b := core.Budget{Period: core.Monthly, StartDate: date(2025, 5, 10), EndDate: &end}
	r := ForBudget(b, date(2025, 5, 20), 1)
	if !r.Start.Equal(date(2025, 5, 10)) {
		t.Fatalf("start = %s", r.Start)
	}
	if !r.End.Equal(end) {
		t.Fatalf("end = %s", r.End)
	}

	old := core.Budget{Period: core.Monthly, StartDate: date(2024, 1, 1)}
	r = ForBudget(old, date(2025, 5, 20), 1)
	if !r.Start.Equal(date(2025, 5, 1)) {
		t.Fatalf("budget started long ago should use the period start, got %s", r.Start)
	}
}

func TestDaysBetween(t *testing.T) {
	cases := []struct {
		a, b time.Time
		want int
	}{
		{date(2025, 1, 1), date(2025, 1, 1), 1},
		{date(2025, 1, 1), date(2025, 1, 31), 31},
		{date(2025, 1, 31), date(2025, 1, 1), 31},
		{date(2024, 2, 1), date(2024, 3, 1), 30},
	}
	for _, tc := range cases {
		if got := DaysBetween(tc.a, tc.b); got != tc.want {
			t.Errorf("DaysBetween(%s, %s) = %d, want %d", tc.a.Format("2006-01-02"), tc.b.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestWithinInclusive(t *testing.T) {
	r := FinancialMonth(date(2025, 3, 15), 1)
	if !Within(r.Start, r) || !Within(r.End, r) {
		t.Fatalf("bounds must be inclusive")
	}
	if Within(r.End.Add(time.Nanosecond), r) {
		t.Fatalf("instant after end must be outside")
	}
	if Within(r.Start.Add(-time.Nanosecond), r) {
		t.Fatalf("instant before start must be outside")
	}
}
