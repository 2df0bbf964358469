package goal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var created = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func hundredDayGoal(current string) core.Goal {
	deadline := created.AddDate(0, 0, 100)
	return core.Goal{
		ID:            "g1",
		Name:          "Emergency fund",
		Type:          core.GoalSavings,
		TargetAmount:  d("1000"),
		CurrentAmount: d(current),
		Deadline:      &deadline,
		Status:        core.GoalActive,
		CreatedAt:     created,
	}
}

func TestOnTrackBoundary(t *testing.T) {
	day50 := created.AddDate(0, 0, 50)
	cases := []struct {
		current string
		onTrack bool
	}{
		{"449.99", false},
		{"450", true},
		{"500", true},
		{"0", false},
	}
	for _, tc := range cases {
		p := Calculate(hundredDayGoal(tc.current), day50)
		if p.OnTrack != tc.onTrack {
			t.Errorf("current=%s: on track = %v, want %v (expected %.2f, pct %.2f)",
				tc.current, p.OnTrack, tc.onTrack, p.ExpectedProgress, p.Percentage)
		}
	}
}

func TestCalculateWithDeadline(t *testing.T) {
	now := created.AddDate(0, 0, 40)
	p := Calculate(hundredDayGoal("400"), now)
	if p.Percentage != 40 {
		t.Fatalf("percentage = %v", p.Percentage)
	}
	if !p.Remaining.Equal(d("600")) {
		t.Fatalf("remaining = %s", p.Remaining)
	}
	if p.DaysUntilDeadline != 60 {
		t.Fatalf("days until deadline = %d", p.DaysUntilDeadline)
	}
	// 600 / (60/30) = 300 per month
	if !p.RequiredMonthlyContribution.Equal(d("300")) {
		t.Fatalf("required monthly = %s", p.RequiredMonthlyContribution)
	}
}

func TestRequiredMonthlyContributionIsNotRounded(t *testing.T) {
	// 1000 over 70 days: 1000 / (70/30) = 428.571428...
	p := Calculate(hundredDayGoal("0"), created.AddDate(0, 0, 30))
	if p.DaysUntilDeadline != 70 {
		t.Fatalf("days until deadline = %d", p.DaysUntilDeadline)
	}
	got := p.RequiredMonthlyContribution
	if got.Equal(got.Round(2)) {
		t.Fatalf("required monthly = %s, want full precision", got)
	}
	if !got.Round(2).Equal(d("428.57")) {
		t.Fatalf("required monthly = %s", got)
	}
}

func TestDeadlinePassed(t *testing.T) {
	p := Calculate(hundredDayGoal("200"), created.AddDate(0, 0, 150))
	if p.DaysUntilDeadline != 0 {
		t.Fatalf("days until deadline = %d", p.DaysUntilDeadline)
	}
	if !p.RequiredMonthlyContribution.IsZero() {
		t.Fatalf("no monthly ask after the deadline, got %s", p.RequiredMonthlyContribution)
	}
	if p.OnTrack {
		t.Fatalf("20%% after the deadline is not on track")
	}
}

func TestOvershootAndNoDeadline(t *testing.T) {
	g := core.Goal{ID: "g2", TargetAmount: d("100"), CurrentAmount: d("150"), CreatedAt: created}
	p := Calculate(g, created.AddDate(0, 1, 0))
	if p.Percentage != 150 {
		t.Fatalf("percentage should not be clamped, got %v", p.Percentage)
	}
	if !p.Remaining.IsZero() {
		t.Fatalf("remaining = %s", p.Remaining)
	}
	if !p.OnTrack || p.HasDeadline {
		t.Fatalf("goals without deadline are always on track")
	}
	if ClampPercentage(p.Percentage) != 100 || ClampPercentage(-5) != 0 || ClampPercentage(42) != 42 {
		t.Fatalf("clamp misbehaves")
	}
}
