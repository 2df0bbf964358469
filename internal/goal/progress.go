// Package goal computes savings and debt goal progress.
package goal

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/core"
	"fincore/internal/period"
)

// onTrackSlack is the fraction of expected progress a goal may lag behind
// and still count as on track.
const onTrackSlack = 0.9

// daysPerMonth converts remaining days into months for contributions.
const daysPerMonth = 30.0

type Progress struct {
	GoalID string
	// Percentage is not clamped; values over 100 signal overshoot.
	Percentage                  float64
	Remaining                   decimal.Decimal
	HasDeadline                 bool
	DaysUntilDeadline           int
	RequiredMonthlyContribution decimal.Decimal
	ExpectedProgress            float64
	OnTrack                     bool
}

// Calculate derives goal progress at now.
func Calculate(g core.Goal, now time.Time) Progress {
	p := Progress{GoalID: g.ID, OnTrack: true, Remaining: decimal.Zero, RequiredMonthlyContribution: decimal.Zero}

	if g.TargetAmount.IsPositive() {
		p.Percentage = g.CurrentAmount.Mul(decimal.NewFromInt(100)).Div(g.TargetAmount).InexactFloat64()
	}
	if rem := g.TargetAmount.Sub(g.CurrentAmount); rem.IsPositive() {
		p.Remaining = rem
	}

	if g.Deadline == nil {
		return p
	}
	p.HasDeadline = true
	deadline := *g.Deadline
	p.DaysUntilDeadline = int(math.Max(0, period.CeilDays(deadline.Sub(now))))

	if p.DaysUntilDeadline > 0 {
		// remaining / (days / 30)
		p.RequiredMonthlyContribution = p.Remaining.Mul(decimal.NewFromFloat(daysPerMonth)).
			Div(decimal.NewFromInt(int64(p.DaysUntilDeadline)))
	}

	totalDays := period.CeilDays(deadline.Sub(g.CreatedAt))
	daysPassed := totalDays - float64(p.DaysUntilDeadline)
	if daysPassed > 0 && totalDays > 0 {
		p.ExpectedProgress = daysPassed / totalDays * 100
		p.OnTrack = p.Percentage >= p.ExpectedProgress*onTrackSlack
	}
	return p
}

// ClampPercentage bounds a percentage to 0..100 for display.
func ClampPercentage(pct float64) float64 {
	return math.Min(100, math.Max(0, pct))
}
