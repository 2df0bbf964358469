// Package budget computes budget spend, projections and alerts, and
// persists the recomputed spend through the storage adapter.
package budget

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/core"
	"fincore/internal/period"
)

// DefaultThresholds apply when a budget has no alert thresholds configured.
var DefaultThresholds = []int{50, 80, 100}

// Progress is a point-in-time snapshot of a budget's state.
type Progress struct {
	BudgetID           string
	PeriodStart        time.Time
	PeriodEnd          time.Time
	Spent              decimal.Decimal
	Remaining          decimal.Decimal
	Percentage         float64
	TotalDays          int
	DaysRemaining      int
	DaysPassed         int
	DailyBudget        float64
	DailyAverage       float64
	ProjectedSpending  float64
	ProjectedRemaining float64
	ActiveAlerts       []int
	IsOverBudget       bool
	IsWarning          bool
}

// Spent sums expense transactions of the budget's categories inside rng.
func Spent(b core.Budget, txs []core.Transaction, rng period.Range) decimal.Decimal {
	cats := make(map[string]struct{}, len(b.CategoryIDs))
	for _, id := range b.CategoryIDs {
		cats[id] = struct{}{}
	}
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Type != core.TxExpense {
			continue
		}
		if _, ok := cats[tx.CategoryID]; !ok {
			continue
		}
		if !period.Within(tx.Date, rng) {
			continue
		}
		total = total.Add(tx.Amount.Abs())
	}
	return total
}

// Calculate computes the progress of b over rng as seen at now. It has no
// side effects; identical inputs give identical output.
func Calculate(b core.Budget, txs []core.Transaction, rng period.Range, now time.Time) Progress {
	spent := Spent(b, txs, rng)
	amount := b.Amount
	remaining := amount.Sub(spent)

	pct := 0.0
	if amount.IsPositive() {
		pct = spent.Mul(decimal.NewFromInt(100)).Div(amount).InexactFloat64()
	}

	totalDays := int(math.Max(1, period.CeilDays(rng.End.Sub(rng.Start))))
	daysRemaining := int(math.Max(0, period.CeilDays(rng.End.Sub(now))))
	daysPassed := totalDays - daysRemaining
	if daysPassed < 1 {
		daysPassed = 1
	}

	dailyBudget := 0.0
	if daysRemaining > 0 {
		dailyBudget = remaining.InexactFloat64() / float64(daysRemaining)
	}
	dailyAverage := spent.InexactFloat64() / float64(daysPassed)
	projected := dailyAverage * float64(totalDays)

	var alerts []int
	if b.Alerts.AlertsEnabled() {
		thresholds := b.Alerts.Thresholds
		if len(thresholds) == 0 {
			thresholds = DefaultThresholds
		}
		alerts = CalculateActiveAlerts(pct, thresholds)
	}

	return Progress{
		BudgetID:           b.ID,
		PeriodStart:        rng.Start,
		PeriodEnd:          rng.End,
		Spent:              spent,
		Remaining:          remaining,
		Percentage:         pct,
		TotalDays:          totalDays,
		DaysRemaining:      daysRemaining,
		DaysPassed:         daysPassed,
		DailyBudget:        dailyBudget,
		DailyAverage:       dailyAverage,
		ProjectedSpending:  projected,
		ProjectedRemaining: amount.InexactFloat64() - projected,
		ActiveAlerts:       alerts,
		IsOverBudget:       spent.GreaterThan(amount),
		IsWarning:          len(alerts) > 0 && !contains(alerts, 100),
	}
}

// CalculateActiveAlerts returns the thresholds reached by percentage,
// highest first.
func CalculateActiveAlerts(percentage float64, thresholds []int) []int {
	active := make([]int, 0, len(thresholds))
	for _, th := range thresholds {
		if float64(th) <= percentage {
			active = append(active, th)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(active)))
	return active
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
