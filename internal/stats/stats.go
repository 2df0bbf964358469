// Package stats provides pure aggregations over transactions and accounts.
package stats

import (
	"sort"

	"github.com/shopspring/decimal"

	"fincore/internal/core"
	"fincore/internal/period"
)

// MonthlySummary totals income and expenses over a period.
type MonthlySummary struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Savings decimal.Decimal
	// SavingsRate is Savings/Income*100, zero without income.
	SavingsRate float64
}

type CategorySpending struct {
	CategoryID string
	Amount     decimal.Decimal
	Percentage float64
	Count      int
}

// NetWorth summarises account balances.
type NetWorth struct {
	TotalAssets      decimal.Decimal
	TotalLiabilities decimal.Decimal
	NetWorth         decimal.Decimal
	ByType           map[core.AccountType]decimal.Decimal
}

// Monthly sums income and expense transactions dated inside rng.
func Monthly(txs []core.Transaction, rng period.Range) MonthlySummary {
	var s MonthlySummary
	for _, tx := range txs {
		if !period.Within(tx.Date, rng) {
			continue
		}
		switch tx.Type {
		case core.TxIncome:
			s.Income = s.Income.Add(tx.Amount.Abs())
		case core.TxExpense:
			s.Expense = s.Expense.Add(tx.Amount.Abs())
		}
	}
	s.Savings = s.Income.Sub(s.Expense)
	if s.Income.IsPositive() {
		s.SavingsRate = percentOf(s.Savings, s.Income)
	}
	return s
}

// SpendingByCategory groups expenses inside rng by category, largest first.
// Equal amounts keep the order in which their category was first seen.
func SpendingByCategory(txs []core.Transaction, rng period.Range) []CategorySpending {
	index := make(map[string]int)
	var out []CategorySpending
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Type != core.TxExpense || !period.Within(tx.Date, rng) {
			continue
		}
		amt := tx.Amount.Abs()
		total = total.Add(amt)
		i, ok := index[tx.CategoryID]
		if !ok {
			i = len(out)
			index[tx.CategoryID] = i
			out = append(out, CategorySpending{CategoryID: tx.CategoryID, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(amt)
		out[i].Count++
	}
	for i := range out {
		if total.IsPositive() {
			out[i].Percentage = percentOf(out[i].Amount, total)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount.GreaterThan(out[j].Amount)
	})
	return out
}

// Summarize splits account balances into assets and liabilities.
func Summarize(accounts []core.Account) NetWorth {
	nw := NetWorth{ByType: make(map[core.AccountType]decimal.Decimal)}
	for _, a := range accounts {
		if a.Balance.IsNegative() {
			nw.TotalLiabilities = nw.TotalLiabilities.Add(a.Balance.Abs())
		} else {
			nw.TotalAssets = nw.TotalAssets.Add(a.Balance)
		}
		nw.ByType[a.Type] = nw.ByType[a.Type].Add(a.Balance)
	}
	nw.NetWorth = nw.TotalAssets.Sub(nw.TotalLiabilities)
	return nw
}

// TotalBalance sums every balance.
func TotalBalance(accounts []core.Account) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return total
}

// AverageAmount is the mean absolute amount of transactions of typ.
func AverageAmount(txs []core.Transaction, typ core.TransactionType) decimal.Decimal {
	sum := decimal.Zero
	n := 0
	for _, tx := range txs {
		if tx.Type == typ {
			sum = sum.Add(tx.Amount.Abs())
			n++
		}
	}
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}

// CountByType counts transactions per type.
func CountByType(txs []core.Transaction) map[core.TransactionType]int {
	counts := make(map[core.TransactionType]int)
	for _, tx := range txs {
		counts[tx.Type]++
	}
	return counts
}

var hundred = decimal.NewFromInt(100)

func percentOf(part, whole decimal.Decimal) float64 {
	return part.Mul(hundred).Div(whole).InexactFloat64()
}
