package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return invalid("name", "empty")
	}
	if !a.Type.IsValid() {
		return invalid("type", "unknown account type "+string(a.Type))
	}
	if strings.TrimSpace(a.Currency) == "" {
		return invalid("currency", "empty")
	}
	return nil
}

// Validate checks the shape of a transaction. It does not look up the
// referenced account, category or goal.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.AccountID) == "" {
		return invalid("accountId", "empty")
	}
	if !t.Type.IsValid() {
		return invalid("type", "unknown transaction type "+string(t.Type))
	}
	if t.Type != TxBalanceAdjustment && t.Amount.IsNegative() {
		return invalid("amount", "must not be negative")
	}
	if t.Date.IsZero() {
		return invalid("date", "zero")
	}

	if t.Type == TxTransfer {
		if t.ToAccountID == "" {
			return invalid("toAccountId", "required for transfers")
		}
		if t.ToAccountID == t.AccountID {
			return invalid("toAccountId", "transfer to the same account")
		}
	} else if t.ToAccountID != "" {
		return invalid("toAccountId", "only allowed on transfers")
	}

	if t.Type.IsGoalType() {
		if t.GoalID == "" {
			return invalid("goalId", "required for goal transactions")
		}
	} else if t.GoalID != "" {
		return invalid("goalId", "only allowed on goal transactions")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name", "empty")
	}
	if !c.Type.IsValid() {
		return invalid("type", "unknown category type "+string(c.Type))
	}
	return nil
}

// CategoryMatchesTransaction enforces that expenses use expense categories
// and incomes use income categories. Other transaction types are exempt.
func CategoryMatchesTransaction(c Category, t Transaction) error {
	switch t.Type {
	case TxExpense:
		if c.Type != CategoryExpense {
			return invalid("categoryId", "expense transaction needs an expense category")
		}
	case TxIncome:
		if c.Type != CategoryIncome {
			return invalid("categoryId", "income transaction needs an income category")
		}
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return invalid("name", "empty")
	}
	if len(b.CategoryIDs) == 0 {
		return invalid("categoryIds", "at least one category is required")
	}
	seen := make(map[string]struct{}, len(b.CategoryIDs))
	for _, id := range b.CategoryIDs {
		if strings.TrimSpace(id) == "" {
			return invalid("categoryIds", "empty category id")
		}
		if _, dup := seen[id]; dup {
			return invalid("categoryIds", "duplicate category "+id)
		}
		seen[id] = struct{}{}
	}
	if !b.Amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	if !b.Period.IsValid() {
		return invalid("period", "unknown period "+string(b.Period))
	}
	if b.StartDate.IsZero() {
		return invalid("startDate", "zero")
	}
	if b.EndDate != nil && !b.EndDate.After(b.StartDate) {
		return invalid("endDate", "must be after start date")
	}
	return ValidateThresholds(b.Alerts.Thresholds)
}

// ValidateThresholds requires strictly ascending values in (0, 100].
func ValidateThresholds(thresholds []int) error {
	prev := 0
	for _, th := range thresholds {
		if th <= 0 || th > 100 {
			return invalid("alerts.thresholds", "threshold out of range (0,100]")
		}
		if th <= prev {
			return invalid("alerts.thresholds", "thresholds must be ascending without duplicates")
		}
		prev = th
	}
	return nil
}

// Validate applies the creation rules of a goal. CurrentAmount reaching the
// target later is expected and not re-checked here.
func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return invalid("name", "empty")
	}
	if !g.Type.IsValid() {
		return invalid("type", "unknown goal type "+string(g.Type))
	}
	if g.Status != "" && !g.Status.IsValid() {
		return invalid("status", "unknown goal status "+string(g.Status))
	}
	if !g.TargetAmount.IsPositive() {
		return invalid("targetAmount", "must be positive")
	}
	if g.CurrentAmount.IsNegative() {
		return invalid("currentAmount", "must not be negative")
	}
	if !g.TargetAmount.GreaterThan(g.CurrentAmount) {
		return invalid("targetAmount", "must exceed current amount")
	}
	return nil
}

func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return invalid("id", "empty")
	}
	if u.Mode != GuestMode && u.Mode != AuthenticatedMode {
		return invalid("mode", "unknown user mode "+string(u.Mode))
	}
	return nil
}

// PositiveAmount rejects zero and negative movement amounts.
func PositiveAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return invalid("amount", "must be positive")
	}
	return nil
}
