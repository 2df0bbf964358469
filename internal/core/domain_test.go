package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		AccountID: "a1",
		Amount:    decimal.NewFromInt(10),
		Type:      TxExpense,
		Date:      day(2025, 1, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	adjust := good
	adjust.Type = TxBalanceAdjustment
	adjust.Amount = decimal.NewFromInt(-5)
	if err := adjust.Validate(); err != nil {
		t.Fatalf("negative adjustment should be valid, got %v", err)
	}

	transfer := good
	transfer.Type = TxTransfer
	transfer.ToAccountID = "a2"
	if err := transfer.Validate(); err != nil {
		t.Fatalf("transfer should be valid, got %v", err)
	}

	contribution := good
	contribution.Type = TxGoalContribution
	contribution.GoalID = "g1"
	if err := contribution.Validate(); err != nil {
		t.Fatalf("contribution should be valid, got %v", err)
	}

	bads := map[string]func(tx *Transaction){
		"no account":          func(tx *Transaction) { tx.AccountID = "" },
		"unknown type":        func(tx *Transaction) { tx.Type = "refund" },
		"negative expense":    func(tx *Transaction) { tx.Amount = decimal.NewFromInt(-1) },
		"zero date":           func(tx *Transaction) { tx.Date = time.Time{} },
		"transfer no dest":    func(tx *Transaction) { tx.Type = TxTransfer },
		"transfer to self":    func(tx *Transaction) { tx.Type = TxTransfer; tx.ToAccountID = "a1" },
		"dest on expense":     func(tx *Transaction) { tx.ToAccountID = "a2" },
		"goal tx without id":  func(tx *Transaction) { tx.Type = TxGoalWithdrawal },
		"goal id on expense":  func(tx *Transaction) { tx.GoalID = "g1" },
	}
	for name, mutate := range bads {
		tx := good
		mutate(&tx)
		err := tx.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestBudgetValidate(t *testing.T) {
	end := day(2025, 2, 1)
	good := Budget{
		Name:        "Food",
		CategoryIDs: []string{"expense-food", "expense-dining"},
		Amount:      decimal.NewFromInt(500),
		Period:      Monthly,
		StartDate:   day(2025, 1, 1),
		EndDate:     &end,
		Alerts:      AlertConfig{Thresholds: []int{50, 80, 100}},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	same := day(2025, 1, 1)
	cases := map[string]func(b *Budget){
		"no categories":        func(b *Budget) { b.CategoryIDs = nil },
		"duplicate categories": func(b *Budget) { b.CategoryIDs = []string{"x", "x"} },
		"zero amount":          func(b *Budget) { b.Amount = decimal.Zero },
		"bad period":           func(b *Budget) { b.Period = "daily" },
		"end equals start":     func(b *Budget) { b.EndDate = &same },
		"descending alerts":    func(b *Budget) { b.Alerts.Thresholds = []int{80, 50} },
		"duplicate alerts":     func(b *Budget) { b.Alerts.Thresholds = []int{50, 50} },
		"alert above 100":      func(b *Budget) { b.Alerts.Thresholds = []int{50, 120} },
		"alert zero":           func(b *Budget) { b.Alerts.Thresholds = []int{0} },
	}
	for name, mutate := range cases {
		b := good
		b.CategoryIDs = append([]string(nil), good.CategoryIDs...)
		mutate(&b)
		if err := b.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestGoalValidate(t *testing.T) {
	g := Goal{Name: "Trip", Type: GoalSavings, TargetAmount: decimal.NewFromInt(1000), CurrentAmount: decimal.NewFromInt(100)}
	if err := g.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	g.CurrentAmount = decimal.NewFromInt(1000)
	if err := g.Validate(); err == nil {
		t.Fatalf("expected error when current reaches target")
	}
}

func TestCategoryMatchesTransaction(t *testing.T) {
	food := Category{ID: "expense-food", Name: "Food", Type: CategoryExpense}
	salary := Category{ID: "income-salary", Name: "Salary", Type: CategoryIncome}

	if err := CategoryMatchesTransaction(food, Transaction{Type: TxExpense}); err != nil {
		t.Fatalf("expense/expense: %v", err)
	}
	if err := CategoryMatchesTransaction(salary, Transaction{Type: TxExpense}); err == nil {
		t.Fatalf("expense with income category should fail")
	}
	if err := CategoryMatchesTransaction(food, Transaction{Type: TxIncome}); err == nil {
		t.Fatalf("income with expense category should fail")
	}
	if err := CategoryMatchesTransaction(salary, Transaction{Type: TxTransfer}); err != nil {
		t.Fatalf("transfers are exempt: %v", err)
	}
}

func TestErrorClasses(t *testing.T) {
	if !errors.Is(NotFound("account", "a1"), ErrNotFound) {
		t.Fatalf("reference error should match ErrNotFound")
	}
	var ref *ReferenceError
	if !errors.As(NotFound("goal", "g1"), &ref) || ref.Entity != "goal" {
		t.Fatalf("expected ReferenceError for goal, got %v", ref)
	}
	mismatch := &IntegrityMismatch{AccountID: "a1", Expected: decimal.NewFromInt(10), Actual: decimal.NewFromInt(12), Difference: decimal.NewFromInt(2)}
	if !errors.Is(mismatch, ErrIntegrityMismatch) {
		t.Fatalf("integrity mismatch should match sentinel")
	}
}

func TestClampMonthStart(t *testing.T) {
	for in, want := range map[int]int{-3: 1, 0: 1, 1: 1, 15: 15, 31: 31, 40: 31} {
		if got := ClampMonthStart(in); got != want {
			t.Errorf("ClampMonthStart(%d) = %d, want %d", in, got, want)
		}
	}
}
