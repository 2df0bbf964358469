package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/amqp"
	"fincore/internal/budget"
	"fincore/internal/core"
	"fincore/internal/ledger"
	"fincore/internal/store/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var march = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

type countingInvalidator struct{ users []string }

func (c *countingInvalidator) Invalidate(userID string) int {
	c.users = append(c.users, userID)
	return 1
}

type failingRecalc struct{}

func (failingRecalc) RecalculateUser(context.Context, string, time.Time) ([]budget.Progress, error) {
	return nil, errors.New("db down")
}

func (failingRecalc) RecalculateAll(context.Context, time.Time) (int, error) {
	return 0, errors.New("db down")
}

func seed(t *testing.T) (*memory.Store, core.Budget) {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	if _, err := s.CreateUser(ctx, core.User{ID: "u1", Mode: core.AuthenticatedMode}); err != nil {
		t.Fatal(err)
	}
	b, err := s.CreateBudget(ctx, core.Budget{
		UserID:      "u1",
		Name:        "Food",
		CategoryIDs: []string{"expense-food"},
		Amount:      d("200"),
		Period:      core.Monthly,
		StartDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		IsActive:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, amt := range []string{"30", "45.5"} {
		if _, err := s.CreateTransaction(ctx, core.Transaction{
			UserID: "u1", AccountID: "acc", Type: core.TxExpense, CategoryID: "expense-food",
			Amount: d(amt), Date: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		}); err != nil {
			t.Fatal(err)
		}
	}
	return s, b
}

func newWorker(s *memory.Store, inv Invalidator) *BudgetWorker {
	w := NewBudgetWorker(budget.NewRecalculator(s, 2, 1, nil), inv, nil)
	w.now = func() time.Time { return march }
	return w
}

func TestHandleLedgerEventRefreshesBudgetAndStats(t *testing.T) {
	s, b := seed(t)
	inv := &countingInvalidator{}
	w := newWorker(s, inv)

	msg := amqp.NewLedgerEventMessage(ledger.Event{Kind: ledger.EventCreated, UserID: "u1", TransactionID: "t1"})
	if err := w.HandleLedgerEvent(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetBudget(context.Background(), b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Spent.Equal(d("75.5")) {
		t.Fatalf("spent = %s", got.Spent)
	}
	if len(inv.users) != 1 || inv.users[0] != "u1" {
		t.Fatalf("invalidated = %v", inv.users)
	}
}

func TestEventWithoutUserIsIgnored(t *testing.T) {
	w := NewBudgetWorker(failingRecalc{}, nil, nil)
	if err := w.PublishLedgerEvent(context.Background(), ledger.Event{Kind: ledger.EventDeleted}); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestRecalcFailureIsReturned(t *testing.T) {
	w := NewBudgetWorker(failingRecalc{}, nil, nil)
	err := w.PublishLedgerEvent(context.Background(), ledger.Event{Kind: ledger.EventCreated, UserID: "u1"})
	if err == nil {
		t.Fatal("want error so the delivery is requeued")
	}
	if _, err := w.Sweep(context.Background()); err == nil {
		t.Fatal("sweep should surface the error")
	}
}

func TestSweepCoversAllUsers(t *testing.T) {
	s, _ := seed(t)
	n, err := newWorker(s, nil).Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("recalculated %d budgets", n)
	}
}

func TestWorkerAsInProcessPublisher(t *testing.T) {
	s, b := seed(t)
	ctx := context.Background()
	acc, err := s.CreateAccount(ctx, core.Account{UserID: "u1", Name: "Cash", Type: core.AccountCash, Currency: "EUR", InitialBalance: d("100")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateCategory(ctx, core.Category{ID: "expense-food", UserID: "u1", Name: "Food", Type: core.CategoryExpense}); err != nil {
		t.Fatal(err)
	}

	c := ledger.New(s, ledger.WithPublisher(newWorker(s, nil)))
	if _, err := c.Create(ctx, core.Transaction{
		UserID: "u1", AccountID: acc.ID, Type: core.TxExpense, CategoryID: "expense-food",
		Amount: d("4.5"), Date: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetBudget(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Spent.Equal(d("80")) {
		t.Fatalf("spent = %s", got.Spent)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _ := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newWorker(s, nil).Run(ctx, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
