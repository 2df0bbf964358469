package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/core"
	"fincore/internal/store"
	"fincore/internal/store/storetest"
)

func TestAdapterContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Adapter { return New() })
}

func TestClockStampsRecords(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New(WithClock(func() time.Time { return fixed }))
	a, err := s.CreateAccount(context.Background(), core.Account{
		UserID: "u1", Name: "A", Type: core.AccountCash, Currency: "EUR",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !a.CreatedAt.Equal(fixed) || !a.UpdatedAt.Equal(fixed) {
		t.Fatalf("timestamps = %v / %v", a.CreatedAt, a.UpdatedAt)
	}
}

func TestReturnedSlicesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	tx, err := s.CreateTransaction(ctx, core.Transaction{
		UserID: "u1", AccountID: "a1", Type: core.TxIncome, Amount: decimal.NewFromInt(1),
		Date: time.Now(), Tags: []string{"x"},
	})
	if err != nil {
		t.Fatal(err)
	}
	tx.Tags[0] = "mutated"
	got, _ := s.GetTransaction(ctx, tx.ID)
	if got.Tags[0] != "x" {
		t.Fatalf("store shares its slice with callers: %v", got.Tags)
	}
}
