package ledger

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/balance"
	"fincore/internal/core"
	"fincore/internal/store"
	"fincore/internal/store/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var when = time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx   context.Context
	store *memory.Store
	c     *Coordinator
	a, b  core.Account
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	f := &fixture{ctx: ctx, store: s, c: New(s, opts...)}
	var err error
	if f.a, err = s.CreateAccount(ctx, core.Account{UserID: "u1", Name: "Checking", Type: core.AccountBank, Currency: "EUR", InitialBalance: d("1000")}); err != nil {
		t.Fatal(err)
	}
	if f.b, err = s.CreateAccount(ctx, core.Account{UserID: "u1", Name: "Savings", Type: core.AccountBank, Currency: "EUR", InitialBalance: d("50")}); err != nil {
		t.Fatal(err)
	}
	for _, c := range []core.Category{
		{ID: "expense-food", UserID: "u1", Name: "Food", Type: core.CategoryExpense},
		{ID: "income-salary", UserID: "u1", Name: "Salary", Type: core.CategoryIncome},
	} {
		if _, err := s.CreateCategory(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	acc, err := f.store.GetAccount(f.ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return acc.Balance
}

func (f *fixture) expense(amount string) core.Transaction {
	return core.Transaction{UserID: "u1", AccountID: f.a.ID, Type: core.TxExpense, Amount: d(amount), CategoryID: "expense-food", Date: when}
}

func (f *fixture) transfer(amount string) core.Transaction {
	return core.Transaction{UserID: "u1", AccountID: f.a.ID, ToAccountID: f.b.ID, Type: core.TxTransfer, Amount: d(amount), Date: when}
}

// assertDerived checks that every cached balance equals the one folded from
// the stored transactions.
func (f *fixture) assertDerived(t *testing.T) {
	t.Helper()
	for _, acc := range []core.Account{f.a, f.b} {
		v, err := f.c.VerifyAccount(f.ctx, acc.ID, decimal.Zero)
		if err != nil {
			t.Fatal(err)
		}
		if !v.Actual.Equal(v.Expected) {
			t.Fatalf("account %s: cached %s, derived %s", acc.Name, v.Expected, v.Actual)
		}
	}
}

func TestRoundTripInvariant(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewPCG(7, 11))
	var live []core.Transaction

	randomTx := func() core.Transaction {
		amount := decimal.New(rng.Int64N(100000)+1, -2)
		switch rng.IntN(4) {
		case 0:
			tx := f.expense("0")
			tx.Amount = amount
			return tx
		case 1:
			return core.Transaction{UserID: "u1", AccountID: f.b.ID, Type: core.TxIncome, Amount: amount, CategoryID: "income-salary", Date: when}
		case 2:
			tx := f.transfer("0")
			tx.Amount = amount
			if rng.IntN(2) == 0 {
				tx.AccountID, tx.ToAccountID = f.b.ID, f.a.ID
			}
			return tx
		default:
			return core.Transaction{UserID: "u1", AccountID: f.a.ID, Type: core.TxBalanceAdjustment, Amount: amount.Neg(), Date: when}
		}
	}

	for i := 0; i < 200; i++ {
		switch op := rng.IntN(3); {
		case op == 0 || len(live) == 0:
			m, err := f.c.Create(f.ctx, randomTx())
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			live = append(live, m.Transaction)
		case op == 1:
			j := rng.IntN(len(live))
			prior := live[j]
			next := randomTx()
			next.ID = prior.ID
			m, err := f.c.Update(f.ctx, &prior, next)
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			live[j] = m.Transaction
		default:
			j := rng.IntN(len(live))
			prior := live[j]
			if _, err := f.c.Delete(f.ctx, &prior); err != nil {
				t.Fatalf("delete: %v", err)
			}
			live = append(live[:j], live[j+1:]...)
		}
	}
	f.assertDerived(t)

	stored, err := f.store.ListTransactions(f.ctx, "u1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != len(live) {
		t.Fatalf("stored %d transactions, tracked %d", len(stored), len(live))
	}
	want := balance.ComputeForAccount(f.a.ID, f.a.InitialBalance, stored, nil)
	if got := f.balance(t, f.a.ID); !got.Equal(want) {
		t.Fatalf("checking = %s, fold = %s", got, want)
	}
}

func TestRevertUndoesApply(t *testing.T) {
	f := newFixture(t)
	types := []core.Transaction{
		f.expense("12.34"),
		{AccountID: f.a.ID, Type: core.TxIncome, Amount: d("99.99")},
		f.transfer("40"),
		{AccountID: f.a.ID, Type: core.TxGoalContribution, GoalID: "g", Amount: d("10")},
		{AccountID: f.a.ID, Type: core.TxGoalWithdrawal, GoalID: "g", Amount: d("10")},
		{AccountID: f.a.ID, Type: core.TxBalanceAdjustment, Amount: d("-7.5")},
	}
	for _, tx := range types {
		t.Run(string(tx.Type), func(t *testing.T) {
			beforeA, beforeB := f.balance(t, f.a.ID), f.balance(t, f.b.ID)
			if _, err := f.c.Apply(f.ctx, tx); err != nil {
				t.Fatal(err)
			}
			if _, err := f.c.Revert(f.ctx, tx); err != nil {
				t.Fatal(err)
			}
			if !f.balance(t, f.a.ID).Equal(beforeA) || !f.balance(t, f.b.ID).Equal(beforeB) {
				t.Fatalf("balances changed: %s/%s", f.balance(t, f.a.ID), f.balance(t, f.b.ID))
			}
		})
	}
}

func TestTransferSymmetry(t *testing.T) {
	f := newFixture(t)
	m, err := f.c.Create(f.ctx, f.transfer("250"))
	if err != nil {
		t.Fatal(err)
	}
	if !m.Balances[f.a.ID].Equal(d("750")) || !m.Balances[f.b.ID].Equal(d("300")) {
		t.Fatalf("balances after transfer = %v", m.Balances)
	}
	if len(m.Anomalies) != 0 {
		t.Fatalf("anomalies = %+v", m.Anomalies)
	}
	if _, err := f.c.Delete(f.ctx, &m.Transaction); err != nil {
		t.Fatal(err)
	}
	if !f.balance(t, f.a.ID).Equal(d("1000")) || !f.balance(t, f.b.ID).Equal(d("50")) {
		t.Fatal("delete did not restore both accounts")
	}
}

func TestUpdateMovesBetweenAccounts(t *testing.T) {
	f := newFixture(t)
	m, err := f.c.Create(f.ctx, f.expense("100"))
	if err != nil {
		t.Fatal(err)
	}
	next := m.Transaction
	next.AccountID = f.b.ID
	next.Amount = d("20")
	if _, err := f.c.Update(f.ctx, &m.Transaction, next); err != nil {
		t.Fatal(err)
	}
	if !f.balance(t, f.a.ID).Equal(d("1000")) || !f.balance(t, f.b.ID).Equal(d("30")) {
		t.Fatalf("balances = %s / %s", f.balance(t, f.a.ID), f.balance(t, f.b.ID))
	}
	f.assertDerived(t)
}

func TestMissingDestinationIsAnomaly(t *testing.T) {
	f := newFixture(t)
	tx := f.transfer("30")
	tx.ToAccountID = "ghost"
	m, err := f.c.Create(f.ctx, tx)
	if err != nil {
		t.Fatalf("source leg should proceed: %v", err)
	}
	if len(m.Anomalies) != 1 || m.Anomalies[0].Kind != AnomalyMissingDestination || m.Anomalies[0].AccountID != "ghost" {
		t.Fatalf("anomalies = %+v", m.Anomalies)
	}
	if m.Anomalies[0].TransactionID != m.Transaction.ID {
		t.Fatal("anomaly should name the stored transaction")
	}
	if !f.balance(t, f.a.ID).Equal(d("970")) {
		t.Fatalf("source = %s", f.balance(t, f.a.ID))
	}
}

func TestPriorStateRequired(t *testing.T) {
	f := newFixture(t)
	m, err := f.c.Create(f.ctx, f.expense("10"))
	if err != nil {
		t.Fatal(err)
	}
	next := m.Transaction
	next.Amount = d("500")
	if _, err := f.c.Update(f.ctx, nil, next); !errors.Is(err, core.ErrPriorStateRequired) {
		t.Fatalf("update without prior: %v", err)
	}
	if _, err := f.c.Delete(f.ctx, nil); !errors.Is(err, core.ErrPriorStateRequired) {
		t.Fatalf("delete without prior: %v", err)
	}
	if !f.balance(t, f.a.ID).Equal(d("990")) {
		t.Fatalf("balance mutated: %s", f.balance(t, f.a.ID))
	}
	stored, _ := f.store.GetTransaction(f.ctx, m.Transaction.ID)
	if !stored.Amount.Equal(d("10")) {
		t.Fatalf("transaction mutated: %s", stored.Amount)
	}
}

func TestMissingSourceIsFatal(t *testing.T) {
	f := newFixture(t)
	tx := f.expense("10")
	tx.AccountID = "nope"
	var ref *core.ReferenceError
	if _, err := f.c.Create(f.ctx, tx); !errors.As(err, &ref) || ref.Entity != "account" {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.c.Apply(f.ctx, tx); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("apply: %v", err)
	}
	if n, _ := f.store.CountTransactions(f.ctx, "u1", nil); n != 0 {
		t.Fatalf("nothing should be stored, got %d", n)
	}
}

func TestValidationBeforeMutation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		tx   core.Transaction
	}{
		{"same account transfer", core.Transaction{UserID: "u1", AccountID: f.a.ID, ToAccountID: f.a.ID, Type: core.TxTransfer, Amount: d("1"), Date: when}},
		{"category direction", core.Transaction{UserID: "u1", AccountID: f.a.ID, Type: core.TxExpense, CategoryID: "income-salary", Amount: d("1"), Date: when}},
		{"missing category", core.Transaction{UserID: "u1", AccountID: f.a.ID, Type: core.TxIncome, Amount: d("1"), Date: when}},
		{"negative expense", core.Transaction{UserID: "u1", AccountID: f.a.ID, Type: core.TxExpense, CategoryID: "expense-food", Amount: d("-1"), Date: when}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.c.Create(f.ctx, tt.tx); !errors.Is(err, core.ErrValidation) {
				t.Fatalf("want validation error, got %v", err)
			}
		})
	}
	if !f.balance(t, f.a.ID).Equal(d("1000")) {
		t.Fatal("rejected writes touched the balance")
	}
}

func TestConcurrentWritesDoNotDrift(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := f.expense("1")
			if i%2 == 0 {
				tx = f.transfer("2")
			}
			if _, err := f.c.Create(f.ctx, tx); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	// 25 expenses of 1 and 25 transfers of 2 leave checking.
	if got := f.balance(t, f.a.ID); !got.Equal(d("925")) {
		t.Fatalf("checking = %s", got)
	}
	if got := f.balance(t, f.b.ID); !got.Equal(d("100")) {
		t.Fatalf("savings = %s", got)
	}
	f.assertDerived(t)
}

func TestCancelledContextStopsBeforeLocking(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.c.Create(ctx, f.expense("5")); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestGoalMovementsMoveAccountBalance(t *testing.T) {
	f := newFixture(t)
	g, err := f.store.CreateGoal(f.ctx, core.Goal{UserID: "u1", Name: "Car", Type: core.GoalSavings, TargetAmount: d("5000")})
	if err != nil {
		t.Fatal(err)
	}
	mv := store.GoalMovement{UserID: "u1", GoalID: g.ID, AccountID: f.a.ID, Amount: d("300"), Date: when}
	if _, err := f.c.ContributeToGoal(f.ctx, mv); err != nil {
		t.Fatal(err)
	}
	mv.Amount = d("100")
	if _, err := f.c.WithdrawFromGoal(f.ctx, mv); err != nil {
		t.Fatal(err)
	}
	if got := f.balance(t, f.a.ID); !got.Equal(d("800")) {
		t.Fatalf("account = %s", got)
	}
	g, _ = f.store.GetGoal(f.ctx, g.ID)
	if !g.CurrentAmount.Equal(d("200")) {
		t.Fatalf("goal = %s", g.CurrentAmount)
	}
	mv.Amount = d("1000")
	if _, err := f.c.WithdrawFromGoal(f.ctx, mv); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("overdraw: %v", err)
	}
	if got := f.balance(t, f.a.ID); !got.Equal(d("800")) {
		t.Fatalf("failed withdrawal moved the account: %s", got)
	}
	f.assertDerived(t)
}

func (f *fixture) goalAmount(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	g, err := f.store.GetGoal(f.ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return g.CurrentAmount
}

func TestGoalTransactionWritesTrackGoalAmount(t *testing.T) {
	f := newFixture(t)
	car, err := f.store.CreateGoal(f.ctx, core.Goal{UserID: "u1", Name: "Car", Type: core.GoalSavings, TargetAmount: d("5000")})
	if err != nil {
		t.Fatal(err)
	}
	trip, err := f.store.CreateGoal(f.ctx, core.Goal{UserID: "u1", Name: "Trip", Type: core.GoalSavings, TargetAmount: d("900")})
	if err != nil {
		t.Fatal(err)
	}

	m, err := f.c.ContributeToGoal(f.ctx, store.GoalMovement{UserID: "u1", GoalID: car.ID, AccountID: f.a.ID, Amount: d("300"), Date: when})
	if err != nil {
		t.Fatal(err)
	}
	if !m.GoalAmounts[car.ID].Equal(d("300")) {
		t.Fatalf("goal amounts = %v", m.GoalAmounts)
	}
	if _, err := f.c.Delete(f.ctx, &m.Transaction); err != nil {
		t.Fatal(err)
	}
	if got := f.goalAmount(t, car.ID); !got.IsZero() {
		t.Fatalf("goal after deleting the contribution = %s", got)
	}

	contribution := core.Transaction{UserID: "u1", AccountID: f.a.ID, Type: core.TxGoalContribution, GoalID: car.ID, Amount: d("100"), Date: when}
	m, err = f.c.Create(f.ctx, contribution)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.goalAmount(t, car.ID); !got.Equal(d("100")) {
		t.Fatalf("goal after create = %s", got)
	}

	edited := m.Transaction
	edited.Amount = d("250")
	m, err = f.c.Update(f.ctx, &m.Transaction, edited)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.goalAmount(t, car.ID); !got.Equal(d("250")) {
		t.Fatalf("goal after editing the amount = %s", got)
	}

	moved := m.Transaction
	moved.GoalID = trip.ID
	m, err = f.c.Update(f.ctx, &m.Transaction, moved)
	if err != nil {
		t.Fatal(err)
	}
	if car, trip := f.goalAmount(t, car.ID), f.goalAmount(t, trip.ID); !car.IsZero() || !trip.Equal(d("250")) {
		t.Fatalf("after moving goals: car %s trip %s", car, trip)
	}

	withdrawal := core.Transaction{UserID: "u1", AccountID: f.a.ID, Type: core.TxGoalWithdrawal, GoalID: trip.ID, Amount: d("50"), Date: when}
	if _, err := f.c.Create(f.ctx, withdrawal); err != nil {
		t.Fatal(err)
	}
	if got := f.goalAmount(t, trip.ID); !got.Equal(d("200")) {
		t.Fatalf("goal after withdrawal = %s", got)
	}

	// The goal holds 200, so removing the 250 contribution would leave it negative.
	if _, err := f.c.Delete(f.ctx, &m.Transaction); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	if got := f.balance(t, f.a.ID); !got.Equal(d("800")) {
		t.Fatalf("rejected delete moved the account: %s", got)
	}
	if _, err := f.store.GetTransaction(f.ctx, m.Transaction.ID); err != nil {
		t.Fatalf("rejected delete removed the transaction: %v", err)
	}
	f.assertDerived(t)
}

func TestDeletingGoalTransactionOfMissingGoal(t *testing.T) {
	f := newFixture(t)
	g, err := f.store.CreateGoal(f.ctx, core.Goal{UserID: "u1", Name: "Car", Type: core.GoalSavings, TargetAmount: d("5000")})
	if err != nil {
		t.Fatal(err)
	}
	m, err := f.c.ContributeToGoal(f.ctx, store.GoalMovement{UserID: "u1", GoalID: g.ID, AccountID: f.a.ID, Amount: d("40"), Date: when})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.DeleteGoal(f.ctx, g.ID); err != nil {
		t.Fatal(err)
	}
	m, err = f.c.Delete(f.ctx, &m.Transaction)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Anomalies) != 1 || m.Anomalies[0].Kind != AnomalyMissingGoal || m.Anomalies[0].GoalID != g.ID {
		t.Fatalf("anomalies = %+v", m.Anomalies)
	}
	if got := f.balance(t, f.a.ID); !got.Equal(d("1000")) {
		t.Fatalf("account = %s", got)
	}
}

func TestVerifyAndRebuild(t *testing.T) {
	f := newFixture(t)
	if _, err := f.c.Create(f.ctx, f.expense("25")); err != nil {
		t.Fatal(err)
	}
	if err := f.store.UpdateAccountBalance(f.ctx, f.a.ID, d("900")); err != nil {
		t.Fatal(err)
	}
	v, err := f.c.VerifyAccount(f.ctx, f.a.ID, decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	if v.Matches || !v.Difference.Equal(d("75")) {
		t.Fatalf("verification = %+v", v)
	}
	var mismatch *core.IntegrityMismatch
	if !errors.As(v.Err(), &mismatch) {
		t.Fatal("mismatch should surface as *core.IntegrityMismatch")
	}
	if _, err := f.c.VerifyUser(f.ctx, "u1", decimal.Zero); !errors.Is(err, core.ErrIntegrityMismatch) {
		t.Fatalf("verify user: %v", err)
	}
	if got := f.balance(t, f.a.ID); !got.Equal(d("900")) {
		t.Fatal("verification must not correct the balance")
	}

	if _, err := f.c.RebuildAccount(f.ctx, f.a.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.balance(t, f.a.ID); !got.Equal(d("975")) {
		t.Fatalf("rebuilt = %s", got)
	}
}

func TestPublisherReceivesEvents(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	pub := PublisherFunc(func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return errors.New("broker down")
	})
	f := newFixture(t, WithPublisher(pub), WithClock(func() time.Time { return when }))
	m, err := f.c.Create(f.ctx, f.transfer("5"))
	if err != nil {
		t.Fatalf("publish failures must not fail the write: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	e := events[0]
	if e.Kind != EventCreated || e.TransactionID != m.Transaction.ID || e.UserID != "u1" || len(e.AccountIDs) != 2 || !e.Timestamp.Equal(when) {
		t.Fatalf("event = %+v", e)
	}
}
