package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/cache"
	"fincore/internal/core"
	"fincore/internal/ledger"
	"fincore/internal/store"
	"fincore/internal/store/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var feb = time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx    context.Context
	store  *memory.Store
	ledger *ledger.Coordinator
	a, b   core.Account
}

func newFixture(t *testing.T, userID string) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	f := &fixture{ctx: ctx, store: s, ledger: ledger.New(s)}
	var err error
	if f.a, err = s.CreateAccount(ctx, core.Account{UserID: userID, Name: "Checking", Type: core.AccountBank, Currency: "EUR", InitialBalance: d("1000"), IsActive: true}); err != nil {
		t.Fatal(err)
	}
	if f.b, err = s.CreateAccount(ctx, core.Account{UserID: userID, Name: "Card", Type: core.AccountCredit, Currency: "EUR", InitialBalance: d("-200"), IsActive: true}); err != nil {
		t.Fatal(err)
	}
	for _, c := range []core.Category{
		{ID: "expense-food", UserID: userID, Name: "Food", Type: core.CategoryExpense},
		{ID: "income-salary", UserID: userID, Name: "Salary", Type: core.CategoryIncome},
	} {
		if _, err := s.CreateCategory(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func (f *fixture) add(t *testing.T, tx core.Transaction) core.Transaction {
	t.Helper()
	if tx.UserID == "" {
		tx.UserID = f.a.UserID
	}
	if tx.AccountID == "" {
		tx.AccountID = f.a.ID
	}
	m, err := f.ledger.Create(f.ctx, tx)
	if err != nil {
		t.Fatal(err)
	}
	return m.Transaction
}

func (f *fixture) expense(t *testing.T, amount string, at time.Time) core.Transaction {
	return f.add(t, core.Transaction{Type: core.TxExpense, CategoryID: "expense-food", Amount: d(amount), Date: at})
}

func TestDashboardIsCachedUntilInvalidated(t *testing.T) {
	f := newFixture(t, "u1")
	f.expense(t, "40", feb)
	f.add(t, core.Transaction{Type: core.TxIncome, CategoryID: "income-salary", Amount: d("200"), Date: feb})
	f.expense(t, "999", feb.AddDate(0, -1, 0))

	svc := NewStatsService(f.store, cache.NewLRUCache[Dashboard](16, time.Minute), 1, nil)
	dash, err := svc.Dashboard(f.ctx, "u1", feb)
	if err != nil {
		t.Fatal(err)
	}
	if !dash.Summary.Expense.Equal(d("40")) || !dash.Summary.Income.Equal(d("200")) {
		t.Fatalf("summary = %+v", dash.Summary)
	}
	if dash.Summary.SavingsRate != 80 {
		t.Fatalf("savings rate = %v", dash.Summary.SavingsRate)
	}
	// 1000 - 40 + 200 - 999 = 161 in assets, 200 owed on the card.
	if !dash.NetWorth.NetWorth.Equal(d("-39")) {
		t.Fatalf("net worth = %s", dash.NetWorth.NetWorth)
	}
	if dash.Counts[core.TxExpense] != 1 || !dash.AverageExpense.Equal(d("40")) {
		t.Fatalf("counts = %v, average = %s", dash.Counts, dash.AverageExpense)
	}

	f.expense(t, "10", feb)
	cached, err := svc.Dashboard(f.ctx, "u1", feb)
	if err != nil {
		t.Fatal(err)
	}
	if !cached.Summary.Expense.Equal(d("40")) {
		t.Fatal("second read should come from the cache")
	}

	if n := svc.Invalidate("u1"); n != 1 {
		t.Fatalf("invalidated %d entries", n)
	}
	fresh, err := svc.Dashboard(f.ctx, "u1", feb)
	if err != nil {
		t.Fatal(err)
	}
	if !fresh.Summary.Expense.Equal(d("50")) {
		t.Fatalf("expense after invalidation = %s", fresh.Summary.Expense)
	}
}

func TestDashboardUsesUserMonthStart(t *testing.T) {
	f := newFixture(t, "u1")
	settings := core.DefaultSettings()
	settings.FinancialMonthStart = 15
	if _, err := f.store.CreateUser(f.ctx, core.User{ID: "u1", Mode: core.AuthenticatedMode, Settings: settings}); err != nil {
		t.Fatal(err)
	}
	f.expense(t, "30", time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC))
	f.expense(t, "5", time.Date(2025, 2, 16, 0, 0, 0, 0, time.UTC))

	svc := NewStatsService(f.store, cache.NewLRUCache[Dashboard](16, time.Minute), 1, nil)
	dash, err := svc.Dashboard(f.ctx, "u1", feb)
	if err != nil {
		t.Fatal(err)
	}
	if got := dash.Period.Start; !got.Equal(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("period start = %s", got)
	}
	if !dash.Summary.Expense.Equal(d("30")) {
		t.Fatalf("expense = %s", dash.Summary.Expense)
	}
}

func TestBackupExportImport(t *testing.T) {
	f := newFixture(t, "u1")
	f.expense(t, "12.5", feb)
	dir := filepath.Join(t.TempDir(), "backups")

	svc := NewBackupService(f.store, dir, nil)
	path, err := svc.Export(f.ctx, "u1", feb)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "fincore-backup-u1-20250210-090000.json" {
		t.Fatalf("path = %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}

	target := memory.New()
	report, err := NewBackupService(target, dir, nil).Import(f.ctx, path, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if report.Counts["accounts"] != 2 || report.Counts["transactions"] != 1 {
		t.Fatalf("report = %+v", report)
	}
	accounts, err := target.ListAccounts(f.ctx, "u2", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 2 {
		t.Fatalf("imported %d accounts for u2", len(accounts))
	}
}

func TestBackupImportMissingFile(t *testing.T) {
	svc := NewBackupService(memory.New(), t.TempDir(), nil)
	if _, err := svc.Import(context.Background(), filepath.Join(t.TempDir(), "nope.json"), ""); err == nil {
		t.Fatal("want error")
	}
}

func TestBackupFileName(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	if got := BackupFileName("", at); got != "fincore-backup-all-20250304-050607.json" {
		t.Fatalf("got %s", got)
	}
}

func TestGuestUpgrade(t *testing.T) {
	f := newFixture(t, "guest_abc")
	settings := core.DefaultSettings()
	settings.Currency = "EUR"
	if _, err := f.store.CreateUser(f.ctx, core.User{ID: "guest_abc", Mode: core.GuestMode, Settings: settings}); err != nil {
		t.Fatal(err)
	}
	f.expense(t, "7", feb)

	svc := NewGuestService(f.store, nil)
	res, err := svc.Upgrade(f.ctx, MigrationContext{GuestID: "guest_abc", AuthUserID: "auth-1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.MigratedCounts["accounts"] != 2 || res.MigratedCounts["transactions"] != 1 {
		t.Fatalf("counts = %v", res.MigratedCounts)
	}
	u, err := f.store.GetUser(f.ctx, "auth-1")
	if err != nil {
		t.Fatal(err)
	}
	if u.Mode != core.AuthenticatedMode || u.Settings.Currency != "EUR" {
		t.Fatalf("user = %+v", u)
	}
	acc, err := f.store.GetAccount(f.ctx, f.a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if acc.UserID != "auth-1" {
		t.Fatalf("account owner = %s", acc.UserID)
	}
}

func TestGuestUpgradeFlipsExistingUser(t *testing.T) {
	f := newFixture(t, "guest_abc")
	if _, err := f.store.CreateUser(f.ctx, core.User{ID: "auth-1", Mode: core.GuestMode}); err != nil {
		t.Fatal(err)
	}
	if _, err := NewGuestService(f.store, nil).Upgrade(f.ctx, MigrationContext{GuestID: "guest_abc", AuthUserID: "auth-1"}); err != nil {
		t.Fatal(err)
	}
	u, err := f.store.GetUser(f.ctx, "auth-1")
	if err != nil {
		t.Fatal(err)
	}
	if u.Mode != core.AuthenticatedMode {
		t.Fatalf("mode = %s", u.Mode)
	}
}

func TestGuestUpgradeRejectsBadContext(t *testing.T) {
	svc := NewGuestService(memory.New(), nil)
	for _, mc := range []MigrationContext{
		{AuthUserID: "auth-1"},
		{GuestID: "guest_abc"},
		{GuestID: "same", AuthUserID: "same"},
	} {
		res, err := svc.Upgrade(context.Background(), mc)
		if !errors.Is(err, core.ErrValidation) {
			t.Fatalf("%+v: err = %v", mc, err)
		}
		if res.Success || res.Error == "" {
			t.Fatalf("%+v: result = %+v", mc, res)
		}
	}
}

func TestArchiveKeepsBalancesDerivable(t *testing.T) {
	f := newFixture(t, "u1")
	jan := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	f.expense(t, "100", jan)
	f.add(t, core.Transaction{Type: core.TxTransfer, ToAccountID: f.b.ID, Amount: d("50"), Date: jan})
	f.expense(t, "20", feb)

	svc := NewArchiveService(f.store, f.ledger, nil)
	n, err := svc.ArchiveAll(f.ctx, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	// ArchiveAll walks user records only; u1 has none yet.
	if n != 0 {
		t.Fatalf("archived %d without user records", n)
	}

	n, err = svc.ArchiveUser(f.ctx, "u1", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("archived %d", n)
	}
	left, err := f.store.ListTransactions(f.ctx, "u1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 {
		t.Fatalf("%d transactions left", len(left))
	}

	vs, err := f.ledger.VerifyUser(f.ctx, "u1", decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vs {
		if !v.Matches {
			t.Fatalf("verification after archive = %+v", v)
		}
	}
	acc, err := f.store.GetAccount(f.ctx, f.b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !acc.InitialBalance.Equal(d("-150")) {
		t.Fatalf("card initial balance = %s", acc.InitialBalance)
	}
}

// backdatingStore writes a back-dated expense through the ledger the first
// time transactions are listed, as a concurrent writer would.
type backdatingStore struct {
	*memory.Store
	f    *fixture
	t    *testing.T
	done bool
}

func (s *backdatingStore) ListTransactions(ctx context.Context, userID string, filter *store.TransactionFilter, opts *store.ListOptions) ([]core.Transaction, error) {
	out, err := s.Store.ListTransactions(ctx, userID, filter, opts)
	if !s.done {
		s.done = true
		s.f.expense(s.t, "30", time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC))
	}
	return out, err
}

func TestArchiveFoldsTransactionsWrittenWhileListing(t *testing.T) {
	f := newFixture(t, "u1")
	jan := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	f.expense(t, "100", jan)
	f.expense(t, "20", feb)

	svc := NewArchiveService(&backdatingStore{Store: f.store, f: f, t: t}, f.ledger, nil)
	n, err := svc.ArchiveUser(f.ctx, "u1", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("archived %d", n)
	}
	vs, err := f.ledger.VerifyUser(f.ctx, "u1", decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vs {
		if !v.Matches {
			t.Fatalf("verification after archive = %+v", v)
		}
	}
	acc, err := f.store.GetAccount(f.ctx, f.a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !acc.InitialBalance.Equal(d("870")) {
		t.Fatalf("initial balance = %s", acc.InitialBalance)
	}
}

func TestArchiveNothingOld(t *testing.T) {
	f := newFixture(t, "u1")
	f.expense(t, "20", feb)
	n, err := NewArchiveService(f.store, f.ledger, nil).ArchiveUser(f.ctx, "u1", feb.AddDate(0, 0, -1))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("archived %d", n)
	}
}

func TestStatsKeyPrefixDoesNotOverlap(t *testing.T) {
	if strings.HasPrefix(StatsKeyPrefix("u10")+"2025-01-01", StatsKeyPrefix("u1")) {
		t.Fatal("u1 prefix must not match u10 keys")
	}
}
