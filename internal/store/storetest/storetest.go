// Package storetest holds the behaviour every store.Adapter must share.
// Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/core"
	"fincore/internal/migration"
	"fincore/internal/store"
)

// Factory returns an empty adapter. Cleanup is the caller's business.
type Factory func(t *testing.T) store.Adapter

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var day = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// Run executes the shared suite against adapters built by newAdapter.
func Run(t *testing.T, newAdapter Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, a store.Adapter)
	}{
		{"UserSettings", testUserSettings},
		{"AccountCRUD", testAccountCRUD},
		{"DeleteAccountDenied", testDeleteAccountDenied},
		{"CategoriesIncludeDefaults", testCategoriesIncludeDefaults},
		{"TransactionFilters", testTransactionFilters},
		{"BudgetSpent", testBudgetSpent},
		{"GoalMovements", testGoalMovements},
		{"Aggregates", testAggregates},
		{"ExportImport", testExportImport},
		{"ImportDropsInvalidTransactions", testImportDropsInvalidTransactions},
		{"GuestMigration", testGuestMigration},
		{"Archive", testArchive},
		{"NotFound", testNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newAdapter(t))
		})
	}
}

func mustAccount(t *testing.T, a store.Adapter, userID, name, initial string) core.Account {
	t.Helper()
	acc, err := a.CreateAccount(context.Background(), core.Account{
		UserID: userID, Name: name, Type: core.AccountBank, Currency: "EUR",
		InitialBalance: d(initial), IsActive: true,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acc
}

func mustCategory(t *testing.T, a store.Adapter, c core.Category) core.Category {
	t.Helper()
	c, err := a.CreateCategory(context.Background(), c)
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	return c
}

func mustTx(t *testing.T, a store.Adapter, tx core.Transaction) core.Transaction {
	t.Helper()
	tx, err := a.CreateTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tx
}

func testUserSettings(t *testing.T, a store.Adapter) {
	ctx := context.Background()
	u, err := a.CreateUser(ctx, core.User{ID: "u1", Mode: core.AuthenticatedMode})
	if err != nil {
		t.Fatal(err)
	}
	if u.Settings.FinancialMonthStart != 1 || u.Settings.Currency == "" {
		t.Fatalf("new users get default settings, got %+v", u.Settings)
	}
	settings := u.Settings
	settings.FinancialMonthStart = 40
	if err := a.UpdateUserSettings(ctx, "u1", settings); err != nil {
		t.Fatal(err)
	}
	got, err := a.GetUserSettings(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.FinancialMonthStart != 31 {
		t.Fatalf("month start should clamp to 31, got %d", got.FinancialMonthStart)
	}
	if _, err := a.CreateUser(ctx, core.User{ID: "", Mode: core.GuestMode}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("empty id: %v", err)
	}
}

func testAccountCRUD(t *testing.T, a store.Adapter) {
	ctx := context.Background()
	acc := mustAccount(t, a, "u1", "Checking", "100")
	if acc.ID == "" {
		t.Fatal("adapter should assign an id")
	}
	if !acc.Balance.Equal(d("100")) {
		t.Fatalf("balance starts at the initial balance, got %s", acc.Balance)
	}
	if err := a.UpdateAccountBalance(ctx, acc.ID, d("42.5")); err != nil {
		t.Fatal(err)
	}
	acc.Name = "Main"
	acc.Balance = d("999")
	updated, err := a.UpdateAccount(ctx, acc)
	if err != nil {
		t.Fatal(err)
	}
	if !updated.Balance.Equal(d("42.5")) || updated.Name != "Main" {
		t.Fatalf("update account must not touch the balance: %+v", updated)
	}

	inactive := false
	acc.IsActive = false
	if _, err := a.UpdateAccount(ctx, acc); err != nil {
		t.Fatal(err)
	}
	mustAccount(t, a, "u1", "Savings", "0")
	n, err := a.CountAccounts(ctx, "u1", &store.AccountFilter{IsActive: &inactive})
	if err != nil || n != 1 {
		t.Fatalf("inactive count = %d, %v", n, err)
	}
	list, err := a.ListAccounts(ctx, "u1", nil, &store.ListOptions{SortBy: "name"})
	if err != nil || len(list) != 2 || list[0].Name != "Main" {
		t.Fatalf("list = %+v, %v", list, err)
	}
	if err := a.DeleteAccount(ctx, acc.ID); err != nil {
		t.Fatalf("delete unused account: %v", err)
	}
}

func testDeleteAccountDenied(t *testing.T, a store.Adapter) {
	ctx := context.Background()
	src := mustAccount(t, a, "u1", "A", "0")
	dst := mustAccount(t, a, "u1", "B", "0")
	mustTx(t, a, core.Transaction{UserID: "u1", AccountID: src.ID, ToAccountID: dst.ID,
		Type: core.TxTransfer, Amount: d("5"), Date: day})
	for _, id := range []string{src.ID, dst.ID} {
		if err := a.DeleteAccount(ctx, id); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("delete %s: want validation error, got %v", id, err)
		}
	}
}

func testCategoriesIncludeDefaults(t *testing.T, a store.Adapter) {
	ctx := context.Background()
	mustCategory(t, a, core.Category{ID: "expense-food", UserID: "system", Name: "Food", Type: core.CategoryExpense, IsDefault: true})
	mustCategory(t, a, core.Category{ID: "expense-mine", UserID: "u1", Name: "Mine", Type: core.CategoryExpense})
	mustCategory(t, a, core.Category{ID: "income-theirs", UserID: "u2", Name: "Theirs", Type: core.CategoryIncome})

	all, err := a.ListCategories(ctx, "u1", nil, nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("u1 categories = %+v, %v", all, err)
	}
	own, err := a.ListCategories(ctx, "u1", &store.CategoryFilter{Type: core.CategoryExpense}, nil)
	if err != nil || len(own) != 1 || own[0].ID != "expense-mine" {
		t.Fatalf("without defaults = %+v, %v", own, err)
	}
	if err := a.DeleteCategory(ctx, "expense-mine"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.GetCategory(ctx, "expense-mine"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("deleted category: %v", err)
	}
}

func testTransactionFilters(t *testing.T, a store.Adapter) {
	ctx := context.Background()
	acc := mustAccount(t, a, "u1", "A", "0")
	other := mustAccount(t, a, "u1", "B", "0")
	mustTx(t, a, core.Transaction{UserID: "u1", AccountID: acc.ID, Type: core.TxExpense, Amount: d("10"),
		CategoryID: "expense-food", Description: "Groceries", Tags: []string{"weekly"}, Date: day})
	mustTx(t, a, core.Transaction{UserID: "u1", AccountID: acc.ID, Type: core.TxIncome, Amount: d("100"),
		CategoryID: "income-salary", Description: "Pay", Date: day.AddDate(0, 0, -20)})
	mustTx(t, a, core.Transaction{UserID: "u1", AccountID: other.ID, ToAccountID: acc.ID, Type: core.TxTransfer,
		Amount: d("7"), Date: day.AddDate(0, 0, 1)})
	mustTx(t, a, core.Transaction{UserID: "u2", AccountID: "x", Type: core.TxExpense, Amount: d("1"), Date: day})

	tests := []struct {
		name string
		f    *store.TransactionFilter
		want int
	}{
		{"all", nil, 3},
		{"by account includes incoming transfers", &store.TransactionFilter{AccountID: acc.ID}, 3},
		{"by type", &store.TransactionFilter{Type: core.TxIncome}, 1},
		{"by category", &store.TransactionFilter{CategoryID: "expense-food"}, 1},
		{"date range", &store.TransactionFilter{StartDate: "2025-03-01", EndDate: "2025-03-10"}, 1},
		{"search tags", &store.TransactionFilter{Search: "WEEK"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := a.CountTransactions(ctx, "u1", tt.f)
			if err != nil || n != tt.want {
				t.Fatalf("count = %d, %v; want %d", n, err, tt.want)
			}
		})
	}

	list, err := a.ListTransactions(ctx, "u1", nil, &store.ListOptions{Limit: 2})
	if err != nil || len(list) != 2 {
		t.Fatalf("limited list = %d, %v", len(list), err)
	}
	if !list[0].Date.After(list[1].Date) {
		t.Fatal("transactions list newest first by default")
	}
	asc, _ := a.ListTransactions(ctx, "u1", &store.TransactionFilter{SortBy: "amount", SortOrder: store.SortAsc}, nil)
	if !asc[0].Amount.Equal(d("7")) {
		t.Fatalf("first by amount asc = %s", asc[0].Amount)
	}
}

func testBudgetSpent(t *testing.T, a store.Adapter) {
	ctx := context.Background()
	b, err := a.CreateBudget(ctx, core.Budget{UserID: "u1", Name: "Food", CategoryIDs: []string{"expense-food"},
		Amount: d("300"), Period: core.Monthly, StartDate: day, IsActive: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.UpdateBudgetSpent(ctx, b.ID, d("120.55")); err != nil {
		t.Fatal(err)
	}
	got, err := a.GetBudget(ctx, b.ID)
	if err != nil || !got.Spent.Equal(d("120.55")) {
		t.Fatalf("spent = %s, %v", got.Spent, err)
	}
	n, _ := a.CountBudgets(ctx, "u1", &store.BudgetFilter{CategoryID: "expense-food"})
	if n != 1 {
		t.Fatalf("budget by category = %d", n)
	}
	bad := b
	bad.CategoryIDs = nil
	if _, err := a.UpdateBudget(ctx, bad); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("budget without categories: %v", err)
	}
}

func testGoalMovements(t *testing.T, a store.Adapter) {
	ctx := context.Background()
	acc := mustAccount(t, a, "u1", "A", "500")
	g, err := a.CreateGoal(ctx, core.Goal{UserID: "u1", Name: "Trip", Type: core.GoalSavings, TargetAmount: d("1000")})
	if err != nil {
		t.Fatal(err)
	}
	if g.Status != core.GoalActive {
		t.Fatalf("status = %s", g.Status)
	}
	m := store.GoalMovement{UserID: "u1", GoalID: g.ID, AccountID: acc.ID, Amount: d("150"), Date: day}
	tx, err := a.ContributeToGoal(ctx, m)
	if err != nil {
		t.Fatal(err)
	}
	if tx.ID == "" || tx.Type != core.TxGoalContribution || tx.GoalID != g.ID {
		t.Fatalf("contribution tx = %+v", tx)
	}
	m.Amount = d("50")
	if _, err := a.WithdrawFromGoal(ctx, m); err != nil {
		t.Fatal(err)
	}
	got, _ := a.GetGoal(ctx, g.ID)
	if !got.CurrentAmount.Equal(d("100")) {
		t.Fatalf("current = %s", got.CurrentAmount)
	}
	m.Amount = d("101")
	if _, err := a.WithdrawFromGoal(ctx, m); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("overdraw goal: %v", err)
	}
	n, _ := a.CountTransactions(ctx, "u1", &store.TransactionFilter{GoalID: g.ID})
	if n != 2 {
		t.Fatalf("goal transactions = %d, a rejected withdrawal must not leave one", n)
	}
	acc2, _ := a.GetAccount(ctx, acc.ID)
	if !acc2.Balance.Equal(d("500")) {
		t.Fatalf("adapter must not move account balances, got %s", acc2.Balance)
	}
	m.GoalID = "missing"
	if _, err := a.ContributeToGoal(ctx, m); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing goal: %v", err)
	}
}

func testAggregates(t *testing.T, a store.Adapter) {
	ctx := context.Background()
	mustAccount(t, a, "u1", "A", "1000")
	card := mustAccount(t, a, "u1", "Card", "0")
	if err := a.UpdateAccountBalance(ctx, card.ID, d("-250")); err != nil {
		t.Fatal(err)
	}
	total, err := a.GetTotalBalance(ctx, "u1")
	if err != nil || !total.Equal(d("750")) {
		t.Fatalf("total = %s, %v", total, err)
	}
	nw, err := a.GetNetWorth(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !nw.TotalAssets.Equal(d("1000")) || !nw.TotalLiabilities.Equal(d("250")) || !nw.NetWorth.Equal(d("750")) {
		t.Fatalf("net worth = %+v", nw)
	}
}

func testExportImport(t *testing.T, a store.Adapter) {
	ctx := context.Background()
	if _, err := a.CreateUser(ctx, core.User{ID: "old", Mode: core.AuthenticatedMode}); err != nil {
		t.Fatal(err)
	}
	acc := mustAccount(t, a, "old", "A", "10")
	mustCategory(t, a, core.Category{ID: "expense-food", UserID: "system", Name: "Food", Type: core.CategoryExpense, IsDefault: true})
	mustTx(t, a, core.Transaction{UserID: "old", AccountID: acc.ID, Type: core.TxExpense, Amount: d("3"),
		CategoryID: "expense-food", Date: day, Tags: []string{"a"}})

	data, err := a.ExportDatabase(ctx, "old")
	if err != nil {
		t.Fatal(err)
	}
	snap, _, err := migration.DecodeSnapshot(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Accounts) != 1 || len(snap.Transactions) != 1 || len(snap.Categories) != 1 || snap.Settings == nil {
		t.Fatalf("export = %+v", snap)
	}

	if err := a.ClearDatabase(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := a.CountAccounts(ctx, "old", nil); n != 0 {
		t.Fatalf("clear left %d accounts", n)
	}
	if _, err := a.CreateUser(ctx, core.User{ID: "new", Mode: core.AuthenticatedMode}); err != nil {
		t.Fatal(err)
	}
	report, err := a.ImportDatabase(ctx, data, "new")
	if err != nil {
		t.Fatal(err)
	}
	if report.DetectedUserID != "old" || report.Counts["transactions"] != 1 {
		t.Fatalf("report = %+v", report)
	}
	got, err := a.GetAccount(ctx, acc.ID)
	if err != nil || got.UserID != "new" || !got.Balance.Equal(d("10")) {
		t.Fatalf("imported account = %+v, %v", got, err)
	}
	cat, err := a.GetCategory(ctx, "expense-food")
	if err != nil || cat.UserID != "system" {
		t.Fatalf("default category = %+v, %v", cat, err)
	}
	txs, _ := a.ListTransactions(ctx, "new", nil, nil)
	if len(txs) != 1 || len(txs[0].Tags) != 1 {
		t.Fatalf("imported transactions = %+v", txs)
	}
}

func testImportDropsInvalidTransactions(t *testing.T, a store.Adapter) {
	ctx := context.Background()
	data := []byte(`{
		"accounts": [{"id": "a1", "userId": "u1", "name": "Cash", "type": "cash", "currency": "EUR", "balance": "10", "initialBalance": "10"}],
		"transactions": [
			{"id": "ok", "userId": "u1", "accountId": "a1", "type": "expense", "amount": "3", "date": "2025-03-10T12:00:00Z"},
			{"id": "no-destination", "userId": "u1", "accountId": "a1", "type": "transfer", "amount": "3", "date": "2025-03-10T12:00:00Z"},
			{"id": "no-goal", "userId": "u1", "accountId": "a1", "type": "goal-withdrawal", "amount": "3", "date": "2025-03-10T12:00:00Z"}
		]
	}`)
	report, err := a.ImportDatabase(ctx, data, "")
	if err != nil {
		t.Fatal(err)
	}
	if report.Dropped != 2 || report.Counts["transactions"] != 1 {
		t.Fatalf("report = %+v", report)
	}
	txs, err := a.ListTransactions(ctx, "u1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 || txs[0].ID != "ok" {
		t.Fatalf("imported transactions = %+v", txs)
	}
}

func testGuestMigration(t *testing.T, a store.Adapter) {
	ctx := context.Background()
	guest := "guest_123"
	acc := mustAccount(t, a, guest, "A", "0")
	mustCategory(t, a, core.Category{ID: "expense-default", UserID: guest, Name: "Default", Type: core.CategoryExpense, IsDefault: true})
	mustCategory(t, a, core.Category{ID: "expense-custom", UserID: guest, Name: "Custom", Type: core.CategoryExpense})
	mustTx(t, a, core.Transaction{UserID: guest, AccountID: acc.ID, Type: core.TxExpense, Amount: d("1"), Date: day})
	if _, err := a.CreateGoal(ctx, core.Goal{UserID: guest, Name: "G", Type: core.GoalDebt, TargetAmount: d("5")}); err != nil {
		t.Fatal(err)
	}

	res := a.MigrateGuestDataToUser(ctx, guest, "auth-1")
	if !res.Success {
		t.Fatalf("migration failed: %s", res.Error)
	}
	want := map[string]int{"accounts": 1, "transactions": 1, "categories": 1, "budgets": 0, "goals": 1}
	for k, v := range want {
		if res.MigratedCounts[k] != v {
			t.Errorf("%s = %d, want %d", k, res.MigratedCounts[k], v)
		}
	}
	def, _ := a.GetCategory(ctx, "expense-default")
	if def.UserID != guest {
		t.Fatal("default categories are not re-keyed")
	}
	if n, _ := a.CountTransactions(ctx, "auth-1", nil); n != 1 {
		t.Fatalf("moved transactions = %d", n)
	}
	if res := a.MigrateGuestDataToUser(ctx, "", "x"); res.Success || res.Error == "" {
		t.Fatal("empty guest id should fail")
	}
}

func testArchive(t *testing.T, a store.Adapter) {
	ctx := context.Background()
	acc := mustAccount(t, a, "u1", "A", "0")
	var ids []string
	for i := 0; i < 3; i++ {
		tx := mustTx(t, a, core.Transaction{UserID: "u1", AccountID: acc.ID, Type: core.TxExpense, Amount: d("1"),
			Date: day.AddDate(0, -i, 0)})
		ids = append(ids, tx.ID)
	}
	other := mustAccount(t, a, "u2", "B", "0")
	foreign := mustTx(t, a, core.Transaction{UserID: "u2", AccountID: other.ID, Type: core.TxExpense, Amount: d("1"), Date: day})

	n, err := a.ArchiveTransactions(ctx, "u1", []string{ids[1], ids[2], foreign.ID, "gone"})
	if err != nil || n != 2 {
		t.Fatalf("archived = %d, %v", n, err)
	}
	if left, _ := a.CountTransactions(ctx, "u1", nil); left != 1 {
		t.Fatalf("left = %d", left)
	}
	if _, err := a.GetTransaction(ctx, foreign.ID); err != nil {
		t.Fatalf("another user's transaction was archived: %v", err)
	}
}

func testNotFound(t *testing.T, a store.Adapter) {
	ctx := context.Background()
	checks := map[string]error{
		"user":        func() error { _, err := a.GetUser(ctx, "nope"); return err }(),
		"account":     func() error { _, err := a.GetAccount(ctx, "nope"); return err }(),
		"transaction": func() error { _, err := a.GetTransaction(ctx, "nope"); return err }(),
		"budget":      func() error { _, err := a.GetBudget(ctx, "nope"); return err }(),
		"goal":        func() error { _, err := a.GetGoal(ctx, "nope"); return err }(),
		"balance":     a.UpdateAccountBalance(ctx, "nope", d("1")),
		"delete":      a.DeleteTransaction(ctx, "nope"),
	}
	for name, err := range checks {
		var ref *core.ReferenceError
		if !errors.As(err, &ref) {
			t.Errorf("%s: want *core.ReferenceError, got %v", name, err)
		}
	}
}
