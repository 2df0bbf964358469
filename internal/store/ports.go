// Package store defines the persistence contract every storage backend
// implements. The ledger coordinator and the progress engines are written
// against these interfaces only.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/core"
	"fincore/internal/migration"
	"fincore/internal/stats"
)

// Ports for persistence backends.
type (
	UserStore interface {
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUser(ctx context.Context, id string) (core.User, error)
		UpdateUser(ctx context.Context, u core.User) (core.User, error)
		DeleteUser(ctx context.Context, id string) error
		ListUsers(ctx context.Context, opts *ListOptions) ([]core.User, error)
		GetUserSettings(ctx context.Context, userID string) (core.UserSettings, error)
		UpdateUserSettings(ctx context.Context, userID string, s core.UserSettings) error
	}

	AccountStore interface {
		CreateAccount(ctx context.Context, a core.Account) (core.Account, error)
		GetAccount(ctx context.Context, id string) (core.Account, error)
		UpdateAccount(ctx context.Context, a core.Account) (core.Account, error)
		// DeleteAccount refuses while transactions still reference the account.
		DeleteAccount(ctx context.Context, id string) error
		ListAccounts(ctx context.Context, userID string, f *AccountFilter, opts *ListOptions) ([]core.Account, error)
		CountAccounts(ctx context.Context, userID string, f *AccountFilter) (int, error)
		// UpdateAccountBalance overwrites the cached balance snapshot.
		UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal) error
	}

	CategoryStore interface {
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		GetCategory(ctx context.Context, id string) (core.Category, error)
		UpdateCategory(ctx context.Context, c core.Category) (core.Category, error)
		DeleteCategory(ctx context.Context, id string) error
		ListCategories(ctx context.Context, userID string, f *CategoryFilter, opts *ListOptions) ([]core.Category, error)
		CountCategories(ctx context.Context, userID string, f *CategoryFilter) (int, error)
	}

	// TransactionStore persists transactions. It never touches balances;
	// balance effects belong to the ledger coordinator.
	TransactionStore interface {
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id string) error
		ListTransactions(ctx context.Context, userID string, f *TransactionFilter, opts *ListOptions) ([]core.Transaction, error)
		CountTransactions(ctx context.Context, userID string, f *TransactionFilter) (int, error)
		// ArchiveTransactions removes the listed transactions of userID and
		// returns how many were removed.
		ArchiveTransactions(ctx context.Context, userID string, ids []string) (int, error)
	}

	BudgetStore interface {
		CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		GetBudget(ctx context.Context, id string) (core.Budget, error)
		UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		DeleteBudget(ctx context.Context, id string) error
		ListBudgets(ctx context.Context, userID string, f *BudgetFilter, opts *ListOptions) ([]core.Budget, error)
		CountBudgets(ctx context.Context, userID string, f *BudgetFilter) (int, error)
		UpdateBudgetSpent(ctx context.Context, id string, spent decimal.Decimal) error
	}

	GoalStore interface {
		CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error)
		GetGoal(ctx context.Context, id string) (core.Goal, error)
		UpdateGoal(ctx context.Context, g core.Goal) (core.Goal, error)
		DeleteGoal(ctx context.Context, id string) error
		ListGoals(ctx context.Context, userID string, f *GoalFilter, opts *ListOptions) ([]core.Goal, error)
		CountGoals(ctx context.Context, userID string, f *GoalFilter) (int, error)
		UpdateGoalAmount(ctx context.Context, id string, amount decimal.Decimal) error
		// ContributeToGoal records a goal-contribution transaction and raises
		// the goal's current amount as one unit. Account balances are not
		// touched.
		ContributeToGoal(ctx context.Context, m GoalMovement) (core.Transaction, error)
		// WithdrawFromGoal is the inverse of ContributeToGoal.
		WithdrawFromGoal(ctx context.Context, m GoalMovement) (core.Transaction, error)
	}

	Maintenance interface {
		// ExportDatabase serialises every record owned by userID, or the whole
		// database when userID is empty.
		ExportDatabase(ctx context.Context, userID string) ([]byte, error)
		// ImportDatabase loads a serialised snapshot, re-keyed to targetUserID
		// when it is not empty.
		ImportDatabase(ctx context.Context, data []byte, targetUserID string) (migration.MigrationReport, error)
		ClearDatabase(ctx context.Context) error
	}

	Aggregates interface {
		GetTotalBalance(ctx context.Context, userID string) (decimal.Decimal, error)
		GetNetWorth(ctx context.Context, userID string) (stats.NetWorth, error)
	}

	GuestMigrator interface {
		MigrateGuestDataToUser(ctx context.Context, fromGuestID, toUserID string) GuestMigrationResult
	}

	// Adapter is the full capability set a backend provides.
	Adapter interface {
		UserStore
		AccountStore
		CategoryStore
		TransactionStore
		BudgetStore
		GoalStore
		Maintenance
		Aggregates
		GuestMigrator
		Close() error
	}
)

// GoalMovement describes money moving between an account and a goal.
type GoalMovement struct {
	UserID      string
	GoalID      string
	AccountID   string
	Amount      decimal.Decimal
	CategoryID  string
	Description string
	Date        time.Time
}

// Transaction builds the goal transaction recorded for the movement.
func (m GoalMovement) Transaction(typ core.TransactionType) core.Transaction {
	return core.Transaction{
		UserID:      m.UserID,
		AccountID:   m.AccountID,
		Amount:      m.Amount,
		Type:        typ,
		CategoryID:  m.CategoryID,
		GoalID:      m.GoalID,
		Description: m.Description,
		Date:        m.Date,
	}
}

// Validate checks the movement before any record is written.
func (m GoalMovement) Validate() error {
	if m.GoalID == "" {
		return &core.ValidationError{Field: "goalId", Reason: "empty"}
	}
	if m.AccountID == "" {
		return &core.ValidationError{Field: "accountId", Reason: "empty"}
	}
	if m.Date.IsZero() {
		return &core.ValidationError{Field: "date", Reason: "zero"}
	}
	return core.PositiveAmount(m.Amount)
}

// GuestMigrationResult reports a guest-to-user re-keying.
type GuestMigrationResult struct {
	Success        bool
	MigratedCounts map[string]int
	Error          string
}

// MoveGoalAmount returns the goal's current amount after a movement.
// Withdrawals larger than the tracked amount are rejected.
func MoveGoalAmount(current, amount decimal.Decimal, typ core.TransactionType) (decimal.Decimal, error) {
	switch typ {
	case core.TxGoalContribution:
		return current.Add(amount), nil
	case core.TxGoalWithdrawal:
		if amount.GreaterThan(current) {
			return current, &core.ValidationError{Field: "amount", Reason: "withdrawal exceeds goal amount"}
		}
		return current.Sub(amount), nil
	}
	return current, &core.ValidationError{Field: "type", Reason: "not a goal transaction"}
}
