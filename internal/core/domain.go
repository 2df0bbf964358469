package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountBank       AccountType = "bank"
	AccountCredit     AccountType = "credit"
	AccountCash       AccountType = "cash"
	AccountInvestment AccountType = "investment"
	AccountWallet     AccountType = "wallet"
)

const (
	TxExpense           TransactionType = "expense"
	TxIncome            TransactionType = "income"
	TxTransfer          TransactionType = "transfer"
	TxGoalContribution  TransactionType = "goal-contribution"
	TxGoalWithdrawal    TransactionType = "goal-withdrawal"
	TxBalanceAdjustment TransactionType = "balance-adjustment"
)

const (
	CategoryExpense CategoryType = "expense"
	CategoryIncome  CategoryType = "income"
)

const (
	Weekly  BudgetPeriod = "weekly"
	Monthly BudgetPeriod = "monthly"
	Yearly  BudgetPeriod = "yearly"
)

const (
	GoalSavings GoalType = "savings"
	GoalDebt    GoalType = "debt"
)

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalCancelled GoalStatus = "cancelled"
)

const (
	GuestMode         UserMode = "guest"
	AuthenticatedMode UserMode = "authenticated"
)

type (
	AccountType     string
	TransactionType string
	CategoryType    string
	BudgetPeriod    string
	GoalType        string
	GoalStatus      string
	UserMode        string

	// Account is a money container. Balance is a cached snapshot of
	// InitialBalance plus the signed effects of every transaction that
	// references the account; it is never the source of truth.
	Account struct {
		ID             string          `json:"id"`
		UserID         string          `json:"userId"`
		Name           string          `json:"name"`
		Type           AccountType     `json:"type"`
		InitialBalance decimal.Decimal `json:"initialBalance"`
		Balance        decimal.Decimal `json:"balance"`
		Currency       string          `json:"currency"`
		IsActive       bool            `json:"isActive"`
		CreatedAt      time.Time       `json:"createdAt"`
		UpdatedAt      time.Time       `json:"updatedAt"`
	}

	Transaction struct {
		ID               string          `json:"id"`
		UserID           string          `json:"userId"`
		AccountID        string          `json:"accountId"`
		Amount           decimal.Decimal `json:"amount"`
		Type             TransactionType `json:"type"`
		CategoryID       string          `json:"categoryId"`
		ToAccountID      string          `json:"toAccountId,omitempty"`
		GoalID           string          `json:"goalId,omitempty"`
		Description      string          `json:"description,omitempty"`
		Date             time.Time       `json:"date"`
		Tags             []string        `json:"tags,omitempty"`
		RecurringGroupID string          `json:"recurringGroupId,omitempty"`
		CreatedAt        time.Time       `json:"createdAt"`
		UpdatedAt        time.Time       `json:"updatedAt"`
	}

	// Category is owned by a user, or global when IsDefault is set.
	Category struct {
		ID        string       `json:"id"`
		UserID    string       `json:"userId"`
		Name      string       `json:"name"`
		Type      CategoryType `json:"type"`
		ParentID  string       `json:"parentId,omitempty"`
		Icon      string       `json:"icon,omitempty"`
		Color     string       `json:"color,omitempty"`
		IsDefault bool         `json:"isDefault"`
		CreatedAt time.Time    `json:"createdAt"`
		UpdatedAt time.Time    `json:"updatedAt"`
	}

	// AlertConfig controls budget alerts. A nil Enabled means enabled.
	AlertConfig struct {
		Enabled    *bool `json:"enabled,omitempty"`
		Thresholds []int `json:"thresholds,omitempty"`
	}

	// Budget tracks spending over one or more expense categories. Spent is a
	// denormalized value refreshed by recalculation.
	Budget struct {
		ID          string          `json:"id"`
		UserID      string          `json:"userId"`
		Name        string          `json:"name"`
		CategoryIDs []string        `json:"categoryIds"`
		Amount      decimal.Decimal `json:"amount"`
		Spent       decimal.Decimal `json:"spent"`
		Period      BudgetPeriod    `json:"period"`
		StartDate   time.Time       `json:"startDate"`
		EndDate     *time.Time      `json:"endDate,omitempty"`
		Rollover    bool            `json:"rollover"`
		Alerts      AlertConfig     `json:"alerts"`
		IsActive    bool            `json:"isActive"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}

	Goal struct {
		ID            string          `json:"id"`
		UserID        string          `json:"userId"`
		Name          string          `json:"name"`
		Type          GoalType        `json:"type"`
		TargetAmount  decimal.Decimal `json:"targetAmount"`
		CurrentAmount decimal.Decimal `json:"currentAmount"`
		Deadline      *time.Time      `json:"deadline,omitempty"`
		AccountID     string          `json:"accountId,omitempty"`
		Status        GoalStatus      `json:"status"`
		CreatedAt     time.Time       `json:"createdAt"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}

	NotificationSettings struct {
		BudgetAlerts  bool `json:"budgetAlerts"`
		GoalReminders bool `json:"goalReminders"`
		WeeklySummary bool `json:"weeklySummary"`
		LargeExpenses bool `json:"largeExpenses"`
	}

	UserSettings struct {
		Currency            string               `json:"currency"`
		Locale              string               `json:"locale"`
		Theme               string               `json:"theme"`
		FinancialMonthStart int                  `json:"financialMonthStart"`
		Notifications       NotificationSettings `json:"notifications"`
	}

	User struct {
		ID          string       `json:"id"`
		Email       string       `json:"email,omitempty"`
		DisplayName string       `json:"displayName,omitempty"`
		Mode        UserMode     `json:"mode"`
		Settings    UserSettings `json:"settings"`
		CreatedAt   time.Time    `json:"createdAt"`
		UpdatedAt   time.Time    `json:"updatedAt"`
	}

	// Snapshot is the export/import payload.
	Snapshot struct {
		Users        []User        `json:"users"`
		Accounts     []Account     `json:"accounts"`
		Categories   []Category    `json:"categories"`
		Transactions []Transaction `json:"transactions"`
		Budgets      []Budget      `json:"budgets"`
		Goals        []Goal        `json:"goals"`
		Settings     *UserSettings `json:"settings,omitempty"`
		ExportedAt   time.Time     `json:"exportedAt"`
		Version      string        `json:"version"`
	}
)

// SnapshotVersion is written into every export.
const SnapshotVersion = "2.0"

func (t AccountType) IsValid() bool {
	switch t {
	case AccountBank, AccountCredit, AccountCash, AccountInvestment, AccountWallet:
		return true
	}
	return false
}

func (t TransactionType) IsValid() bool {
	switch t {
	case TxExpense, TxIncome, TxTransfer, TxGoalContribution, TxGoalWithdrawal, TxBalanceAdjustment:
		return true
	}
	return false
}

// IsGoalType reports whether the transaction moves money into or out of a goal.
func (t TransactionType) IsGoalType() bool {
	return t == TxGoalContribution || t == TxGoalWithdrawal
}

func (t CategoryType) IsValid() bool {
	return t == CategoryExpense || t == CategoryIncome
}

func (p BudgetPeriod) IsValid() bool {
	switch p {
	case Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func (t GoalType) IsValid() bool {
	return t == GoalSavings || t == GoalDebt
}

func (s GoalStatus) IsValid() bool {
	switch s {
	case GoalActive, GoalCompleted, GoalCancelled:
		return true
	}
	return false
}

// AlertsEnabled reports whether alerts fire for the budget.
func (a AlertConfig) AlertsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// ClampMonthStart bounds a financial month start day to 1..31.
func ClampMonthStart(day int) int {
	if day < 1 {
		return 1
	}
	if day > 31 {
		return 31
	}
	return day
}

// DefaultSettings returns the settings given to a freshly created user.
func DefaultSettings() UserSettings {
	return UserSettings{
		Currency:            "USD",
		Locale:              "en-US",
		Theme:               "system",
		FinancialMonthStart: 1,
		Notifications: NotificationSettings{
			BudgetAlerts:  true,
			GoalReminders: true,
		},
	}
}

// IsGuestID reports whether the user id belongs to a guest session.
func IsGuestID(id string) bool {
	return strings.HasPrefix(id, "guest_")
}

// WithOwner returns a copy owned by userID.
func (a Account) WithOwner(userID string) Account { a.UserID = userID; return a }

// WithOwner returns a copy owned by userID.
func (t Transaction) WithOwner(userID string) Transaction { t.UserID = userID; return t }

// WithOwner returns a copy owned by userID.
func (c Category) WithOwner(userID string) Category { c.UserID = userID; return c }

// WithOwner returns a copy owned by userID.
func (b Budget) WithOwner(userID string) Budget { b.UserID = userID; return b }

// WithOwner returns a copy owned by userID.
func (g Goal) WithOwner(userID string) Goal { g.UserID = userID; return g }

// WithOwner returns a copy whose id is userID; users own themselves.
func (u User) WithOwner(userID string) User { u.ID = userID; return u }
