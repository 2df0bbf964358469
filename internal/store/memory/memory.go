// Package memory is a map-backed store.Adapter used by tests and by the
// memory data backend.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fincore/internal/core"
	"fincore/internal/stats"
	"fincore/internal/store"
)

type Store struct {
	mu sync.RWMutex

	users        map[string]core.User
	accounts     map[string]core.Account
	categories   map[string]core.Category
	transactions map[string]core.Transaction
	budgets      map[string]core.Budget
	goals        map[string]core.Goal

	now func() time.Time
}

var _ store.Adapter = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	s.reset()
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) reset() {
	s.users = make(map[string]core.User)
	s.accounts = make(map[string]core.Account)
	s.categories = make(map[string]core.Category)
	s.transactions = make(map[string]core.Transaction)
	s.budgets = make(map[string]core.Budget)
	s.goals = make(map[string]core.Goal)
}

func (s *Store) Close() error { return nil }

func newID() string { return uuid.NewString() }

func (s *Store) stamp() time.Time { return s.now().UTC() }

// Copies keep callers from aliasing slices held by the store.
func cloneTx(t core.Transaction) core.Transaction {
	t.Tags = slices.Clone(t.Tags)
	return t
}

func cloneBudget(b core.Budget) core.Budget {
	b.CategoryIDs = slices.Clone(b.CategoryIDs)
	b.Alerts.Thresholds = slices.Clone(b.Alerts.Thresholds)
	return b
}

// Users

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	if u.Mode == "" {
		u.Mode = core.GuestMode
	}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	if u.Settings == (core.UserSettings{}) {
		u.Settings = core.DefaultSettings()
	}
	u.Settings.FinancialMonthStart = core.ClampMonthStart(u.Settings.FinancialMonthStart)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.NotFound("user", id)
	}
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.users[u.ID]
	if !ok {
		return core.User{}, core.NotFound("user", u.ID)
	}
	u.Settings.FinancialMonthStart = core.ClampMonthStart(u.Settings.FinancialMonthStart)
	u.CreatedAt = prev.CreatedAt
	u.UpdatedAt = s.stamp()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return core.NotFound("user", id)
	}
	delete(s.users, id)
	return nil
}

func (s *Store) ListUsers(_ context.Context, opts *store.ListOptions) ([]core.User, error) {
	s.mu.RLock()
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.RUnlock()
	store.SortUsers(out, opts)
	return store.Paginate(out, opts), nil
}

func (s *Store) GetUserSettings(ctx context.Context, userID string) (core.UserSettings, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return core.UserSettings{}, err
	}
	return u.Settings, nil
}

func (s *Store) UpdateUserSettings(_ context.Context, userID string, settings core.UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.NotFound("user", userID)
	}
	settings.FinancialMonthStart = core.ClampMonthStart(settings.FinancialMonthStart)
	u.Settings = settings
	u.UpdatedAt = s.stamp()
	s.users[userID] = u
	return nil
}

// Accounts

func (s *Store) CreateAccount(_ context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = newID()
	}
	now := s.stamp()
	a.Balance = a.InitialBalance
	a.CreatedAt, a.UpdatedAt = now, now
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, core.NotFound("account", id)
	}
	return a, nil
}

// UpdateAccount replaces the account's descriptive fields. The cached
// balance is only written through UpdateAccountBalance.
func (s *Store) UpdateAccount(_ context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.accounts[a.ID]
	if !ok {
		return core.Account{}, core.NotFound("account", a.ID)
	}
	a.Balance = prev.Balance
	a.CreatedAt = prev.CreatedAt
	a.UpdatedAt = s.stamp()
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return core.NotFound("account", id)
	}
	for _, t := range s.transactions {
		if t.AccountID == id || t.ToAccountID == id {
			return &core.ValidationError{Field: "id", Reason: "account still has transactions; deactivate it instead"}
		}
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) ListAccounts(_ context.Context, userID string, f *store.AccountFilter, opts *store.ListOptions) ([]core.Account, error) {
	s.mu.RLock()
	out := s.filterAccounts(userID, f)
	s.mu.RUnlock()
	store.SortAccounts(out, opts)
	return store.Paginate(out, opts), nil
}

func (s *Store) CountAccounts(_ context.Context, userID string, f *store.AccountFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filterAccounts(userID, f)), nil
}

func (s *Store) filterAccounts(userID string, f *store.AccountFilter) []core.Account {
	var out []core.Account
	for _, a := range s.accounts {
		if a.UserID == userID && f.Match(a) {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) UpdateAccountBalance(_ context.Context, id string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.NotFound("account", id)
	}
	a.Balance = balance
	a.UpdatedAt = s.stamp()
	s.accounts[id] = a
	return nil
}

// Categories

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = string(c.Type) + "-" + newID()
	}
	now := s.stamp()
	c.CreatedAt, c.UpdatedAt = now, now
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return core.Category{}, core.NotFound("category", id)
	}
	return c, nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.categories[c.ID]
	if !ok {
		return core.Category{}, core.NotFound("category", c.ID)
	}
	c.CreatedAt = prev.CreatedAt
	c.UpdatedAt = s.stamp()
	s.categories[c.ID] = c
	return c, nil
}

// DeleteCategory removes the category and leaves references dangling.
func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return core.NotFound("category", id)
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) ListCategories(_ context.Context, userID string, f *store.CategoryFilter, opts *store.ListOptions) ([]core.Category, error) {
	s.mu.RLock()
	out := s.filterCategories(userID, f)
	s.mu.RUnlock()
	store.SortCategories(out, opts)
	return store.Paginate(out, opts), nil
}

func (s *Store) CountCategories(_ context.Context, userID string, f *store.CategoryFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filterCategories(userID, f)), nil
}

func (s *Store) filterCategories(userID string, f *store.CategoryFilter) []core.Category {
	withDefaults := f == nil || f.IncludeDefaults
	var out []core.Category
	for _, c := range s.categories {
		owned := c.UserID == userID || (withDefaults && c.IsDefault)
		if owned && f.Match(c) {
			out = append(out, c)
		}
	}
	return out
}

// Transactions

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTx(t), nil
}

func (s *Store) insertTx(t core.Transaction) core.Transaction {
	if t.ID == "" {
		t.ID = newID()
	}
	now := s.stamp()
	t.CreatedAt, t.UpdatedAt = now, now
	t = cloneTx(t)
	s.transactions[t.ID] = t
	return cloneTx(t)
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	return cloneTx(t), nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.transactions[t.ID]
	if !ok {
		return core.Transaction{}, core.NotFound("transaction", t.ID)
	}
	t.CreatedAt = prev.CreatedAt
	t.UpdatedAt = s.stamp()
	t = cloneTx(t)
	s.transactions[t.ID] = t
	return cloneTx(t), nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[id]; !ok {
		return core.NotFound("transaction", id)
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, f *store.TransactionFilter, opts *store.ListOptions) ([]core.Transaction, error) {
	s.mu.RLock()
	out := s.filterTransactions(userID, f)
	s.mu.RUnlock()
	store.SortTransactions(out, f, opts)
	return store.Paginate(out, opts), nil
}

func (s *Store) CountTransactions(_ context.Context, userID string, f *store.TransactionFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filterTransactions(userID, f)), nil
}

func (s *Store) filterTransactions(userID string, f *store.TransactionFilter) []core.Transaction {
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.UserID == userID && f.Match(t) {
			out = append(out, cloneTx(t))
		}
	}
	return out
}

func (s *Store) ArchiveTransactions(_ context.Context, userID string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if t, ok := s.transactions[id]; ok && t.UserID == userID {
			delete(s.transactions, id)
			n++
		}
	}
	return n, nil
}

// Budgets

func (s *Store) CreateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = newID()
	}
	now := s.stamp()
	b.CreatedAt, b.UpdatedAt = now, now
	s.budgets[b.ID] = cloneBudget(b)
	return b, nil
}

func (s *Store) GetBudget(_ context.Context, id string) (core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.budgets[id]
	if !ok {
		return core.Budget{}, core.NotFound("budget", id)
	}
	return cloneBudget(b), nil
}

func (s *Store) UpdateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.budgets[b.ID]
	if !ok {
		return core.Budget{}, core.NotFound("budget", b.ID)
	}
	b.CreatedAt = prev.CreatedAt
	b.UpdatedAt = s.stamp()
	s.budgets[b.ID] = cloneBudget(b)
	return b, nil
}

func (s *Store) DeleteBudget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[id]; !ok {
		return core.NotFound("budget", id)
	}
	delete(s.budgets, id)
	return nil
}

func (s *Store) ListBudgets(_ context.Context, userID string, f *store.BudgetFilter, opts *store.ListOptions) ([]core.Budget, error) {
	s.mu.RLock()
	out := s.filterBudgets(userID, f)
	s.mu.RUnlock()
	store.SortBudgets(out, opts)
	return store.Paginate(out, opts), nil
}

func (s *Store) CountBudgets(_ context.Context, userID string, f *store.BudgetFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filterBudgets(userID, f)), nil
}

func (s *Store) filterBudgets(userID string, f *store.BudgetFilter) []core.Budget {
	var out []core.Budget
	for _, b := range s.budgets {
		if b.UserID == userID && f.Match(b) {
			out = append(out, cloneBudget(b))
		}
	}
	return out
}

func (s *Store) UpdateBudgetSpent(_ context.Context, id string, spent decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok {
		return core.NotFound("budget", id)
	}
	b.Spent = spent
	b.UpdatedAt = s.stamp()
	s.budgets[id] = b
	return nil
}

// Goals

func (s *Store) CreateGoal(_ context.Context, g core.Goal) (core.Goal, error) {
	if g.Status == "" {
		g.Status = core.GoalActive
	}
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = newID()
	}
	now := s.stamp()
	g.CreatedAt, g.UpdatedAt = now, now
	s.goals[g.ID] = g
	return g, nil
}

func (s *Store) GetGoal(_ context.Context, id string) (core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok {
		return core.Goal{}, core.NotFound("goal", id)
	}
	return g, nil
}

// UpdateGoal skips the creation rule on amounts; a goal may reach its target.
func (s *Store) UpdateGoal(_ context.Context, g core.Goal) (core.Goal, error) {
	if strings.TrimSpace(g.Name) == "" {
		return core.Goal{}, &core.ValidationError{Field: "name", Reason: "empty"}
	}
	if !g.Status.IsValid() {
		return core.Goal{}, &core.ValidationError{Field: "status", Reason: "unknown goal status " + string(g.Status)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.goals[g.ID]
	if !ok {
		return core.Goal{}, core.NotFound("goal", g.ID)
	}
	g.CreatedAt = prev.CreatedAt
	g.UpdatedAt = s.stamp()
	s.goals[g.ID] = g
	return g, nil
}

func (s *Store) DeleteGoal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[id]; !ok {
		return core.NotFound("goal", id)
	}
	delete(s.goals, id)
	return nil
}

func (s *Store) ListGoals(_ context.Context, userID string, f *store.GoalFilter, opts *store.ListOptions) ([]core.Goal, error) {
	s.mu.RLock()
	out := s.filterGoals(userID, f)
	s.mu.RUnlock()
	store.SortGoals(out, opts)
	return store.Paginate(out, opts), nil
}

func (s *Store) CountGoals(_ context.Context, userID string, f *store.GoalFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filterGoals(userID, f)), nil
}

func (s *Store) filterGoals(userID string, f *store.GoalFilter) []core.Goal {
	var out []core.Goal
	for _, g := range s.goals {
		if g.UserID == userID && f.Match(g) {
			out = append(out, g)
		}
	}
	return out
}

func (s *Store) UpdateGoalAmount(_ context.Context, id string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return core.NotFound("goal", id)
	}
	g.CurrentAmount = amount
	g.UpdatedAt = s.stamp()
	s.goals[id] = g
	return nil
}

func (s *Store) ContributeToGoal(_ context.Context, m store.GoalMovement) (core.Transaction, error) {
	return s.moveGoal(m, core.TxGoalContribution)
}

func (s *Store) WithdrawFromGoal(_ context.Context, m store.GoalMovement) (core.Transaction, error) {
	return s.moveGoal(m, core.TxGoalWithdrawal)
}

// moveGoal writes the goal transaction and the goal amount under one lock.
func (s *Store) moveGoal(m store.GoalMovement, typ core.TransactionType) (core.Transaction, error) {
	if err := m.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[m.GoalID]
	if !ok {
		return core.Transaction{}, core.NotFound("goal", m.GoalID)
	}
	if _, ok := s.accounts[m.AccountID]; !ok {
		return core.Transaction{}, core.NotFound("account", m.AccountID)
	}
	next, err := store.MoveGoalAmount(g.CurrentAmount, m.Amount, typ)
	if err != nil {
		return core.Transaction{}, err
	}
	tx := s.insertTx(m.Transaction(typ))
	g.CurrentAmount = next
	g.UpdatedAt = tx.CreatedAt
	s.goals[g.ID] = g
	return tx, nil
}

// Aggregates

func (s *Store) GetTotalBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.TotalBalance(s.filterAccounts(userID, nil)), nil
}

func (s *Store) GetNetWorth(_ context.Context, userID string) (stats.NetWorth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.Summarize(s.filterAccounts(userID, nil)), nil
}
