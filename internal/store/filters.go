package store

import (
	"sort"
	"strings"
	"time"

	"fincore/internal/core"
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListOptions paginates and orders list results. A zero Limit means no limit.
type ListOptions struct {
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

type AccountFilter struct {
	Type     core.AccountType
	IsActive *bool
}

type CategoryFilter struct {
	Type     core.CategoryType
	ParentID string
	// IncludeDefaults adds the global default categories to a user's list.
	IncludeDefaults bool
}

// TransactionFilter selects transactions. StartDate and EndDate are ISO
// dates ("2006-01-02") or RFC 3339 timestamps, both inclusive.
type TransactionFilter struct {
	AccountID  string
	Type       core.TransactionType
	CategoryID string
	GoalID     string
	StartDate  string
	EndDate    string
	Search     string
	SortBy     string
	SortOrder  string
}

type BudgetFilter struct {
	IsActive   *bool
	Period     core.BudgetPeriod
	CategoryID string
}

type GoalFilter struct {
	Type   core.GoalType
	Status core.GoalStatus
}

// ParseFilterDate parses an ISO date or RFC 3339 timestamp. A bare date used
// as an upper bound covers the whole day.
func ParseFilterDate(s string, upper bool) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	if upper {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, true
}

func (f *AccountFilter) Match(a core.Account) bool {
	if f == nil {
		return true
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.IsActive != nil && a.IsActive != *f.IsActive {
		return false
	}
	return true
}

func (f *CategoryFilter) Match(c core.Category) bool {
	if f == nil {
		return true
	}
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	if f.ParentID != "" && c.ParentID != f.ParentID {
		return false
	}
	return true
}

func (f *TransactionFilter) Match(t core.Transaction) bool {
	if f == nil {
		return true
	}
	if f.AccountID != "" && t.AccountID != f.AccountID && t.ToAccountID != f.AccountID {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.CategoryID != "" && t.CategoryID != f.CategoryID {
		return false
	}
	if f.GoalID != "" && t.GoalID != f.GoalID {
		return false
	}
	if start, ok := ParseFilterDate(f.StartDate, false); ok && t.Date.Before(start) {
		return false
	}
	if end, ok := ParseFilterDate(f.EndDate, true); ok && t.Date.After(end) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := strings.ToLower(t.Description + " " + strings.Join(t.Tags, " "))
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

func (f *BudgetFilter) Match(b core.Budget) bool {
	if f == nil {
		return true
	}
	if f.IsActive != nil && b.IsActive != *f.IsActive {
		return false
	}
	if f.Period != "" && b.Period != f.Period {
		return false
	}
	if f.CategoryID != "" {
		found := false
		for _, id := range b.CategoryIDs {
			if id == f.CategoryID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f *GoalFilter) Match(g core.Goal) bool {
	if f == nil {
		return true
	}
	if f.Type != "" && g.Type != f.Type {
		return false
	}
	if f.Status != "" && g.Status != f.Status {
		return false
	}
	return true
}

// Sortable fields per entity, keyed by the names accepted in SortBy.
var (
	transactionSorts = map[string]func(a, b core.Transaction) int{
		"date":      func(a, b core.Transaction) int { return a.Date.Compare(b.Date) },
		"amount":    func(a, b core.Transaction) int { return a.Amount.Cmp(b.Amount) },
		"createdAt": func(a, b core.Transaction) int { return a.CreatedAt.Compare(b.CreatedAt) },
	}
	accountSorts = map[string]func(a, b core.Account) int{
		"name":      func(a, b core.Account) int { return strings.Compare(a.Name, b.Name) },
		"balance":   func(a, b core.Account) int { return a.Balance.Cmp(b.Balance) },
		"createdAt": func(a, b core.Account) int { return a.CreatedAt.Compare(b.CreatedAt) },
	}
	budgetSorts = map[string]func(a, b core.Budget) int{
		"name":      func(a, b core.Budget) int { return strings.Compare(a.Name, b.Name) },
		"amount":    func(a, b core.Budget) int { return a.Amount.Cmp(b.Amount) },
		"createdAt": func(a, b core.Budget) int { return a.CreatedAt.Compare(b.CreatedAt) },
	}
	goalSorts = map[string]func(a, b core.Goal) int{
		"name":         func(a, b core.Goal) int { return strings.Compare(a.Name, b.Name) },
		"targetAmount": func(a, b core.Goal) int { return a.TargetAmount.Cmp(b.TargetAmount) },
		"createdAt":    func(a, b core.Goal) int { return a.CreatedAt.Compare(b.CreatedAt) },
	}
	categorySorts = map[string]func(a, b core.Category) int{
		"name":      func(a, b core.Category) int { return strings.Compare(a.Name, b.Name) },
		"createdAt": func(a, b core.Category) int { return a.CreatedAt.Compare(b.CreatedAt) },
	}
	userSorts = map[string]func(a, b core.User) int{
		"id":        func(a, b core.User) int { return strings.Compare(a.ID, b.ID) },
		"createdAt": func(a, b core.User) int { return a.CreatedAt.Compare(b.CreatedAt) },
	}
)

// resolveSort picks the sort field and direction; filter-level settings
// win over ListOptions.
func resolveSort(opts *ListOptions, filterBy, filterOrder, defBy, defOrder string) (string, bool) {
	by, order := defBy, defOrder
	if opts != nil {
		if opts.SortBy != "" {
			by = opts.SortBy
		}
		if opts.SortOrder != "" {
			order = opts.SortOrder
		}
	}
	if filterBy != "" {
		by = filterBy
	}
	if filterOrder != "" {
		order = filterOrder
	}
	return by, strings.EqualFold(order, SortDesc)
}

func sortBy[T any](items []T, cmps map[string]func(a, b T) int, by string, desc bool) {
	cmp, ok := cmps[by]
	if !ok {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return cmp(items[i], items[j]) > 0
		}
		return cmp(items[i], items[j]) < 0
	})
}

// Paginate applies Offset and Limit.
func Paginate[T any](items []T, opts *ListOptions) []T {
	if opts == nil {
		return items
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return items[:0]
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

// SortTransactions orders transactions, newest first by default.
func SortTransactions(items []core.Transaction, f *TransactionFilter, opts *ListOptions) {
	var fb, fo string
	if f != nil {
		fb, fo = f.SortBy, f.SortOrder
	}
	by, desc := resolveSort(opts, fb, fo, "date", SortDesc)
	sortBy(items, transactionSorts, by, desc)
}

// SortAccounts orders accounts, oldest first by default.
func SortAccounts(items []core.Account, opts *ListOptions) {
	by, desc := resolveSort(opts, "", "", "createdAt", SortAsc)
	sortBy(items, accountSorts, by, desc)
}

func SortBudgets(items []core.Budget, opts *ListOptions) {
	by, desc := resolveSort(opts, "", "", "createdAt", SortAsc)
	sortBy(items, budgetSorts, by, desc)
}

func SortGoals(items []core.Goal, opts *ListOptions) {
	by, desc := resolveSort(opts, "", "", "createdAt", SortAsc)
	sortBy(items, goalSorts, by, desc)
}

func SortCategories(items []core.Category, opts *ListOptions) {
	by, desc := resolveSort(opts, "", "", "name", SortAsc)
	sortBy(items, categorySorts, by, desc)
}

func SortUsers(items []core.User, opts *ListOptions) {
	by, desc := resolveSort(opts, "", "", "createdAt", SortAsc)
	sortBy(items, userSorts, by, desc)
}
