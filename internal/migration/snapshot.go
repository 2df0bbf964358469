package migration

import (
	"encoding/json"
	"fmt"
	"time"

	"fincore/internal/core"
)

// Owned is satisfied by every entity that can be re-keyed to a new owner.
type Owned[T any] interface {
	WithOwner(userID string) T
}

// Remap returns shallow copies of items owned by userID.
func Remap[T Owned[T]](items []T, userID string) []T {
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = it.WithOwner(userID)
	}
	return out
}

// MigrationReport summarises a snapshot for audit logs.
type MigrationReport struct {
	Counts         map[string]int `json:"counts"`
	DetectedUserID string         `json:"detectedUserId,omitempty"`
	LegacyBudgets  int            `json:"legacyBudgets,omitempty"`
	Dropped        int            `json:"dropped,omitempty"`
}

// Total is the number of records across all entities.
func (r MigrationReport) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// LogArgs flattens the report into slog key/value pairs.
func (r MigrationReport) LogArgs() []any {
	args := []any{"detected_user_id", r.DetectedUserID, "legacy_budgets", r.LegacyBudgets, "dropped", r.Dropped}
	for _, k := range entityOrder {
		args = append(args, k, r.Counts[k])
	}
	return args
}

var entityOrder = []string{"accounts", "transactions", "categories", "budgets", "goals", "users"}

// DetectBackupUserID infers the owner of a backup from the first record of
// accounts, transactions, categories, budgets, goals, then users, in that
// order. Empty owners are skipped.
func DetectBackupUserID(s core.Snapshot) string {
	candidates := []string{}
	if len(s.Accounts) > 0 {
		candidates = append(candidates, s.Accounts[0].UserID)
	}
	if len(s.Transactions) > 0 {
		candidates = append(candidates, s.Transactions[0].UserID)
	}
	if len(s.Categories) > 0 {
		candidates = append(candidates, s.Categories[0].UserID)
	}
	if len(s.Budgets) > 0 {
		candidates = append(candidates, s.Budgets[0].UserID)
	}
	if len(s.Goals) > 0 {
		candidates = append(candidates, s.Goals[0].UserID)
	}
	if len(s.Users) > 0 {
		candidates = append(candidates, s.Users[0].ID)
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

func keep[T any](items []T, id func(T) string) ([]T, int) {
	out := items[:0:0]
	dropped := 0
	for _, it := range items {
		if id(it) == "" {
			dropped++
			continue
		}
		out = append(out, it)
	}
	return out, dropped
}

// Clean drops every record that lacks its identity field and reports how
// many were removed.
func Clean(s core.Snapshot) (core.Snapshot, int) {
	var n, total int
	s.Users, n = keep(s.Users, func(u core.User) string { return u.ID })
	total += n
	s.Accounts, n = keep(s.Accounts, func(a core.Account) string { return a.ID })
	total += n
	s.Categories, n = keep(s.Categories, func(c core.Category) string { return c.ID })
	total += n
	s.Transactions, n = keep(s.Transactions, func(t core.Transaction) string { return t.ID })
	total += n
	s.Budgets, n = keep(s.Budgets, func(b core.Budget) string { return b.ID })
	total += n
	s.Goals, n = keep(s.Goals, func(g core.Goal) string { return g.ID })
	total += n
	return s, total
}

// ValidTransactions drops transactions that break the per-type field rules,
// such as a transfer without a destination or a goal movement without a goal.
func ValidTransactions(txs []core.Transaction) ([]core.Transaction, int) {
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if t.Validate() != nil {
			continue
		}
		out = append(out, t)
	}
	return out, len(txs) - len(out)
}

// Report counts the records of a snapshot and detects its owner.
func Report(s core.Snapshot) MigrationReport {
	return MigrationReport{
		Counts: map[string]int{
			"accounts":     len(s.Accounts),
			"transactions": len(s.Transactions),
			"categories":   len(s.Categories),
			"budgets":      len(s.Budgets),
			"goals":        len(s.Goals),
			"users":        len(s.Users),
		},
		DetectedUserID: DetectBackupUserID(s),
	}
}

// wireSnapshot is the on-disk shape; budgets may still be legacy records.
type wireSnapshot struct {
	Users        []core.User        `json:"users"`
	Accounts     []core.Account     `json:"accounts"`
	Categories   []core.Category    `json:"categories"`
	Transactions []core.Transaction `json:"transactions"`
	Budgets      []BudgetRecord     `json:"budgets"`
	Goals        []core.Goal        `json:"goals"`
	Settings     *core.UserSettings `json:"settings,omitempty"`
	ExportedAt   time.Time          `json:"exportedAt"`
	Version      string             `json:"version"`
}

// DecodeSnapshot parses a backup, migrating legacy budgets, normalising
// category ids and dropping records without identity or with invalid
// transaction fields. Missing arrays decode as empty.
func DecodeSnapshot(data []byte) (core.Snapshot, MigrationReport, error) {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return core.Snapshot{}, MigrationReport{}, fmt.Errorf("decode snapshot: %w", err)
	}

	legacy := 0
	budgets := make([]core.Budget, 0, len(w.Budgets))
	for _, rec := range w.Budgets {
		if rec.IsLegacy() {
			legacy++
		}
		budgets = append(budgets, MigrateBudget(rec))
	}

	s := core.Snapshot{
		Users:        w.Users,
		Accounts:     w.Accounts,
		Categories:   w.Categories,
		Transactions: w.Transactions,
		Budgets:      budgets,
		Goals:        w.Goals,
		Settings:     w.Settings,
		ExportedAt:   w.ExportedAt,
		Version:      w.Version,
	}
	s = NormalizeCategories(withEmptyArrays(s))
	s, dropped := Clean(s)
	var invalid int
	s.Transactions, invalid = ValidTransactions(s.Transactions)
	dropped += invalid

	rep := Report(s)
	rep.LegacyBudgets = legacy
	rep.Dropped = dropped
	return s, rep, nil
}

func withEmptyArrays(s core.Snapshot) core.Snapshot {
	if s.Users == nil {
		s.Users = []core.User{}
	}
	if s.Accounts == nil {
		s.Accounts = []core.Account{}
	}
	if s.Categories == nil {
		s.Categories = []core.Category{}
	}
	if s.Transactions == nil {
		s.Transactions = []core.Transaction{}
	}
	if s.Budgets == nil {
		s.Budgets = []core.Budget{}
	}
	if s.Goals == nil {
		s.Goals = []core.Goal{}
	}
	return s
}

// EncodeSnapshot serialises a snapshot in the current format.
func EncodeSnapshot(s core.Snapshot) ([]byte, error) {
	if s.Version == "" {
		s.Version = core.SnapshotVersion
	}
	s = withEmptyArrays(s)
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// NormalizeCategories rewrites category ids and every reference to them.
func NormalizeCategories(s core.Snapshot) core.Snapshot {
	cats := make([]core.Category, len(s.Categories))
	for i, c := range s.Categories {
		c.ID = NormalizeCategoryID(c.ID)
		c.ParentID = NormalizeCategoryID(c.ParentID)
		cats[i] = c
	}
	s.Categories = cats

	txs := make([]core.Transaction, len(s.Transactions))
	for i, t := range s.Transactions {
		t.CategoryID = NormalizeCategoryID(t.CategoryID)
		txs[i] = t
	}
	s.Transactions = txs

	budgets := make([]core.Budget, len(s.Budgets))
	for i, b := range s.Budgets {
		b.CategoryIDs = NormalizeCategoryIDs(b.CategoryIDs)
		budgets[i] = b
	}
	s.Budgets = budgets
	return s
}

// PrepareImport re-keys a snapshot to targetUserID. Default categories keep
// their owner, and the user record of the detected owner takes the new id.
func PrepareImport(s core.Snapshot, targetUserID string) core.Snapshot {
	if targetUserID == "" {
		return s
	}
	source := DetectBackupUserID(s)

	s.Accounts = Remap(s.Accounts, targetUserID)
	s.Transactions = Remap(s.Transactions, targetUserID)
	s.Budgets = Remap(s.Budgets, targetUserID)
	s.Goals = Remap(s.Goals, targetUserID)

	cats := make([]core.Category, len(s.Categories))
	for i, c := range s.Categories {
		if !c.IsDefault {
			c = c.WithOwner(targetUserID)
		}
		cats[i] = c
	}
	s.Categories = cats

	users := make([]core.User, 0, len(s.Users))
	for _, u := range s.Users {
		if u.ID == source {
			u = u.WithOwner(targetUserID)
		}
		users = append(users, u)
	}
	s.Users = users
	return s
}
