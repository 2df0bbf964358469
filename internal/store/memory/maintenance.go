package memory

import (
	"context"
	"fmt"

	"fincore/internal/core"
	"fincore/internal/migration"
	"fincore/internal/store"
)

// ExportDatabase snapshots the records of userID, or everything when userID
// is empty. Default categories are always included.
func (s *Store) ExportDatabase(_ context.Context, userID string) ([]byte, error) {
	s.mu.RLock()
	snap := core.Snapshot{ExportedAt: s.stamp(), Version: core.SnapshotVersion}
	owned := func(owner string) bool { return userID == "" || owner == userID }
	for _, u := range s.users {
		if owned(u.ID) {
			snap.Users = append(snap.Users, u)
		}
	}
	for _, a := range s.accounts {
		if owned(a.UserID) {
			snap.Accounts = append(snap.Accounts, a)
		}
	}
	for _, c := range s.categories {
		if owned(c.UserID) || c.IsDefault {
			snap.Categories = append(snap.Categories, c)
		}
	}
	for _, t := range s.transactions {
		if owned(t.UserID) {
			snap.Transactions = append(snap.Transactions, cloneTx(t))
		}
	}
	for _, b := range s.budgets {
		if owned(b.UserID) {
			snap.Budgets = append(snap.Budgets, cloneBudget(b))
		}
	}
	for _, g := range s.goals {
		if owned(g.UserID) {
			snap.Goals = append(snap.Goals, g)
		}
	}
	if u, ok := s.users[userID]; ok {
		settings := u.Settings
		snap.Settings = &settings
	}
	s.mu.RUnlock()

	store.SortUsers(snap.Users, nil)
	store.SortAccounts(snap.Accounts, nil)
	store.SortCategories(snap.Categories, nil)
	store.SortTransactions(snap.Transactions, nil, &store.ListOptions{SortBy: "date", SortOrder: store.SortAsc})
	store.SortBudgets(snap.Budgets, nil)
	store.SortGoals(snap.Goals, nil)
	return migration.EncodeSnapshot(snap)
}

// ImportDatabase upserts every record of the snapshot. Records are written
// one by one; a failure part way leaves earlier records in place.
func (s *Store) ImportDatabase(_ context.Context, data []byte, targetUserID string) (migration.MigrationReport, error) {
	snap, report, err := migration.DecodeSnapshot(data)
	if err != nil {
		return report, err
	}
	snap = migration.PrepareImport(snap, targetUserID)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range snap.Users {
		s.users[u.ID] = u
	}
	for _, a := range snap.Accounts {
		s.accounts[a.ID] = a
	}
	for _, c := range snap.Categories {
		s.categories[c.ID] = c
	}
	for _, t := range snap.Transactions {
		s.transactions[t.ID] = cloneTx(t)
	}
	for _, b := range snap.Budgets {
		s.budgets[b.ID] = cloneBudget(b)
	}
	for _, g := range snap.Goals {
		s.goals[g.ID] = g
	}
	if snap.Settings != nil && targetUserID != "" {
		if u, ok := s.users[targetUserID]; ok {
			u.Settings = *snap.Settings
			u.Settings.FinancialMonthStart = core.ClampMonthStart(u.Settings.FinancialMonthStart)
			s.users[targetUserID] = u
		}
	}
	return report, nil
}

func (s *Store) ClearDatabase(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// MigrateGuestDataToUser hands every record of a guest to toUserID. Default
// categories stay global.
func (s *Store) MigrateGuestDataToUser(_ context.Context, fromGuestID, toUserID string) store.GuestMigrationResult {
	if fromGuestID == "" || toUserID == "" || fromGuestID == toUserID {
		return store.GuestMigrationResult{Error: fmt.Sprintf("invalid guest migration %q -> %q", fromGuestID, toUserID)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	counts := map[string]int{"accounts": 0, "transactions": 0, "categories": 0, "budgets": 0, "goals": 0}
	for id, a := range s.accounts {
		if a.UserID == fromGuestID {
			a = a.WithOwner(toUserID)
			a.UpdatedAt = now
			s.accounts[id] = a
			counts["accounts"]++
		}
	}
	for id, t := range s.transactions {
		if t.UserID == fromGuestID {
			t = t.WithOwner(toUserID)
			t.UpdatedAt = now
			s.transactions[id] = t
			counts["transactions"]++
		}
	}
	for id, c := range s.categories {
		if c.UserID == fromGuestID && !c.IsDefault {
			c = c.WithOwner(toUserID)
			c.UpdatedAt = now
			s.categories[id] = c
			counts["categories"]++
		}
	}
	for id, b := range s.budgets {
		if b.UserID == fromGuestID {
			b = b.WithOwner(toUserID)
			b.UpdatedAt = now
			s.budgets[id] = b
			counts["budgets"]++
		}
	}
	for id, g := range s.goals {
		if g.UserID == fromGuestID {
			g = g.WithOwner(toUserID)
			g.UpdatedAt = now
			s.goals[id] = g
			counts["goals"]++
		}
	}
	return store.GuestMigrationResult{Success: true, MigratedCounts: counts}
}
