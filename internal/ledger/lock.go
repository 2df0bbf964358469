package ledger

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"
)

// lockTable serialises balance read-modify-write windows per account.
// Entries are dropped once nobody holds or waits on them.
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[string]*lockEntry)}
}

func (l *lockTable) ref(id string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[id] = e
	}
	e.refs++
	return e
}

func (l *lockTable) unref(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[id]
	e.refs--
	if e.refs == 0 {
		delete(l.entries, id)
	}
}

// acquire locks every non-empty id in sorted order so two writers touching
// the same pair of accounts cannot deadlock. The returned func releases
// all of them.
func (l *lockTable) acquire(ctx context.Context, ids ...string) (func(), error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			keys = append(keys, id)
		}
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	type held struct {
		id string
		e  *lockEntry
	}
	locked := make([]held, 0, len(keys))
	release := func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].e.sem.Release(1)
			l.unref(locked[i].id)
		}
	}
	for _, id := range keys {
		e := l.ref(id)
		if err := e.sem.Acquire(ctx, 1); err != nil {
			l.unref(id)
			release()
			return nil, err
		}
		locked = append(locked, held{id: id, e: e})
	}
	return release, nil
}
