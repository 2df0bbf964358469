package ledger

import (
	"context"
	"time"
)

type EventKind string

const (
	EventCreated        EventKind = "transaction.created"
	EventUpdated        EventKind = "transaction.updated"
	EventDeleted        EventKind = "transaction.deleted"
	EventGoalMovement   EventKind = "goal.movement"
	EventBalanceRebuilt EventKind = "account.rebuilt"
)

// Event is emitted after a successful ledger mutation so that derived data
// (budget spend, cached statistics) can be refreshed.
type Event struct {
	Kind          EventKind
	UserID        string
	TransactionID string
	AccountIDs    []string
	Timestamp     time.Time
}

// Publisher delivers ledger events. Failures are logged by the coordinator
// and never undo the mutation.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) PublishLedgerEvent(ctx context.Context, e Event) error { return f(ctx, e) }
