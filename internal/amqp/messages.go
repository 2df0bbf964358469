package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"fincore/internal/ledger"
)

// LedgerEventMessage is the wire form of a ledger.Event. It carries ids only;
// consumers read current state from the store.
type LedgerEventMessage struct {
	Kind          string    `json:"kind"`
	UserID        string    `json:"userId"`
	TransactionID string    `json:"transactionId,omitempty"`
	AccountIDs    []string  `json:"accountIds"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEventMessage converts a ledger event for publishing.
func NewLedgerEventMessage(ev ledger.Event) *LedgerEventMessage {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	ids := ev.AccountIDs
	if ids == nil {
		ids = []string{}
	}
	return &LedgerEventMessage{
		Kind:          string(ev.Kind),
		UserID:        ev.UserID,
		TransactionID: ev.TransactionID,
		AccountIDs:    ids,
		Timestamp:     ts,
	}
}

// Event converts the message back into a ledger event.
func (m *LedgerEventMessage) Event() ledger.Event {
	return ledger.Event{
		Kind:          ledger.EventKind(m.Kind),
		UserID:        m.UserID,
		TransactionID: m.TransactionID,
		AccountIDs:    m.AccountIDs,
		Timestamp:     m.Timestamp,
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes a message and rejects ones without a
// kind or user.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind == "" || msg.UserID == "" {
		return nil, fmt.Errorf("ledger event missing kind or user")
	}
	return &msg, nil
}
