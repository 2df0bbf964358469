// Package backend builds the storage adapter and optional event publisher
// selected by configuration at process start.
package backend

import (
	"context"
	"log/slog"

	"fincore/internal/amqp"
	"fincore/internal/ledger"
	"fincore/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the adapter, the AMQP client when one is configured
// and reachable, and a cleanup that releases both.
type BackendResult struct {
	Store   store.Adapter
	Events  *amqp.Client
	Cleanup CleanupFunc
}

// Coordinator returns a ledger coordinator over the adapter that publishes
// to the AMQP client when there is one.
func (r *BackendResult) Coordinator(logger *slog.Logger) *ledger.Coordinator {
	opts := []ledger.Option{ledger.WithLogger(logger)}
	if r.Events != nil {
		opts = append(opts, ledger.WithPublisher(r.Events))
	}
	return ledger.New(r.Store, opts...)
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP is optional for every backend.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
