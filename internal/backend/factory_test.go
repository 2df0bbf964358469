package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/config"
	"fincore/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	tests := []struct {
		name    string
		app     *config.Config
		want    BackendType
		wantErr bool
	}{
		{"nil config", nil, "", true},
		{"memory", &config.Config{DataBackend: "memory"}, MemoryBackend, false},
		{"sqlite", &config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db"}, SQLiteBackend, false},
		{"sheets is gone", &config.Config{DataBackend: "sheets"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAppConfig(tt.app)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Type != tt.want {
				t.Fatalf("type = %q, want %q", got.Type, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://x", AMQPExchange: "e"}, true},
		{"unknown", Config{Type: "redis"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []Config{
		{Type: MemoryBackend},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "fincore.db")},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			res, err := NewFactory(nil).CreateBackend(ctx, cfg)
			if err != nil {
				t.Fatal(err)
			}
			defer func() {
				if err := res.Cleanup(); err != nil {
					t.Errorf("cleanup: %v", err)
				}
			}()
			if res.Events != nil {
				t.Fatal("no AMQP URL, no client")
			}

			acc, err := res.Store.CreateAccount(ctx, core.Account{
				UserID: "u1", Name: "A", Type: core.AccountCash, Currency: "EUR", InitialBalance: decimal.NewFromInt(10),
			})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := res.Store.CreateCategory(ctx, core.Category{ID: "expense-food", UserID: "u1", Name: "Food", Type: core.CategoryExpense}); err != nil {
				t.Fatal(err)
			}
			m, err := res.Coordinator(nil).Create(ctx, core.Transaction{
				UserID: "u1", AccountID: acc.ID, Type: core.TxExpense, CategoryID: "expense-food",
				Amount: decimal.NewFromInt(4), Date: time.Now(),
			})
			if err != nil {
				t.Fatal(err)
			}
			if !m.Balances[acc.ID].Equal(decimal.NewFromInt(6)) {
				t.Fatalf("balances = %v", m.Balances)
			}
		})
	}
}

func TestCreateBackendRejectsInvalid(t *testing.T) {
	if _, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: "sheets"}); err == nil {
		t.Fatal("want error")
	}
}
