package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"fincore/internal/config"
	"fincore/internal/core"
)

func TestLogFailureClassifiesError(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	logger := SetupLogger(&config.Config{LogFormat: "json", LogLevel: "info"}, &buf)
	LogFailure(context.Background(), logger, "adjust", &core.ValidationError{Field: "amount", Reason: "zero"})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	for k, want := range map[string]string{
		"component":  "app",
		"operation":  "adjust",
		"error_type": "validation_error",
	} {
		if rec[k] != want {
			t.Errorf("%s = %v, want %s", k, rec[k], want)
		}
	}
}

func TestLoadAndValidateConfig(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "db", "fincore.db"))
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataBackend != "memory" {
		t.Fatalf("backend = %s", cfg.DataBackend)
	}

	t.Setenv("DATA_BACKEND", "sheets")
	if _, err := LoadAndValidateConfig(); err == nil {
		t.Fatal("want validation error")
	}
}

func TestInitBackendMemory(t *testing.T) {
	res, err := InitBackend(context.Background(), nil, &config.Config{DataBackend: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	defer res.Cleanup()
	if res.Store == nil {
		t.Fatal("no store")
	}
}
