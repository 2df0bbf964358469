package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// AMQP; an empty URL disables ledger events.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	RecalcInterval    time.Duration
	RecalcConcurrency int

	// Ledger
	DefaultMonthStart int
	BalanceTolerance  decimal.Decimal

	// Stats cache
	StatsCacheSize int
	StatsCacheTTL  time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	BackupDir string
}

var (
	validBackends   = []string{"memory", "sqlite"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json", "pretty"}
)

func Load() *Config {
	cfg := &Config{
		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fincore.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fincore"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		RecalcInterval:    getEnvDuration("RECALC_INTERVAL", 15*time.Minute),
		RecalcConcurrency: getEnvInt("RECALC_CONCURRENCY", 4),

		DefaultMonthStart: getEnvInt("DEFAULT_MONTH_START", 1),
		BalanceTolerance:  getEnvDecimal("BALANCE_TOLERANCE", decimal.RequireFromString("0.01")),

		StatsCacheSize: getEnvInt("STATS_CACHE_SIZE", 256),
		StatsCacheTTL:  getEnvDuration("STATS_CACHE_TTL", 5*time.Minute),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		BackupDir: getEnv("BACKUP_DIR", "./data/backups"),
	}

	return cfg
}

// AMQPEnabled reports whether ledger events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RecalcInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid recalc interval %v: must be at least 1 second", c.RecalcInterval))
	} else if c.RecalcInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid recalc interval %v: must be at most 24 hours", c.RecalcInterval))
	}
	if c.RecalcConcurrency < 1 || c.RecalcConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid recalc concurrency %d: must be between 1 and 64", c.RecalcConcurrency))
	}

	if c.DefaultMonthStart < 1 || c.DefaultMonthStart > 31 {
		errors = append(errors, fmt.Sprintf("invalid default month start %d: must be between 1 and 31", c.DefaultMonthStart))
	}
	if c.BalanceTolerance.IsNegative() {
		errors = append(errors, fmt.Sprintf("invalid balance tolerance %s: must not be negative", c.BalanceTolerance))
	}

	if c.StatsCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid stats cache size %d: must be at least 1", c.StatsCacheSize))
	}
	if c.StatsCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid stats cache TTL %v: must be positive", c.StatsCacheTTL))
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	if c.BackupDir == "" {
		errors = append(errors, "backup directory cannot be empty")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
