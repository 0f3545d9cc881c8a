package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken   string
	DatabaseURL     string
	StoreDriver     string
	AdminTelegramID int64 // optional operator allowed to run admin commands in any chat
	LogLevel        string
	Environment     string

	CronSpecCycle         string
	CronSpecReminder      string
	CronSpecOptOut        string
	CronSpecFeedbackSweep string // global, not per tenant

	FeedbackTimeout    time.Duration
	AttritionThreshold int
	PromptConcurrency  int

	OpsAddr     string
	TenantsFile string
}

// Load reads configuration from environment variables and .env file (if present).
// The Telegram token is only required by the bot binary, see RequireBot.
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables. A missing .env is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")

	cfg.StoreDriver = strings.ToLower(getenv("STORE_DRIVER", DriverPostgres))
	switch cfg.StoreDriver {
	case DriverPostgres, DriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want postgres or memory", cfg.StoreDriver)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.StoreDriver == DriverPostgres {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	if adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	cfg.LogLevel = strings.ToLower(getenv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getenv("ENVIRONMENT", "development"))

	cfg.CronSpecCycle = getenv("CRON_SPEC_CYCLE", "0 0 * * 1")       // Monday 00:00
	cfg.CronSpecReminder = getenv("CRON_SPEC_REMINDER", "0 0 * * 6") // Saturday 00:00
	cfg.CronSpecOptOut = getenv("CRON_SPEC_OPT_OUT", "0 0 * * 6")
	cfg.CronSpecFeedbackSweep = getenv("CRON_SPEC_FEEDBACK_SWEEP", "*/15 * * * *")

	cfg.FeedbackTimeout, err = time.ParseDuration(getenv("FEEDBACK_TIMEOUT", "168h"))
	if err != nil {
		return nil, fmt.Errorf("invalid FEEDBACK_TIMEOUT: %w", err)
	}
	if cfg.FeedbackTimeout <= 0 {
		return nil, fmt.Errorf("FEEDBACK_TIMEOUT must be positive, got %s", cfg.FeedbackTimeout)
	}

	if cfg.AttritionThreshold, err = positiveInt("ATTRITION_THRESHOLD", 3); err != nil {
		return nil, err
	}
	if cfg.PromptConcurrency, err = positiveInt("PROMPT_CONCURRENCY", 8); err != nil {
		return nil, err
	}

	cfg.OpsAddr = getenv("OPS_ADDR", ":8080")
	cfg.TenantsFile = os.Getenv("TENANTS_FILE")

	return cfg, nil
}

// RequireBot checks the settings only the chat bot needs.
func (c *AppConfig) RequireBot() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is not set")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func positiveInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
