package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"TELEGRAM_TOKEN", "DATABASE_URL", "STORE_DRIVER", "ADMIN_TELEGRAM_ID", "LOG_LEVEL", "ENVIRONMENT",
	"CRON_SPEC_CYCLE", "CRON_SPEC_REMINDER", "CRON_SPEC_OPT_OUT", "CRON_SPEC_FEEDBACK_SWEEP",
	"FEEDBACK_TIMEOUT", "ATTRITION_THRESHOLD", "PROMPT_CONCURRENCY", "OPS_ADDR", "TENANTS_FILE",
}

// clearEnv blanks every key so a developer's .env or shell cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "0 0 * * 1", cfg.CronSpecCycle)
	assert.Equal(t, "0 0 * * 6", cfg.CronSpecReminder)
	assert.Equal(t, "0 0 * * 6", cfg.CronSpecOptOut)
	assert.Equal(t, "*/15 * * * *", cfg.CronSpecFeedbackSweep)
	assert.Equal(t, 7*24*time.Hour, cfg.FeedbackTimeout)
	assert.Equal(t, 3, cfg.AttritionThreshold)
	assert.Equal(t, 8, cfg.PromptConcurrency)
	assert.Equal(t, ":8080", cfg.OpsAddr)
	assert.Zero(t, cfg.AdminTelegramID)
	assert.Error(t, cfg.RequireBot())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "tok")
	t.Setenv("DATABASE_URL", "postgres://localhost/pairing")
	t.Setenv("ADMIN_TELEGRAM_ID", "42")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("FEEDBACK_TIMEOUT", "48h")
	t.Setenv("ATTRITION_THRESHOLD", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, int64(42), cfg.AdminTelegramID)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 48*time.Hour, cfg.FeedbackTimeout)
	assert.Equal(t, 5, cfg.AttritionThreshold)
	assert.NoError(t, cfg.RequireBot())
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}},
		{"bad admin id", map[string]string{"STORE_DRIVER": "memory", "ADMIN_TELEGRAM_ID": "abc"}},
		{"zero threshold", map[string]string{"STORE_DRIVER": "memory", "ATTRITION_THRESHOLD": "0"}},
		{"negative concurrency", map[string]string{"STORE_DRIVER": "memory", "PROMPT_CONCURRENCY": "-1"}},
		{"bad timeout", map[string]string{"STORE_DRIVER": "memory", "FEEDBACK_TIMEOUT": "soon"}},
		{"negative timeout", map[string]string{"STORE_DRIVER": "memory", "FEEDBACK_TIMEOUT": "-1h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestParseTenants(t *testing.T) {
	doc := []byte(`
tenants:
  - id: -100
    title: Coffee chats
    cycle: "0 9 * * 1"
  - id: -200
    reminder: "0 12 * * 4"
`)
	got, err := ParseTenants(doc)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, TenantOverride{ID: -100, Title: "Coffee chats", CycleSpec: "0 9 * * 1"}, got[0])
	assert.Equal(t, "0 12 * * 4", got[1].ReminderSpec)

	_, err = ParseTenants([]byte("tenants:\n  - title: nameless\n"))
	assert.Error(t, err)

	_, err = ParseTenants([]byte("tenants:\n  - id: 1\n  - id: 1\n"))
	assert.Error(t, err)
}

func TestLoadTenants(t *testing.T) {
	got, err := LoadTenants("")
	require.NoError(t, err)
	assert.Nil(t, got)

	path := filepath.Join(t.TempDir(), "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tenants:\n  - id: 7\n    opt_out: \"0 8 * * 5\"\n"), 0o600))
	got, err = LoadTenants(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0 8 * * 5", got[0].OptOutSpec)

	_, err = LoadTenants(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
