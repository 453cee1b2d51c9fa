package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeFile(t, "loyalty.yaml", "{}\n")

	cfg, err := Load(NewViper(), path)

	require.NoError(t, err)
	assert.Equal(t, "file:loyalty.db?_foreign_keys=on", cfg.Database.DSN)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, 1024, cfg.Cache.Size)
	assert.Equal(t, 3, cfg.Engine.MaxConflictRetries)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "@daily", cfg.Scheduler.Spec)
	assert.Equal(t, 72*time.Hour, cfg.Scheduler.Window)
	assert.Empty(t, cfg.Program.File)
	assert.Empty(t, cfg.HTTP.CORSOrigins)
}

func TestLoad_CORSOrigins(t *testing.T) {
	path := writeFile(t, "loyalty.yaml", `
http:
  cors_origins:
    - https://shop.example.com
    - https://admin.example.com
`)

	cfg, err := Load(NewViper(), path)

	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.HTTP.CORSOrigins)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "loyalty.yaml", `
database:
  dsn: ":memory:"
log:
  level: debug
  encoding: console
cache:
  size: 16
engine:
  max_conflict_retries: 5
scheduler:
  enabled: false
  window: 24h
program:
  file: /etc/loyalty/program.yaml
`)

	cfg, err := Load(NewViper(), path)

	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Encoding)
	assert.Equal(t, 16, cfg.Cache.Size)
	assert.Equal(t, 5, cfg.Engine.MaxConflictRetries)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.Window)
	assert.Equal(t, "/etc/loyalty/program.yaml", cfg.Program.File)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "loyalty.yaml", "http:\n  addr: \":9000\"\n")
	t.Setenv("LOYALTY_HTTP_ADDR", ":9090")
	t.Setenv("LOYALTY_CACHE_SIZE", "64")

	cfg, err := Load(NewViper(), path)

	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 64, cfg.Cache.Size)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }},
		{"negative cache size", func(c *Config) { c.Cache.Size = -1 }},
		{"negative retries", func(c *Config) { c.Engine.MaxConflictRetries = -1 }},
		{"zero window while enabled", func(c *Config) { c.Scheduler.Window = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Database:  DatabaseConfig{DSN: ":memory:"},
				Scheduler: SchedulerConfig{Enabled: true, Spec: "@daily", Window: time.Hour},
			}
			require.NoError(t, cfg.Validate())

			tt.mutate(&cfg)

			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug", Encoding: "console"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = NewLogger(LogConfig{Encoding: "xml"})
	assert.Error(t, err)
}
