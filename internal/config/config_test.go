package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  port: 5432
  user: test
  password: test
  dbname: test
  sslmode: disable
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Ingest.Interval)
	assert.Equal(t, 20, cfg.Ingest.BudgetSeconds)
	assert.Equal(t, 4, cfg.Ingest.SearchTailSeconds)
	assert.Equal(t, 8*time.Second, cfg.Ingest.FetchTimeout)
	assert.Equal(t, 3, cfg.Ingest.HighSignalTarget)
	assert.Equal(t, 2, cfg.Ingest.SoftMatchCap)
	assert.Equal(t, 14, cfg.Ingest.LookbackDays)

	assert.Equal(t, 8, cfg.Backfill.BudgetSeconds)
	assert.Equal(t, 30, cfg.Backfill.ColdAfterDays)
	assert.Equal(t, 24*time.Hour, cfg.Backfill.CacheTTL)
	assert.Equal(t, 2, cfg.Backfill.PrefetchMinScore)
	assert.Equal(t, 3, cfg.Backfill.LinkageMinScore)

	assert.Equal(t, "actorwatch", cfg.RabbitMQ.Exchange)
	assert.NotEmpty(t, cfg.Catalog.AllowedDomains)
	assert.NotEmpty(t, cfg.Catalog.BackfillFeeds)
	assert.Contains(t, cfg.Catalog.QueryFeedTemplate, "%s")
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_ExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
ingest:
  interval: 5m
  budget_seconds: 10
  soft_match: true
backfill:
  cold_after_days: 7
catalog:
  allowed_domains:
    - example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.Ingest.Interval)
	assert.Equal(t, 10, cfg.Ingest.BudgetSeconds)
	assert.True(t, cfg.Ingest.SoftMatch)
	assert.Equal(t, 7, cfg.Backfill.ColdAfterDays)
	assert.Equal(t, []string{"example.com"}, cfg.Catalog.AllowedDomains)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "sekrit")

	path := writeConfig(t, `
database:
  host: localhost
  port: 5432
  user: app
  password: ${TEST_DB_PASSWORD}
  dbname: app
  sslmode: disable
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sekrit", cfg.Database.Password)
	assert.Contains(t, cfg.Database.DSN(), "password=sekrit")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
