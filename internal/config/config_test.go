package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/navledger/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Sources, 5)
	assert.ElementsMatch(t,
		[]domain.SeriesStatus{domain.StatusActive, domain.StatusInactive, domain.StatusMatured},
		cfg.ValidStatuses())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Sources = append(cfg.Sources, SourceConfig{Name: "HFMX"})
	cfg.Collector.HybridPattern = "no-date.csv"
	cfg.Persist.ValidStatuses = []string{"bogus"}
	cfg.Schedule.Timezone = "Mars/Olympus"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		`duplicate source "HFMX"`,
		"hybrid_pattern must contain {date}",
		`unknown status "bogus"`,
		`unknown timezone "Mars/Olympus"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadFileReplacesSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navledger.toml")
	body := `
mode = "schedule"

[collector]
fetch_timeout = "15s"

[schedule]
cron = "0 19 * * 1-5"
timezone = "Europe/Madrid"

[[sources]]
name = "ONLY"
prefix = "only/drops"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "schedule", cfg.Mode)
	assert.Equal(t, 15*time.Second, cfg.Collector.FetchTimeout.Duration)
	assert.Equal(t, []SourceConfig{{Name: "ONLY", Prefix: "only/drops"}}, cfg.Sources)
	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Collector.MaxInFlight)

	loc, err := cfg.Schedule.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Madrid", loc.String())
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NAVLEDGER_MODE", "repair")
	t.Setenv("NAVLEDGER_COLLECTOR_MAX_IN_FLIGHT", "8")
	t.Setenv("NAVLEDGER_PERSIST_VALID_STATUSES", "active, matured")
	t.Setenv("NAVLEDGER_REDIS_ENABLED", "true")
	t.Setenv("NAVLEDGER_COLLECTOR_FETCH_TIMEOUT", "not-a-duration")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "repair", cfg.Mode)
	assert.Equal(t, 8, cfg.Collector.MaxInFlight)
	assert.Equal(t, []string{"active", "matured"}, cfg.Persist.ValidStatuses)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 60*time.Second, cfg.Collector.FetchTimeout.Duration)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "k"
	cfg.Notify.TelegramToken = ""

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Notify.TelegramToken)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)

	out.Sources[0].Name = "mutated"
	assert.NotEqual(t, "mutated", cfg.Sources[0].Name)
}
