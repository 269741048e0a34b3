// Package config defines the top-level configuration for the NAV ledger
// ingester and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by NAVLEDGER_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Sources   []SourceConfig  `toml:"sources"`
	Collector CollectorConfig `toml:"collector"`
	Persist   PersistConfig   `toml:"persist"`
	Archive   ArchiveConfig   `toml:"archive"`
	Schedule  ScheduleConfig  `toml:"schedule"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds ledger database connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional: when
// Enabled is false runs are not locked and sources are not throttled.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters. Counterparty drops
// live under each source's prefix; archived artifacts under archive.prefix.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SourceConfig names one counterparty and where its artifacts are dropped.
type SourceConfig struct {
	Name   string `toml:"name"`
	Prefix string `toml:"prefix"`
}

// CollectorConfig holds fetch concurrency and artifact naming parameters.
type CollectorConfig struct {
	MaxInFlight  int      `toml:"max_in_flight"`
	FetchTimeout duration `toml:"fetch_timeout"`
	ExcludeFile  string   `toml:"exclude_file"`
	// RateLimitPerSec caps fetches per source per second; 0 disables it.
	RateLimitPerSec int `toml:"rate_limit_per_sec"`

	StandardPattern string `toml:"standard_pattern"`
	HybridPattern   string `toml:"hybrid_pattern"`
	LoanPattern     string `toml:"loan_pattern"`

	BreakerFailures uint32   `toml:"breaker_failures"`
	BreakerTimeout  duration `toml:"breaker_timeout"`
}

// PersistConfig holds ledger write policy.
type PersistConfig struct {
	// ValidStatuses lists the catalog statuses whose identifiers may be
	// written to the ledger.
	ValidStatuses   []string `toml:"valid_statuses"`
	DistributionTag string   `toml:"distribution_tag"`
}

// ArchiveConfig controls raw artifact archival to object storage.
type ArchiveConfig struct {
	Enabled   bool     `toml:"enabled"`
	Prefix    string   `toml:"prefix"`
	QueueSize int      `toml:"queue_size"`
	Retries   int      `toml:"retries"`
	Backoff   duration `toml:"backoff"`
}

// ScheduleConfig drives the schedule mode. The business date of a scheduled
// run is the trigger time's calendar date in Timezone.
type ScheduleConfig struct {
	Cron     string `toml:"cron"`
	Filter   string `toml:"filter"`
	Timezone string `toml:"timezone"`
}

// Location resolves Timezone, defaulting to UTC.
func (s ScheduleConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(s.Timezone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// ServerConfig holds the read-only HTTP surface served in schedule mode
// (health, ledger history, recent runs and prometheus metrics). An empty
// Addr disables it.
type ServerConfig struct {
	Addr        string   `toml:"addr"`
	APIKey      string   `toml:"api_key"` // if empty, authentication is disabled
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimitPerMin caps API requests per client IP; it needs redis.
	RateLimitPerMin int    `toml:"rate_limit_per_min"`
	ReportStream    string `toml:"report_stream"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "navledger",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "navledger",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "nav-drops",
			ForcePathStyle: true,
		},
		Sources: []SourceConfig{
			{Name: "ETPCAP2", Prefix: "ETPCAP2/NAVs_Consolidated"},
			{Name: "HFMX", Prefix: "HFMX/NAVs_Consolidated"},
			{Name: "IACAP", Prefix: "IACAP/NAVs_Consolidated"},
			{Name: "CIX", Prefix: "CIX/NAVs_Consolidated"},
			{Name: "DCXPD", Prefix: "DCXPD/NAVs_Consolidated"},
		},
		Collector: CollectorConfig{
			MaxInFlight:     3,
			FetchTimeout:    duration{60 * time.Second},
			StandardPattern: "CAS_Flexfunds_NAV_{date} {source}.csv",
			HybridPattern:   "CAS_Flexfunds_NAV_{date} Wrappers Hybrid {source}.csv",
			LoanPattern:     "CAS_Flexfunds_NAV_{date} Loan {source}.csv",
			BreakerFailures: 3,
			BreakerTimeout:  duration{2 * time.Minute},
		},
		Persist: PersistConfig{
			ValidStatuses:   []string{"active", "inactive", "matured"},
			DistributionTag: "morningstar",
		},
		Archive: ArchiveConfig{
			Enabled:   false,
			Prefix:    "archive",
			QueueSize: 16,
			Retries:   3,
			Backoff:   duration{2 * time.Second},
		},
		Schedule: ScheduleConfig{
			Cron:     "30 18 * * 1,2,3,4,5",
			Filter:   "all",
			Timezone: "UTC",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RateLimitPerMin: 120,
			ReportStream:    "runs",
		},
		Notify: NotifyConfig{
			Events: []string{"run_succeeded", "run_failed", "persistence_degraded"},
		},
		Mode:     "once",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"once":     true,
	"schedule": true,
	"history":  true,
	"repair":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: once, schedule, history, repair)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}
	if c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty")
	}

	// Sources
	if len(c.Sources) == 0 {
		errs = append(errs, "sources: at least one source must be configured")
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if strings.TrimSpace(s.Name) == "" {
			errs = append(errs, fmt.Sprintf("sources[%d]: name must not be empty", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("sources: duplicate source %q", s.Name))
		}
		seen[s.Name] = true
	}

	// Collector
	if c.Collector.MaxInFlight < 1 {
		errs = append(errs, "collector: max_in_flight must be >= 1")
	}
	if c.Collector.FetchTimeout.Duration <= 0 {
		errs = append(errs, "collector: fetch_timeout must be > 0")
	}
	if c.Collector.RateLimitPerSec < 0 {
		errs = append(errs, "collector: rate_limit_per_sec must be >= 0")
	}
	for name, p := range map[string]string{
		"standard_pattern": c.Collector.StandardPattern,
		"hybrid_pattern":   c.Collector.HybridPattern,
		"loan_pattern":     c.Collector.LoanPattern,
	} {
		if !strings.Contains(p, "{date}") {
			errs = append(errs, fmt.Sprintf("collector: %s must contain {date}", name))
		}
	}

	// Persist
	if len(c.Persist.ValidStatuses) == 0 {
		errs = append(errs, "persist: valid_statuses must not be empty")
	}
	for _, s := range c.Persist.ValidStatuses {
		if _, ok := domain.ParseStatus(s); !ok {
			errs = append(errs, fmt.Sprintf("persist: unknown status %q in valid_statuses", s))
		}
	}
	if strings.TrimSpace(c.Persist.DistributionTag) == "" {
		errs = append(errs, "persist: distribution_tag must not be empty")
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.QueueSize < 1 {
			errs = append(errs, "archive: queue_size must be >= 1")
		}
		if c.Archive.Retries < 1 {
			errs = append(errs, "archive: retries must be >= 1")
		}
	}

	// Schedule
	if strings.EqualFold(c.Mode, "schedule") && len(strings.Fields(c.Schedule.Cron)) != 5 {
		errs = append(errs, fmt.Sprintf("schedule: cron %q must have 5 fields", c.Schedule.Cron))
	}
	if _, err := c.Schedule.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("schedule: unknown timezone %q", c.Schedule.Timezone))
	}

	// Server
	if c.Server.RateLimitPerMin < 0 {
		errs = append(errs, "server: rate_limit_per_min must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidStatuses returns the parsed persistence validity policy. Unknown
// entries are skipped; Validate reports them.
func (c *Config) ValidStatuses() []domain.SeriesStatus {
	out := make([]domain.SeriesStatus, 0, len(c.Persist.ValidStatuses))
	for _, s := range c.Persist.ValidStatuses {
		if st, ok := domain.ParseStatus(s); ok {
			out = append(out, st)
		}
	}
	return out
}
