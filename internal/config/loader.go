package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies NAVLEDGER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		// A [[sources]] table in the file replaces the default source list
		// instead of appending to it.
		var probe struct {
			Sources []SourceConfig `toml:"sources"`
		}
		md, err := toml.DecodeFile(path, &probe)
		if err != nil {
			return nil, err
		}
		if md.IsDefined("sources") {
			cfg.Sources = nil
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known NAVLEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "NAVLEDGER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "NAVLEDGER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "NAVLEDGER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "NAVLEDGER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "NAVLEDGER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "NAVLEDGER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "NAVLEDGER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "NAVLEDGER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "NAVLEDGER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "NAVLEDGER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "NAVLEDGER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "NAVLEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "NAVLEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "NAVLEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "NAVLEDGER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "NAVLEDGER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "NAVLEDGER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "NAVLEDGER_REDIS_KEY_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "NAVLEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "NAVLEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "NAVLEDGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "NAVLEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "NAVLEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "NAVLEDGER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "NAVLEDGER_S3_FORCE_PATH_STYLE")

	// ── Collector ──
	setInt(&cfg.Collector.MaxInFlight, "NAVLEDGER_COLLECTOR_MAX_IN_FLIGHT")
	setDuration(&cfg.Collector.FetchTimeout, "NAVLEDGER_COLLECTOR_FETCH_TIMEOUT")
	setStr(&cfg.Collector.ExcludeFile, "NAVLEDGER_COLLECTOR_EXCLUDE_FILE")
	setInt(&cfg.Collector.RateLimitPerSec, "NAVLEDGER_COLLECTOR_RATE_LIMIT_PER_SEC")

	// ── Persist ──
	setStringSlice(&cfg.Persist.ValidStatuses, "NAVLEDGER_PERSIST_VALID_STATUSES")
	setStr(&cfg.Persist.DistributionTag, "NAVLEDGER_PERSIST_DISTRIBUTION_TAG")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "NAVLEDGER_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Prefix, "NAVLEDGER_ARCHIVE_PREFIX")

	// ── Schedule ──
	setStr(&cfg.Schedule.Cron, "NAVLEDGER_SCHEDULE_CRON")
	setStr(&cfg.Schedule.Filter, "NAVLEDGER_SCHEDULE_FILTER")
	setStr(&cfg.Schedule.Timezone, "NAVLEDGER_SCHEDULE_TIMEZONE")

	// ── Server ──
	setStr(&cfg.Server.Addr, "NAVLEDGER_SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "NAVLEDGER_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "NAVLEDGER_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "NAVLEDGER_SERVER_RATE_LIMIT_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NAVLEDGER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NAVLEDGER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NAVLEDGER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NAVLEDGER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "NAVLEDGER_MODE")
	setStr(&cfg.LogLevel, "NAVLEDGER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
