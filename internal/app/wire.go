package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	s3blob "github.com/alanyoungcy/navledger/internal/blob/s3"
	"github.com/alanyoungcy/navledger/internal/cache/redis"
	"github.com/alanyoungcy/navledger/internal/config"
	"github.com/alanyoungcy/navledger/internal/domain"
	"github.com/alanyoungcy/navledger/internal/notify"
	"github.com/alanyoungcy/navledger/internal/pipeline"
	"github.com/alanyoungcy/navledger/internal/server/handler"
	"github.com/alanyoungcy/navledger/internal/source"
	"github.com/alanyoungcy/navledger/internal/store/postgres"
)

// Dependencies bundles every concrete collaborator the modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Optional parts are nil when their backend is not configured.
type Dependencies struct {
	// Stores
	Catalog domain.CatalogStore
	Ledger  domain.LedgerStore

	// Redis
	LockManager  domain.LockManager
	Throttle     domain.RateLimiter // per-source fetch throttle
	APILimiter   domain.RateLimiter // per-client API limit
	ReportStream *redis.ReportStream

	// Blob storage
	Sources  *source.BreakerRepository
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Metrics
	Registry *prometheus.Registry
	Metrics  *pipeline.Metrics

	// Checks backs the health endpoint.
	Checks map[string]handler.Check
}

// needsS3 returns true for modes that read counterparty drops.
func needsS3(mode string) bool {
	switch mode {
	case "once", "schedule":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: map[string]handler.Check{}}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Catalog = postgres.NewCatalogStore(pool)
	deps.Ledger = postgres.NewLedgerStore(pool)
	deps.Checks["postgres"] = pgClient.Ping

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient)
		if cfg.Collector.RateLimitPerSec > 0 {
			deps.Throttle = redis.NewRateLimiter(redisClient, cfg.Collector.RateLimitPerSec, time.Second)
		}
		if cfg.Server.RateLimitPerMin > 0 {
			deps.APILimiter = redis.NewRateLimiter(redisClient, cfg.Server.RateLimitPerMin, time.Minute)
		}
		deps.ReportStream = redis.NewReportStream(redisClient, cfg.Server.ReportStream)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 blob storage (only for modes that collect) ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		reader := s3blob.NewReader(s3Client)
		prefixes := make(map[string]string, len(cfg.Sources))
		for _, s := range cfg.Sources {
			prefixes[s.Name] = s.Prefix
		}
		deps.Sources = source.NewBreakerRepository(
			s3blob.NewSourceRepository(reader, prefixes),
			source.BreakerConfig{
				ConsecutiveFailures: cfg.Collector.BreakerFailures,
				OpenTimeout:         cfg.Collector.BreakerTimeout.Duration,
			},
			logger,
		)
		if cfg.Archive.Enabled {
			deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), reader, cfg.Archive.Prefix)
		}
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Metrics ---
	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Metrics = pipeline.NewMetrics(deps.Registry)

	return deps, cleanup, nil
}
