// Package source decorates a counterparty source repository with per-source
// circuit breakers.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// BreakerConfig tunes the per-source breakers.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long a tripped breaker rejects fetches.
	OpenTimeout time.Duration
}

// BreakerRepository wraps a SourceRepository so that a source which keeps
// failing is skipped quickly instead of holding a worker slot until its
// fetch timeout. A missing artifact is a normal answer and never counts
// as a failure.
type BreakerRepository struct {
	next   domain.SourceRepository
	cfg    BreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRepository creates a BreakerRepository around next.
func NewBreakerRepository(next domain.SourceRepository, cfg BreakerConfig, logger *slog.Logger) *BreakerRepository {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 2 * time.Minute
	}
	return &BreakerRepository{
		next:     next,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "source_breaker")),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Fetch delegates to the wrapped repository through the source's breaker.
// While the breaker is open it fails immediately with a non-NotFound error,
// which the collector classifies as transient.
func (r *BreakerRepository) Fetch(ctx context.Context, source, artifact string) ([]byte, error) {
	out, err := r.breaker(source).Execute(func() (any, error) {
		return r.next.Fetch(ctx, source, artifact)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("source: fetch %s from %s: %w", artifact, source, err)
		}
		return nil, err
	}
	return out.([]byte), nil
}

// State reports the breaker state of source.
func (r *BreakerRepository) State(source string) gobreaker.State {
	return r.breaker(source).State()
}

func (r *BreakerRepository) breaker(source string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[source]; ok {
		return cb
	}

	threshold := r.cfg.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        source,
		MaxRequests: 1,
		Timeout:     r.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("source breaker state changed",
				slog.String("source", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	r.breakers[source] = cb
	return cb
}

var _ domain.SourceRepository = (*BreakerRepository)(nil)
