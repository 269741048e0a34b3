package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// ErrUploaderClosed is returned by Submit after Close.
var ErrUploaderClosed = errors.New("pipeline: uploader closed")

// ArtifactArchiver stores one raw artifact.
type ArtifactArchiver interface {
	Archive(ctx context.Context, a domain.Artifact) error
}

// UploaderConfig tunes the archive stage.
type UploaderConfig struct {
	QueueSize     int
	Attempts      int
	Backoff       time.Duration
	UploadTimeout time.Duration
}

// Uploader is the archive stage. Collection pushes artifacts onto a bounded
// queue; a single worker uploads them with a fixed number of attempts. Its
// failures never reach the run that produced the artifact.
type Uploader struct {
	archiver ArtifactArchiver
	cfg      UploaderConfig
	metrics  *Metrics
	logger   *slog.Logger

	queue chan domain.Artifact
	mu    sync.RWMutex
	done  chan struct{}

	closed    bool
	closeOnce sync.Once
}

// NewUploader creates an Uploader. Call Start before submitting.
func NewUploader(archiver ArtifactArchiver, cfg UploaderConfig, metrics *Metrics, logger *slog.Logger) *Uploader {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 2 * time.Minute
	}
	return &Uploader{
		archiver: archiver,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "uploader")),
		queue:    make(chan domain.Artifact, cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the upload worker. It runs until Close has been called and
// the queue is drained.
func (u *Uploader) Start() {
	go func() {
		defer close(u.done)
		for a := range u.queue {
			u.setDepth()
			u.upload(a)
		}
	}()
}

// Submit enqueues a, blocking while the queue is full.
func (u *Uploader) Submit(ctx context.Context, a domain.Artifact) error {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.closed {
		return ErrUploaderClosed
	}

	select {
	case u.queue <- a:
		u.setDepth()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline: queue artifact %s: %w", a.Name, ctx.Err())
	}
}

// Close stops accepting artifacts and waits for queued ones to be uploaded
// or ctx to end.
func (u *Uploader) Close(ctx context.Context) error {
	u.closeOnce.Do(func() {
		u.mu.Lock()
		u.closed = true
		close(u.queue)
		u.mu.Unlock()
	})

	select {
	case <-u.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline: drain uploader: %w", ctx.Err())
	}
}

func (u *Uploader) upload(a domain.Artifact) {
	var err error
	for attempt := 1; attempt <= u.cfg.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), u.cfg.UploadTimeout)
		err = u.archiver.Archive(ctx, a)
		cancel()
		if err == nil {
			u.count("uploaded")
			u.logger.Debug("artifact archived",
				slog.String("source", a.Source),
				slog.String("artifact", a.Name),
				slog.Int("attempt", attempt),
			)
			return
		}

		u.logger.Warn("artifact archive attempt failed",
			slog.String("artifact", a.Name),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt < u.cfg.Attempts {
			time.Sleep(u.cfg.Backoff)
		}
	}

	u.count("failed")
	u.logger.Error("artifact archive gave up",
		slog.String("source", a.Source),
		slog.String("artifact", a.Name),
		slog.String("error", err.Error()),
	)
}

func (u *Uploader) count(result string) {
	if u.metrics != nil {
		u.metrics.ArchiveUploads.WithLabelValues(result).Inc()
	}
}

func (u *Uploader) setDepth() {
	if u.metrics != nil {
		u.metrics.ArchiveQueue.Set(float64(len(u.queue)))
	}
}

var _ domain.ArtifactSink = (*Uploader)(nil)
