package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/navledger/internal/domain"
)

type flakyArchiver struct {
	mu       sync.Mutex
	failures map[string]int // remaining failures per artifact
	attempts map[string]int
	stored   []string
}

func newFlakyArchiver() *flakyArchiver {
	return &flakyArchiver{failures: map[string]int{}, attempts: map[string]int{}}
}

func (f *flakyArchiver) Archive(_ context.Context, a domain.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[a.Name]++
	if f.failures[a.Name] > 0 {
		f.failures[a.Name]--
		return errors.New("503 slow down")
	}
	f.stored = append(f.stored, a.Name)
	return nil
}

func TestUploaderRetriesThenGivesUp(t *testing.T) {
	arch := newFlakyArchiver()
	arch.failures["flaky.csv"] = 2
	arch.failures["dead.csv"] = 10
	metrics := NewMetrics(prometheus.NewRegistry())

	u := NewUploader(arch, UploaderConfig{QueueSize: 4, Attempts: 3, Backoff: time.Millisecond}, metrics, quietLogger())
	u.Start()

	ctx := context.Background()
	require.NoError(t, u.Submit(ctx, domain.Artifact{Name: "ok.csv"}))
	require.NoError(t, u.Submit(ctx, domain.Artifact{Name: "flaky.csv"}))
	require.NoError(t, u.Submit(ctx, domain.Artifact{Name: "dead.csv"}))
	require.NoError(t, u.Close(ctx))

	assert.Equal(t, []string{"ok.csv", "flaky.csv"}, arch.stored)
	assert.Equal(t, 3, arch.attempts["flaky.csv"])
	assert.Equal(t, 3, arch.attempts["dead.csv"])
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ArchiveUploads.WithLabelValues("uploaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ArchiveUploads.WithLabelValues("failed")))
}

func TestUploaderRejectsAfterClose(t *testing.T) {
	u := NewUploader(newFlakyArchiver(), UploaderConfig{}, nil, quietLogger())
	u.Start()
	require.NoError(t, u.Close(context.Background()))
	require.NoError(t, u.Close(context.Background()))

	err := u.Submit(context.Background(), domain.Artifact{Name: "late.csv"})
	assert.ErrorIs(t, err, ErrUploaderClosed)
}

func TestUploaderSubmitHonoursContextWhenFull(t *testing.T) {
	// Not started, so the single slot stays occupied.
	u := NewUploader(newFlakyArchiver(), UploaderConfig{QueueSize: 1}, nil, quietLogger())
	require.NoError(t, u.Submit(context.Background(), domain.Artifact{Name: "a.csv"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := u.Submit(ctx, domain.Artifact{Name: "b.csv"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
