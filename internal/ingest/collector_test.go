package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/navledger/internal/domain"
)

var businessDate = time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)

func navCSV(date string, isins ...string) string {
	var b strings.Builder
	b.WriteString("ISIN,NAV,Valuation Period-End Date,Frequency,Unnamed: 4\n")
	for i, id := range isins {
		fmt.Fprintf(&b, "%s,\"1,%03d.25\",%s,Daily,\n", id, i, date)
	}
	return b.String()
}

func seriesIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%04d", prefix, i)
	}
	return ids
}

func testCollectorConfig(sources ...string) CollectorConfig {
	return CollectorConfig{Sources: sources, MaxInFlight: 3, FetchTimeout: time.Second}
}

func TestArtifactName(t *testing.T) {
	cfg := testCollectorConfig("HFMX").withDefaults()

	assert.Equal(t, "CAS_Flexfunds_NAV_03212025 HFMX.csv",
		cfg.ArtifactName("HFMX", domain.VariantStandard, businessDate))
	assert.Equal(t, "CAS_Flexfunds_NAV_03212025 Wrappers Hybrid HFMX.csv",
		cfg.ArtifactName("HFMX", domain.VariantHybrid, businessDate))
	assert.Equal(t, "CAS_Flexfunds_NAV_03212025 Loan HFMX.csv",
		cfg.ArtifactName("HFMX", domain.VariantLoan, businessDate))
}

func TestCollectAllNotFoundIsFatal(t *testing.T) {
	c := NewCollector(newMemRepo(), testCollectorConfig("A", "B"), quietLogger())

	res, err := c.Collect(context.Background(), businessDate, domain.Target{All: true}, nil, nil)

	require.ErrorIs(t, err, domain.ErrFatalEmpty)
	assert.Empty(t, res.Batches)
	assert.Len(t, res.Outcomes, 6)
	assert.Equal(t, []string{"A", "B"}, res.Missing)
	assert.Empty(t, res.Failed)
}

func TestCollectOneRowIsNotFatal(t *testing.T) {
	repo := newMemRepo()
	cfg := testCollectorConfig("A", "B")
	repo.put("B", cfg.withDefaults().ArtifactName("B", domain.VariantLoan, businessDate),
		navCSV("03/21/2025", "XS1"))

	res, err := NewCollector(repo, cfg, quietLogger()).
		Collect(context.Background(), businessDate, domain.Target{All: true}, nil, nil)

	require.NoError(t, err)
	require.Len(t, res.Batches, 1)
	assert.Equal(t, "B", res.Batches[0].Source)
	assert.Equal(t, domain.VariantLoan, res.Batches[0].Variant)
	assert.Equal(t, []string{"A"}, res.Missing)
}

func TestCollectFiltersRows(t *testing.T) {
	repo := newMemRepo()
	cfg := testCollectorConfig("A")
	name := cfg.withDefaults().ArtifactName("A", domain.VariantStandard, businessDate)
	repo.put("A", name,
		navCSV("2025-03-21", "KEEP", "EXCL", "OTHER")+
			"LATE,1.0,2025-03-22,Daily,\n"+
			",2.0,2025-03-21,Daily,\n"+
			"NONAV,,2025-03-21,Daily,\n")

	target := domain.Target{IDs: domain.NewIDSet("KEEP", "EXCL", "LATE", "NONAV")}
	res, err := NewCollector(repo, cfg, quietLogger()).
		Collect(context.Background(), businessDate, target, domain.NewIDSet("EXCL"), nil)

	require.NoError(t, err)
	require.Len(t, res.Batches, 1)
	require.Len(t, res.Batches[0].Records, 1)
	assert.Equal(t, "KEEP", res.Batches[0].Records[0].ISIN)
}

func TestCollectZeroRowsAfterFilterIsEmptyNotMissing(t *testing.T) {
	repo := newMemRepo()
	cfg := testCollectorConfig("A")
	repo.put("A", cfg.withDefaults().ArtifactName("A", domain.VariantStandard, businessDate),
		navCSV("2025-03-21", "XS1"))

	res, err := NewCollector(repo, cfg, quietLogger()).
		Collect(context.Background(), businessDate, domain.Target{IDs: domain.NewIDSet()}, nil, nil)

	require.ErrorIs(t, err, domain.ErrFatalEmpty)
	assert.Empty(t, res.Missing)
	assert.Equal(t, domain.OutcomeEmpty, res.Outcomes[0].Kind)
}

func TestCollectVariantFilterRestrictsMatrix(t *testing.T) {
	repo := newMemRepo()
	cfg := testCollectorConfig("A")
	full := cfg.withDefaults()
	repo.put("A", full.ArtifactName("A", domain.VariantStandard, businessDate), navCSV("2025-03-21", "S1"))
	repo.put("A", full.ArtifactName("A", domain.VariantHybrid, businessDate), navCSV("2025-03-21", "H1"))

	hybrid := domain.VariantHybrid
	res, err := NewCollector(repo, cfg, quietLogger()).
		Collect(context.Background(), businessDate, domain.Target{All: true}, nil, &hybrid)

	require.NoError(t, err)
	require.Len(t, res.Batches, 1)
	assert.Equal(t, "H1", res.Batches[0].Records[0].ISIN)
	assert.Len(t, repo.fetched, 1)
}

func TestCollectTransientIsolatedPerSource(t *testing.T) {
	repo := newMemRepo()
	cfg := testCollectorConfig("A", "B")
	repo.put("A", cfg.withDefaults().ArtifactName("A", domain.VariantStandard, businessDate), navCSV("2025-03-21", "XS1"))
	repo.broken["B"] = true
	sink := &memSink{}

	res, err := NewCollector(repo, cfg, quietLogger(), WithArtifactSink(sink)).
		Collect(context.Background(), businessDate, domain.Target{All: true}, nil, nil)

	require.NoError(t, err)
	assert.Len(t, res.Batches, 1)
	assert.Equal(t, []string{"B"}, res.Failed)
	assert.Empty(t, res.Missing)
	require.Len(t, sink.artifacts, 1)
	assert.Equal(t, "A", sink.artifacts[0].Source)
	assert.Equal(t, businessDate, sink.artifacts[0].Period)
}

// slowRepo blocks until the fetch context ends.
type slowRepo struct{}

func (slowRepo) Fetch(ctx context.Context, _, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCollectFetchTimeoutIsTransient(t *testing.T) {
	cfg := CollectorConfig{Sources: []string{"A"}, MaxInFlight: 3, FetchTimeout: 20 * time.Millisecond}

	res, err := NewCollector(slowRepo{}, cfg, quietLogger()).
		Collect(context.Background(), businessDate, domain.Target{All: true}, nil, nil)

	require.ErrorIs(t, err, domain.ErrFatalEmpty)
	assert.Equal(t, []string{"A"}, res.Failed)
	for _, o := range res.Outcomes {
		assert.Equal(t, domain.OutcomeTransient, o.Kind)
		assert.True(t, errors.Is(o.Err, context.DeadlineExceeded))
	}
}

func TestCollectCancelledRunStartsNoFetches(t *testing.T) {
	repo := newMemRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewCollector(repo, testCollectorConfig("A"), quietLogger()).
		Collect(ctx, businessDate, domain.Target{All: true}, nil, nil)

	require.ErrorIs(t, err, domain.ErrFatalEmpty)
	assert.Empty(t, repo.fetched)
	assert.Equal(t, []string{"A"}, res.Failed)
}

// countingRepo records the peak number of concurrent fetches.
type countingRepo struct {
	*memRepo
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (r *countingRepo) Fetch(ctx context.Context, source, artifact string) ([]byte, error) {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return r.memRepo.Fetch(ctx, source, artifact)
}

func TestCollectRespectsMaxInFlight(t *testing.T) {
	sources := []string{"A", "B", "C", "D"}
	cfg := testCollectorConfig(sources...)
	repo := &countingRepo{memRepo: newMemRepo()}
	for _, src := range sources {
		repo.put(src, cfg.withDefaults().ArtifactName(src, domain.VariantStandard, businessDate),
			navCSV("03/21/2025", "XS"+src))
	}

	res, err := NewCollector(repo, cfg, quietLogger()).
		Collect(context.Background(), businessDate, domain.Target{All: true}, nil, nil)

	require.NoError(t, err)
	assert.Len(t, res.Batches, 4)
	assert.Len(t, repo.fetched, 12)
	assert.LessOrEqual(t, repo.peak.Load(), int32(cfg.MaxInFlight))
	assert.Greater(t, repo.peak.Load(), int32(1))
}
