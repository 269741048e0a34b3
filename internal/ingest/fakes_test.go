package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/alanyoungcy/navledger/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memCatalog struct {
	entries map[string]domain.CatalogEntry
}

func newMemCatalog(entries ...domain.CatalogEntry) *memCatalog {
	c := &memCatalog{entries: map[string]domain.CatalogEntry{}}
	for _, e := range entries {
		c.entries[e.ISIN] = e
	}
	return c
}

func (c *memCatalog) LookupByIDs(_ context.Context, ids []string) (map[string]domain.CatalogEntry, error) {
	out := map[string]domain.CatalogEntry{}
	for _, id := range ids {
		if e, ok := c.entries[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (c *memCatalog) IDsByFrequency(_ context.Context, freq string) ([]string, error) {
	return c.filter(func(e domain.CatalogEntry) bool {
		return e.Status == domain.StatusActive && strings.EqualFold(string(e.Frequency), freq)
	}), nil
}

func (c *memCatalog) IDsByProductType(_ context.Context, pt string) ([]string, error) {
	return c.filter(func(e domain.CatalogEntry) bool {
		return e.Status == domain.StatusActive &&
			strings.Contains(strings.ToLower(e.ProductType), strings.ToLower(pt))
	}), nil
}

func (c *memCatalog) ValidIDs(_ context.Context, statuses []domain.SeriesStatus) ([]string, error) {
	return c.filter(func(e domain.CatalogEntry) bool {
		for _, s := range statuses {
			if e.Status == s {
				return true
			}
		}
		return false
	}), nil
}

func (c *memCatalog) filter(keep func(domain.CatalogEntry) bool) []string {
	var ids []string
	for id, e := range c.entries {
		if keep(e) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// memLedger enforces the (isin, nav_date) uniqueness rule like the real
// table does.
type memLedger struct {
	mu       sync.Mutex
	rows     map[domain.LedgerKey]domain.LedgerEntry
	failBulk error
	failRow  map[string]error // by isin
	bulkCall int
}

func newMemLedger() *memLedger {
	return &memLedger{rows: map[domain.LedgerKey]domain.LedgerEntry{}}
}

func (l *memLedger) ExistingKeys(context.Context) (map[domain.LedgerKey]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[domain.LedgerKey]struct{}, len(l.rows))
	for k := range l.rows {
		out[k] = struct{}{}
	}
	return out, nil
}

func (l *memLedger) BulkInsert(_ context.Context, entries []domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bulkCall++
	if l.failBulk != nil {
		return l.failBulk
	}
	for _, e := range entries {
		if _, ok := l.rows[e.Key()]; ok {
			return fmt.Errorf("bulk: %w", domain.ErrConstraintViolation)
		}
	}
	for _, e := range entries {
		l.rows[e.Key()] = e
	}
	return nil
}

func (l *memLedger) InsertOne(_ context.Context, e domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failRow[e.ISIN]; err != nil {
		return err
	}
	if _, ok := l.rows[e.Key()]; ok {
		return fmt.Errorf("row: %w", domain.ErrConstraintViolation)
	}
	l.rows[e.Key()] = e
	return nil
}

func (l *memLedger) UpdateGroupingKey(_ context.Context, isin, series string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for k, e := range l.rows {
		if e.ISIN == isin && e.SeriesNumber == nil {
			s := series
			e.SeriesNumber = &s
			l.rows[k] = e
			n++
		}
	}
	return n, nil
}

func (l *memLedger) ISINsMissingGroupingKey(context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := domain.NewIDSet()
	for _, e := range l.rows {
		if e.SeriesNumber == nil {
			set.Add(e.ISIN)
		}
	}
	var out []string
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (l *memLedger) History(context.Context, domain.HistoryQuery) (domain.HistoryPage, error) {
	return domain.HistoryPage{}, errors.New("not implemented")
}

// insert stores a row directly, bypassing the snapshot, to simulate a
// concurrent writer.
func (l *memLedger) insert(e domain.LedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows[e.Key()] = e
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

// memRepo serves artifacts keyed by "source/artifact". Sources listed in
// broken fail with a transport error.
type memRepo struct {
	mu      sync.Mutex
	files   map[string][]byte
	broken  map[string]bool
	fetched []string
}

func newMemRepo() *memRepo {
	return &memRepo{files: map[string][]byte{}, broken: map[string]bool{}}
}

func (r *memRepo) put(source, artifact, body string) {
	r.files[source+"/"+artifact] = []byte(body)
}

func (r *memRepo) Fetch(ctx context.Context, source, artifact string) ([]byte, error) {
	r.mu.Lock()
	r.fetched = append(r.fetched, source+"/"+artifact)
	r.mu.Unlock()

	if r.broken[source] {
		return nil, fmt.Errorf("dial %s: connection refused", source)
	}
	data, ok := r.files[source+"/"+artifact]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", artifact, domain.ErrNotFound)
	}
	return data, nil
}

type memSink struct {
	mu        sync.Mutex
	artifacts []domain.Artifact
}

func (s *memSink) Submit(_ context.Context, a domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, a)
	return nil
}
