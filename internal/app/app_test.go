package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/navledger/internal/config"
	"github.com/alanyoungcy/navledger/internal/domain"
	"github.com/alanyoungcy/navledger/internal/server/handler"
)

type historyLedger struct {
	domain.LedgerStore
	got domain.HistoryQuery
}

func (l *historyLedger) History(_ context.Context, q domain.HistoryQuery) (domain.HistoryPage, error) {
	l.got = q
	return domain.HistoryPage{
		Entries: []domain.LedgerEntry{{
			ISIN:    "XS0000000001",
			NAVDate: time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
			NAV:     decimal.RequireFromString("99.5"),
			Emitter: "HFMX",
		}},
		Total:      1,
		TotalPages: 1,
	}, nil
}

func testApp(cfg config.Config, opts Options) *App {
	return New(&cfg, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestOnceRequestDefaults(t *testing.T) {
	cfg := config.Defaults()
	cfg.Schedule.Filter = "daily,loan"

	req, err := testApp(cfg, Options{}).onceRequest()
	require.NoError(t, err)
	assert.False(t, req.Period.IsZero())
	assert.Equal(t, []string{"daily", "loan"}, req.Filter.Tokens)
	assert.Nil(t, req.Variant)
}

func TestOnceRequestOverrides(t *testing.T) {
	period := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	req, err := testApp(config.Defaults(), Options{
		Period:          period,
		Filter:          "XS0000000001",
		Exclude:         []string{"XS0000000002"},
		Variant:         "hybrid",
		DistributionTag: "bloomberg",
	}).onceRequest()
	require.NoError(t, err)

	assert.Equal(t, period, req.Period)
	assert.Equal(t, []string{"XS0000000001"}, req.Filter.Tokens)
	assert.Equal(t, []string{"XS0000000002"}, req.Exclude)
	require.NotNil(t, req.Variant)
	assert.Equal(t, domain.VariantHybrid, *req.Variant)
	assert.Equal(t, "bloomberg", req.DistributionTag)
}

func TestOnceRequestRejectsUnknownVariant(t *testing.T) {
	_, err := testApp(config.Defaults(), Options{Variant: "equity"}).onceRequest()
	assert.ErrorContains(t, err, "unknown variant")
}

func TestHistoryModeWritesJSON(t *testing.T) {
	var out bytes.Buffer
	ledger := &historyLedger{}
	a := testApp(config.Defaults(), Options{
		History: domain.HistoryQuery{ISIN: "XS0000000001"},
		Out:     &out,
	})

	require.NoError(t, a.HistoryMode(context.Background(), &Dependencies{Ledger: ledger}))
	assert.Equal(t, 1, ledger.got.Page)
	assert.Equal(t, 50, ledger.got.PerPage)

	var resp handler.HistoryResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "99.5", resp.Entries[0].NAV)
	assert.Equal(t, "2024-03-14", resp.Entries[0].NAVDate)
}

func TestNeedsS3(t *testing.T) {
	assert.True(t, needsS3("once"))
	assert.True(t, needsS3("schedule"))
	assert.False(t, needsS3("history"))
	assert.False(t, needsS3("repair"))
}
