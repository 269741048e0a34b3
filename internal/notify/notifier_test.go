package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/navledger/internal/domain"
)

type captureSender struct {
	name   string
	err    error
	titles []string
	bodies []string
}

func (c *captureSender) Send(_ context.Context, title, message string) error {
	c.titles = append(c.titles, title)
	c.bodies = append(c.bodies, message)
	return c.err
}

func (c *captureSender) Name() string { return c.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleReport() domain.RunReport {
	start := time.Date(2025, 3, 21, 18, 30, 0, 0, time.UTC)
	return domain.RunReport{
		RunID:          "run-1",
		Period:         time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC),
		Filter:         "daily",
		Added:          40,
		Duplicates:     2,
		Sources:        []string{"HFMX", "CIX"},
		SourcesMissing: []string{"IACAP"},
		SourcesFailed:  []string{"DCXPD"},
		Succeeded:      true,
		StartedAt:      start,
		FinishedAt:     start.Add(1500 * time.Millisecond),
	}
}

func TestReportEvent(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, EventRunSucceeded, ReportEvent(r))

	r.PersistenceDegraded = true
	assert.Equal(t, EventPersistenceDegraded, ReportEvent(r))

	r.Succeeded = false
	assert.Equal(t, EventRunFailed, ReportEvent(r))
}

func TestFormatReport(t *testing.T) {
	body := FormatReport(sampleReport())

	assert.Contains(t, body, "Added: 40, duplicates: 2, invalid: 0")
	assert.Contains(t, body, "Not published: IACAP")
	assert.Contains(t, body, "Unreachable: DCXPD")
	assert.Contains(t, body, "Run: run-1 (1.5s)")
	assert.NotContains(t, body, "Error:")
}

func TestDistributeFiltersEvents(t *testing.T) {
	s := &captureSender{name: "capture"}
	n := NewNotifier([]Sender{s}, []string{EventRunFailed}, quietLogger())

	require.NoError(t, n.Distribute(context.Background(), sampleReport()))
	assert.Empty(t, s.titles)

	failed := sampleReport()
	failed.Succeeded = false
	failed.Error = "no records collected from any source"
	require.NoError(t, n.Distribute(context.Background(), failed))
	require.Len(t, s.titles, 1)
	assert.Equal(t, "NAV ingestion failed for 2025-03-21", s.titles[0])
	assert.Contains(t, s.bodies[0], "Error: no records collected")
}

func TestDispatchContinuesPastFailingSender(t *testing.T) {
	bad := &captureSender{name: "bad", err: errors.New("boom")}
	good := &captureSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quietLogger())

	err := n.Distribute(context.Background(), sampleReport())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.titles, 1)
}

func TestDiscordSenderPostsEmbed(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "NAV ingestion degraded for 2025-03-21", "body")

	require.NoError(t, err)
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, discordColorWarn, got.Embeds[0].Color)
	assert.Contains(t, got.Embeds[0].Description, "body")
}

func TestTelegramSenderEscapesHTML(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "a<b", "x & y"))

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "<b>a&lt;b</b>\n<pre>x &amp; y</pre>", got["text"])
}

func TestTelegramSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	err := s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
