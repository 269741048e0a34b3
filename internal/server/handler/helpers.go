package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/navledger/internal/domain"
)

const (
	defaultPerPage = 50
	maxPerPage     = 500
	dateLayout     = "2006-01-02"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ParseHistoryQuery extracts ledger history filters from query values.
// Dates use YYYY-MM-DD. Defaults: page=1, per_page=50 (max 500).
func ParseHistoryQuery(get func(string) string) (domain.HistoryQuery, error) {
	q := domain.HistoryQuery{
		ISIN:         strings.ToUpper(strings.TrimSpace(get("isin"))),
		SeriesNumber: strings.TrimSpace(get("series_number")),
		Page:         1,
		PerPage:      defaultPerPage,
	}

	if v := get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, fmt.Errorf("page must be a positive integer")
		}
		q.Page = n
	}
	if v := get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, fmt.Errorf("per_page must be a positive integer")
		}
		q.PerPage = min(n, maxPerPage)
	}

	var err error
	if q.From, err = parseDateParam(get("from"), "from"); err != nil {
		return q, err
	}
	if q.To, err = parseDateParam(get("to"), "to"); err != nil {
		return q, err
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return q, fmt.Errorf("to must not be before from")
	}
	return q, nil
}

func parseDateParam(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", name)
	}
	return &t, nil
}

// parseLimit reads the limit query parameter, clamped to [1, max].
func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
