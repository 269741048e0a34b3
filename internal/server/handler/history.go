package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// HistoryReader pages through the ledger.
type HistoryReader interface {
	History(ctx context.Context, q domain.HistoryQuery) (domain.HistoryPage, error)
}

// HistoryEntry is the wire form of one ledger row.
type HistoryEntry struct {
	ISIN             string  `json:"isin"`
	SeriesNumber     *string `json:"series_number"`
	NAVDate          string  `json:"nav_date"`
	NAV              string  `json:"nav"`
	Emitter          string  `json:"emitter"`
	DistributionType string  `json:"distribution_type"`
}

// HistoryResponse is one page of ledger history.
type HistoryResponse struct {
	Entries    []HistoryEntry `json:"entries"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	Total      int64          `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// NewHistoryResponse renders page as requested by q.
func NewHistoryResponse(q domain.HistoryQuery, page domain.HistoryPage) HistoryResponse {
	out := HistoryResponse{
		Entries:    make([]HistoryEntry, 0, len(page.Entries)),
		Page:       q.Page,
		PerPage:    q.PerPage,
		Total:      page.Total,
		TotalPages: page.TotalPages,
	}
	for _, e := range page.Entries {
		out.Entries = append(out.Entries, HistoryEntry{
			ISIN:             e.ISIN,
			SeriesNumber:     e.SeriesNumber,
			NAVDate:          e.NAVDate.Format(dateLayout),
			NAV:              e.NAV.String(),
			Emitter:          e.Emitter,
			DistributionType: e.DistributionType,
		})
	}
	return out
}

// HistoryHandler serves ledger history.
type HistoryHandler struct {
	ledger HistoryReader
	logger *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler over ledger.
func NewHistoryHandler(ledger HistoryReader, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{ledger: ledger, logger: logHandler(logger, "history")}
}

// ListHistory returns a page of NAV history, newest first.
// GET /api/nav/history?isin=&series_number=&from=&to=&page=&per_page=
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	q, err := ParseHistoryQuery(r.URL.Query().Get)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.ledger.History(r.Context(), q)
	if err != nil {
		h.logger.Error("history query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, NewHistoryResponse(q, page))
}
