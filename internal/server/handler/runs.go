package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// RunLister returns recently distributed run reports, newest first.
type RunLister interface {
	Recent(ctx context.Context, count int64) ([]domain.RunReport, error)
}

// RunsHandler serves recent run reports.
type RunsHandler struct {
	runs   RunLister
	logger *slog.Logger
}

// NewRunsHandler creates a RunsHandler. A nil lister answers 404, which is
// the case when redis is disabled.
func NewRunsHandler(runs RunLister, logger *slog.Logger) *RunsHandler {
	return &RunsHandler{runs: runs, logger: logHandler(logger, "runs")}
}

// ListRecent returns the latest run reports.
// GET /api/runs/recent?limit=20
func (h *RunsHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "run history is not enabled")
		return
	}

	reports, err := h.runs.Recent(r.Context(), int64(parseLimit(r, 20, 200)))
	if err != nil {
		h.logger.Error("list runs failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load runs")
		return
	}
	if reports == nil {
		reports = []domain.RunReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": reports})
}
