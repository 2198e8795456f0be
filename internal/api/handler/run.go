package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/threadscribe/threadscribe/internal/store"
	"github.com/threadscribe/threadscribe/pkg/apierr"
)

type RunHandler struct {
	logger *slog.Logger
	store  *store.Store
}

func NewRunHandler(logger *slog.Logger, s *store.Store) *RunHandler {
	return &RunHandler{logger: logger, store: s}
}

// List handles GET /api/v1/runs?stream_id=...&limit=20&offset=0
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	streamID := r.URL.Query().Get("stream_id")

	runs, err := h.store.ListPipelineRuns(r.Context(), streamID, limit, offset)
	if err != nil {
		writeAPIError(w, h.logger, apierr.RunListFailed(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	})
}
