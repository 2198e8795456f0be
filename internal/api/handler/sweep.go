package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/threadscribe/threadscribe/internal/ingest"
	"github.com/threadscribe/threadscribe/pkg/apierr"
)

type SweepHandler struct {
	logger   *slog.Logger
	producer *ingest.Producer
}

func NewSweepHandler(logger *slog.Logger, producer *ingest.Producer) *SweepHandler {
	return &SweepHandler{logger: logger, producer: producer}
}

type triggerSweepRequest struct {
	StreamID string `json:"stream_id,omitempty"`
}

// Trigger handles POST /api/v1/sweeps. It asks the worker to run one
// scheduling sweep outside the regular interval.
func (h *SweepHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerSweepRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIError(w, h.logger, apierr.InvalidRequestBody())
			return
		}
	}

	id, err := h.producer.EnqueueSweep(r.Context(), ingest.SweepRequest{
		StreamID:    req.StreamID,
		RequestedBy: "api",
	})
	if err != nil {
		writeAPIError(w, h.logger, apierr.SweepEnqueueFailed(err))
		return
	}

	h.logger.Info("sweep requested", slog.String("stream_id", req.StreamID))

	writeJSON(w, http.StatusAccepted, map[string]string{
		"queued_id": id,
	})
}
