package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/threadscribe/threadscribe/internal/ingest"
	"github.com/threadscribe/threadscribe/pkg/apierr"
)

type MessageHandler struct {
	logger   *slog.Logger
	producer *ingest.Producer
}

func NewMessageHandler(logger *slog.Logger, producer *ingest.Producer) *MessageHandler {
	return &MessageHandler{logger: logger, producer: producer}
}

type ingestMessageRequest struct {
	StreamID   string    `json:"stream_id"`
	ExternalID string    `json:"external_id"`
	Timestamp  time.Time `json:"timestamp"`
	Author     string    `json:"author"`
	Content    string    `json:"content"`
}

// Ingest handles POST /api/v1/messages. The message is enqueued for the
// worker; persistence and scheduling happen asynchronously.
func (h *MessageHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}

	if req.StreamID == "" {
		writeAPIError(w, h.logger, apierr.MessageInvalid("stream_id is required"))
		return
	}
	if req.ExternalID == "" {
		writeAPIError(w, h.logger, apierr.MessageInvalid("external_id is required"))
		return
	}
	if req.Timestamp.IsZero() {
		writeAPIError(w, h.logger, apierr.MessageInvalid("timestamp is required"))
		return
	}

	id, err := h.producer.EnqueueMessage(r.Context(), ingest.InboundMessage{
		StreamID:   req.StreamID,
		ExternalID: req.ExternalID,
		Timestamp:  req.Timestamp.UTC(),
		Author:     req.Author,
		Content:    req.Content,
	})
	if err != nil {
		writeAPIError(w, h.logger, apierr.MessageEnqueueFailed(err))
		return
	}

	h.logger.Info("message enqueued",
		slog.String("stream_id", req.StreamID),
		slog.String("external_id", req.ExternalID))

	writeJSON(w, http.StatusAccepted, map[string]string{
		"queued_id": id,
	})
}
