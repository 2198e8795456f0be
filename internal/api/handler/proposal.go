package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/threadscribe/threadscribe/internal/store"
	"github.com/threadscribe/threadscribe/pkg/apierr"
	"github.com/threadscribe/threadscribe/pkg/models"
)

type ProposalHandler struct {
	logger *slog.Logger
	store  *store.Store
}

func NewProposalHandler(logger *slog.Logger, s *store.Store) *ProposalHandler {
	return &ProposalHandler{logger: logger, store: s}
}

// List handles GET /api/v1/proposals?status=open&limit=20&offset=0
func (h *ProposalHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	status := r.URL.Query().Get("status")

	proposals, err := h.store.ListProposals(r.Context(), status, limit, offset)
	if err != nil {
		writeAPIError(w, h.logger, apierr.ProposalListFailed(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"proposals": proposals,
		"limit":     limit,
		"offset":    offset,
	})
}

type updateProposalRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /api/v1/proposals/{id} to accept or reject a
// proposal after human review.
func (h *ProposalHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeAPIError(w, h.logger, apierr.InvalidID("proposal"))
		return
	}

	var req updateProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}

	status := models.ProposalStatus(req.Status)
	switch status {
	case models.ProposalOpen, models.ProposalAccepted, models.ProposalRejected:
	default:
		writeAPIError(w, h.logger, apierr.InvalidProposalState())
		return
	}

	if err := h.store.UpdateProposalStatus(r.Context(), id, status); err != nil {
		if apierr.IsNotFound(err) {
			writeAPIError(w, h.logger, apierr.ProposalNotFound())
			return
		}
		writeAPIError(w, h.logger, apierr.ProposalUpdateFailed(err))
		return
	}

	h.logger.Info("proposal status updated",
		slog.String("proposal_id", id.String()),
		slog.String("status", string(status)))

	writeJSON(w, http.StatusOK, map[string]string{
		"id":     id.String(),
		"status": string(status),
	})
}
