package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/threadscribe/threadscribe/pkg/apierr"
)

func patchProposal(t *testing.T, id string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	ph := &ProposalHandler{}
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/proposals/"+id, bytes.NewReader(body))

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	ph.UpdateStatus(w, req)
	return w
}

func TestProposalHandler_UpdateStatus_InvalidID(t *testing.T) {
	w := patchProposal(t, "not-a-uuid", []byte(`{"status": "accepted"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != apierr.CodeInvalidID {
		t.Errorf("expected code %s, got %s", apierr.CodeInvalidID, resp.Error.Code)
	}
}

func TestProposalHandler_UpdateStatus_InvalidBody(t *testing.T) {
	w := patchProposal(t, uuid.NewString(), []byte("nope"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != apierr.CodeInvalidRequestBody {
		t.Errorf("expected code %s, got %s", apierr.CodeInvalidRequestBody, resp.Error.Code)
	}
}

func TestProposalHandler_UpdateStatus_InvalidStatus(t *testing.T) {
	body, _ := json.Marshal(map[string]string{"status": "maybe-later"})
	w := patchProposal(t, uuid.NewString(), body)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != apierr.CodeInvalidProposalState {
		t.Errorf("expected code %s, got %s", apierr.CodeInvalidProposalState, resp.Error.Code)
	}
}
