package apierr

import "net/http"

// --- Common ---

func InvalidRequestBody() *Error {
	return New(CodeInvalidRequestBody, http.StatusBadRequest, "Invalid request body")
}

func InvalidID(entity string) *Error {
	return New(CodeInvalidID, http.StatusBadRequest, "Invalid "+entity+" ID")
}

func InternalError(cause error) *Error {
	return Wrap(CodeInternalError, http.StatusInternalServerError, "Internal server error", cause)
}

// --- Messages ---

func MessageInvalid(reason string) *Error {
	return New(CodeMessageInvalid, http.StatusBadRequest, reason)
}

func MessageEnqueueFailed(cause error) *Error {
	return Wrap(CodeMessageEnqueueFailed, http.StatusInternalServerError, "Failed to enqueue message", cause)
}

// --- Proposals ---

func ProposalNotFound() *Error {
	return New(CodeProposalNotFound, http.StatusNotFound, "Proposal not found")
}

func ProposalListFailed(cause error) *Error {
	return Wrap(CodeProposalListFailed, http.StatusInternalServerError, "Failed to list proposals", cause)
}

func ProposalUpdateFailed(cause error) *Error {
	return Wrap(CodeProposalUpdateFailed, http.StatusInternalServerError, "Failed to update proposal", cause)
}

func InvalidProposalState() *Error {
	return New(CodeInvalidProposalState, http.StatusBadRequest, "status must be one of: open, accepted, rejected")
}

// --- Pipeline runs ---

func RunListFailed(cause error) *Error {
	return Wrap(CodeRunListFailed, http.StatusInternalServerError, "Failed to list pipeline runs", cause)
}

func SweepEnqueueFailed(cause error) *Error {
	return Wrap(CodeSweepEnqueueFailed, http.StatusInternalServerError, "Failed to enqueue sweep", cause)
}

// --- Health ---

func DatabaseNotReady(cause error) *Error {
	return Wrap(CodeDatabaseNotReady, http.StatusServiceUnavailable, "Database not ready", cause)
}
