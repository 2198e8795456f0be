package apierr

// Code is a machine-readable error code returned in API responses.
type Code string

// Common errors.
const (
	CodeInvalidRequestBody Code = "INVALID_REQUEST_BODY"
	CodeInvalidID          Code = "INVALID_ID"
	CodeInternalError      Code = "INTERNAL_ERROR"
)

// Message ingestion errors.
const (
	CodeMessageInvalid       Code = "MESSAGE_INVALID"
	CodeMessageEnqueueFailed Code = "MESSAGE_ENQUEUE_FAILED"
)

// Proposal errors.
const (
	CodeProposalNotFound     Code = "PROPOSAL_NOT_FOUND"
	CodeProposalListFailed   Code = "PROPOSAL_LIST_FAILED"
	CodeProposalUpdateFailed Code = "PROPOSAL_UPDATE_FAILED"
	CodeInvalidProposalState Code = "INVALID_PROPOSAL_STATE"
)

// Pipeline run errors.
const (
	CodeRunListFailed      Code = "RUN_LIST_FAILED"
	CodeSweepEnqueueFailed Code = "SWEEP_ENQUEUE_FAILED"
)

// Health errors.
const (
	CodeDatabaseNotReady Code = "DATABASE_NOT_READY"
)
