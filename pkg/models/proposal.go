package models

import (
	"time"

	"github.com/google/uuid"
)

// UpdateType classifies what a proposal wants to do to a documentation page.
type UpdateType string

const (
	UpdateInsert UpdateType = "insert"
	UpdateUpdate UpdateType = "update"
	UpdateDelete UpdateType = "delete"
	UpdateNone   UpdateType = "none"
)

// ProposalStatus is the human-review state of a persisted proposal.
type ProposalStatus string

const (
	ProposalOpen     ProposalStatus = "open"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
)

// Proposal is a candidate documentation change produced by the pipeline.
// Proposals are keyed by conversation thread inside a batch and persisted
// once the batch commits.
type Proposal struct {
	ID             uuid.UUID      `json:"id"`
	StreamID       string         `json:"stream_id"`
	ThreadID       string         `json:"thread_id"`
	UpdateType     UpdateType     `json:"update_type"`
	Page           string         `json:"page"`
	Section        string         `json:"section,omitempty"`
	SuggestedText  string         `json:"suggested_text,omitempty"`
	Reasoning      string         `json:"reasoning"`
	SourceMessages []uuid.UUID    `json:"source_messages"`
	BatchEnd       time.Time      `json:"batch_end"`
	Status         ProposalStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ConversationThread is a derived grouping of batch messages produced by the
// classify step. Threads live only inside one pipeline context; they are
// never persisted.
type ConversationThread struct {
	ID          string      `json:"id"`
	Category    string      `json:"category"`
	Summary     string      `json:"summary"`
	MessageIDs  []uuid.UUID `json:"message_ids"`
	SearchTerms []string    `json:"search_terms"`
}

// RagDocument is a documentation-corpus entry returned by similarity search.
type RagDocument struct {
	ID      uuid.UUID `json:"id"`
	Page    string    `json:"page"`
	Section string    `json:"section,omitempty"`
	Content string    `json:"content"`
	Score   float64   `json:"score"`
}
