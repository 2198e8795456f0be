package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/threadscribe/threadscribe/pkg/models"
)

// StepType identifies one stage of the analysis pipeline.
type StepType string

const (
	StepFilter   StepType = "filter"
	StepClassify StepType = "classify"
	StepEnrich   StepType = "enrich"
	StepGenerate StepType = "generate"
	StepValidate StepType = "validate"
	StepCondense StepType = "condense"
)

// StepStatus is the outcome recorded for one step of one run.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
)

// LLMRequest is a provider-agnostic chat request issued by steps.
type LLMRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// ModelInfo describes the LLM behind the handler.
type ModelInfo struct {
	Provider        string
	Model           string
	InputCostPer1K  float64
	OutputCostPer1K float64
}

// LLMHandler is the boundary to the language model. Failures return errors;
// RequestJSON only succeeds when the response unmarshals into out.
type LLMHandler interface {
	RequestJSON(ctx context.Context, req LLMRequest, out any) error
	RequestText(ctx context.Context, req LLMRequest) (string, error)
	ModelInfo() ModelInfo
	EstimateCost(req LLMRequest) float64
}

// RagService is the boundary to the documentation-corpus similarity search.
type RagService interface {
	SearchSimilarDocs(ctx context.Context, query string, topK int) ([]models.RagDocument, error)
}

// PromptRenderer resolves named prompt templates; content is opaque here.
type PromptRenderer interface {
	Render(name string, data any) (string, error)
}

// Services are the injected collaborators available to steps via the context.
type Services struct {
	LLM     LLMHandler
	RAG     RagService
	Prompts PromptRenderer
}

// Context is the single mutable object threaded through all steps of one
// batch. It is owned exclusively by one orchestrator invocation and must not
// be retained after Execute returns.
//
// Read/write ownership per step type:
//
//	filter:   reads Messages, writes FilteredMessages
//	classify: reads FilteredMessages, writes Threads
//	enrich:   reads Threads, writes RagResults
//	generate: reads Threads/RagResults, writes Proposals
//	validate: reads/rewrites Proposals
//	condense: reads/rewrites Proposals
type Context struct {
	BatchID    uuid.UUID
	StreamID   string
	BatchStart time.Time
	BatchEnd   time.Time

	// Input: the batch itself plus the prior window for continuity.
	// ContextMessages are read-only and never marked completed by this run.
	Messages        []models.UnifiedMessage
	ContextMessages []models.UnifiedMessage

	// Intermediate collections, populated stage by stage.
	FilteredMessages []models.UnifiedMessage
	Threads          []models.ConversationThread
	RagResults       map[string][]models.RagDocument
	Proposals        map[string][]models.Proposal

	// Accumulators.
	Errors  []Error
	Metrics Metrics

	Services Services
}

// NewContext builds a fresh per-batch context.
func NewContext(streamID string, start, end time.Time, batch, prior []models.UnifiedMessage, svcs Services) *Context {
	return &Context{
		BatchID:         uuid.New(),
		StreamID:        streamID,
		BatchStart:      start,
		BatchEnd:        end,
		Messages:        batch,
		ContextMessages: prior,
		RagResults:      make(map[string][]models.RagDocument),
		Proposals:       make(map[string][]models.Proposal),
		Metrics:         Metrics{StepDurations: make(map[string]time.Duration)},
		Services:        svcs,
	}
}

// ProposalCount totals proposals across all threads.
func (c *Context) ProposalCount() int {
	n := 0
	for _, ps := range c.Proposals {
		n += len(ps)
	}
	return n
}

// FlatProposals returns all proposals in deterministic thread order.
func (c *Context) FlatProposals() []models.Proposal {
	out := make([]models.Proposal, 0, c.ProposalCount())
	for _, t := range c.Threads {
		out = append(out, c.Proposals[t.ID]...)
	}
	// Proposals under thread IDs not present in Threads (e.g. after condense
	// merged across threads) still get persisted.
	seen := make(map[string]bool, len(c.Threads))
	for _, t := range c.Threads {
		seen[t.ID] = true
	}
	for tid, ps := range c.Proposals {
		if !seen[tid] {
			out = append(out, ps...)
		}
	}
	return out
}

// Metrics accumulates timing and cost observations across a run.
type Metrics struct {
	StepDurations map[string]time.Duration
	LLMCalls      int
	EstimatedCost float64
}

// Error records one failed step. Never silently dropped: appended to both
// the run result and the context.
type Error struct {
	StepID  string
	Message string
	Cause   error
	Context string
}

func (e Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("step %s: %s: %v", e.StepID, e.Message, e.Cause)
	}
	return fmt.Sprintf("step %s: %s", e.StepID, e.Message)
}

func (e Error) Unwrap() error { return e.Cause }

// StepResult is the recorded outcome of one step within a run.
type StepResult struct {
	StepID      string        `json:"step_id"`
	Type        StepType      `json:"type"`
	Status      StepStatus    `json:"status"`
	InputCount  int           `json:"input_count"`
	OutputCount int           `json:"output_count"`
	Duration    time.Duration `json:"duration_ns"`
	Summary     string        `json:"summary,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Result is the orchestrator's verdict for one batch. Success means zero
// unrecovered step errors; the scheduler commits a batch only on success.
type Result struct {
	Success            bool
	MessagesProcessed  int
	ThreadsCreated     int
	ProposalsGenerated int
	Errors             []Error
	Steps              []StepResult
	Metrics            Metrics
}
