package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/threadscribe/threadscribe/internal/pipeline"
	"github.com/threadscribe/threadscribe/pkg/models"
)

// Classify groups filtered messages into conversation threads via an LLM
// JSON request. Reads FilteredMessages, writes Threads.
type Classify struct {
	id      string
	timeout time.Duration
	deps    pipeline.StepDeps
}

func NewClassify(cfg pipeline.StepConfig, deps pipeline.StepDeps) *Classify {
	return &Classify{id: cfg.ID, timeout: cfgTimeout(cfg.Config), deps: deps}
}

func (s *Classify) ID() string              { return s.id }
func (s *Classify) Type() pipeline.StepType { return pipeline.StepClassify }

type threadPayload struct {
	Category    string   `json:"category"`
	Summary     string   `json:"summary"`
	MessageIDs  []string `json:"message_ids"`
	SearchTerms []string `json:"search_terms"`
}

func (s *Classify) Execute(ctx context.Context, pc *pipeline.Context) error {
	prompt, err := s.deps.Prompts.Render("classify", map[string]any{
		"Messages": pc.FilteredMessages,
	})
	if err != nil {
		return err
	}

	req := pipeline.LLMRequest{
		Prompt:  prompt,
		Timeout: s.timeout,
	}
	var payload []threadPayload
	if err := s.deps.LLM.RequestJSON(ctx, req, &payload); err != nil {
		return fmt.Errorf("classify request: %w", err)
	}
	pc.Metrics.LLMCalls++
	pc.Metrics.EstimatedCost += s.deps.LLM.EstimateCost(req)

	known := make(map[uuid.UUID]bool, len(pc.FilteredMessages))
	for _, m := range pc.FilteredMessages {
		known[m.ID] = true
	}

	threads := make([]models.ConversationThread, 0, len(payload))
	for _, t := range payload {
		ids := make([]uuid.UUID, 0, len(t.MessageIDs))
		for _, raw := range t.MessageIDs {
			id, err := uuid.Parse(raw)
			if err != nil || !known[id] {
				continue // hallucinated or out-of-batch message id
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			continue
		}
		threads = append(threads, models.ConversationThread{
			ID:          uuid.NewString(),
			Category:    t.Category,
			Summary:     t.Summary,
			MessageIDs:  ids,
			SearchTerms: t.SearchTerms,
		})
	}
	pc.Threads = threads
	return nil
}
