package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/threadscribe/threadscribe/internal/pipeline"
	"github.com/threadscribe/threadscribe/pkg/models"
)

// Generate asks the LLM for documentation-change proposals per thread.
// Reads Threads and RagResults, writes Proposals keyed by thread ID.
type Generate struct {
	id      string
	timeout time.Duration
	deps    pipeline.StepDeps
}

func NewGenerate(cfg pipeline.StepConfig, deps pipeline.StepDeps) *Generate {
	return &Generate{id: cfg.ID, timeout: cfgTimeout(cfg.Config), deps: deps}
}

func (s *Generate) ID() string              { return s.id }
func (s *Generate) Type() pipeline.StepType { return pipeline.StepGenerate }

type proposalPayload struct {
	UpdateType    string `json:"update_type"`
	Page          string `json:"page"`
	Section       string `json:"section"`
	SuggestedText string `json:"suggested_text"`
	Reasoning     string `json:"reasoning"`
}

func (s *Generate) Execute(ctx context.Context, pc *pipeline.Context) error {
	byID := make(map[uuid.UUID]models.UnifiedMessage, len(pc.FilteredMessages))
	for _, m := range pc.FilteredMessages {
		byID[m.ID] = m
	}

	for _, t := range pc.Threads {
		msgs := make([]models.UnifiedMessage, 0, len(t.MessageIDs))
		for _, id := range t.MessageIDs {
			if m, ok := byID[id]; ok {
				msgs = append(msgs, m)
			}
		}

		prompt, err := s.deps.Prompts.Render("generate", map[string]any{
			"Category":  t.Category,
			"Summary":   t.Summary,
			"Messages":  msgs,
			"Documents": pc.RagResults[t.ID],
		})
		if err != nil {
			return err
		}

		req := pipeline.LLMRequest{
			Prompt:  prompt,
			Timeout: s.timeout,
		}
		var payload []proposalPayload
		if err := s.deps.LLM.RequestJSON(ctx, req, &payload); err != nil {
			return fmt.Errorf("generate for thread %s: %w", t.ID, err)
		}
		pc.Metrics.LLMCalls++
		pc.Metrics.EstimatedCost += s.deps.LLM.EstimateCost(req)

		proposals := make([]models.Proposal, 0, len(payload))
		for _, p := range payload {
			proposals = append(proposals, models.Proposal{
				ID:             uuid.New(),
				ThreadID:       t.ID,
				UpdateType:     parseUpdateType(p.UpdateType),
				Page:           p.Page,
				Section:        p.Section,
				SuggestedText:  p.SuggestedText,
				Reasoning:      p.Reasoning,
				SourceMessages: t.MessageIDs,
			})
		}
		pc.Proposals[t.ID] = proposals
	}
	return nil
}

func parseUpdateType(s string) models.UpdateType {
	switch models.UpdateType(s) {
	case models.UpdateInsert, models.UpdateUpdate, models.UpdateDelete:
		return models.UpdateType(s)
	default:
		return models.UpdateNone
	}
}
