package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/threadscribe/threadscribe/internal/pipeline"
	"github.com/threadscribe/threadscribe/pkg/models"
)

// Condense merges proposals that target the same page and section across
// threads, so reviewers see one change per location instead of near
// duplicates. When an LLM is available the merged text is rewritten;
// otherwise the longest suggestion wins. Reads and rewrites Proposals.
type Condense struct {
	id      string
	timeout time.Duration
	deps    pipeline.StepDeps
}

func NewCondense(cfg pipeline.StepConfig, deps pipeline.StepDeps) *Condense {
	return &Condense{id: cfg.ID, timeout: cfgTimeout(cfg.Config), deps: deps}
}

func (s *Condense) ID() string              { return s.id }
func (s *Condense) Type() pipeline.StepType { return pipeline.StepCondense }

type condensedPayload struct {
	SuggestedText string `json:"suggested_text"`
	Reasoning     string `json:"reasoning"`
}

func (s *Condense) Execute(ctx context.Context, pc *pipeline.Context) error {
	type key struct{ page, section string }

	groups := make(map[key][]models.Proposal)
	var order []key
	for _, t := range pc.Threads {
		for _, p := range pc.Proposals[t.ID] {
			k := key{p.Page, p.Section}
			if _, seen := groups[k]; !seen {
				order = append(order, k)
			}
			groups[k] = append(groups[k], p)
		}
	}

	merged := make(map[string][]models.Proposal)
	for _, k := range order {
		group := groups[k]
		if len(group) == 1 {
			p := group[0]
			merged[p.ThreadID] = append(merged[p.ThreadID], p)
			continue
		}

		m, err := s.merge(ctx, pc, group)
		if err != nil {
			return err
		}
		merged[m.ThreadID] = append(merged[m.ThreadID], m)
	}
	pc.Proposals = merged
	return nil
}

// merge collapses a duplicate group into one proposal carrying the union of
// source messages.
func (s *Condense) merge(ctx context.Context, pc *pipeline.Context, group []models.Proposal) (models.Proposal, error) {
	out := group[0]
	seen := make(map[string]bool)
	out.SourceMessages = nil
	for _, p := range group {
		for _, id := range p.SourceMessages {
			if !seen[id.String()] {
				seen[id.String()] = true
				out.SourceMessages = append(out.SourceMessages, id)
			}
		}
		if len(p.SuggestedText) > len(out.SuggestedText) {
			out.SuggestedText = p.SuggestedText
		}
		// A concrete change beats a none from another thread.
		if out.UpdateType == models.UpdateNone && p.UpdateType != models.UpdateNone {
			out.UpdateType = p.UpdateType
		}
	}

	if s.deps.LLM == nil || s.deps.Prompts == nil {
		return out, nil
	}

	prompt, err := s.deps.Prompts.Render("condense", map[string]any{"Proposals": group})
	if err != nil {
		return models.Proposal{}, err
	}
	req := pipeline.LLMRequest{
		Prompt:  prompt,
		Timeout: s.timeout,
	}
	var payload condensedPayload
	if err := s.deps.LLM.RequestJSON(ctx, req, &payload); err != nil {
		return models.Proposal{}, fmt.Errorf("condense %s/%s: %w", out.Page, out.Section, err)
	}
	pc.Metrics.LLMCalls++
	pc.Metrics.EstimatedCost += s.deps.LLM.EstimateCost(req)
	if payload.SuggestedText != "" {
		out.SuggestedText = payload.SuggestedText
	}
	if payload.Reasoning != "" {
		out.Reasoning = payload.Reasoning
	}
	return out, nil
}
