package steps

import (
	"context"
	"strings"

	"github.com/threadscribe/threadscribe/internal/pipeline"
	"github.com/threadscribe/threadscribe/pkg/models"
)

// Validate applies structural rules to generated proposals: a proposal
// missing a target page is dropped, an insert/update without suggested text
// or a delete without reasoning is downgraded to none. Reads and rewrites
// Proposals in place.
type Validate struct {
	id string
}

func NewValidate(cfg pipeline.StepConfig) *Validate {
	return &Validate{id: cfg.ID}
}

func (s *Validate) ID() string              { return s.id }
func (s *Validate) Type() pipeline.StepType { return pipeline.StepValidate }

func (s *Validate) Execute(_ context.Context, pc *pipeline.Context) error {
	for tid, proposals := range pc.Proposals {
		kept := make([]models.Proposal, 0, len(proposals))
		for _, p := range proposals {
			if strings.TrimSpace(p.Page) == "" {
				continue
			}
			kept = append(kept, s.check(p))
		}
		pc.Proposals[tid] = kept
	}
	return nil
}

func (s *Validate) check(p models.Proposal) models.Proposal {
	switch p.UpdateType {
	case models.UpdateInsert, models.UpdateUpdate:
		if strings.TrimSpace(p.SuggestedText) == "" {
			p.UpdateType = models.UpdateNone
		}
	case models.UpdateDelete:
		if strings.TrimSpace(p.Reasoning) == "" {
			p.UpdateType = models.UpdateNone
		}
	}
	return p
}
