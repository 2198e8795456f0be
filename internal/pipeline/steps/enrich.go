package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/threadscribe/threadscribe/internal/pipeline"
)

// Enrich attaches documentation context to each thread via similarity
// search. Reads Threads, writes RagResults.
//
// Config keys: top_k (int, default 5).
type Enrich struct {
	id   string
	topK int
	deps pipeline.StepDeps
}

func NewEnrich(cfg pipeline.StepConfig, deps pipeline.StepDeps) *Enrich {
	return &Enrich{id: cfg.ID, topK: cfgInt(cfg.Config, "top_k", 5), deps: deps}
}

func (s *Enrich) ID() string              { return s.id }
func (s *Enrich) Type() pipeline.StepType { return pipeline.StepEnrich }

func (s *Enrich) Execute(ctx context.Context, pc *pipeline.Context) error {
	if s.deps.RAG == nil {
		// No corpus configured; later steps see empty results and still run.
		return nil
	}
	for _, t := range pc.Threads {
		query := t.Summary
		if len(t.SearchTerms) > 0 {
			query += " " + strings.Join(t.SearchTerms, " ")
		}
		docs, err := s.deps.RAG.SearchSimilarDocs(ctx, query, s.topK)
		if err != nil {
			return fmt.Errorf("search docs for thread %s: %w", t.ID, err)
		}
		pc.RagResults[t.ID] = docs
	}
	return nil
}
