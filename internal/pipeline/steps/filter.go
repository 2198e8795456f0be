package steps

import (
	"context"
	"strings"

	"github.com/threadscribe/threadscribe/internal/pipeline"
	"github.com/threadscribe/threadscribe/pkg/models"
)

// Filter drops noise before any LLM work: short messages, bot commands,
// ignored authors. Reads Messages, writes FilteredMessages.
//
// Config keys: min_length (int), ignore_authors ([]string),
// drop_prefixes ([]string, defaults to "!" and "/").
type Filter struct {
	id            string
	minLength     int
	ignoreAuthors map[string]bool
	dropPrefixes  []string
}

func NewFilter(cfg pipeline.StepConfig) *Filter {
	ignore := make(map[string]bool)
	for _, a := range cfgStrings(cfg.Config, "ignore_authors") {
		ignore[strings.ToLower(a)] = true
	}
	prefixes := cfgStrings(cfg.Config, "drop_prefixes")
	if prefixes == nil {
		prefixes = []string{"!", "/"}
	}
	return &Filter{
		id:            cfg.ID,
		minLength:     cfgInt(cfg.Config, "min_length", 8),
		ignoreAuthors: ignore,
		dropPrefixes:  prefixes,
	}
}

func (s *Filter) ID() string              { return s.id }
func (s *Filter) Type() pipeline.StepType { return pipeline.StepFilter }

func (s *Filter) Execute(_ context.Context, pc *pipeline.Context) error {
	kept := make([]models.UnifiedMessage, 0, len(pc.Messages))
	for _, m := range pc.Messages {
		if s.keep(m) {
			kept = append(kept, m)
		}
	}
	pc.FilteredMessages = kept
	return nil
}

func (s *Filter) keep(m models.UnifiedMessage) bool {
	content := strings.TrimSpace(m.Content)
	if len(content) < s.minLength {
		return false
	}
	if s.ignoreAuthors[strings.ToLower(m.Author)] {
		return false
	}
	for _, p := range s.dropPrefixes {
		if strings.HasPrefix(content, p) {
			return false
		}
	}
	return true
}
