package pipeline

import (
	"context"
	"fmt"
	"sort"
)

// Step is one stage of the pipeline. Execute mutates the shared context in
// place; the fields a step may touch are documented on Context.
type Step interface {
	ID() string
	Type() StepType
	Execute(ctx context.Context, pc *Context) error
}

// StepDeps are handed to step constructors alongside their config.
type StepDeps struct {
	LLM     LLMHandler
	RAG     RagService
	Prompts PromptRenderer
}

// CreateFunc builds a step from its declarative config.
type CreateFunc func(cfg StepConfig, deps StepDeps) (Step, error)

// Registry maps step types to constructors. New step types register here;
// the orchestrator never needs to change.
type Registry struct {
	creators map[StepType]CreateFunc
}

func NewRegistry() *Registry {
	return &Registry{creators: make(map[StepType]CreateFunc)}
}

func (r *Registry) Register(t StepType, create CreateFunc) {
	r.creators[t] = create
}

func (r *Registry) Has(t StepType) bool {
	_, ok := r.creators[t]
	return ok
}

func (r *Registry) Create(cfg StepConfig, deps StepDeps) (Step, error) {
	create, ok := r.creators[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("no factory registered for step type %q", cfg.Type)
	}
	return create(cfg, deps)
}

// Types returns the registered step types, sorted for stable logging.
func (r *Registry) Types() []StepType {
	out := make([]StepType, 0, len(r.creators))
	for t := range r.creators {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
