// Package steps contains the built-in pipeline step implementations.
// Each step mutates exactly the context fields documented on
// pipeline.Context for its type.
package steps

import (
	"time"

	"github.com/threadscribe/threadscribe/internal/pipeline"
)

const defaultStepTimeout = 120 * time.Second

// RegisterDefaults wires the built-in step set into a registry.
func RegisterDefaults(r *pipeline.Registry) {
	r.Register(pipeline.StepFilter, func(cfg pipeline.StepConfig, deps pipeline.StepDeps) (pipeline.Step, error) {
		return NewFilter(cfg), nil
	})
	r.Register(pipeline.StepClassify, func(cfg pipeline.StepConfig, deps pipeline.StepDeps) (pipeline.Step, error) {
		return NewClassify(cfg, deps), nil
	})
	r.Register(pipeline.StepEnrich, func(cfg pipeline.StepConfig, deps pipeline.StepDeps) (pipeline.Step, error) {
		return NewEnrich(cfg, deps), nil
	})
	r.Register(pipeline.StepGenerate, func(cfg pipeline.StepConfig, deps pipeline.StepDeps) (pipeline.Step, error) {
		return NewGenerate(cfg, deps), nil
	})
	r.Register(pipeline.StepValidate, func(cfg pipeline.StepConfig, deps pipeline.StepDeps) (pipeline.Step, error) {
		return NewValidate(cfg), nil
	})
	r.Register(pipeline.StepCondense, func(cfg pipeline.StepConfig, deps pipeline.StepDeps) (pipeline.Step, error) {
		return NewCondense(cfg, deps), nil
	})
}

// NewDefaultRegistry returns a registry with all built-in step types.
func NewDefaultRegistry() *pipeline.Registry {
	r := pipeline.NewRegistry()
	RegisterDefaults(r)
	return r
}

// --- config map helpers ---

func cfgString(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func cfgInt(m map[string]any, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func cfgStrings(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func cfgTimeout(m map[string]any) time.Duration {
	if ms := cfgInt(m, "timeout_ms", 0); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultStepTimeout
}
