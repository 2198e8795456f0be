package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StepConfig declares one step of the chain.
type StepConfig struct {
	ID      string         `yaml:"id"`
	Type    StepType       `yaml:"type"`
	Enabled bool           `yaml:"enabled"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// ErrorHandling controls retry and abort behavior for step failures.
type ErrorHandling struct {
	StopOnError   bool `yaml:"stop_on_error"`
	RetryAttempts int  `yaml:"retry_attempts"`
	RetryDelayMs  int  `yaml:"retry_delay_ms"`
}

// Performance carries advisory knobs. TimeoutMs informs step implementations
// (LLM calls use it as a request deadline); the orchestrator does not enforce
// a hard budget itself.
type Performance struct {
	TimeoutMs    int `yaml:"timeout_ms"`
	LLMMaxTokens int `yaml:"llm_max_tokens"`
}

// Config is the declarative pipeline: the ordered step chain plus policy.
type Config struct {
	Steps         []StepConfig  `yaml:"steps"`
	ErrorHandling ErrorHandling `yaml:"error_handling"`
	Performance   Performance   `yaml:"performance"`
}

// RetryDelay returns the configured base delay between attempts.
func (e ErrorHandling) RetryDelay() time.Duration {
	return time.Duration(e.RetryDelayMs) * time.Millisecond
}

// DefaultConfig is the full six-step chain with conservative retry policy.
func DefaultConfig() Config {
	return Config{
		Steps: []StepConfig{
			{ID: "filter", Type: StepFilter, Enabled: true},
			{ID: "classify", Type: StepClassify, Enabled: true},
			{ID: "enrich", Type: StepEnrich, Enabled: true},
			{ID: "generate", Type: StepGenerate, Enabled: true},
			{ID: "validate", Type: StepValidate, Enabled: true},
			{ID: "condense", Type: StepCondense, Enabled: true},
		},
		ErrorHandling: ErrorHandling{
			StopOnError:   true,
			RetryAttempts: 2,
			RetryDelayMs:  1000,
		},
		Performance: Performance{
			TimeoutMs:    120_000,
			LLMMaxTokens: 4096,
		},
	}
}

// LoadConfig reads a pipeline config from a YAML file, falling back to the
// defaults for the error-handling and performance sections when omitted.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read pipeline config: %w", err)
	}

	cfg := Config{
		ErrorHandling: DefaultConfig().ErrorHandling,
		Performance:   DefaultConfig().Performance,
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse pipeline config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configs the orchestrator cannot run safely.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Steps))
	for i, s := range c.Steps {
		if s.ID == "" {
			return fmt.Errorf("step %d: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("step %d: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		if s.Type == "" {
			return fmt.Errorf("step %q: type is required", s.ID)
		}
	}
	if c.ErrorHandling.RetryAttempts < 0 {
		return fmt.Errorf("error_handling.retry_attempts must be >= 0")
	}
	if c.ErrorHandling.RetryDelayMs < 0 {
		return fmt.Errorf("error_handling.retry_delay_ms must be >= 0")
	}
	return nil
}
