package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
steps:
  - id: filter
    type: filter
    enabled: true
    config:
      min_length: 12
  - id: classify
    type: classify
    enabled: false
error_handling:
  stop_on_error: false
  retry_attempts: 4
  retry_delay_ms: 250
performance:
  llm_max_tokens: 2048
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(cfg.Steps))
	}
	if cfg.Steps[0].Type != StepFilter || !cfg.Steps[0].Enabled {
		t.Errorf("step 0 = %+v", cfg.Steps[0])
	}
	if got, ok := cfg.Steps[0].Config["min_length"]; !ok || got != 12 {
		t.Errorf("min_length = %v", got)
	}
	if cfg.Steps[1].Enabled {
		t.Error("disabled step parsed as enabled")
	}
	if cfg.ErrorHandling.StopOnError {
		t.Error("stop_on_error not overridden")
	}
	if cfg.ErrorHandling.RetryAttempts != 4 {
		t.Errorf("retry_attempts = %d, want 4", cfg.ErrorHandling.RetryAttempts)
	}
	if cfg.ErrorHandling.RetryDelay() != 250*time.Millisecond {
		t.Errorf("retry delay = %v, want 250ms", cfg.ErrorHandling.RetryDelay())
	}
	if cfg.Performance.LLMMaxTokens != 2048 {
		t.Errorf("llm_max_tokens = %d, want 2048", cfg.Performance.LLMMaxTokens)
	}
	// Sections omitted in the file keep defaults.
	if cfg.Performance.TimeoutMs != DefaultConfig().Performance.TimeoutMs {
		t.Errorf("timeout_ms = %d, want default", cfg.Performance.TimeoutMs)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Steps) != 6 {
		t.Errorf("default chain has %d steps, want 6", len(cfg.Steps))
	}
	if !cfg.ErrorHandling.StopOnError {
		t.Error("default stop_on_error should be true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Steps: []StepConfig{{ID: "a", Type: StepFilter}}}, false},
		{"missing id", Config{Steps: []StepConfig{{Type: StepFilter}}}, true},
		{"duplicate id", Config{Steps: []StepConfig{{ID: "a", Type: StepFilter}, {ID: "a", Type: StepClassify}}}, true},
		{"missing type", Config{Steps: []StepConfig{{ID: "a"}}}, true},
		{"negative retries", Config{ErrorHandling: ErrorHandling{RetryAttempts: -1}}, true},
		{"negative delay", Config{ErrorHandling: ErrorHandling{RetryDelayMs: -5}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
