package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RunRecord is the live progress row for one orchestrator execution.
type RunRecord struct {
	ID                 uuid.UUID
	StreamID           string
	BatchStart         time.Time
	BatchEnd           time.Time
	Status             string
	Steps              []StepResult
	MessagesProcessed  int
	ThreadsCreated     int
	ProposalsGenerated int
	Error              string
	FinishedAt         *time.Time
}

// RunLog persists orchestrator progress so a long batch can be observed
// while it runs. Writes are best-effort: failures are logged, never
// propagated into the pipeline outcome.
type RunLog interface {
	CreateRun(ctx context.Context, run RunRecord) error
	UpdateRun(ctx context.Context, run RunRecord) error
}

// Orchestrator executes the enabled, ordered step chain for one batch
// against one shared context.
type Orchestrator struct {
	cfg      Config
	registry *Registry
	deps     StepDeps
	runLog   RunLog // optional
	logger   *slog.Logger
}

func NewOrchestrator(cfg Config, registry *Registry, deps StepDeps, runLog RunLog, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, registry: registry, deps: deps, runLog: runLog, logger: logger}
}

// Config returns the pipeline configuration driving this orchestrator.
func (o *Orchestrator) Config() Config { return o.cfg }

// Execute runs the active steps against pc in declared order. A step whose
// input collection is empty is marked skipped without being invoked. Success
// means zero unrecovered step errors for the whole run; any failure leaves
// the context in its partially-mutated state for inspection.
func (o *Orchestrator) Execute(ctx context.Context, pc *Context) *Result {
	result := &Result{Success: true}

	steps := o.buildSteps(pc)
	if len(steps) == 0 {
		o.logger.Info("pipeline has no active steps",
			slog.String("stream_id", pc.StreamID),
			slog.String("batch_id", pc.BatchID.String()))
		return result
	}

	run := RunRecord{
		ID:         pc.BatchID,
		StreamID:   pc.StreamID,
		BatchStart: pc.BatchStart,
		BatchEnd:   pc.BatchEnd,
		Status:     "running",
	}
	o.writeRunLog(ctx, run, true)

	o.logger.Info("pipeline started",
		slog.String("stream_id", pc.StreamID),
		slog.String("batch_id", pc.BatchID.String()),
		slog.Int("messages", len(pc.Messages)),
		slog.Int("steps", len(steps)))

	for _, step := range steps {
		sr := StepResult{StepID: step.ID(), Type: step.Type()}
		sr.InputCount = inputCount(step.Type(), pc)

		if sr.InputCount == 0 {
			sr.Status = StepSkipped
			o.logger.Info("step skipped, no input",
				slog.String("step", step.ID()),
				slog.String("batch_id", pc.BatchID.String()))
			result.Steps = append(result.Steps, sr)
			run.Steps = result.Steps
			o.writeRunLog(ctx, run, false)
			continue
		}

		started := time.Now()
		err := executeWithRetry(ctx, step, pc, o.cfg.ErrorHandling)
		sr.Duration = time.Since(started)
		pc.Metrics.StepDurations[step.ID()] = sr.Duration

		if err != nil {
			sr.Status = StepFailed
			sr.Error = err.Error()
			perr := Error{
				StepID:  step.ID(),
				Message: fmt.Sprintf("%s step failed", step.Type()),
				Cause:   err,
				Context: contextDebug(pc),
			}
			result.Errors = append(result.Errors, perr)
			pc.Errors = append(pc.Errors, perr)

			o.logger.Error("step failed",
				slog.String("step", step.ID()),
				slog.String("batch_id", pc.BatchID.String()),
				slog.String("error", err.Error()))

			result.Steps = append(result.Steps, sr)
			run.Steps = result.Steps
			o.writeRunLog(ctx, run, false)

			if o.cfg.ErrorHandling.StopOnError {
				break
			}
			continue
		}

		sr.Status = StepCompleted
		sr.OutputCount = outputCount(step.Type(), pc)
		sr.Summary = truncate(fmt.Sprintf("%s: in=%d out=%d %s",
			step.Type(), sr.InputCount, sr.OutputCount, contextDebug(pc)), 240)

		o.logger.Info("step completed",
			slog.String("step", step.ID()),
			slog.String("batch_id", pc.BatchID.String()),
			slog.Int("input", sr.InputCount),
			slog.Int("output", sr.OutputCount),
			slog.Duration("duration", sr.Duration))

		result.Steps = append(result.Steps, sr)
		run.Steps = result.Steps
		o.writeRunLog(ctx, run, false)
	}

	result.Success = len(result.Errors) == 0
	result.MessagesProcessed = len(pc.Messages)
	result.ThreadsCreated = len(pc.Threads)
	result.ProposalsGenerated = pc.ProposalCount()
	result.Metrics = pc.Metrics

	run.Status = "completed"
	if !result.Success {
		run.Status = "failed"
		run.Error = result.Errors[0].Error()
	}
	run.MessagesProcessed = result.MessagesProcessed
	run.ThreadsCreated = result.ThreadsCreated
	run.ProposalsGenerated = result.ProposalsGenerated
	now := time.Now()
	run.FinishedAt = &now
	o.writeRunLog(ctx, run, false)

	o.logger.Info("pipeline finished",
		slog.String("stream_id", pc.StreamID),
		slog.String("batch_id", pc.BatchID.String()),
		slog.Bool("success", result.Success),
		slog.Int("threads", result.ThreadsCreated),
		slog.Int("proposals", result.ProposalsGenerated),
		slog.Int("errors", len(result.Errors)))

	return result
}

// buildSteps resolves the configured chain: disabled steps and types without
// a registered factory are skipped with a log line, never fatal.
func (o *Orchestrator) buildSteps(pc *Context) []Step {
	deps := o.deps
	if deps.LLM == nil {
		deps.LLM = pc.Services.LLM
	}
	if deps.RAG == nil {
		deps.RAG = pc.Services.RAG
	}
	if deps.Prompts == nil {
		deps.Prompts = pc.Services.Prompts
	}

	var steps []Step
	for _, sc := range o.cfg.Steps {
		if !sc.Enabled {
			o.logger.Info("step disabled", slog.String("step", sc.ID))
			continue
		}
		if !o.registry.Has(sc.Type) {
			o.logger.Warn("no factory for step type, skipping",
				slog.String("step", sc.ID),
				slog.String("type", string(sc.Type)))
			continue
		}
		step, err := o.registry.Create(sc, deps)
		if err != nil {
			o.logger.Warn("step construction failed, skipping",
				slog.String("step", sc.ID),
				slog.String("error", err.Error()))
			continue
		}
		steps = append(steps, step)
	}
	return steps
}

// inputCount maps a step type to the size of the collection it reads, which
// decides skip-on-empty.
func inputCount(t StepType, pc *Context) int {
	switch t {
	case StepFilter:
		return len(pc.Messages)
	case StepClassify:
		return len(pc.FilteredMessages)
	case StepEnrich, StepGenerate:
		return len(pc.Threads)
	case StepValidate, StepCondense:
		return pc.ProposalCount()
	default:
		return len(pc.Messages)
	}
}

// outputCount maps a step type to the size of the collection it writes.
func outputCount(t StepType, pc *Context) int {
	switch t {
	case StepFilter:
		return len(pc.FilteredMessages)
	case StepClassify:
		return len(pc.Threads)
	case StepEnrich:
		n := 0
		for _, docs := range pc.RagResults {
			n += len(docs)
		}
		return n
	case StepGenerate, StepValidate, StepCondense:
		return pc.ProposalCount()
	default:
		return 0
	}
}

func contextDebug(pc *Context) string {
	return fmt.Sprintf("msgs=%d filtered=%d threads=%d proposals=%d",
		len(pc.Messages), len(pc.FilteredMessages), len(pc.Threads), pc.ProposalCount())
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// writeRunLog persists run progress; failures are logged and discarded.
func (o *Orchestrator) writeRunLog(ctx context.Context, run RunRecord, create bool) {
	if o.runLog == nil {
		return
	}
	var err error
	if create {
		err = o.runLog.CreateRun(ctx, run)
	} else {
		err = o.runLog.UpdateRun(ctx, run)
	}
	if err != nil {
		o.logger.Warn("run log write failed",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()))
	}
}

// MarshalSteps serializes step results for the run-log table.
func MarshalSteps(steps []StepResult) []byte {
	data, err := json.Marshal(steps)
	if err != nil {
		return []byte("[]")
	}
	return data
}
