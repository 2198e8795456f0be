package store

import (
	"context"

	"github.com/threadscribe/threadscribe/internal/pipeline"
	"github.com/threadscribe/threadscribe/internal/store/postgres"
)

// RunLogAdapter persists orchestrator run records to the pipeline_runs
// table. It satisfies pipeline.RunLog.
type RunLogAdapter struct {
	store *Store
}

func NewRunLogAdapter(s *Store) *RunLogAdapter {
	return &RunLogAdapter{store: s}
}

var _ pipeline.RunLog = (*RunLogAdapter)(nil)

func (a *RunLogAdapter) CreateRun(ctx context.Context, run pipeline.RunRecord) error {
	return a.store.CreatePipelineRun(ctx, toRow(run))
}

func (a *RunLogAdapter) UpdateRun(ctx context.Context, run pipeline.RunRecord) error {
	return a.store.UpdatePipelineRun(ctx, toRow(run))
}

func toRow(run pipeline.RunRecord) postgres.PipelineRun {
	var errMsg *string
	if run.Error != "" {
		errMsg = &run.Error
	}
	return postgres.PipelineRun{
		ID:                 run.ID,
		StreamID:           run.StreamID,
		BatchStart:         run.BatchStart,
		BatchEnd:           run.BatchEnd,
		Status:             run.Status,
		Steps:              pipeline.MarshalSteps(run.Steps),
		MessagesProcessed:  run.MessagesProcessed,
		ThreadsCreated:     run.ThreadsCreated,
		ProposalsGenerated: run.ProposalsGenerated,
		ErrorMessage:       errMsg,
		FinishedAt:         run.FinishedAt,
	}
}
