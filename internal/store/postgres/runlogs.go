package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PipelineRun is the live progress record for one orchestrator execution.
// Steps holds the per-step results serialized as JSON; writes are best-effort
// and must never fail the pipeline itself.
type PipelineRun struct {
	ID                 uuid.UUID  `json:"id"`
	StreamID           string     `json:"stream_id"`
	BatchStart         time.Time  `json:"batch_start"`
	BatchEnd           time.Time  `json:"batch_end"`
	Status             string     `json:"status"`
	Steps              []byte     `json:"steps"`
	MessagesProcessed  int        `json:"messages_processed"`
	ThreadsCreated     int        `json:"threads_created"`
	ProposalsGenerated int        `json:"proposals_generated"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
}

func (q *Queries) CreatePipelineRun(ctx context.Context, run PipelineRun) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO pipeline_runs (id, stream_id, batch_start, batch_end, status, steps)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.StreamID, run.BatchStart, run.BatchEnd, run.Status, run.Steps)
	return err
}

func (q *Queries) UpdatePipelineRun(ctx context.Context, run PipelineRun) error {
	_, err := q.db.Exec(ctx,
		`UPDATE pipeline_runs
		 SET status = $2, steps = $3, messages_processed = $4,
		     threads_created = $5, proposals_generated = $6,
		     error_message = $7, finished_at = $8
		 WHERE id = $1`,
		run.ID, run.Status, run.Steps, run.MessagesProcessed,
		run.ThreadsCreated, run.ProposalsGenerated, run.ErrorMessage, run.FinishedAt)
	return err
}

func (q *Queries) ListPipelineRuns(ctx context.Context, streamID string, limit, offset int) ([]PipelineRun, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, stream_id, batch_start, batch_end, status, steps,
		        messages_processed, threads_created, proposals_generated,
		        error_message, started_at, finished_at
		 FROM pipeline_runs
		 WHERE ($1 = '' OR stream_id = $1)
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`,
		streamID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PipelineRun
	for rows.Next() {
		var r PipelineRun
		if err := rows.Scan(&r.ID, &r.StreamID, &r.BatchStart, &r.BatchEnd, &r.Status,
			&r.Steps, &r.MessagesProcessed, &r.ThreadsCreated, &r.ProposalsGenerated,
			&r.ErrorMessage, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
