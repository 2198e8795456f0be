package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/threadscribe/threadscribe/pkg/models"
)

// UpsertProposalsBatch persists a batch's proposals in one pipelined round
// trip. Conflict key is (stream_id, page, section, batch_end) so re-running a
// batch after a partial commit overwrites rather than duplicates.
func (q *Queries) UpsertProposalsBatch(ctx context.Context, proposals []models.Proposal) error {
	if len(proposals) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, p := range proposals {
		id := p.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		b.Queue(
			`INSERT INTO proposals
			   (id, stream_id, thread_id, update_type, page, section, suggested_text,
			    reasoning, source_messages, batch_end, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'open')
			 ON CONFLICT (stream_id, page, section, batch_end) DO UPDATE SET
			   thread_id = EXCLUDED.thread_id,
			   update_type = EXCLUDED.update_type,
			   suggested_text = EXCLUDED.suggested_text,
			   reasoning = EXCLUDED.reasoning,
			   source_messages = EXCLUDED.source_messages`,
			id, p.StreamID, p.ThreadID, p.UpdateType, p.Page, p.Section,
			p.SuggestedText, p.Reasoning, p.SourceMessages, p.BatchEnd)
	}

	res := q.db.SendBatch(ctx, b)
	defer res.Close()
	for i := 0; i < len(proposals); i++ {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("upsert proposal %d: %w", i, err)
		}
	}
	return nil
}

// ListProposals returns persisted proposals, newest first, optionally
// filtered by review status.
func (q *Queries) ListProposals(ctx context.Context, status string, limit, offset int) ([]models.Proposal, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, stream_id, thread_id, update_type, page, section, suggested_text,
		        reasoning, source_messages, batch_end, status, created_at
		 FROM proposals
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Proposal
	for rows.Next() {
		var p models.Proposal
		if err := rows.Scan(&p.ID, &p.StreamID, &p.ThreadID, &p.UpdateType, &p.Page,
			&p.Section, &p.SuggestedText, &p.Reasoning, &p.SourceMessages,
			&p.BatchEnd, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// UpdateProposalStatus records a review decision.
func (q *Queries) UpdateProposalStatus(ctx context.Context, id uuid.UUID, status models.ProposalStatus) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE proposals SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
