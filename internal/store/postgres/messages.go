package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/threadscribe/threadscribe/pkg/models"
)

const messageColumns = `id, stream_id, external_id, ts, author, content, processing_status, created_at`

func scanMessage(row pgx.Row) (models.UnifiedMessage, error) {
	var m models.UnifiedMessage
	err := row.Scan(&m.ID, &m.StreamID, &m.ExternalID, &m.Timestamp,
		&m.Author, &m.Content, &m.ProcessingStatus, &m.CreatedAt)
	return m, err
}

func collectMessages(rows pgx.Rows) ([]models.UnifiedMessage, error) {
	defer rows.Close()
	var items []models.UnifiedMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// InsertMessage stores a normalized inbound message as pending. Re-delivery
// of the same (stream_id, external_id) is a no-op so webhook retries and
// repeated CSV imports stay idempotent.
func (q *Queries) InsertMessage(ctx context.Context, m models.UnifiedMessage) error {
	id := m.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := q.db.Exec(ctx,
		`INSERT INTO messages (id, stream_id, external_id, ts, author, content, processing_status)
		 VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		 ON CONFLICT (stream_id, external_id) DO NOTHING`,
		id, m.StreamID, m.ExternalID, m.Timestamp, m.Author, m.Content)
	return err
}

// ListPendingStreamIDs returns the distinct stream IDs that have at least one
// pending message, ordered for deterministic iteration.
func (q *Queries) ListPendingStreamIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.Query(ctx,
		`SELECT DISTINCT stream_id FROM messages
		 WHERE processing_status = 'pending'
		 ORDER BY stream_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EarliestPendingTimestamp returns the timestamp of the oldest pending
// message for a stream. pgx.ErrNoRows when the stream has no pending work.
func (q *Queries) EarliestPendingTimestamp(ctx context.Context, streamID string) (time.Time, error) {
	var ts time.Time
	err := q.db.QueryRow(ctx,
		`SELECT MIN(ts) FROM messages
		 WHERE stream_id = $1 AND processing_status = 'pending'
		 HAVING MIN(ts) IS NOT NULL`,
		streamID).Scan(&ts)
	return ts, err
}

// ListPendingMessagesInWindow returns pending messages for a stream with
// ts in (after, until], ordered by timestamp, capped at limit.
func (q *Queries) ListPendingMessagesInWindow(ctx context.Context, streamID string, after, until time.Time, limit int) ([]models.UnifiedMessage, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE stream_id = $1 AND processing_status = 'pending'
		   AND ts > $2 AND ts <= $3
		 ORDER BY ts, id
		 LIMIT $4`,
		streamID, after, until, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// ListMessagesInWindow returns messages of any status for a stream with
// ts in (after, until]. Used to fetch the prior window as read-only context.
func (q *Queries) ListMessagesInWindow(ctx context.Context, streamID string, after, until time.Time, limit int) ([]models.UnifiedMessage, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE stream_id = $1 AND ts > $2 AND ts <= $3
		 ORDER BY ts, id
		 LIMIT $4`,
		streamID, after, until, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// MarkMessagesCompleted flips the given messages to completed. Part of the
// batch commit; runs as a single statement so a batch completes all-or-nothing.
func (q *Queries) MarkMessagesCompleted(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.db.Exec(ctx,
		`UPDATE messages SET processing_status = 'completed'
		 WHERE id = ANY($1) AND processing_status = 'pending'`,
		ids)
	return err
}

// CountPendingMessages returns the number of pending messages for a stream.
func (q *Queries) CountPendingMessages(ctx context.Context, streamID string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE stream_id = $1 AND processing_status = 'pending'`,
		streamID).Scan(&n)
	return n, err
}
