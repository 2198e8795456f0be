package postgres

import (
	"context"
	"time"

	"github.com/threadscribe/threadscribe/pkg/models"
)

// GetWatermark returns the processing watermark for a stream.
// pgx.ErrNoRows when the stream has never been processed.
func (q *Queries) GetWatermark(ctx context.Context, streamID string) (models.ProcessingWatermark, error) {
	var w models.ProcessingWatermark
	err := q.db.QueryRow(ctx,
		`SELECT stream_id, watermark_time, last_processed_batch, updated_at
		 FROM watermarks WHERE stream_id = $1`,
		streamID).Scan(&w.StreamID, &w.WatermarkTime, &w.LastProcessedBatch, &w.UpdatedAt)
	return w, err
}

// CreateWatermark initializes a stream's watermark. First-sight only; a
// concurrent create of the same stream keeps the earlier (smaller) value.
func (q *Queries) CreateWatermark(ctx context.Context, streamID string, at time.Time) (models.ProcessingWatermark, error) {
	var w models.ProcessingWatermark
	err := q.db.QueryRow(ctx,
		`INSERT INTO watermarks (stream_id, watermark_time, last_processed_batch)
		 VALUES ($1, $2, '')
		 ON CONFLICT (stream_id) DO UPDATE SET watermark_time = LEAST(watermarks.watermark_time, EXCLUDED.watermark_time)
		 RETURNING stream_id, watermark_time, last_processed_batch, updated_at`,
		streamID, at).Scan(&w.StreamID, &w.WatermarkTime, &w.LastProcessedBatch, &w.UpdatedAt)
	return w, err
}

// AdvanceWatermark moves a stream's watermark forward to the end of a
// committed batch. The GREATEST guard keeps the value monotonically
// non-decreasing even under a misordered write.
func (q *Queries) AdvanceWatermark(ctx context.Context, streamID string, to time.Time, batchID string) error {
	_, err := q.db.Exec(ctx,
		`UPDATE watermarks
		 SET watermark_time = GREATEST(watermark_time, $2),
		     last_processed_batch = $3,
		     updated_at = now()
		 WHERE stream_id = $1`,
		streamID, to, batchID)
	return err
}
