package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus is the lifecycle state of an ingested message.
// A message transitions pending → completed exactly once, as part of the
// commit of a successfully processed batch.
type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusCompleted ProcessingStatus = "completed"
)

// UnifiedMessage is a single ingested message, normalized across sources
// (chat webhooks, CSV drops). Everything except ProcessingStatus is
// immutable after ingestion.
type UnifiedMessage struct {
	ID               uuid.UUID        `json:"id"`
	StreamID         string           `json:"stream_id"`
	ExternalID       string           `json:"external_id"`
	Timestamp        time.Time        `json:"timestamp"`
	Author           string           `json:"author"`
	Content          string           `json:"content"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	CreatedAt        time.Time        `json:"created_at"`
}

// ProcessingWatermark tracks how far a stream has been processed.
// WatermarkTime is monotonically non-decreasing and only advances after a
// batch completes its pipeline run successfully.
type ProcessingWatermark struct {
	StreamID           string    `json:"stream_id"`
	WatermarkTime      time.Time `json:"watermark_time"`
	LastProcessedBatch string    `json:"last_processed_batch"`
	UpdatedAt          time.Time `json:"updated_at"`
}
