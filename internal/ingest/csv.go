package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	ministore "github.com/threadscribe/threadscribe/internal/store/minio"
	"github.com/threadscribe/threadscribe/pkg/models"
)

// MessageWriter persists normalized messages.
type MessageWriter interface {
	InsertMessage(ctx context.Context, msg models.UnifiedMessage) error
}

// csvColumns is the required header of a drop file, in order.
var csvColumns = []string{"external_id", "stream_id", "timestamp", "author", "content"}

// CSVImporter imports message drop files from object storage. Files are
// removed after a fully successful import so sweeps stay idempotent.
type CSVImporter struct {
	objects *ministore.Client
	writer  MessageWriter
	prefix  string
	logger  *slog.Logger
}

func NewCSVImporter(objects *ministore.Client, writer MessageWriter, prefix string, logger *slog.Logger) *CSVImporter {
	return &CSVImporter{objects: objects, writer: writer, prefix: prefix, logger: logger}
}

// SweepBucket imports every drop file under the configured prefix and
// returns the number of messages imported. A failed file is logged and
// left in place for the next sweep.
func (c *CSVImporter) SweepBucket(ctx context.Context) (int, error) {
	keys, err := c.objects.ListObjects(ctx, c.prefix)
	if err != nil {
		return 0, fmt.Errorf("list drop files: %w", err)
	}

	total := 0
	for _, key := range keys {
		if !strings.HasSuffix(key, ".csv") {
			continue
		}

		n, err := c.importObject(ctx, key)
		if err != nil {
			c.logger.Error("csv import failed",
				slog.String("object", key),
				slog.String("error", err.Error()))
			continue
		}
		total += n

		if err := c.objects.Remove(ctx, key); err != nil {
			c.logger.Warn("failed to remove imported drop file",
				slog.String("object", key),
				slog.String("error", err.Error()))
		}
		c.logger.Info("imported drop file",
			slog.String("object", key),
			slog.Int("messages", n))
	}
	return total, nil
}

func (c *CSVImporter) importObject(ctx context.Context, key string) (int, error) {
	body, err := c.objects.Download(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	defer body.Close()

	return c.ImportReader(ctx, body)
}

// ImportReader parses and persists one CSV drop. Rows that fail to parse
// abort the import so a malformed file is never half-applied silently.
func (c *CSVImporter) ImportReader(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvColumns)

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return 0, err
	}

	count := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read row %d: %w", count+2, err)
		}

		msg, err := rowToMessage(record)
		if err != nil {
			return count, fmt.Errorf("row %d: %w", count+2, err)
		}

		if err := c.writer.InsertMessage(ctx, msg); err != nil {
			return count, fmt.Errorf("insert %s: %w", msg.ExternalID, err)
		}
		count++
	}
	return count, nil
}

func validateHeader(header []string) error {
	if len(header) != len(csvColumns) {
		return fmt.Errorf("expected %d columns, got %d", len(csvColumns), len(header))
	}
	for i, want := range csvColumns {
		if strings.TrimSpace(strings.ToLower(header[i])) != want {
			return fmt.Errorf("column %d: expected %q, got %q", i, want, header[i])
		}
	}
	return nil
}

func rowToMessage(record []string) (models.UnifiedMessage, error) {
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(record[2]))
	if err != nil {
		return models.UnifiedMessage{}, fmt.Errorf("parse timestamp %q: %w", record[2], err)
	}

	streamID := strings.TrimSpace(record[1])
	if streamID == "" {
		return models.UnifiedMessage{}, fmt.Errorf("empty stream_id")
	}
	externalID := strings.TrimSpace(record[0])
	if externalID == "" {
		return models.UnifiedMessage{}, fmt.Errorf("empty external_id")
	}

	return models.UnifiedMessage{
		ID:               uuid.New(),
		StreamID:         streamID,
		ExternalID:       externalID,
		Timestamp:        ts.UTC(),
		Author:           strings.TrimSpace(record[3]),
		Content:          record[4],
		ProcessingStatus: models.StatusPending,
	}, nil
}
