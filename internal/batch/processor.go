package batch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/threadscribe/threadscribe/internal/pipeline"
	"github.com/threadscribe/threadscribe/pkg/models"
)

// sentinelPrefix marks internal test streams that are excluded from sweeps
// unless named explicitly by the stream filter.
const sentinelPrefix = "test:"

// Store is the persistence surface the processor mutates. Satisfied by
// *store.Store; fakes implement it in tests.
type Store interface {
	MessageSource
	ListPendingStreamIDs(ctx context.Context) ([]string, error)
	EarliestPendingTimestamp(ctx context.Context, streamID string) (time.Time, error)
	ListMessagesInWindow(ctx context.Context, streamID string, after, until time.Time, limit int) ([]models.UnifiedMessage, error)
	MarkMessagesCompleted(ctx context.Context, ids []uuid.UUID) error
	GetWatermark(ctx context.Context, streamID string) (models.ProcessingWatermark, error)
	CreateWatermark(ctx context.Context, streamID string, at time.Time) (models.ProcessingWatermark, error)
	AdvanceWatermark(ctx context.Context, streamID string, to time.Time, batchID string) error
	UpsertProposalsBatch(ctx context.Context, proposals []models.Proposal) error
}

// Runner executes the pipeline for one batch context. Satisfied by
// *pipeline.Orchestrator.
type Runner interface {
	Execute(ctx context.Context, pc *pipeline.Context) *pipeline.Result
}

// Options narrows a ProcessBatch call.
type Options struct {
	// StreamID restricts processing to exactly this stream. It is also the
	// only way to process a test: sentinel stream.
	StreamID string
}

// Processor is the incremental per-stream batch scheduler. It iterates
// streams with pending work, pulls windows, invokes the pipeline, and on
// success commits: proposals, then message completion, then the watermark.
// On failure nothing is committed and only that stream's loop stops.
type Processor struct {
	store    Store
	selector *Selector
	runner   Runner
	services pipeline.Services
	logger   *slog.Logger

	// Guard scoped to this instance so independent processors can coexist
	// in tests. A concurrent call observes it and returns 0 without queuing.
	running atomic.Bool
}

func NewProcessor(s Store, selector *Selector, runner Runner, services pipeline.Services, logger *slog.Logger) *Processor {
	return &Processor{
		store:    s,
		selector: selector,
		runner:   runner,
		services: services,
		logger:   logger,
	}
}

// ProcessBatch runs one scheduling sweep and returns the total number of
// messages committed across all streams. A call that finds the processor
// already running is an idempotent no-op returning 0. Stream-level failures
// are contained to that stream and logged, never returned.
func (p *Processor) ProcessBatch(ctx context.Context, opts Options) (int, error) {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.Info("batch processing already running, skipping")
		return 0, nil
	}
	defer p.running.Store(false)

	streams, err := p.store.ListPendingStreamIDs(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, streamID := range streams {
		if opts.StreamID != "" {
			if streamID != opts.StreamID {
				continue
			}
		} else if strings.HasPrefix(streamID, sentinelPrefix) {
			continue
		}

		n, err := p.processStream(ctx, streamID)
		total += n
		if err != nil {
			p.logger.Error("stream processing aborted",
				slog.String("stream_id", streamID),
				slog.String("error", err.Error()))
		}
	}

	p.logger.Info("batch sweep finished", slog.Int("messages_processed", total))
	return total, nil
}

// processStream pulls consecutive windows for one stream until a window is
// empty or a batch fails. Returns the number of messages committed.
func (p *Processor) processStream(ctx context.Context, streamID string) (int, error) {
	wm, err := p.loadOrInitWatermark(ctx, streamID)
	if err != nil {
		return 0, err
	}

	total := 0
	for {
		win, err := p.selector.SelectNext(ctx, streamID, wm)
		if err != nil {
			return total, err
		}
		if win.Empty() {
			return total, nil
		}

		prior, err := p.store.ListMessagesInWindow(ctx, streamID,
			win.Start.Add(-p.selector.WindowDuration()), win.Start, len(win.Messages)*2)
		if err != nil {
			return total, err
		}

		pc := pipeline.NewContext(streamID, win.Start, win.End, win.Messages, prior, p.services)
		res := p.runner.Execute(ctx, pc)

		if !res.Success {
			p.logger.Warn("pipeline failed, batch not committed",
				slog.String("stream_id", streamID),
				slog.String("batch_id", pc.BatchID.String()),
				slog.Int("errors", len(res.Errors)))
			return total, nil
		}

		if err := p.commit(ctx, streamID, win, pc); err != nil {
			return total, err
		}
		total += len(win.Messages)
		wm = win.End
	}
}

// loadOrInitWatermark returns the stream's watermark time, creating the row
// just before the earliest pending message on first sight so the initial
// exclusive-start window includes that message.
func (p *Processor) loadOrInitWatermark(ctx context.Context, streamID string) (time.Time, error) {
	wm, err := p.store.GetWatermark(ctx, streamID)
	if err == nil {
		return wm.WatermarkTime, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, err
	}

	earliest, err := p.store.EarliestPendingTimestamp(ctx, streamID)
	if err != nil {
		return time.Time{}, err
	}
	wm, err = p.store.CreateWatermark(ctx, streamID, earliest.Add(-time.Millisecond))
	if err != nil {
		return time.Time{}, err
	}
	p.logger.Info("watermark initialized",
		slog.String("stream_id", streamID),
		slog.Time("watermark", wm.WatermarkTime))
	return wm.WatermarkTime, nil
}

// commit finalizes a successful batch: proposals first (idempotent upsert),
// then message completion, then the watermark. Message status is ground
// truth if the watermark write fails; pending rows are the retry unit.
func (p *Processor) commit(ctx context.Context, streamID string, win Window, pc *pipeline.Context) error {
	proposals := pc.FlatProposals()
	for i := range proposals {
		proposals[i].StreamID = streamID
		proposals[i].BatchEnd = win.End
	}
	if err := p.store.UpsertProposalsBatch(ctx, proposals); err != nil {
		return err
	}

	ids := make([]uuid.UUID, len(win.Messages))
	for i, m := range win.Messages {
		ids[i] = m.ID
	}
	if err := p.store.MarkMessagesCompleted(ctx, ids); err != nil {
		return err
	}

	if err := p.store.AdvanceWatermark(ctx, streamID, win.End, pc.BatchID.String()); err != nil {
		return err
	}

	p.logger.Info("batch committed",
		slog.String("stream_id", streamID),
		slog.String("batch_id", pc.BatchID.String()),
		slog.Int("messages", len(win.Messages)),
		slog.Int("proposals", len(proposals)),
		slog.Time("watermark", win.End))
	return nil
}
