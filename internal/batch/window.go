package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/threadscribe/threadscribe/pkg/models"
)

// MessageSource is the slice of the message store the selector needs.
type MessageSource interface {
	ListPendingMessagesInWindow(ctx context.Context, streamID string, after, until time.Time, limit int) ([]models.UnifiedMessage, error)
}

// Window is one time-bounded, size-capped batch of pending messages.
// Messages carry timestamps in (Start, End], ordered by timestamp.
type Window struct {
	Start    time.Time
	End      time.Time
	Messages []models.UnifiedMessage
}

// Empty reports whether the window selected no work.
func (w Window) Empty() bool { return len(w.Messages) == 0 }

// Selector computes the next contiguous batch window for a stream.
type Selector struct {
	msgs         MessageSource
	windowHours  int
	maxBatchSize int
	now          func() time.Time
}

func NewSelector(msgs MessageSource, windowHours, maxBatchSize int) *Selector {
	return &Selector{
		msgs:         msgs,
		windowHours:  windowHours,
		maxBatchSize: maxBatchSize,
		now:          time.Now,
	}
}

// WindowDuration returns the configured window span.
func (s *Selector) WindowDuration() time.Duration {
	return time.Duration(s.windowHours) * time.Hour
}

// SelectNext computes the batch after the given watermark: start is the
// watermark (exclusive), end is start+window clamped to now. Messages beyond
// maxBatchSize stay pending for a subsequent window. An empty result means
// nothing to do for now; the watermark is never advanced here.
func (s *Selector) SelectNext(ctx context.Context, streamID string, watermark time.Time) (Window, error) {
	start := watermark
	end := start.Add(s.WindowDuration())
	if now := s.now(); end.After(now) {
		end = now
	}

	w := Window{Start: start, End: end}
	if !end.After(start) {
		return w, nil
	}

	msgs, err := s.msgs.ListPendingMessagesInWindow(ctx, streamID, start, end, s.maxBatchSize)
	if err != nil {
		return Window{}, fmt.Errorf("select window for %s: %w", streamID, err)
	}
	w.Messages = msgs

	// A full batch means the window may hold overflow. Pull the end back to
	// the last selected message so committing this window keeps the overflow
	// after the watermark, selectable by the next window.
	if len(msgs) == s.maxBatchSize {
		w.End = msgs[len(msgs)-1].Timestamp
	}
	return w, nil
}
