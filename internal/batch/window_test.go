package batch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/threadscribe/threadscribe/pkg/models"
)

type fakeSource struct {
	messages []models.UnifiedMessage
	err      error

	lastAfter time.Time
	lastUntil time.Time
	lastLimit int
}

func (f *fakeSource) ListPendingMessagesInWindow(_ context.Context, _ string, after, until time.Time, limit int) ([]models.UnifiedMessage, error) {
	f.lastAfter = after
	f.lastUntil = until
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}

	var out []models.UnifiedMessage
	for _, m := range f.messages {
		if m.Timestamp.After(after) && !m.Timestamp.After(until) {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func msgAt(ts time.Time) models.UnifiedMessage {
	return models.UnifiedMessage{
		ID:               uuid.New(),
		StreamID:         "general",
		Timestamp:        ts,
		ProcessingStatus: models.StatusPending,
	}
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSelectNextWindowBounds(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{}
	s := NewSelector(src, 24, 500)
	s.now = fixedNow(base.Add(72 * time.Hour))

	win, err := s.SelectNext(context.Background(), "general", base)
	if err != nil {
		t.Fatalf("SelectNext: %v", err)
	}

	if !win.Start.Equal(base) {
		t.Errorf("start = %v, want %v", win.Start, base)
	}
	if want := base.Add(24 * time.Hour); !win.End.Equal(want) {
		t.Errorf("end = %v, want %v", win.End, want)
	}
	if !src.lastAfter.Equal(base) || !src.lastUntil.Equal(win.End) {
		t.Errorf("queried (%v, %v], want (%v, %v]", src.lastAfter, src.lastUntil, base, win.End)
	}
}

func TestSelectNextClampsEndToNow(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := base.Add(6 * time.Hour)
	s := NewSelector(&fakeSource{}, 24, 500)
	s.now = fixedNow(now)

	win, err := s.SelectNext(context.Background(), "general", base)
	if err != nil {
		t.Fatalf("SelectNext: %v", err)
	}
	if !win.End.Equal(now) {
		t.Errorf("end = %v, want clamped to now %v", win.End, now)
	}
}

func TestSelectNextEmptyWhenWatermarkCurrent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{messages: []models.UnifiedMessage{msgAt(now.Add(-time.Hour))}}
	s := NewSelector(src, 24, 500)
	s.now = fixedNow(now)

	// Watermark already at now: the window has zero span and no query runs.
	win, err := s.SelectNext(context.Background(), "general", now)
	if err != nil {
		t.Fatalf("SelectNext: %v", err)
	}
	if !win.Empty() {
		t.Errorf("expected empty window, got %d messages", len(win.Messages))
	}
	if !src.lastUntil.IsZero() {
		t.Error("store queried despite zero-span window")
	}
}

func TestSelectNextRespectsMaxBatchSize(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{}
	for i := 0; i < 10; i++ {
		src.messages = append(src.messages, msgAt(base.Add(time.Duration(i+1)*time.Minute)))
	}
	s := NewSelector(src, 24, 3)
	s.now = fixedNow(base.Add(48 * time.Hour))

	win, err := s.SelectNext(context.Background(), "general", base)
	if err != nil {
		t.Fatalf("SelectNext: %v", err)
	}
	if len(win.Messages) != 3 {
		t.Errorf("got %d messages, want 3", len(win.Messages))
	}
	if src.lastLimit != 3 {
		t.Errorf("limit = %d, want 3", src.lastLimit)
	}
	// A truncated window ends at the last selected message, not the time
	// bound, so the watermark never jumps past the overflow.
	if want := base.Add(3 * time.Minute); !win.End.Equal(want) {
		t.Errorf("end = %v, want last message timestamp %v", win.End, want)
	}
}

func TestSelectNextFullWindowKeepsTimeBound(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{messages: []models.UnifiedMessage{
		msgAt(base.Add(time.Minute)),
		msgAt(base.Add(2 * time.Minute)),
	}}
	s := NewSelector(src, 24, 3)
	s.now = fixedNow(base.Add(48 * time.Hour))

	win, err := s.SelectNext(context.Background(), "general", base)
	if err != nil {
		t.Fatalf("SelectNext: %v", err)
	}
	if want := base.Add(24 * time.Hour); !win.End.Equal(want) {
		t.Errorf("end = %v, want full window bound %v", win.End, want)
	}
}

func TestSelectNextBoundariesExclusiveStartInclusiveEnd(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := base.Add(24 * time.Hour)
	src := &fakeSource{messages: []models.UnifiedMessage{
		msgAt(base),                // == watermark: excluded
		msgAt(base.Add(time.Hour)), // inside
		msgAt(end),                 // == end: included
		msgAt(end.Add(time.Hour)),  // beyond: excluded
	}}
	s := NewSelector(src, 24, 500)
	s.now = fixedNow(end.Add(48 * time.Hour))

	win, err := s.SelectNext(context.Background(), "general", base)
	if err != nil {
		t.Fatalf("SelectNext: %v", err)
	}
	if len(win.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(win.Messages))
	}
	if !win.Messages[1].Timestamp.Equal(end) {
		t.Errorf("boundary message at end not included")
	}
}
