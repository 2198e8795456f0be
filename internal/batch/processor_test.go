package batch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/threadscribe/threadscribe/internal/pipeline"
	"github.com/threadscribe/threadscribe/pkg/models"
)

// fakeStore is an in-memory Store for exercising the scheduler without
// Postgres. Not safe for concurrent use except where tests synchronize.
type fakeStore struct {
	mu         sync.Mutex
	messages   []models.UnifiedMessage
	watermarks map[string]models.ProcessingWatermark
	proposals  []models.Proposal

	completeErr  error
	advanceErr   error
	upsertErr    error
	advanceCalls []time.Time
}

func newFakeStore(msgs ...models.UnifiedMessage) *fakeStore {
	return &fakeStore{
		messages:   msgs,
		watermarks: make(map[string]models.ProcessingWatermark),
	}
}

func (f *fakeStore) ListPendingMessagesInWindow(_ context.Context, streamID string, after, until time.Time, limit int) ([]models.UnifiedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.UnifiedMessage
	for _, m := range f.messages {
		if m.StreamID != streamID || m.ProcessingStatus != models.StatusPending {
			continue
		}
		if m.Timestamp.After(after) && !m.Timestamp.After(until) {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListPendingStreamIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, m := range f.messages {
		if m.ProcessingStatus == models.StatusPending && !seen[m.StreamID] {
			seen[m.StreamID] = true
			out = append(out, m.StreamID)
		}
	}
	return out, nil
}

func (f *fakeStore) EarliestPendingTimestamp(_ context.Context, streamID string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var earliest time.Time
	for _, m := range f.messages {
		if m.StreamID != streamID || m.ProcessingStatus != models.StatusPending {
			continue
		}
		if earliest.IsZero() || m.Timestamp.Before(earliest) {
			earliest = m.Timestamp
		}
	}
	if earliest.IsZero() {
		return time.Time{}, pgx.ErrNoRows
	}
	return earliest, nil
}

func (f *fakeStore) ListMessagesInWindow(_ context.Context, streamID string, after, until time.Time, limit int) ([]models.UnifiedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.UnifiedMessage
	for _, m := range f.messages {
		if m.StreamID != streamID {
			continue
		}
		if m.Timestamp.After(after) && !m.Timestamp.After(until) {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) MarkMessagesCompleted(_ context.Context, ids []uuid.UUID) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for i := range f.messages {
		if set[f.messages[i].ID] {
			f.messages[i].ProcessingStatus = models.StatusCompleted
		}
	}
	return nil
}

func (f *fakeStore) GetWatermark(_ context.Context, streamID string) (models.ProcessingWatermark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wm, ok := f.watermarks[streamID]
	if !ok {
		return models.ProcessingWatermark{}, pgx.ErrNoRows
	}
	return wm, nil
}

func (f *fakeStore) CreateWatermark(_ context.Context, streamID string, at time.Time) (models.ProcessingWatermark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wm := models.ProcessingWatermark{StreamID: streamID, WatermarkTime: at}
	f.watermarks[streamID] = wm
	return wm, nil
}

func (f *fakeStore) AdvanceWatermark(_ context.Context, streamID string, to time.Time, batchID string) error {
	if f.advanceErr != nil {
		return f.advanceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanceCalls = append(f.advanceCalls, to)
	wm := f.watermarks[streamID]
	// Monotonic: never move backwards.
	if to.After(wm.WatermarkTime) {
		wm.WatermarkTime = to
	}
	wm.StreamID = streamID
	wm.LastProcessedBatch = batchID
	f.watermarks[streamID] = wm
	return nil
}

func (f *fakeStore) UpsertProposalsBatch(_ context.Context, proposals []models.Proposal) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proposals = append(f.proposals, proposals...)
	return nil
}

func (f *fakeStore) pendingCount(streamID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.messages {
		if m.StreamID == streamID && m.ProcessingStatus == models.StatusPending {
			n++
		}
	}
	return n
}

// fakeRunner returns canned results and records the contexts it saw.
type fakeRunner struct {
	mu       sync.Mutex
	fail     bool
	failOnce bool
	contexts []*pipeline.Context
	block    chan struct{} // if set, Execute waits until closed
}

func (r *fakeRunner) Execute(_ context.Context, pc *pipeline.Context) *pipeline.Result {
	// Record before blocking so callers can observe that the run started.
	r.mu.Lock()
	r.contexts = append(r.contexts, pc)
	fail := r.fail
	if r.failOnce {
		r.fail = false
	}
	r.mu.Unlock()

	if r.block != nil {
		<-r.block
	}

	if fail {
		return &pipeline.Result{Success: false, Errors: []pipeline.Error{{StepID: "classify", Message: "boom"}}}
	}
	// Emit one proposal per batch so commit paths are exercised.
	pc.Threads = []models.ConversationThread{{ID: "t1"}}
	pc.Proposals["t1"] = []models.Proposal{{
		ID:            uuid.New(),
		ThreadID:      "t1",
		UpdateType:    models.UpdateInsert,
		Page:          "guides/setup",
		Section:       "install",
		SuggestedText: "updated",
	}}
	return &pipeline.Result{Success: true}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcessor(s *fakeStore, runner Runner, now time.Time) *Processor {
	sel := NewSelector(s, 24, 500)
	sel.now = func() time.Time { return now }
	return NewProcessor(s, sel, runner, pipeline.Services{}, testLogger())
}

func pendingMsg(streamID string, ts time.Time) models.UnifiedMessage {
	return models.UnifiedMessage{
		ID:               uuid.New(),
		StreamID:         streamID,
		ExternalID:       uuid.NewString(),
		Timestamp:        ts,
		ProcessingStatus: models.StatusPending,
	}
}

func TestProcessBatchFirstRunInitializesWatermark(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeStore(
		pendingMsg("general", base),
		pendingMsg("general", base.Add(time.Minute)),
	)
	runner := &fakeRunner{}
	p := newTestProcessor(store, runner, base.Add(2*time.Hour))

	n, err := p.ProcessBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if n != 2 {
		t.Errorf("processed %d messages, want 2", n)
	}

	// The init watermark sits just before the earliest message so the
	// exclusive start still picks it up.
	wm := store.watermarks["general"]
	if !wm.WatermarkTime.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("watermark = %v, want advanced to window end %v", wm.WatermarkTime, base.Add(2*time.Hour))
	}
	if store.pendingCount("general") != 0 {
		t.Errorf("%d messages left pending, want 0", store.pendingCount("general"))
	}
	if len(store.proposals) != 1 {
		t.Fatalf("got %d proposals, want 1", len(store.proposals))
	}
	if store.proposals[0].StreamID != "general" {
		t.Errorf("proposal stream = %q, want general", store.proposals[0].StreamID)
	}
	if store.proposals[0].BatchEnd.IsZero() {
		t.Error("proposal batch end not stamped")
	}
}

func TestProcessBatchDrainsBacklogAcrossWindows(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Messages spread across three day-sized windows.
	store := newFakeStore(
		pendingMsg("general", base.Add(1*time.Hour)),
		pendingMsg("general", base.Add(30*time.Hour)),
		pendingMsg("general", base.Add(60*time.Hour)),
	)
	runner := &fakeRunner{}
	p := newTestProcessor(store, runner, base.Add(72*time.Hour))

	n, err := p.ProcessBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if n != 3 {
		t.Errorf("processed %d messages, want 3", n)
	}
	if got := len(runner.contexts); got < 3 {
		t.Errorf("pipeline ran %d times, want at least 3 windows", got)
	}
	if store.pendingCount("general") != 0 {
		t.Errorf("backlog not drained, %d pending", store.pendingCount("general"))
	}
}

func TestProcessBatchOverflowIsNotStranded(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Three messages inside a single time window, batch size two: the first
	// batch is truncated and its watermark must stop at the second message,
	// leaving the third selectable.
	store := newFakeStore(
		pendingMsg("general", base.Add(1*time.Minute)),
		pendingMsg("general", base.Add(2*time.Minute)),
		pendingMsg("general", base.Add(3*time.Minute)),
	)
	runner := &fakeRunner{}
	sel := NewSelector(store, 24, 2)
	sel.now = func() time.Time { return base.Add(time.Hour) }
	p := NewProcessor(store, sel, runner, pipeline.Services{}, testLogger())

	n, err := p.ProcessBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if n != 3 {
		t.Errorf("processed %d messages, want 3", n)
	}
	if store.pendingCount("general") != 0 {
		t.Errorf("%d messages stranded pending", store.pendingCount("general"))
	}
	if len(store.advanceCalls) < 2 {
		t.Fatalf("watermark advanced %d times, want 2", len(store.advanceCalls))
	}
	if want := base.Add(2 * time.Minute); !store.advanceCalls[0].Equal(want) {
		t.Errorf("truncated batch watermark = %v, want last message %v", store.advanceCalls[0], want)
	}
}

func TestProcessBatchPipelineFailureCommitsNothing(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeStore(pendingMsg("general", base))
	runner := &fakeRunner{fail: true}
	p := newTestProcessor(store, runner, base.Add(time.Hour))

	n, err := p.ProcessBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if n != 0 {
		t.Errorf("processed %d, want 0 on failure", n)
	}
	if store.pendingCount("general") != 1 {
		t.Error("message completed despite pipeline failure")
	}
	if len(store.proposals) != 0 {
		t.Error("proposals committed despite pipeline failure")
	}
	if len(store.advanceCalls) != 0 {
		t.Error("watermark advanced despite pipeline failure")
	}

	// The message is retried on the next sweep once the pipeline recovers.
	runner.fail = false
	n, err = p.ProcessBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("ProcessBatch retry: %v", err)
	}
	if n != 1 {
		t.Errorf("retry processed %d, want 1", n)
	}
}

func TestProcessBatchSkipsSentinelStreams(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeStore(
		pendingMsg("general", base),
		pendingMsg("test:fixtures", base),
	)
	runner := &fakeRunner{}
	p := newTestProcessor(store, runner, base.Add(time.Hour))

	if _, err := p.ProcessBatch(context.Background(), Options{}); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if store.pendingCount("test:fixtures") != 1 {
		t.Error("sentinel stream processed by unfiltered sweep")
	}

	// Explicitly naming the sentinel stream processes it.
	n, err := p.ProcessBatch(context.Background(), Options{StreamID: "test:fixtures"})
	if err != nil {
		t.Fatalf("ProcessBatch filtered: %v", err)
	}
	if n != 1 {
		t.Errorf("filtered sweep processed %d, want 1", n)
	}
}

func TestProcessBatchStreamFilter(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeStore(
		pendingMsg("general", base),
		pendingMsg("support", base),
	)
	runner := &fakeRunner{}
	p := newTestProcessor(store, runner, base.Add(time.Hour))

	n, err := p.ProcessBatch(context.Background(), Options{StreamID: "support"})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if n != 1 {
		t.Errorf("processed %d, want 1", n)
	}
	if store.pendingCount("general") != 1 {
		t.Error("unfiltered stream was processed")
	}
	if store.pendingCount("support") != 0 {
		t.Error("filtered stream was not processed")
	}
}

func TestProcessBatchConcurrentCallIsNoOp(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeStore(pendingMsg("general", base))
	runner := &fakeRunner{block: make(chan struct{})}
	p := newTestProcessor(store, runner, base.Add(time.Hour))

	done := make(chan int, 1)
	go func() {
		n, _ := p.ProcessBatch(context.Background(), Options{})
		done <- n
	}()

	// Wait for the first sweep to reach the blocked pipeline.
	deadline := time.After(2 * time.Second)
	for {
		runner.mu.Lock()
		started := len(runner.contexts) > 0
		runner.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first sweep never reached the pipeline")
		case <-time.After(time.Millisecond):
		}
	}

	n, err := p.ProcessBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("concurrent ProcessBatch: %v", err)
	}
	if n != 0 {
		t.Errorf("concurrent call processed %d, want 0", n)
	}

	close(runner.block)
	if first := <-done; first != 1 {
		t.Errorf("original sweep processed %d, want 1", first)
	}
}

func TestProcessBatchWatermarkAdvanceFailureLeavesStatusGroundTruth(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeStore(pendingMsg("general", base))
	store.advanceErr = errors.New("connection reset")
	runner := &fakeRunner{}
	p := newTestProcessor(store, runner, base.Add(time.Hour))

	n, err := p.ProcessBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	// The failed watermark write aborts the stream loop before the batch is
	// counted, but proposals and completion already landed. Message status is
	// ground truth: the stale watermark cannot resurrect the message because
	// window selection only sees pending rows.
	if n != 0 {
		t.Errorf("processed %d, want 0 for the aborted stream", n)
	}
	if store.pendingCount("general") != 0 {
		t.Error("message still pending after completion committed")
	}
	if len(store.proposals) != 1 {
		t.Errorf("got %d proposals, want 1", len(store.proposals))
	}

	store.advanceErr = nil
	n, err = p.ProcessBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("ProcessBatch after recovery: %v", err)
	}
	if n != 0 {
		t.Errorf("re-sweep processed %d completed messages, want 0", n)
	}
}

func TestProcessBatchStreamErrorIsContained(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeStore(
		pendingMsg("aaa", base),
		pendingMsg("bbb", base),
	)
	// Upsert fails for every stream's commit; sweep still visits both and
	// returns without error.
	store.upsertErr = errors.New("unique violation")
	runner := &fakeRunner{}
	p := newTestProcessor(store, runner, base.Add(time.Hour))

	n, err := p.ProcessBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if n != 0 {
		t.Errorf("processed %d, want 0", n)
	}
	if len(runner.contexts) != 2 {
		t.Errorf("pipeline ran %d times, want 2 (one per stream)", len(runner.contexts))
	}
}
