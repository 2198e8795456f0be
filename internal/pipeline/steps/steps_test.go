package steps

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/threadscribe/threadscribe/internal/pipeline"
	"github.com/threadscribe/threadscribe/pkg/models"
)

// fakeLLM answers every RequestJSON by unmarshalling a canned response.
type fakeLLM struct {
	response string
	err      error
	requests []pipeline.LLMRequest
}

func (f *fakeLLM) RequestJSON(_ context.Context, req pipeline.LLMRequest, out any) error {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.response), out)
}

func (f *fakeLLM) RequestText(_ context.Context, req pipeline.LLMRequest) (string, error) {
	f.requests = append(f.requests, req)
	return f.response, f.err
}

func (f *fakeLLM) ModelInfo() pipeline.ModelInfo {
	return pipeline.ModelInfo{Provider: "fake", Model: "fake-1"}
}

// fakeCostPerCall is what the fake reports per request so cost accounting
// can be asserted against call counts.
const fakeCostPerCall = 0.001

func (f *fakeLLM) EstimateCost(pipeline.LLMRequest) float64 { return fakeCostPerCall }

// fakePrompts renders templates as "<name>" and records the data it saw.
type fakePrompts struct {
	err  error
	seen map[string]any
}

func (f *fakePrompts) Render(name string, data any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]any)
	}
	f.seen[name] = data
	return "<" + name + ">", nil
}

type fakeRAG struct {
	docs    []models.RagDocument
	err     error
	queries []string
}

func (f *fakeRAG) SearchSimilarDocs(_ context.Context, query string, topK int) ([]models.RagDocument, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if topK < len(f.docs) {
		return f.docs[:topK], nil
	}
	return f.docs, nil
}

func newBatchContext(msgs ...models.UnifiedMessage) *pipeline.Context {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return pipeline.NewContext("general", start, start.Add(24*time.Hour), msgs, nil, pipeline.Services{})
}

func message(author, content string) models.UnifiedMessage {
	return models.UnifiedMessage{
		ID:        uuid.New(),
		StreamID:  "general",
		Author:    author,
		Content:   content,
		Timestamp: time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC),
	}
}
