package steps

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/threadscribe/threadscribe/internal/pipeline"
)

func TestClassifyBuildsThreads(t *testing.T) {
	m1 := message("ana", "the webhook keeps timing out on large payloads")
	m2 := message("bob", "bump the timeout in the receiver config")
	pc := newBatchContext(m1, m2)
	pc.FilteredMessages = pc.Messages

	llm := &fakeLLM{response: fmt.Sprintf(`[{
		"category": "support",
		"summary": "webhook timeout troubleshooting",
		"message_ids": [%q, %q],
		"search_terms": ["webhook", "timeout"]
	}]`, m1.ID, m2.ID)}
	prompts := &fakePrompts{}

	c := NewClassify(pipeline.StepConfig{ID: "classify"}, pipeline.StepDeps{LLM: llm, Prompts: prompts})
	if err := c.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(pc.Threads) != 1 {
		t.Fatalf("got %d threads, want 1", len(pc.Threads))
	}
	th := pc.Threads[0]
	if th.Category != "support" {
		t.Errorf("category = %q", th.Category)
	}
	if len(th.MessageIDs) != 2 {
		t.Errorf("thread has %d messages, want 2", len(th.MessageIDs))
	}
	if th.ID == "" {
		t.Error("thread id not assigned")
	}
	if pc.Metrics.LLMCalls != 1 {
		t.Errorf("llm calls = %d, want 1", pc.Metrics.LLMCalls)
	}
	if math.Abs(pc.Metrics.EstimatedCost-fakeCostPerCall) > 1e-12 {
		t.Errorf("estimated cost = %v, want %v", pc.Metrics.EstimatedCost, fakeCostPerCall)
	}
	if _, ok := prompts.seen["classify"]; !ok {
		t.Error("classify template not rendered")
	}
}

func TestClassifyDropsHallucinatedMessageIDs(t *testing.T) {
	m1 := message("ana", "real message in this batch right here")
	pc := newBatchContext(m1)
	pc.FilteredMessages = pc.Messages

	llm := &fakeLLM{response: fmt.Sprintf(`[
		{"category": "support", "summary": "real", "message_ids": [%q, %q]},
		{"category": "noise", "summary": "invented", "message_ids": [%q]},
		{"category": "junk", "summary": "garbage ids", "message_ids": ["not-a-uuid"]}
	]`, m1.ID, uuid.New(), uuid.New())}

	c := NewClassify(pipeline.StepConfig{ID: "classify"}, pipeline.StepDeps{LLM: llm, Prompts: &fakePrompts{}})
	if err := c.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// Threads whose ids all fail validation disappear; valid ids survive.
	if len(pc.Threads) != 1 {
		t.Fatalf("got %d threads, want 1", len(pc.Threads))
	}
	if len(pc.Threads[0].MessageIDs) != 1 || pc.Threads[0].MessageIDs[0] != m1.ID {
		t.Errorf("thread ids = %v, want only %v", pc.Threads[0].MessageIDs, m1.ID)
	}
}

func TestClassifyPropagatesLLMError(t *testing.T) {
	pc := newBatchContext(message("ana", "some perfectly fine message"))
	pc.FilteredMessages = pc.Messages

	llm := &fakeLLM{err: errors.New("rate limited")}
	c := NewClassify(pipeline.StepConfig{ID: "classify"}, pipeline.StepDeps{LLM: llm, Prompts: &fakePrompts{}})

	if err := c.Execute(context.Background(), pc); err == nil {
		t.Fatal("expected error from failing LLM")
	}
	if len(pc.Threads) != 0 {
		t.Error("threads set despite error")
	}
}
