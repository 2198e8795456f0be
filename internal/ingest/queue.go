package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"
)

const (
	// MessageStream carries normalized inbound messages from the API to the
	// worker, which persists them as pending.
	MessageStream = "scribe:messages"
	MessageGroup  = "scribe-ingest"

	// SweepStream carries manual batch-trigger requests.
	SweepStream = "scribe:sweeps"
	SweepGroup  = "scribe-sweepers"
)

// InboundMessage is the wire payload for one ingested message.
type InboundMessage struct {
	StreamID   string    `json:"stream_id"`
	ExternalID string    `json:"external_id"`
	Timestamp  time.Time `json:"timestamp"`
	Author     string    `json:"author"`
	Content    string    `json:"content"`
}

// SweepRequest asks the worker to run one scheduling sweep, optionally
// restricted to a single stream.
type SweepRequest struct {
	StreamID    string `json:"stream_id,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// Producer enqueues ingestion payloads to the Valkey streams.
type Producer struct {
	client valkey.Client
}

func NewProducer(client valkey.Client) *Producer {
	return &Producer{client: client}
}

func (p *Producer) EnqueueMessage(ctx context.Context, msg InboundMessage) (string, error) {
	return p.enqueue(ctx, MessageStream, msg)
}

func (p *Producer) EnqueueSweep(ctx context.Context, req SweepRequest) (string, error) {
	return p.enqueue(ctx, SweepStream, req)
}

func (p *Producer) enqueue(ctx context.Context, stream string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	resp := p.client.Do(ctx, p.client.B().Xadd().
		Key(stream).Id("*").
		FieldValue().FieldValue("data", string(data)).
		Build())
	if err := resp.Error(); err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}

	id, err := resp.ToString()
	if err != nil {
		return "", fmt.Errorf("parse xadd response: %w", err)
	}
	return id, nil
}

// Consumer reads payloads of type T from one Valkey stream via a consumer
// group, ACKing only after the handler succeeds.
type Consumer[T any] struct {
	client     valkey.Client
	stream     string
	group      string
	consumerID string
	logger     *slog.Logger
}

func NewMessageConsumer(client valkey.Client, consumerID string, logger *slog.Logger) *Consumer[InboundMessage] {
	return &Consumer[InboundMessage]{
		client: client, stream: MessageStream, group: MessageGroup,
		consumerID: consumerID, logger: logger,
	}
}

func NewSweepConsumer(client valkey.Client, consumerID string, logger *slog.Logger) *Consumer[SweepRequest] {
	return &Consumer[SweepRequest]{
		client: client, stream: SweepStream, group: SweepGroup,
		consumerID: consumerID, logger: logger,
	}
}

// EnsureGroup creates the consumer group if it doesn't exist.
func (c *Consumer[T]) EnsureGroup(ctx context.Context) error {
	resp := c.client.Do(ctx, c.client.B().XgroupCreate().
		Key(c.stream).Group(c.group).Id("0").Mkstream().Build())
	if err := resp.Error(); err != nil {
		// BUSYGROUP means group already exists — that's fine
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return fmt.Errorf("xgroup create %s: %w", c.stream, err)
		}
	}
	return nil
}

// Consume blocks reading the stream, processing each payload via handler,
// and ACKs on success. On startup it first drains messages previously
// delivered to this consumer but never ACKed.
func (c *Consumer[T]) Consume(ctx context.Context, handler func(context.Context, T) error) error {
	c.drainPending(ctx, handler)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resp := c.client.Do(ctx, c.client.B().Xreadgroup().
			Group(c.group, c.consumerID).
			Count(10).Block(5000).
			Streams().Key(c.stream).Id(">").
			Build())

		if err := resp.Error(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Timeout is normal for BLOCK reads
			continue
		}

		results, err := resp.AsXRead()
		if err != nil {
			continue
		}

		for _, messages := range results {
			for _, msg := range messages {
				c.process(ctx, msg, handler)
			}
		}
	}
}

// drainPending re-processes messages from a previous crash (Id "0" returns
// this consumer's pending entries).
func (c *Consumer[T]) drainPending(ctx context.Context, handler func(context.Context, T) error) {
	resp := c.client.Do(ctx, c.client.B().Xreadgroup().
		Group(c.group, c.consumerID).
		Count(50).
		Streams().Key(c.stream).Id("0").
		Build())

	if err := resp.Error(); err != nil {
		c.logger.Warn("drain pending failed",
			slog.String("stream", c.stream),
			slog.String("error", err.Error()))
		return
	}

	results, err := resp.AsXRead()
	if err != nil {
		return
	}

	for _, messages := range results {
		for _, msg := range messages {
			c.logger.Info("recovering pending entry",
				slog.String("stream", c.stream),
				slog.String("id", msg.ID))
			c.process(ctx, msg, handler)
		}
	}
}

func (c *Consumer[T]) process(ctx context.Context, msg valkey.XRangeEntry, handler func(context.Context, T) error) {
	dataStr, ok := msg.FieldValues["data"]
	if !ok {
		c.logger.Warn("entry missing data field",
			slog.String("stream", c.stream),
			slog.String("id", msg.ID))
		c.ack(ctx, msg.ID)
		return
	}

	var payload T
	if err := json.Unmarshal([]byte(dataStr), &payload); err != nil {
		c.logger.Error("unmarshal entry",
			slog.String("stream", c.stream),
			slog.String("error", err.Error()),
			slog.String("id", msg.ID))
		c.ack(ctx, msg.ID)
		return
	}

	if err := handler(ctx, payload); err != nil {
		c.logger.Error("handle entry",
			slog.String("stream", c.stream),
			slog.String("error", err.Error()),
			slog.String("id", msg.ID))
	} else {
		c.ack(ctx, msg.ID)
	}
}

func (c *Consumer[T]) ack(ctx context.Context, msgID string) {
	resp := c.client.Do(ctx, c.client.B().Xack().
		Key(c.stream).Group(c.group).Id(msgID).Build())
	if err := resp.Error(); err != nil {
		c.logger.Error("xack failed",
			slog.String("stream", c.stream),
			slog.String("error", err.Error()),
			slog.String("id", msgID))
	}
}
