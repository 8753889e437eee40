package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/storefrontlabs/checkout/internal/event"
)

type StreamProducer struct {
	client *redis.Client
}

func NewStreamProducer(client *redis.Client) *StreamProducer {
	return &StreamProducer{client: client}
}

// Publish appends an envelope to the given stream. The order id and event
// type ride as top-level fields so consumers can dispatch without unpacking
// the payload.
func (p *StreamProducer) Publish(ctx context.Context, stream string, env event.Envelope) error {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"order_id":   env.OrderID.String(),
			"event_type": string(env.Type),
			"payload":    string(env.Payload),
			"timestamp":  env.OccurredAt.Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", env.Type, stream, err)
	}

	return nil
}

// PublishToDLQ parks a message that exhausted its retries, keeping the
// original envelope alongside the failure reason.
func (p *StreamProducer) PublishToDLQ(ctx context.Context, env event.Envelope, reason string) error {
	original, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ envelope: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: event.StreamDLQ,
		Values: map[string]any{
			"order_id":   env.OrderID.String(),
			"event_type": string(env.Type),
			"reason":     reason,
			"payload":    string(original),
			"timestamp":  time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	return nil
}

// DecodeEnvelope rebuilds an event envelope from a stream message.
func DecodeEnvelope(msg redis.XMessage) (event.Envelope, error) {
	rawID, ok := msg.Values["order_id"].(string)
	if !ok {
		return event.Envelope{}, fmt.Errorf("message %s missing order_id", msg.ID)
	}
	orderID, err := uuid.Parse(rawID)
	if err != nil {
		return event.Envelope{}, fmt.Errorf("message %s has invalid order_id: %w", msg.ID, err)
	}

	eventType, ok := msg.Values["event_type"].(string)
	if !ok {
		return event.Envelope{}, fmt.Errorf("message %s missing event_type", msg.ID)
	}

	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return event.Envelope{}, fmt.Errorf("message %s missing payload", msg.ID)
	}

	env := event.Envelope{
		OrderID: orderID,
		Type:    event.Type(eventType),
		Payload: json.RawMessage(payload),
	}
	if ts, ok := msg.Values["timestamp"].(string); ok {
		var unix int64
		if _, err := fmt.Sscanf(ts, "%d", &unix); err == nil {
			env.OccurredAt = time.Unix(unix, 0)
		}
	}

	return env, nil
}

type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client *redis.Client,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) Stream() string {
	return c.stream
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	// Create stream if it doesn't exist
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XStream, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			// No new messages
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	return streams, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	err := c.client.XAck(ctx, c.stream, c.group, messageID).Err()
	if err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ReclaimStale takes over messages another consumer read but never acked,
// so a crashed worker's in-flight deliveries get reprocessed.
func (c *StreamConsumer) ReclaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()

	if err != nil {
		return nil, fmt.Errorf("failed to reclaim stale messages: %w", err)
	}

	return messages, nil
}
