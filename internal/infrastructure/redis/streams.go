package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ikazeshop/payments/internal/domain/outbox"
	"github.com/redis/go-redis/v9"
)

const (
	// PaymentEventsStream carries terminal payment events to the storefront's
	// notification consumers.
	PaymentEventsStream = "payments:events"
	streamMaxLen        = 100_000
)

type StreamProducer struct {
	client redis.UniversalClient
	stream string
}

func NewStreamProducer(client redis.UniversalClient) *StreamProducer {
	return &StreamProducer{client: client, stream: PaymentEventsStream}
}

// PublishOutboxEntry appends entry to the payment events stream.
func (p *StreamProducer) PublishOutboxEntry(ctx context.Context, entry *outbox.Entry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":     entry.ID.String(),
			"event_type":   entry.EventType,
			"aggregate_id": entry.AggregateID.String(),
			"payload":      string(payload),
			"timestamp":    time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish payment event: %w", err)
	}
	return nil
}
