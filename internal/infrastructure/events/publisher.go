package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	BidPlaced          = "bid.placed"
	OrderCreated       = "order.created"
	OrderPaid          = "order.paid"
	OrderCompleted     = "order.completed"
	OrderDisputed      = "order.disputed"
	OrderAutoReleased  = "order.auto_released"
	HandoffCodeCreated = "handoff.code_generated"
	RatingSubmitted    = "rating.submitted"
)

// Event is the envelope published for every lifecycle transition after it commits.
type Event struct {
	Type       string                 `json:"type"`
	Key        string                 `json:"key"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

// Publisher delivers lifecycle events. Delivery is best effort and never affects the committed transition.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// KafkaPublisher produces events to a single topic keyed by aggregate id.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher connects a franz-go producer to the given brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(e.Key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	return p.client.ProduceSync(ctx, rec).FirstErr()
}

// Close flushes buffered records and closes the client.
func (p *KafkaPublisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}

// Emit publishes and logs failures; callers have already committed the transition.
func Emit(ctx context.Context, p Publisher, eventType, key string, data map[string]interface{}) {
	if p == nil {
		return
	}
	e := Event{Type: eventType, Key: key, OccurredAt: time.Now().UTC(), Data: data}
	if err := p.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Str("key", key).Msg("event publish failed")
	}
}
