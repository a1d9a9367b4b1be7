package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OrderEventPublisher публикует события outbox в topic заказов.
// Ключ сообщения: ID заказа, поэтому события одного заказа идут в одну партицию.
type OrderEventPublisher struct {
	producer *Producer
	topic    string
}

// NewOrderEventPublisher создаёт publisher; пустой topic заменяется на TopicOrderEvents.
func NewOrderEventPublisher(producer *Producer, topic string) *OrderEventPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OrderEventPublisher{producer: producer, topic: topic}
}

// Publish реализует domain.OutboxPublisher.
func (p *OrderEventPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka order event publisher is not initialized")
	}

	body, err := json.Marshal(Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		OccurredAt:    event.CreatedAt,
		PublishedAt:   p.producer.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal order event envelope: %w", err)
	}

	return p.producer.Send(ctx, p.topic, messageKey(event), body, map[string]string{
		HeaderEventType:     event.EventType,
		HeaderOutboxID:      event.ID,
		HeaderAggregateType: event.AggregateType,
	})
}

// DeadLetterPublisher отправляет в DLQ события, которые не удалось опубликовать.
// Тело уже подготовлено relay'ем и передаётся как есть.
type DeadLetterPublisher struct {
	producer      *Producer
	topic         string
	originalTopic string
}

// NewDeadLetterPublisher создаёт publisher для DLQ.
func NewDeadLetterPublisher(producer *Producer, topic, originalTopic string) *DeadLetterPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	if originalTopic == "" {
		originalTopic = TopicOrderEvents
	}
	return &DeadLetterPublisher{producer: producer, topic: topic, originalTopic: originalTopic}
}

// Publish реализует domain.OutboxPublisher.
func (p *DeadLetterPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dead letter publisher is not initialized")
	}

	return p.producer.Send(ctx, p.topic, messageKey(event), event.Payload, map[string]string{
		HeaderEventType:     event.EventType,
		HeaderOutboxID:      event.ID,
		HeaderOriginalTopic: p.originalTopic,
		HeaderFailedAt:      p.producer.now().Format(time.RFC3339Nano),
	})
}

func messageKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}

var (
	_ domain.OutboxPublisher = (*OrderEventPublisher)(nil)
	_ domain.OutboxPublisher = (*DeadLetterPublisher)(nil)
)
