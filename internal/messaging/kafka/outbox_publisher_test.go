package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var fixedNow = time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)

func newMockProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()

	mock := mocks.NewSyncProducer(t, nil)
	p := newProducer(mock)
	p.now = func() time.Time { return fixedNow }
	return p, mock
}

func header(msg *sarama.ProducerMessage, key string) string {
	for _, h := range msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func sampleEvent() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            "0b8a3c1e-5d4f-4a8e-9a63-2f7d41c0a001",
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "42",
		EventType:     string(domain.OrderEventCreated),
		Payload:       []byte(`{"order_id":42,"status":"pending"}`),
		CreatedAt:     fixedNow.Add(-time.Second),
	}
}

func TestOrderEventPublisher_Publish(t *testing.T) {
	producer, mock := newMockProducer(t)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "42" {
			return errors.New("message key must be the order id")
		}
		if header(msg, HeaderEventType) != string(domain.OrderEventCreated) {
			return errors.New("missing event type header")
		}

		raw, _ := msg.Value.Encode()
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		if !env.PublishedAt.Equal(fixedNow) || env.AggregateID != "42" {
			return errors.New("unexpected envelope")
		}
		return nil
	})

	if err := NewOrderEventPublisher(producer, "").Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := mock.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOrderEventPublisher_PublishProducerError(t *testing.T) {
	producer, mock := newMockProducer(t)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := NewOrderEventPublisher(producer, TopicOrderEvents).Publish(context.Background(), sampleEvent())
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}
	if err := mock.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOrderEventPublisher_CancelledContext(t *testing.T) {
	producer, mock := newMockProducer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewOrderEventPublisher(producer, "").Publish(ctx, sampleEvent())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := mock.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOrderEventPublisher_NilProducer(t *testing.T) {
	if err := NewOrderEventPublisher(nil, "").Publish(context.Background(), sampleEvent()); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestDeadLetterPublisher_Publish(t *testing.T) {
	producer, mock := newMockProducer(t)
	event := sampleEvent()
	event.Payload = []byte(`{"publish_error":"broker down"}`)

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicDeadLetterQueue {
			return errors.New("unexpected topic " + msg.Topic)
		}
		if header(msg, HeaderOriginalTopic) != TopicOrderEvents {
			return errors.New("missing original topic header")
		}
		if header(msg, HeaderFailedAt) != fixedNow.Format(time.RFC3339Nano) {
			return errors.New("unexpected failed-at header")
		}
		raw, _ := msg.Value.Encode()
		if string(raw) != string(event.Payload) {
			return errors.New("dead letter body must be forwarded as is")
		}
		return nil
	})

	if err := NewDeadLetterPublisher(producer, "", "").Publish(context.Background(), event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := mock.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestMessageKeyFallsBackToOutboxID(t *testing.T) {
	if got := messageKey(domain.OutboxMessage{ID: "abc"}); got != "abc" {
		t.Fatalf("expected outbox id as key, got %q", got)
	}
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(nil, ""); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestNewProducerConfig(t *testing.T) {
	cfg := newProducerConfig("")
	if cfg.ClientID != defaultClientID {
		t.Fatalf("unexpected client id %q", cfg.ClientID)
	}
	if !cfg.Producer.Idempotent || cfg.Net.MaxOpenRequests != 1 {
		t.Fatal("producer must be idempotent with a single in-flight request")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config must be valid: %v", err)
	}
}
