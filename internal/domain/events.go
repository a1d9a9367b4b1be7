package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// OrderEventType: тип доменного события заказа для outbox.
type OrderEventType string

const (
	OrderEventCreated   OrderEventType = "order.created"
	OrderEventUpdated   OrderEventType = "order.updated"
	OrderEventCancelled OrderEventType = "order.cancelled"
)

// AggregateTypeOrder используется как aggregate_type сообщений outbox.
const AggregateTypeOrder = "order"

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OrderEvent: полезная нагрузка события заказа.
type OrderEvent struct {
	EventType  OrderEventType   `json:"event_type"`
	OrderID    int64            `json:"order_id"`
	UserID     int64            `json:"user_id"`
	Status     OrderStatus      `json:"status"`
	Total      string           `json:"total"`
	Lines      []OrderEventLine `json:"lines,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// OrderEventLine: позиция в событии заказа.
type OrderEventLine struct {
	ProductID int64  `json:"produto_id"`
	Quantity  int    `json:"quantidade"`
	UnitPrice string `json:"preco_unitario"`
}

// NewOrderOutboxMessage сериализует состояние заказа в сообщение outbox.
func NewOrderOutboxMessage(eventType OrderEventType, order Order, at time.Time) (OutboxMessage, error) {
	event := OrderEvent{
		EventType:  eventType,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		Total:      order.Total().StringFixed(2),
		OccurredAt: at.UTC(),
	}
	for _, line := range order.Lines {
		event.Lines = append(event.Lines, OrderEventLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
		})
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal order event: %w", err)
	}

	return OutboxMessage{
		AggregateType: AggregateTypeOrder,
		AggregateID:   strconv.FormatInt(order.ID, 10),
		EventType:     string(eventType),
		Payload:       payload,
		CreatedAt:     at.UTC(),
	}, nil
}
