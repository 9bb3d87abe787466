package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Order lifecycle event types published through the outbox
const (
	EventOrderCreated       = "order_created"
	EventOrderPaid          = "order_paid"
	EventOrderStatusChanged = "order_status_changed"
)

// OutboxMessage is a pending event row, written in the same transaction as
// the order mutation it describes.
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	AggregateType      string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID        string       `db:"aggregate_id" json:"aggregate_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// OutboxMessageEvent is the envelope serialized into the payload column
type OutboxMessageEvent struct {
	EventType   string      `json:"event_type"`
	EventID     string      `json:"event_id"`
	AggregateID string      `json:"aggregate_id"`
	OccurredAt  time.Time   `json:"occurred_at"`
	Data        interface{} `json:"data"`
}

func newOrderOutboxMessage(eventType string, orderID string, data interface{}) (*OutboxMessage, error) {
	event := OutboxMessageEvent{
		EventType:   eventType,
		EventID:     GenerateID("evt"),
		AggregateID: orderID,
		OccurredAt:  GetCurrentTime(),
		Data:        data,
	}

	payload, err := json.Marshal(event)

	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		EventType:          eventType,
		Payload:            payload,
		AggregateType:      "order",
		AggregateID:        orderID,
		CreatedAt:          GetCurrentTime(),
		ProcessingAttempts: 0,
		Status:             OutboxStatusPending,
	}, nil
}

// NewOrderCreatedEvent builds the event emitted when a storefront order is
// first persisted.
func NewOrderCreatedEvent(order *Order) (*OutboxMessage, error) {
	return newOrderOutboxMessage(EventOrderCreated, order.ID, order)
}

// NewOrderPaidEvent builds the event emitted when the payment webhook
// confirms a charge for the order.
func NewOrderPaidEvent(order *Order) (*OutboxMessage, error) {
	return newOrderOutboxMessage(EventOrderPaid, order.ID, map[string]interface{}{
		"order_id":       order.ID,
		"reference":      order.Reference,
		"amount":         order.Amount,
		"currency":       order.Currency,
		"transaction_id": order.TransactionID,
	})
}

// NewOrderStatusChangedEvent builds the event emitted on a status transition
func NewOrderStatusChangedEvent(order *Order, oldStatus string) (*OutboxMessage, error) {
	return newOrderOutboxMessage(EventOrderStatusChanged, order.ID, map[string]interface{}{
		"order_id":   order.ID,
		"reference":  order.Reference,
		"old_status": oldStatus,
		"new_status": order.Status,
	})
}
