package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"

	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/pkg/logger"
)

// ConfirmationEnqueuer schedules an asynchronous confirmation attempt
type ConfirmationEnqueuer interface {
	Enqueue(orderID string)
}

// OrderEventsHandler consumes order lifecycle events from Kafka
type OrderEventsHandler struct {
	confirmations ConfirmationEnqueuer
	logger        logger.Logger
}

// NewOrderEventsHandler creates a new OrderEventsHandler
func NewOrderEventsHandler(confirmations ConfirmationEnqueuer, logger logger.Logger) *OrderEventsHandler {
	return &OrderEventsHandler{
		confirmations: confirmations,
		logger:        logger,
	}
}

// HandleMessage handles incoming order events from Kafka messages
func (h *OrderEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event models.OutboxMessageEvent

	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("failed to unmarshal message", "error", err)
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	h.logger.Info("Handling order event",
		"eventType", event.EventType,
		"eventId", event.EventID,
		"aggregateId", event.AggregateID,
		"occurredAt", event.OccurredAt,
	)

	switch event.EventType {
	case models.EventOrderCreated:
		return h.handleOrderCreated(event)
	case models.EventOrderPaid:
		return h.handleOrderPaid(event)
	case models.EventOrderStatusChanged:
		return h.handleOrderStatusChanged(event)
	default:
		h.logger.Warn("unknown event type", "eventType", event.EventType)
		return nil
	}
}

func (h *OrderEventsHandler) handleOrderCreated(event models.OutboxMessageEvent) error {
	h.logger.Info("Processing order created event",
		"orderID", event.AggregateID,
		"eventID", event.EventID,
	)

	return nil
}

// handleOrderPaid nudges the confirmation dispatcher for the paid order.
// Redundant with the ingestion-time enqueue; the dispatcher's sent flag and
// attempt cap make the extra nudge harmless.
func (h *OrderEventsHandler) handleOrderPaid(event models.OutboxMessageEvent) error {
	h.logger.Info("Processing order paid event",
		"orderID", event.AggregateID,
		"eventID", event.EventID)

	if h.confirmations != nil {
		h.confirmations.Enqueue(event.AggregateID)
	}

	return nil
}

func (h *OrderEventsHandler) handleOrderStatusChanged(event models.OutboxMessageEvent) error {
	data, ok := event.Data.(map[string]interface{})

	if !ok {
		h.logger.Error("Invalid event data format", "eventID", event.EventID)
		return fmt.Errorf("invalid event data format")
	}

	oldStatus, _ := data["old_status"].(string)
	newStatus, _ := data["new_status"].(string)

	h.logger.Info("Order status changed",
		"orderID", event.AggregateID,
		"oldStatus", oldStatus,
		"newStatus", newStatus)

	return nil
}
