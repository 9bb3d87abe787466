package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/internal/repository"
	apperrors "github.com/platepay/platepay-api/pkg/errors"
	"github.com/platepay/platepay-api/pkg/logger"
)

// CreateOrderInput is the storefront checkout payload
type CreateOrderInput struct {
	Reference string            `json:"reference"`
	Amount    float64           `json:"amount"`
	Currency  string            `json:"currency"`
	Customer  models.Customer   `json:"customer"`
	Items     models.OrderItems `json:"items"`
	CreatedAt *time.Time        `json:"created_at,omitempty"`
}

// PaymentOrderInput is the webhook-confirmed variant of ingestion
type PaymentOrderInput struct {
	Reference     string
	Amount        float64
	Currency      string
	Customer      models.Customer
	Items         models.OrderItems
	TransactionID string
}

// UpdateOrderInput is a partial patch of an order. Nil fields are left
// untouched. Status moves go through the transition table unless Force is
// set.
type UpdateOrderInput struct {
	Amount   *float64           `json:"amount,omitempty"`
	Currency *string            `json:"currency,omitempty"`
	Customer *models.Customer   `json:"customer,omitempty"`
	Items    *models.OrderItems `json:"items,omitempty"`
	Status   *string            `json:"status,omitempty"`
	Force    bool               `json:"force,omitempty"`
}

// OrderService handles order ingestion, administration and the public
// tracking projection.
type OrderService struct {
	orderRepo     *repository.OrderRepository
	outboxRepo    *repository.OutboxRepository
	confirmations *ConfirmationService
	logger        logger.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(
	orderRepo *repository.OrderRepository,
	outboxRepo *repository.OutboxRepository,
	confirmations *ConfirmationService,
	logger logger.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:     orderRepo,
		outboxRepo:    outboxRepo,
		confirmations: confirmations,
		logger:        logger,
	}
}

// Create ingests a storefront order, idempotently with respect to the
// reference. The returned bool reports whether a new order was persisted.
// Paid is never set by this path; only the payment webhook confirms a
// charge.
func (s *OrderService) Create(ctx context.Context, input CreateOrderInput) (*models.Order, bool, error) {
	if input.Amount <= 0 {
		return nil, false, apperrors.NewInvalidInputError("order amount must be positive")
	}

	if len(input.Items) == 0 {
		return nil, false, apperrors.NewInvalidInputError("order must contain at least one item")
	}

	if input.Reference != "" {
		existing, err := s.orderRepo.GetByReference(ctx, input.Reference)

		if err == nil {
			s.selfHeal(existing)
			return existing, false, nil
		}

		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, err
		}
	}

	order := models.NewOrder(input.Reference, input.Amount, input.Currency, input.Customer, input.Items)

	if input.CreatedAt != nil {
		order.CreatedAt = input.CreatedAt.UTC()
	}

	event, err := models.NewOrderCreatedEvent(order)

	if err != nil {
		return nil, false, fmt.Errorf("failed to build order created event: %w", err)
	}

	created, err := s.insertWithEvent(ctx, order, event)

	if err != nil {
		return nil, false, err
	}

	if !created {
		// Lost the insert race; the winner's document is authoritative.
		existing, err := s.orderRepo.GetByReference(ctx, input.Reference)

		if err != nil {
			return nil, false, err
		}

		s.selfHeal(existing)
		return existing, false, nil
	}

	if order.Customer.Email != "" {
		s.confirmations.Enqueue(order.ID)
	}

	s.logger.Info("Order created", "orderID", order.ID, "reference", order.Reference, "source", order.Source)
	return order, true, nil
}

// CreateFromPayment ingests an order confirmed by the payment gateway. The
// document is forced paid, pending and webhook-sourced. A duplicate
// reference is a no-op on the order count; the existing order is marked paid
// if the gateway had not confirmed it yet.
func (s *OrderService) CreateFromPayment(ctx context.Context, input PaymentOrderInput) (*models.Order, bool, error) {
	if input.Reference == "" {
		return nil, false, apperrors.NewInvalidInputError("payment event has no reference")
	}

	existing, err := s.orderRepo.GetByReference(ctx, input.Reference)

	if err == nil {
		if !existing.Paid {
			existing.Paid = true
			if err := s.orderRepo.Update(ctx, existing); err != nil {
				s.logger.Error("Failed to mark existing order paid", "error", err, "orderID", existing.ID)
			}
		}
		s.selfHeal(existing)
		return existing, false, nil
	}

	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	order := models.NewOrder(input.Reference, input.Amount, input.Currency, input.Customer, input.Items)
	order.Paid = true
	order.Status = string(models.OrderStatusPending)
	order.Source = models.OrderSourceWebhook

	if input.TransactionID != "" {
		order.TransactionID = &input.TransactionID
	}

	event, err := models.NewOrderPaidEvent(order)

	if err != nil {
		return nil, false, fmt.Errorf("failed to build order paid event: %w", err)
	}

	created, err := s.insertWithEvent(ctx, order, event)

	if err != nil {
		return nil, false, err
	}

	if !created {
		existing, err := s.orderRepo.GetByReference(ctx, input.Reference)

		if err != nil {
			return nil, false, err
		}

		s.selfHeal(existing)
		return existing, false, nil
	}

	if order.Customer.Email != "" {
		s.confirmations.Enqueue(order.ID)
	}

	s.logger.Info("Order created from payment webhook",
		"orderID", order.ID,
		"reference", order.Reference,
		"transactionID", input.TransactionID)

	return order, true, nil
}

// insertWithEvent persists the order and its outbox event in one
// transaction. Returns false without error when the reference already
// exists.
func (s *OrderService) insertWithEvent(ctx context.Context, order *models.Order, event *models.OutboxMessage) (bool, error) {
	tx, err := s.orderRepo.BeginTx(ctx)

	if err != nil {
		return false, err
	}

	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Error("Failed to rollback transaction", "error", rollbackErr)
			}
		}
	}()

	if err = s.orderRepo.CreateInTx(tx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			err = nil
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Error("Failed to rollback transaction", "error", rollbackErr)
			}
			return false, nil
		}
		return false, err
	}

	if err = s.outboxRepo.CreateInTx(tx, event); err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// selfHeal re-enqueues the confirmation attempt for an already-persisted
// order whose email never got marked sent. The dispatcher applies the
// attempt cap, so a duplicate submit cannot run an order past it.
func (s *OrderService) selfHeal(order *models.Order) {
	if !order.ConfirmationEmailSent && order.Customer.Email != "" {
		s.confirmations.Enqueue(order.ID)
	}
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.orderRepo.GetByID(ctx, id)
}

// GetOrderByReference retrieves an order by reference
func (s *OrderService) GetOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	return s.orderRepo.GetByReference(ctx, reference)
}

// ListOrders lists orders newest-first with optional filtering
func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter, limit, offset int) ([]*models.Order, error) {
	return s.orderRepo.GetAll(ctx, filter, limit, offset)
}

// TransitionStatus moves an order to a new status. Out-of-graph moves are
// rejected unless force is set (the admin override).
func (s *OrderService) TransitionStatus(ctx context.Context, orderID, newStatus string, force bool) (*models.Order, error) {
	if !models.ValidStatus(newStatus) {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("invalid status %q", newStatus))
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)

	if err != nil {
		return nil, err
	}

	if order.Status == newStatus {
		return order, nil
	}

	if !force && !models.CanTransition(models.OrderStatus(order.Status), models.OrderStatus(newStatus)) {
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("cannot move order from %s to %s without override", order.Status, newStatus))
	}

	oldStatus := order.Status
	order.Status = newStatus

	event, err := models.NewOrderStatusChangedEvent(order, oldStatus)

	if err != nil {
		return nil, fmt.Errorf("failed to build status changed event: %w", err)
	}

	tx, err := s.orderRepo.BeginTx(ctx)

	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	if err = s.orderRepo.UpdateStatusInTx(tx, order.ID, newStatus); err != nil {
		return nil, err
	}

	if err = s.outboxRepo.CreateInTx(tx, event); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Order status updated",
		"orderID", order.ID,
		"oldStatus", oldStatus,
		"newStatus", newStatus,
		"force", force)

	return order, nil
}

// UpdateOrder applies a partial patch and stamps updated_at. A status move
// in the patch goes through TransitionStatus.
func (s *OrderService) UpdateOrder(ctx context.Context, orderID string, patch UpdateOrderInput) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)

	if err != nil {
		return nil, err
	}

	if patch.Status != nil && *patch.Status != order.Status {
		if order, err = s.TransitionStatus(ctx, orderID, *patch.Status, patch.Force); err != nil {
			return nil, err
		}
	}

	changed := false

	if patch.Amount != nil {
		order.Amount = *patch.Amount
		changed = true
	}

	if patch.Currency != nil {
		order.Currency = *patch.Currency
		changed = true
	}

	if patch.Customer != nil {
		order.Customer = *patch.Customer
		changed = true
	}

	if patch.Items != nil {
		order.Items = *patch.Items
		changed = true
	}

	if changed {
		if err := s.orderRepo.Update(ctx, order); err != nil {
			return nil, err
		}
	}

	return s.orderRepo.GetByID(ctx, orderID)
}

// Track resolves a public tracking code (the order reference) to the
// redacted order view.
func (s *OrderService) Track(ctx context.Context, code string) (*models.PublicOrder, error) {
	order, err := s.orderRepo.GetByReference(ctx, code)

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("Order not found. Please check your tracking code and try again.")
		}
		return nil, err
	}

	return order.Public(), nil
}

// Resend performs a synchronous confirmation send for the order located by
// id or reference. Unlike the ingestion path, the gateway outcome is
// returned to the caller. Orders without a customer email are rejected
// before any attempt is recorded.
func (s *OrderService) Resend(ctx context.Context, id, reference string) (*models.Order, error) {
	var (
		order *models.Order
		err   error
	)

	switch {
	case id != "":
		order, err = s.orderRepo.GetByID(ctx, id)
	case reference != "":
		order, err = s.orderRepo.GetByReference(ctx, reference)
	default:
		return nil, apperrors.NewInvalidInputError("id or reference required")
	}

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("Order not found")
		}
		return nil, err
	}

	if order.Customer.Email == "" {
		return order, apperrors.NewInvalidInputError("Order has no customer email")
	}

	result := s.confirmations.Attempt(ctx, order)

	if !result.Success {
		return order, apperrors.NewAppError(apperrors.ErrTemporaryFailure, result.Error, 502, true)
	}

	return order, nil
}
