package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/platepay/platepay-api/internal/database"
	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/pkg/logger"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDatabase  = errors.New("database error")
	ErrDuplicate = errors.New("duplicate record")
)

const pqUniqueViolation = "23505"

const orderColumns = `
	id, reference, amount, currency, customer, items, status, paid, source,
	transaction_id, confirmation_email_sent, confirmation_email_sent_at,
	confirmation_email_error, email_attempts, last_email_attempt,
	created_at, updated_at`

// OrderFilter narrows listing queries
type OrderFilter struct {
	Reference string
	Status    string
}

// OrderRepository handles database operations for orders
type OrderRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// BeginTx starts a transaction
func (r *OrderRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.DB.BeginTx(ctx, nil)

	if err != nil {
		r.logger.Error("Failed to begin transaction", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return tx, nil
}

// Create inserts a new order. A unique violation on reference maps to
// ErrDuplicate so callers can resolve it with a read.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.create(ctx, r.db.DB, order)
}

// CreateInTx inserts a new order within a transaction
func (r *OrderRepository) CreateInTx(tx *sql.Tx, order *models.Order) error {
	return r.create(context.Background(), tx, order)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *OrderRepository) create(ctx context.Context, ex execer, order *models.Order) error {
	query := `
		INSERT INTO orders (
			id, reference, amount, currency, customer, items, status, paid,
			source, transaction_id, email_attempts, created_at, updated_at
		) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := ex.ExecContext(
		ctx,
		query,
		order.ID,
		order.Reference,
		order.Amount,
		order.Currency,
		order.Customer,
		order.Items,
		order.Status,
		order.Paid,
		order.Source,
		order.TransactionID,
		order.EmailAttempts,
		order.CreatedAt,
		order.UpdatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("%w: reference %q", ErrDuplicate, order.Reference)
		}
		r.logger.Error("Failed to create order", "error", err, "orderID", order.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetByID retrieves an order by its ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var order models.Order
	err := r.db.DB.GetContext(ctx, &order, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get order by ID", "error", err, "orderID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &order, nil
}

// GetByReference retrieves an order by its reference (the tracking code)
func (r *OrderRepository) GetByReference(ctx context.Context, reference string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE reference = $1`

	var order models.Order
	err := r.db.DB.GetContext(ctx, &order, query, reference)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get order by reference", "error", err, "reference", reference)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &order, nil
}

// GetAll retrieves orders newest-first with optional filtering
func (r *OrderRepository) GetAll(ctx context.Context, filter OrderFilter, limit, offset int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []interface{}{}

	if filter.Reference != "" {
		args = append(args, filter.Reference)
		query += fmt.Sprintf(" AND reference = $%d", len(args))
	}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var orders []*models.Order
	err := r.db.DB.SelectContext(ctx, &orders, query, args...)

	if err != nil {
		r.logger.Error("Failed to list orders", "error", err, "limit", limit, "offset", offset)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return orders, nil
}

// Update applies a full update of the mutable order fields
func (r *OrderRepository) Update(ctx context.Context, order *models.Order) error {
	query := `
		UPDATE orders
		SET amount = $1, currency = $2, customer = $3, items = $4, status = $5,
			paid = $6, updated_at = $7
		WHERE id = $8
	`

	result, err := r.db.DB.ExecContext(
		ctx,
		query,
		order.Amount,
		order.Currency,
		order.Customer,
		order.Items,
		order.Status,
		order.Paid,
		models.GetCurrentTime(),
		order.ID,
	)

	if err != nil {
		r.logger.Error("Failed to update order", "error", err, "orderID", order.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return checkAffected(result)
}

// UpdateStatusInTx updates the status and updated_at inside a transaction
func (r *OrderRepository) UpdateStatusInTx(tx *sql.Tx, orderID, status string) error {
	result, err := tx.Exec(
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
		status,
		models.GetCurrentTime(),
		orderID,
	)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return checkAffected(result)
}

// CountByReference counts orders carrying the given reference
func (r *OrderRepository) CountByReference(ctx context.Context, reference string) (int, error) {
	var count int
	err := r.db.DB.GetContext(ctx, &count, `SELECT COUNT(*) FROM orders WHERE reference = $1`, reference)

	if err != nil {
		r.logger.Error("Failed to count orders by reference", "error", err, "reference", reference)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return count, nil
}

// RecordEmailAttempt atomically increments the attempt counter and stamps
// the attempt time. Called before the send so a crash mid-send still leaves
// an accurate count.
func (r *OrderRepository) RecordEmailAttempt(ctx context.Context, orderID string) (int, error) {
	var attempts int
	err := r.db.DB.GetContext(
		ctx,
		&attempts,
		`UPDATE orders
		 SET email_attempts = email_attempts + 1, last_email_attempt = $1
		 WHERE id = $2
		 RETURNING email_attempts`,
		models.GetCurrentTime(),
		orderID,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		r.logger.Error("Failed to record email attempt", "error", err, "orderID", orderID)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return attempts, nil
}

// MarkEmailSent flips the sent flag and clears any recorded error
func (r *OrderRepository) MarkEmailSent(ctx context.Context, orderID string) error {
	result, err := r.db.DB.ExecContext(
		ctx,
		`UPDATE orders
		 SET confirmation_email_sent = TRUE,
			 confirmation_email_sent_at = $1,
			 confirmation_email_error = NULL,
			 updated_at = $1
		 WHERE id = $2`,
		models.GetCurrentTime(),
		orderID,
	)

	if err != nil {
		r.logger.Error("Failed to mark email sent", "error", err, "orderID", orderID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return checkAffected(result)
}

// MarkEmailFailed records the failure reason; the sent flag stays false
func (r *OrderRepository) MarkEmailFailed(ctx context.Context, orderID, reason string) error {
	result, err := r.db.DB.ExecContext(
		ctx,
		`UPDATE orders
		 SET confirmation_email_error = $1, updated_at = $2
		 WHERE id = $3`,
		reason,
		models.GetCurrentTime(),
		orderID,
	)

	if err != nil {
		r.logger.Error("Failed to mark email failed", "error", err, "orderID", orderID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return checkAffected(result)
}

// FindAwaitingConfirmation returns orders eligible for a confirmation
// attempt: paid, with a customer email, unconfirmed, created since the given
// cutoff and under the attempt cap.
func (r *OrderRepository) FindAwaitingConfirmation(ctx context.Context, since time.Time, maxAttempts int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE paid = TRUE
		  AND COALESCE(customer->>'email', '') <> ''
		  AND confirmation_email_sent = FALSE
		  AND created_at >= $1
		  AND email_attempts < $2
		ORDER BY created_at ASC`

	var orders []*models.Order
	err := r.db.DB.SelectContext(ctx, &orders, query, since, maxAttempts)

	if err != nil {
		r.logger.Error("Failed to find orders awaiting confirmation", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return orders, nil
}

// CountAwaitingConfirmation counts orders matching the eligibility predicate
func (r *OrderRepository) CountAwaitingConfirmation(ctx context.Context, since time.Time, maxAttempts int) (int, error) {
	query := `SELECT COUNT(*)
		FROM orders
		WHERE paid = TRUE
		  AND COALESCE(customer->>'email', '') <> ''
		  AND confirmation_email_sent = FALSE
		  AND created_at >= $1
		  AND email_attempts < $2`

	var count int
	err := r.db.DB.GetContext(ctx, &count, query, since, maxAttempts)

	if err != nil {
		r.logger.Error("Failed to count orders awaiting confirmation", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return count, nil
}

func checkAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
