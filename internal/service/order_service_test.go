package service

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platepay/platepay-api/internal/database"
	"github.com/platepay/platepay-api/internal/mailer"
	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/internal/repository"
	apperrors "github.com/platepay/platepay-api/pkg/errors"
	"github.com/platepay/platepay-api/pkg/logger"
)

func newMockOrderService(t *testing.T) (*OrderService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	l := logger.NewLogger("error")
	wrapped := database.NewFromDB(sqlxDB, l)

	orderRepo := repository.NewOrderRepository(wrapped, l)
	outboxRepo := repository.NewOutboxRepository(wrapped, l)
	confirmations := NewConfirmationService(orderRepo, &fakeMailer{result: mailer.Result{Success: true}}, l)

	return NewOrderService(orderRepo, outboxRepo, confirmations, l), mock
}

func serviceOrderColumns() []string {
	return []string{
		"id", "reference", "amount", "currency", "customer", "items", "status", "paid", "source",
		"transaction_id", "confirmation_email_sent", "confirmation_email_sent_at",
		"confirmation_email_error", "email_attempts", "last_email_attempt",
		"created_at", "updated_at",
	}
}

func serviceOrderRow(order *models.Order) *sqlmock.Rows {
	customer, _ := order.Customer.Value()
	items, _ := order.Items.Value()

	return sqlmock.NewRows(serviceOrderColumns()).AddRow(
		order.ID, order.Reference, order.Amount, order.Currency, customer, items,
		order.Status, order.Paid, order.Source, nil, order.ConfirmationEmailSent,
		nil, nil, order.EmailAttempts, nil, order.CreatedAt, order.UpdatedAt,
	)
}

func validCreateInput() CreateOrderInput {
	return CreateOrderInput{
		Reference: "R1",
		Amount:    2500,
		Customer:  models.Customer{Name: "Ada", Email: "ada@example.com"},
		Items:     models.OrderItems{{Title: "Suya", Quantity: 2, Price: 1250}},
	}
}

func TestCreateRejectsInvalidPayload(t *testing.T) {
	svc, _ := newMockOrderService(t)

	input := validCreateInput()
	input.Amount = 0

	_, _, err := svc.Create(context.Background(), input)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	input = validCreateInput()
	input.Items = nil

	_, _, err = svc.Create(context.Background(), input)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestCreateReturnsExistingOrderOnDuplicateReference(t *testing.T) {
	svc, mock := newMockOrderService(t)

	existing := models.NewOrder("R1", 2500, "NGN", models.Customer{Email: "ada@example.com"}, models.OrderItems{
		{Title: "Suya", Quantity: 2, Price: 1250},
	})
	existing.ConfirmationEmailSent = true

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE reference").
		WithArgs("R1").
		WillReturnRows(serviceOrderRow(existing))

	order, created, err := svc.Create(context.Background(), validCreateInput())

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, order.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePersistsOrderAndEvent(t *testing.T) {
	svc, mock := newMockOrderService(t)

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE reference").
		WithArgs("R1").
		WillReturnRows(sqlmock.NewRows(serviceOrderColumns()))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox_messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	order, created, err := svc.Create(context.Background(), validCreateInput())

	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, order.Paid)
	assert.Equal(t, models.OrderSourceClient, order.Source)
	assert.Equal(t, string(models.OrderStatusPending), order.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateResolvesInsertRaceByRead(t *testing.T) {
	svc, mock := newMockOrderService(t)

	winner := models.NewOrder("R1", 2500, "NGN", models.Customer{Email: "ada@example.com"}, models.OrderItems{
		{Title: "Suya", Quantity: 2, Price: 1250},
	})
	winner.ConfirmationEmailSent = true

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE reference").
		WithArgs("R1").
		WillReturnRows(sqlmock.NewRows(serviceOrderColumns()))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE reference").
		WithArgs("R1").
		WillReturnRows(serviceOrderRow(winner))

	order, created, err := svc.Create(context.Background(), validCreateInput())

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, order.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFromPaymentForcesWebhookShape(t *testing.T) {
	svc, mock := newMockOrderService(t)

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE reference").
		WithArgs("R2").
		WillReturnRows(sqlmock.NewRows(serviceOrderColumns()))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox_messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	order, created, err := svc.CreateFromPayment(context.Background(), PaymentOrderInput{
		Reference:     "R2",
		Amount:        1500,
		Currency:      "NGN",
		Customer:      models.Customer{Email: "ada@example.com"},
		Items:         models.OrderItems{{Title: "Moi Moi", Quantity: 1, Price: 1500}},
		TransactionID: "573819",
	})

	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, order.Paid)
	assert.Equal(t, models.OrderSourceWebhook, order.Source)
	assert.Equal(t, string(models.OrderStatusPending), order.Status)
	require.NotNil(t, order.TransactionID)
	assert.Equal(t, "573819", *order.TransactionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFromPaymentDuplicateIsNoOp(t *testing.T) {
	svc, mock := newMockOrderService(t)

	existing := models.NewOrder("R2", 1500, "NGN", models.Customer{Email: "ada@example.com"}, models.OrderItems{
		{Title: "Moi Moi", Quantity: 1, Price: 1500},
	})
	existing.Paid = true
	existing.ConfirmationEmailSent = true

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE reference").
		WithArgs("R2").
		WillReturnRows(serviceOrderRow(existing))

	order, created, err := svc.CreateFromPayment(context.Background(), PaymentOrderInput{
		Reference: "R2",
		Amount:    1500,
	})

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, order.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFromPaymentMarksExistingUnpaidOrderPaid(t *testing.T) {
	svc, mock := newMockOrderService(t)

	existing := models.NewOrder("R2", 1500, "NGN", models.Customer{Email: "ada@example.com"}, models.OrderItems{
		{Title: "Moi Moi", Quantity: 1, Price: 1500},
	})
	existing.ConfirmationEmailSent = true

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE reference").
		WithArgs("R2").
		WillReturnRows(serviceOrderRow(existing))

	mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 1))

	order, created, err := svc.CreateFromPayment(context.Background(), PaymentOrderInput{
		Reference: "R2",
		Amount:    1500,
	})

	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, order.Paid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusRejectsOutOfGraphMove(t *testing.T) {
	svc, mock := newMockOrderService(t)

	pending := models.NewOrder("R1", 2500, "NGN", models.Customer{}, models.OrderItems{
		{Title: "Suya", Quantity: 1, Price: 2500},
	})

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id").
		WithArgs(pending.ID).
		WillReturnRows(serviceOrderRow(pending))

	_, err := svc.TransitionStatus(context.Background(), pending.ID, "delivered", false)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusForceOverridesGraph(t *testing.T) {
	svc, mock := newMockOrderService(t)

	pending := models.NewOrder("R1", 2500, "NGN", models.Customer{}, models.OrderItems{
		{Title: "Suya", Quantity: 1, Price: 2500},
	})

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id").
		WithArgs(pending.ID).
		WillReturnRows(serviceOrderRow(pending))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox_messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	order, err := svc.TransitionStatus(context.Background(), pending.ID, "delivered", true)

	require.NoError(t, err)
	assert.Equal(t, "delivered", order.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusRejectsUnknownStatus(t *testing.T) {
	svc, _ := newMockOrderService(t)

	_, err := svc.TransitionStatus(context.Background(), "ord-1", "shipped", false)

	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestResendRequiresCustomerEmail(t *testing.T) {
	svc, mock := newMockOrderService(t)

	noEmail := models.NewOrder("R1", 2500, "NGN", models.Customer{Name: "Ada"}, models.OrderItems{
		{Title: "Suya", Quantity: 1, Price: 2500},
	})

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id").
		WithArgs(noEmail.ID).
		WillReturnRows(serviceOrderRow(noEmail))

	_, err := svc.Resend(context.Background(), noEmail.ID, "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	// No attempt was recorded: the mock saw no UPDATE
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResendRequiresIdentifier(t *testing.T) {
	svc, _ := newMockOrderService(t)

	_, err := svc.Resend(context.Background(), "", "")

	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestResendSurfacesGatewayFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	l := logger.NewLogger("error")
	wrapped := database.NewFromDB(sqlxDB, l)

	orderRepo := repository.NewOrderRepository(wrapped, l)
	outboxRepo := repository.NewOutboxRepository(wrapped, l)
	confirmations := NewConfirmationService(orderRepo, &fakeMailer{result: mailer.Result{Error: "relay down"}}, l)
	svc := NewOrderService(orderRepo, outboxRepo, confirmations, l)

	order := models.NewOrder("R1", 2500, "NGN", models.Customer{Email: "ada@example.com"}, models.OrderItems{
		{Title: "Suya", Quantity: 1, Price: 2500},
	})

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE reference").
		WithArgs("R1").
		WillReturnRows(serviceOrderRow(order))

	// Attempt bookkeeping: record the attempt, then the failure
	mock.ExpectQuery("UPDATE orders").
		WillReturnRows(sqlmock.NewRows([]string{"email_attempts"}).AddRow(1))
	mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 1))

	_, err = svc.Resend(context.Background(), "", "R1")

	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "relay down")
	assert.NoError(t, mock.ExpectationsWereMet())
}
