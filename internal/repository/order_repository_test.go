package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platepay/platepay-api/internal/database"
	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/pkg/logger"
)

func newMockOrderRepo(t *testing.T) (*OrderRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	l := logger.NewLogger("error")

	return NewOrderRepository(database.NewFromDB(sqlxDB, l), l), mock
}

func testOrder() *models.Order {
	return models.NewOrder("R1", 2500, "NGN", models.Customer{Name: "Ada", Email: "ada@example.com"}, models.OrderItems{
		{Title: "Suya", Quantity: 2, Price: 1250},
	})
}

func orderColumnNames() []string {
	return []string{
		"id", "reference", "amount", "currency", "customer", "items", "status", "paid", "source",
		"transaction_id", "confirmation_email_sent", "confirmation_email_sent_at",
		"confirmation_email_error", "email_attempts", "last_email_attempt",
		"created_at", "updated_at",
	}
}

func orderRow(order *models.Order) *sqlmock.Rows {
	customer, _ := order.Customer.Value()
	items, _ := order.Items.Value()

	return sqlmock.NewRows(orderColumnNames()).AddRow(
		order.ID, order.Reference, order.Amount, order.Currency, customer, items,
		order.Status, order.Paid, order.Source, nil, order.ConfirmationEmailSent,
		nil, nil, order.EmailAttempts, nil, order.CreatedAt, order.UpdatedAt,
	)
}

func TestCreateMapsUniqueViolationToDuplicate(t *testing.T) {
	repo, mock := newMockOrderRepo(t)
	order := testOrder()

	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := repo.Create(context.Background(), order)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSucceeds(t *testing.T) {
	repo, mock := newMockOrderRepo(t)
	order := testOrder()

	mock.ExpectExec("INSERT INTO orders").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), order))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByReferenceNotFound(t *testing.T) {
	repo, mock := newMockOrderRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE reference").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(orderColumnNames()))

	_, err := repo.GetByReference(context.Background(), "missing")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByReferenceScansOrder(t *testing.T) {
	repo, mock := newMockOrderRepo(t)
	order := testOrder()

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE reference").
		WithArgs("R1").
		WillReturnRows(orderRow(order))

	got, err := repo.GetByReference(context.Background(), "R1")

	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, "ada@example.com", got.Customer.Email)
	assert.Equal(t, 1, len(got.Items))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEmailAttemptReturnsNewCount(t *testing.T) {
	repo, mock := newMockOrderRepo(t)

	mock.ExpectQuery("UPDATE orders").
		WithArgs(sqlmock.AnyArg(), "ord-1").
		WillReturnRows(sqlmock.NewRows([]string{"email_attempts"}).AddRow(2))

	attempts, err := repo.RecordEmailAttempt(context.Background(), "ord-1")

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEmailAttemptMissingOrder(t *testing.T) {
	repo, mock := newMockOrderRepo(t)

	mock.ExpectQuery("UPDATE orders").
		WithArgs(sqlmock.AnyArg(), "ord-missing").
		WillReturnRows(sqlmock.NewRows([]string{"email_attempts"}))

	_, err := repo.RecordEmailAttempt(context.Background(), "ord-missing")

	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMarkEmailSentMissingOrder(t *testing.T) {
	repo, mock := newMockOrderRepo(t)

	mock.ExpectExec("UPDATE orders").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkEmailSent(context.Background(), "ord-missing")

	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFindAwaitingConfirmationUsesEligibilityPredicate(t *testing.T) {
	repo, mock := newMockOrderRepo(t)
	since := time.Now().UTC().Add(-24 * time.Hour)

	order := testOrder()
	order.Paid = true

	mock.ExpectQuery(`paid = TRUE(.+)confirmation_email_sent = FALSE(.+)email_attempts < \$2`).
		WithArgs(since, 3).
		WillReturnRows(orderRow(order))

	orders, err := repo.FindAwaitingConfirmation(context.Background(), since, 3)

	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.ID, orders[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAllAppliesFilters(t *testing.T) {
	repo, mock := newMockOrderRepo(t)

	mock.ExpectQuery(`SELECT (.+) FROM orders WHERE 1=1 AND reference = \$1 AND status = \$2`).
		WithArgs("R1", "pending", 50, 0).
		WillReturnRows(sqlmock.NewRows(orderColumnNames()))

	orders, err := repo.GetAll(context.Background(), OrderFilter{Reference: "R1", Status: "pending"}, 50, 0)

	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}
