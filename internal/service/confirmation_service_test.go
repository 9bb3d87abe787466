package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platepay/platepay-api/internal/mailer"
	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/internal/repository"
	"github.com/platepay/platepay-api/pkg/logger"
)

type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newFakeOrderStore(orders ...*models.Order) *fakeOrderStore {
	s := &fakeOrderStore{orders: make(map[string]*models.Order)}

	for _, o := range orders {
		s.orders[o.ID] = o
	}

	return s
}

func (s *fakeOrderStore) GetByID(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]

	if !ok {
		return nil, repository.ErrNotFound
	}

	copied := *order
	return &copied, nil
}

func (s *fakeOrderStore) RecordEmailAttempt(ctx context.Context, orderID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]

	if !ok {
		return 0, repository.ErrNotFound
	}

	order.EmailAttempts++
	now := time.Now().UTC()
	order.LastEmailAttempt = &now
	return order.EmailAttempts, nil
}

func (s *fakeOrderStore) MarkEmailSent(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]

	if !ok {
		return repository.ErrNotFound
	}

	order.ConfirmationEmailSent = true
	now := time.Now().UTC()
	order.ConfirmationEmailSentAt = &now
	order.ConfirmationEmailError = nil
	return nil
}

func (s *fakeOrderStore) MarkEmailFailed(ctx context.Context, orderID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]

	if !ok {
		return repository.ErrNotFound
	}

	order.ConfirmationEmailError = &reason
	return nil
}

func (s *fakeOrderStore) FindAwaitingConfirmation(ctx context.Context, since time.Time, maxAttempts int) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.Order

	for _, order := range s.orders {
		if order.Paid &&
			order.Customer.Email != "" &&
			!order.ConfirmationEmailSent &&
			!order.CreatedAt.Before(since) &&
			order.EmailAttempts < maxAttempts {
			copied := *order
			matched = append(matched, &copied)
		}
	}

	return matched, nil
}

func (s *fakeOrderStore) CountAwaitingConfirmation(ctx context.Context, since time.Time, maxAttempts int) (int, error) {
	matched, err := s.FindAwaitingConfirmation(ctx, since, maxAttempts)
	return len(matched), err
}

type fakeMailer struct {
	mu     sync.Mutex
	result mailer.Result
	sends  int
}

func (m *fakeMailer) Send(ctx context.Context, order *models.Order) mailer.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sends++
	return m.result
}

func (m *fakeMailer) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends
}

func paidOrder(id, reference, email string) *models.Order {
	order := models.NewOrder(reference, 1500, "NGN", models.Customer{Name: "Ada", Email: email}, models.OrderItems{
		{Title: "Jollof Rice", Quantity: 1, Price: 1500},
	})
	order.ID = id
	order.Paid = true
	return order
}

func newTestConfirmationService(store ConfirmationStore, m mailer.Mailer) *ConfirmationService {
	svc := NewConfirmationService(store, m, logger.NewLogger("error"))
	svc.sweepDelay = time.Millisecond
	return svc
}

func TestAttemptRecordsAttemptBeforeOutcome(t *testing.T) {
	order := paidOrder("ord-1", "R1", "ada@example.com")
	store := newFakeOrderStore(order)
	gateway := &fakeMailer{result: mailer.Result{Error: "relay refused"}}
	svc := newTestConfirmationService(store, gateway)

	result := svc.Attempt(context.Background(), order)

	require.False(t, result.Success)

	stored, err := store.GetByID(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.EmailAttempts)
	assert.NotNil(t, stored.LastEmailAttempt)
	assert.False(t, stored.ConfirmationEmailSent)
	require.NotNil(t, stored.ConfirmationEmailError)
	assert.Equal(t, "relay refused", *stored.ConfirmationEmailError)
}

func TestAttemptSuccessMarksSentAndClearsError(t *testing.T) {
	order := paidOrder("ord-1", "R1", "ada@example.com")
	reason := "old failure"
	order.ConfirmationEmailError = &reason

	store := newFakeOrderStore(order)
	gateway := &fakeMailer{result: mailer.Result{Success: true}}
	svc := newTestConfirmationService(store, gateway)

	result := svc.Attempt(context.Background(), order)

	require.True(t, result.Success)

	stored, err := store.GetByID(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.True(t, stored.ConfirmationEmailSent)
	assert.NotNil(t, stored.ConfirmationEmailSentAt)
	assert.Nil(t, stored.ConfirmationEmailError)
	assert.Equal(t, 1, stored.EmailAttempts)
}

func TestAttemptWithoutEmailRecordsNothing(t *testing.T) {
	order := paidOrder("ord-1", "R1", "")
	store := newFakeOrderStore(order)
	gateway := &fakeMailer{result: mailer.Result{Success: true}}
	svc := newTestConfirmationService(store, gateway)

	result := svc.Attempt(context.Background(), order)

	require.False(t, result.Success)
	assert.Equal(t, 0, gateway.sendCount())

	stored, err := store.GetByID(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.EmailAttempts)
}

func TestEligiblePredicate(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestConfirmationService(newFakeOrderStore(), &fakeMailer{})

	base := func() *models.Order {
		return paidOrder("ord-1", "R1", "ada@example.com")
	}

	tests := []struct {
		name   string
		mutate func(*models.Order)
		want   bool
	}{
		{"eligible", func(o *models.Order) {}, true},
		{"unpaid", func(o *models.Order) { o.Paid = false }, false},
		{"no email", func(o *models.Order) { o.Customer.Email = "" }, false},
		{"already sent", func(o *models.Order) { o.ConfirmationEmailSent = true }, false},
		{"too old", func(o *models.Order) { o.CreatedAt = now.Add(-25 * time.Hour) }, false},
		{"capped", func(o *models.Order) { o.EmailAttempts = MaxEmailAttempts }, false},
		{"one attempt left", func(o *models.Order) { o.EmailAttempts = MaxEmailAttempts - 1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := base()
			tt.mutate(order)
			assert.Equal(t, tt.want, svc.Eligible(order, now))
		})
	}
}

func TestDispatchEligibleIgnoresPaymentState(t *testing.T) {
	svc := newTestConfirmationService(newFakeOrderStore(), &fakeMailer{})

	order := paidOrder("ord-1", "R1", "ada@example.com")
	order.Paid = false
	assert.True(t, svc.DispatchEligible(order))

	order.ConfirmationEmailSent = true
	assert.False(t, svc.DispatchEligible(order))

	order.ConfirmationEmailSent = false
	order.EmailAttempts = MaxEmailAttempts
	assert.False(t, svc.DispatchEligible(order))
}

func TestSweepConvergence(t *testing.T) {
	store := newFakeOrderStore(
		paidOrder("ord-1", "R1", "a@example.com"),
		paidOrder("ord-2", "R2", "b@example.com"),
		paidOrder("ord-3", "R3", "c@example.com"),
	)
	gateway := &fakeMailer{result: mailer.Result{Success: true}}
	svc := newTestConfirmationService(store, gateway)

	summary, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 3, gateway.sendCount())

	for _, id := range []string{"ord-1", "ord-2", "ord-3"} {
		order, err := store.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, order.ConfirmationEmailSent)
	}

	// A second immediate sweep finds nothing and sends nothing
	summary, err = svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, 3, gateway.sendCount())
}

func TestSweepStopsAtAttemptCap(t *testing.T) {
	store := newFakeOrderStore(paidOrder("ord-1", "R1", "ada@example.com"))
	gateway := &fakeMailer{result: mailer.Result{Error: "relay down"}}
	svc := newTestConfirmationService(store, gateway)

	for i := 0; i < MaxEmailAttempts; i++ {
		summary, err := svc.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Total)
		assert.Equal(t, 1, summary.Failed)
	}

	order, err := store.GetByID(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, MaxEmailAttempts, order.EmailAttempts)

	// Capped orders drop out of the sweep entirely
	summary, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, MaxEmailAttempts, gateway.sendCount())
}

func TestSweepSkipsSentAndKeepsCounting(t *testing.T) {
	sent := paidOrder("ord-1", "R1", "a@example.com")
	sent.ConfirmationEmailSent = true

	store := newFakeOrderStore(sent, paidOrder("ord-2", "R2", "b@example.com"))
	gateway := &fakeMailer{result: mailer.Result{Success: true}}
	svc := newTestConfirmationService(store, gateway)

	summary, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, gateway.sendCount())
}

func TestPendingCount(t *testing.T) {
	store := newFakeOrderStore(
		paidOrder("ord-1", "R1", "a@example.com"),
		paidOrder("ord-2", "R2", "b@example.com"),
	)
	svc := newTestConfirmationService(store, &fakeMailer{})

	count, err := svc.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDispatcherProcessesEnqueuedOrders(t *testing.T) {
	order := paidOrder("ord-1", "R1", "ada@example.com")
	store := newFakeOrderStore(order)
	gateway := &fakeMailer{result: mailer.Result{Success: true}}
	svc := newTestConfirmationService(store, gateway)

	svc.Start()
	defer svc.Stop()

	svc.Enqueue("ord-1")

	require.Eventually(t, func() bool {
		stored, err := store.GetByID(context.Background(), "ord-1")
		return err == nil && stored.ConfirmationEmailSent
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, gateway.sendCount())
}
