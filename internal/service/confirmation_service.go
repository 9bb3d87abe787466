package service

import (
	"context"
	"sync"
	"time"

	"github.com/platepay/platepay-api/internal/mailer"
	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/pkg/logger"
)

const (
	// MaxEmailAttempts caps automatic confirmation attempts per order.
	MaxEmailAttempts = 3
	// EligibilityWindow bounds how old an order may be and still receive
	// automatic confirmation attempts.
	EligibilityWindow = 24 * time.Hour

	defaultSweepDelay = time.Second
	dispatchQueueSize = 256
)

// ConfirmationStore is the slice of order persistence the coordinator needs.
type ConfirmationStore interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	RecordEmailAttempt(ctx context.Context, orderID string) (int, error)
	MarkEmailSent(ctx context.Context, orderID string) error
	MarkEmailFailed(ctx context.Context, orderID, reason string) error
	FindAwaitingConfirmation(ctx context.Context, since time.Time, maxAttempts int) ([]*models.Order, error)
	CountAwaitingConfirmation(ctx context.Context, since time.Time, maxAttempts int) (int, error)
}

// SweepResult is the per-order outcome of a sweep
type SweepResult struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Email     string `json:"email,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SweepSummary aggregates a sweep invocation. Informational only; all state
// changes happen per order during the sweep itself.
type SweepSummary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Results   []SweepResult `json:"results,omitempty"`
}

// ConfirmationService owns the confirmation-email delivery policy: the
// eligibility predicate, attempt accounting, the batch sweep and the async
// dispatcher that keeps sends off the request path.
type ConfirmationService struct {
	store      ConfirmationStore
	mailer     mailer.Mailer
	logger     logger.Logger
	sweepDelay time.Duration

	queue   chan string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewConfirmationService creates a new ConfirmationService
func NewConfirmationService(store ConfirmationStore, m mailer.Mailer, logger logger.Logger) *ConfirmationService {
	ctx, cancel := context.WithCancel(context.Background())

	return &ConfirmationService{
		store:      store,
		mailer:     m,
		logger:     logger,
		sweepDelay: defaultSweepDelay,
		queue:      make(chan string, dispatchQueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Eligible is the sweep predicate: whether the order qualifies for a batch
// confirmation attempt. Manual resend does not consult this predicate.
func (s *ConfirmationService) Eligible(order *models.Order, now time.Time) bool {
	return order.Paid &&
		order.Customer.Email != "" &&
		!order.ConfirmationEmailSent &&
		order.CreatedAt.After(now.Add(-EligibilityWindow)) &&
		order.EmailAttempts < MaxEmailAttempts
}

// Attempt performs one send attempt for the order: the attempt is recorded
// before the send so a crash mid-send still leaves an accurate count, then
// the gateway result is written back to the order. Bookkeeping failures are
// logged, never surfaced.
func (s *ConfirmationService) Attempt(ctx context.Context, order *models.Order) mailer.Result {
	if order.Customer.Email == "" {
		return mailer.Result{Error: "order has no customer email"}
	}

	attempts, err := s.store.RecordEmailAttempt(ctx, order.ID)

	if err != nil {
		s.logger.Error("Failed to record email attempt", "error", err, "orderID", order.ID)
	} else {
		order.EmailAttempts = attempts
	}

	result := s.mailer.Send(ctx, order)

	if result.Success {
		if err := s.store.MarkEmailSent(ctx, order.ID); err != nil {
			s.logger.Error("Failed to mark confirmation email sent", "error", err, "orderID", order.ID)
		} else {
			order.ConfirmationEmailSent = true
		}
		return result
	}

	reason := result.Error
	if reason == "" {
		reason = "unknown error"
	}

	if err := s.store.MarkEmailFailed(ctx, order.ID, reason); err != nil {
		s.logger.Error("Failed to record confirmation email error", "error", err, "orderID", order.ID)
	}

	return result
}

// DispatchEligible reports whether an ingestion-triggered or self-healing
// attempt may run. Unlike the sweep predicate, payment state and order age
// do not gate the first send; an address, an unsent flag and remaining
// attempt budget do.
func (s *ConfirmationService) DispatchEligible(order *models.Order) bool {
	return order.Customer.Email != "" &&
		!order.ConfirmationEmailSent &&
		order.EmailAttempts < MaxEmailAttempts
}

// Enqueue schedules an asynchronous eligible-only attempt for the order.
// Never blocks the caller; a full queue drops the request, which the sweep
// later repairs.
func (s *ConfirmationService) Enqueue(orderID string) {
	select {
	case s.queue <- orderID:
	default:
		s.logger.Warn("Confirmation dispatch queue full, deferring to sweep", "orderID", orderID)
	}
}

// Start launches the dispatcher worker
func (s *ConfirmationService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.dispatchLoop()
	}()

	s.logger.Info("Confirmation dispatcher started", "queueSize", dispatchQueueSize)
}

// Stop drains the dispatcher and stops the worker
func (s *ConfirmationService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.running = false

	s.logger.Info("Confirmation dispatcher stopped")
}

func (s *ConfirmationService) dispatchLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case orderID := <-s.queue:
			ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
			s.dispatch(ctx, orderID)
			cancel()
		}
	}
}

func (s *ConfirmationService) dispatch(ctx context.Context, orderID string) {
	order, err := s.store.GetByID(ctx, orderID)

	if err != nil {
		s.logger.Error("Failed to load order for confirmation dispatch", "error", err, "orderID", orderID)
		return
	}

	if !s.DispatchEligible(order) {
		return
	}

	if result := s.Attempt(ctx, order); !result.Success {
		s.logger.Warn("Async confirmation attempt failed",
			"orderID", order.ID,
			"reference", order.Reference,
			"error", result.Error)
	}
}

// Sweep performs the batch pass over all eligible orders: strictly
// sequential with a fixed delay between orders to bound the mail relay
// request rate. Safe to invoke arbitrarily often; eligibility shrinks as
// flags flip and attempt counts reach the cap.
func (s *ConfirmationService) Sweep(ctx context.Context) (*SweepSummary, error) {
	since := time.Now().UTC().Add(-EligibilityWindow)
	orders, err := s.store.FindAwaitingConfirmation(ctx, since, MaxEmailAttempts)

	if err != nil {
		return nil, err
	}

	summary := &SweepSummary{Total: len(orders)}

	if len(orders) == 0 {
		return summary, nil
	}

	s.logger.Info("Processing confirmation sweep", "count", len(orders))

	for i, order := range orders {
		result := s.Attempt(ctx, order)

		sr := SweepResult{
			Reference: order.Reference,
			Email:     order.Customer.Email,
		}

		if result.Success {
			summary.Succeeded++
			sr.Status = "success"
		} else {
			summary.Failed++
			sr.Status = "failed"
			sr.Error = result.Error
		}

		summary.Results = append(summary.Results, sr)

		if i < len(orders)-1 {
			select {
			case <-time.After(s.sweepDelay):
			case <-ctx.Done():
				return summary, ctx.Err()
			}
		}
	}

	s.logger.Info("Confirmation sweep complete",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed)

	return summary, nil
}

// PendingCount reports how many orders currently match the eligibility
// predicate, without attempting any sends.
func (s *ConfirmationService) PendingCount(ctx context.Context) (int, error) {
	since := time.Now().UTC().Add(-EligibilityWindow)
	return s.store.CountAwaitingConfirmation(ctx, since, MaxEmailAttempts)
}
