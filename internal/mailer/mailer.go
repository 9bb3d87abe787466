package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/platepay/platepay-api/internal/config"
	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/pkg/circuitbreaker"
	"github.com/platepay/platepay-api/pkg/logger"
	gomail "gopkg.in/gomail.v2"
)

// Result is the only shape a send outcome ever takes. Transport errors,
// timeouts and panics all collapse into a failed Result; nothing is thrown
// past this boundary.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Mailer sends a single confirmation email for an order.
type Mailer interface {
	Send(ctx context.Context, order *models.Order) Result
}

// SMTPMailer delivers confirmation emails over SMTP. A circuit breaker
// shields the relay during outages; an open circuit reports as an ordinary
// failed Result and consumes an attempt like any other failure.
type SMTPMailer struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
	breaker  *circuitbreaker.CircuitBreaker
	timeout  time.Duration
	logger   logger.Logger
}

// NewSMTPMailer creates a mailer from the SMTP configuration
func NewSMTPMailer(cfg config.SMTPConfig, logger logger.Logger) *SMTPMailer {
	return &SMTPMailer{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.From,
		fromName: cfg.FromName,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			HalfOpenMaxCalls: 2,
		}),
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

// Send delivers the confirmation email for the order.
func (m *SMTPMailer) Send(ctx context.Context, order *models.Order) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Mail transport panicked", "panic", r, "orderID", order.ID)
			m.breaker.Failure()
			result = Result{Error: fmt.Sprintf("mail transport panic: %v", r)}
		}
	}()

	if order.Customer.Email == "" {
		return Result{Error: "order has no customer email"}
	}

	if !m.breaker.Allow() {
		m.logger.Warn("Mail circuit open, skipping send", "orderID", order.ID)
		return Result{Error: "mail transport unavailable"}
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.fromName)
	msg.SetHeader("To", order.Customer.Email)
	msg.SetHeader("Subject", confirmationSubject(order))
	msg.SetBody("text/html", confirmationBody(order))

	done := make(chan error, 1)

	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	timeout := m.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	select {
	case err := <-done:
		if err != nil {
			m.breaker.Failure()
			m.logger.Error("Failed to send confirmation email",
				"error", err,
				"orderID", order.ID,
				"to", order.Customer.Email)
			return Result{Error: err.Error()}
		}
	case <-time.After(timeout):
		m.breaker.Failure()
		m.logger.Error("Confirmation email send timed out", "orderID", order.ID)
		return Result{Error: "smtp send timed out"}
	case <-ctx.Done():
		m.breaker.Failure()
		return Result{Error: ctx.Err().Error()}
	}

	m.breaker.Success()
	m.logger.Info("Confirmation email sent",
		"orderID", order.ID,
		"reference", order.Reference,
		"to", order.Customer.Email)

	return Result{Success: true}
}
