package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusDelivered OrderStatus = "delivered"
)

// Order sources
const (
	OrderSourceClient  = "client"
	OrderSourceWebhook = "webhook"
)

// statusTransitions is the allowed forward path of an order. Anything else
// requires the admin override.
var statusTransitions = map[OrderStatus]OrderStatus{
	OrderStatusPending:   OrderStatusPreparing,
	OrderStatusPreparing: OrderStatusReady,
	OrderStatusReady:     OrderStatusDelivered,
}

// ValidStatus reports whether s is one of the four order statuses.
func ValidStatus(s string) bool {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusReady, OrderStatusDelivered:
		return true
	}
	return false
}

// CanTransition reports whether from may move to to without the admin
// override. Delivered is terminal on this path.
func CanTransition(from, to OrderStatus) bool {
	next, ok := statusTransitions[from]
	return ok && next == to
}

// Customer is the contact block attached to an order. Email is optional but
// required for any confirmation attempt.
type Customer struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Value implements driver.Valuer so Customer persists as JSONB
func (c Customer) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner
func (c *Customer) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = Customer{}
		return nil
	default:
		return fmt.Errorf("unsupported customer column type %T", src)
	}
}

// OrderItem is a single line of an order. Line order is display order.
type OrderItem struct {
	Title    string  `json:"title"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// OrderItems persists as a JSONB array
type OrderItems []OrderItem

// Value implements driver.Valuer
func (it OrderItems) Value() (driver.Value, error) {
	if it == nil {
		return json.Marshal([]OrderItem{})
	}
	return json.Marshal(it)
}

// Scan implements sql.Scanner
func (it *OrderItems) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, it)
	case string:
		return json.Unmarshal([]byte(v), it)
	case nil:
		*it = nil
		return nil
	default:
		return fmt.Errorf("unsupported items column type %T", src)
	}
}

// Order is an order document. The email bookkeeping fields are written only
// by the confirmation service.
type Order struct {
	ID            string     `db:"id" json:"id"`
	Reference     string     `db:"reference" json:"reference,omitempty"`
	Amount        float64    `db:"amount" json:"amount"`
	Currency      string     `db:"currency" json:"currency"`
	Customer      Customer   `db:"customer" json:"customer"`
	Items         OrderItems `db:"items" json:"items"`
	Status        string     `db:"status" json:"status"`
	Paid          bool       `db:"paid" json:"paid"`
	Source        string     `db:"source" json:"source"`
	TransactionID *string    `db:"transaction_id" json:"transaction_id,omitempty"`

	ConfirmationEmailSent   bool       `db:"confirmation_email_sent" json:"confirmation_email_sent"`
	ConfirmationEmailSentAt *time.Time `db:"confirmation_email_sent_at" json:"confirmation_email_sent_at,omitempty"`
	ConfirmationEmailError  *string    `db:"confirmation_email_error" json:"confirmation_email_error,omitempty"`
	EmailAttempts           int        `db:"email_attempts" json:"email_attempts"`
	LastEmailAttempt        *time.Time `db:"last_email_attempt" json:"last_email_attempt,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewOrder creates an order in its initial state
func NewOrder(reference string, amount float64, currency string, customer Customer, items OrderItems) *Order {
	now := GetCurrentTime()

	if currency == "" {
		currency = "NGN"
	}

	return &Order{
		ID:        GenerateID("ord"),
		Reference: reference,
		Amount:    amount,
		Currency:  currency,
		Customer:  customer,
		Items:     items,
		Status:    string(OrderStatusPending),
		Source:    OrderSourceClient,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PublicOrder is the redacted projection served to the tracking endpoint.
// Email bookkeeping never leaves the admin surface.
type PublicOrder struct {
	ID        string     `json:"id"`
	Reference string     `json:"reference"`
	Amount    float64    `json:"amount"`
	Currency  string     `json:"currency"`
	Status    string     `json:"status"`
	Paid      bool       `json:"paid"`
	Customer  Customer   `json:"customer"`
	Items     OrderItems `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
}

// Public returns the redacted tracking view of the order.
func (o *Order) Public() *PublicOrder {
	status := o.Status

	if status == "" {
		status = string(OrderStatusPending)
	}

	return &PublicOrder{
		ID:        o.ID,
		Reference: o.Reference,
		Amount:    o.Amount,
		Currency:  o.Currency,
		Status:    status,
		Paid:      o.Paid,
		Customer:  o.Customer,
		Items:     o.Items,
		CreatedAt: o.CreatedAt,
	}
}
