package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"

	"github.com/platepay/platepay-api/internal/models"
)

// SignatureHeader is the Paystack webhook signature header name
const SignatureHeader = "x-paystack-signature"

// EventChargeSuccess is the only Paystack event that creates orders
const EventChargeSuccess = "charge.success"

// Event is an inbound Paystack webhook payload
type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

// EventData carries the transaction details of a Paystack event
type EventData struct {
	ID        json.Number   `json:"id"`
	Status    string        `json:"status"`
	Reference string        `json:"reference"`
	Amount    float64       `json:"amount"`
	Currency  string        `json:"currency"`
	Metadata  EventMetadata `json:"metadata"`
}

// EventMetadata is the checkout context attached to the charge
type EventMetadata struct {
	Customer models.Customer   `json:"customer"`
	Items    models.OrderItems `json:"items"`
}

// ParseEvent decodes a raw webhook body
func ParseEvent(rawBody []byte) (*Event, error) {
	var event Event

	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, err
	}

	return &event, nil
}

// IsSuccessfulCharge reports whether the event is a confirmed payment
func (e *Event) IsSuccessfulCharge() bool {
	return e.Event == EventChargeSuccess && e.Data.Status == "success"
}

// AmountMajor converts the charge amount from subunits (kobo) to the major
// currency unit.
func (e *Event) AmountMajor() float64 {
	return e.Data.Amount / 100
}

// VerifySignature checks the HMAC-SHA512 signature Paystack computes over
// the raw request body.
func VerifySignature(secret string, rawBody []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
