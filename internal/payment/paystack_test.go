package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "sk_test_123"
	body := []byte(`{"event":"charge.success"}`)

	assert.True(t, VerifySignature(secret, body, signBody(secret, body)))
	assert.False(t, VerifySignature(secret, body, signBody("wrong-secret", body)))
	assert.False(t, VerifySignature(secret, []byte(`{"event":"tampered"}`), signBody(secret, body)))
	assert.False(t, VerifySignature(secret, body, ""))
}

func TestParseEvent(t *testing.T) {
	payload := []byte(`{
		"event": "charge.success",
		"data": {
			"id": 573819,
			"status": "success",
			"reference": "T685312322670591",
			"amount": 250000,
			"currency": "NGN",
			"metadata": {
				"customer": {"name": "Ada", "email": "ada@example.com"},
				"items": [{"title": "Suya", "quantity": 2, "price": 1250}]
			}
		}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	assert.True(t, event.IsSuccessfulCharge())
	assert.Equal(t, "T685312322670591", event.Data.Reference)
	assert.Equal(t, "573819", event.Data.ID.String())
	assert.Equal(t, "ada@example.com", event.Data.Metadata.Customer.Email)
	require.Len(t, event.Data.Metadata.Items, 1)
	assert.Equal(t, "Suya", event.Data.Metadata.Items[0].Title)
}

func TestParseEventRejectsMalformedPayload(t *testing.T) {
	_, err := ParseEvent([]byte(`{"event":`))
	assert.Error(t, err)
}

func TestIsSuccessfulChargeRequiresBothFields(t *testing.T) {
	event := &Event{Event: EventChargeSuccess}
	event.Data.Status = "failed"
	assert.False(t, event.IsSuccessfulCharge())

	event = &Event{Event: "charge.dispute.create"}
	event.Data.Status = "success"
	assert.False(t, event.IsSuccessfulCharge())
}

func TestAmountMajor(t *testing.T) {
	event := &Event{}
	event.Data.Amount = 250000
	assert.Equal(t, 2500.0, event.AmountMajor())
}
