package api

import (
	"io"
	"net/http"

	"github.com/platepay/platepay-api/internal/payment"
	"github.com/platepay/platepay-api/internal/service"
)

const maxWebhookBody = 1 << 20

// paystackWebhookHandler receives payment gateway events. The signature is
// an HMAC-SHA512 over the raw body; with no secret configured the handler
// logs a warning and proceeds.
func (s *Server) paystackWebhookHandler(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	secret := s.config.Paystack.WebhookSecret

	if secret != "" {
		signature := r.Header.Get(payment.SignatureHeader)

		if !payment.VerifySignature(secret, rawBody, signature) {
			s.logger.Error("Invalid webhook signature", "remoteAddr", r.RemoteAddr)
			s.respondWithError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	} else {
		s.logger.Warn("Webhook running without signature verification; set PAYSTACK_WEBHOOK_SECRET")
	}

	event, err := payment.ParseEvent(rawBody)

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid event payload")
		return
	}

	if !event.IsSuccessfulCharge() {
		s.logger.Info("Webhook event ignored", "event", event.Event, "status", event.Data.Status)
		s.respondWithJSON(w, http.StatusOK, ApiResponse{
			Success: false,
			Error:   "Not a successful payment event.",
		})
		return
	}

	order, created, err := s.orderService.CreateFromPayment(r.Context(), service.PaymentOrderInput{
		Reference:     event.Data.Reference,
		Amount:        event.AmountMajor(),
		Currency:      event.Data.Currency,
		Customer:      event.Data.Metadata.Customer,
		Items:         event.Data.Metadata.Items,
		TransactionID: event.Data.ID.String(),
	})

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	if !created {
		s.logger.Info("Order already exists", "reference", order.Reference)
		s.respondWithJSON(w, http.StatusOK, ApiResponse{
			Success: true,
			Data:    map[string]string{"message": "Order already exists"},
		})
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    order,
	})
}
