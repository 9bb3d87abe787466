package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/platepay/platepay-api/internal/repository"
	"github.com/platepay/platepay-api/internal/service"
	apperrors "github.com/platepay/platepay-api/pkg/errors"
)

type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Health represents the health check response
type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// healthCheckHandler handles the health check endpoint
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := Health{
		Status:    "ok",
		Version:   "1.0.0",
		Timestamp: time.Now().Format(time.RFC3339),
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    health,
	})
}

// createOrderHandler ingests a storefront checkout order
func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var input service.CreateOrderInput
	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(&input); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	order, created, err := s.orderService.Create(r.Context(), input)

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	status := http.StatusCreated

	if !created {
		status = http.StatusOK
	}

	s.respondWithJSON(w, status, ApiResponse{
		Success: true,
		Data:    order,
	})
}

// getOrdersHandler lists orders for the admin console, optionally filtered
// by reference or status.
func (s *Server) getOrdersHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := repository.OrderFilter{
		Reference: query.Get("reference"),
		Status:    query.Get("status"),
	}

	limit, err := strconv.Atoi(query.Get("limit"))

	if err != nil || limit < 1 || limit > 200 {
		limit = 50
	}

	offset, err := strconv.Atoi(query.Get("offset"))

	if err != nil || offset < 0 {
		offset = 0
	}

	orders, err := s.orderService.ListOrders(r.Context(), filter, limit, offset)

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    orders,
	})
}

// getOrderByIDHandler returns a single order
func (s *Server) getOrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	order, err := s.orderService.GetOrder(r.Context(), id)

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    order,
	})
}

// updateOrderHandler applies a partial patch to an order
func (s *Server) updateOrderHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch service.UpdateOrderInput
	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(&patch); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	order, err := s.orderService.UpdateOrder(r.Context(), id, patch)

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    order,
	})
}

// updateOrderStatusHandler moves an order through the status graph
func (s *Server) updateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		Status string `json:"status"`
		Force  bool   `json:"force"`
	}

	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	order, err := s.orderService.TransitionStatus(r.Context(), id, req.Status, req.Force)

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    order,
	})
}

// resendConfirmationHandler performs a synchronous confirmation resend.
// Gateway failures surface to the caller here, unlike the ingestion path.
func (s *Server) resendConfirmationHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        string `json:"id"`
		Reference string `json:"reference"`
	}

	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	order, err := s.orderService.Resend(r.Context(), req.ID, req.Reference)

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    order,
	})
}

// trackOrderHandler resolves a public tracking code to the redacted order
func (s *Server) trackOrderHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")

	if code == "" {
		code = r.URL.Query().Get("reference")
	}

	if code == "" {
		s.respondWithError(w, http.StatusBadRequest, "Tracking code is required")
		return
	}

	order, err := s.orderService.Track(r.Context(), code)

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    order,
	})
}

// getMenuHandler serves the public menu listing
func (s *Server) getMenuHandler(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	items, err := s.menuService.ListItems(r.Context(), category)

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    items,
	})
}

// respondWithServiceError maps a service error to its HTTP outcome
func (s *Server) respondWithServiceError(w http.ResponseWriter, err error) {
	code := apperrors.StatusCode(err)

	if code == http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err, "status", code)
		s.respondWithError(w, code, "Internal server error")
		return
	}

	s.respondWithError(w, code, err.Error())
}

// respondWithError sends a JSON response with an error message
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, ApiResponse{
		Success: false,
		Error:   message,
	})
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)

	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
