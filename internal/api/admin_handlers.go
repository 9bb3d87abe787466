package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platepay/platepay-api/internal/images"
	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/internal/repository"
	"github.com/platepay/platepay-api/internal/service"
)

// adminSignupHandler registers a new admin account
func (s *Server) adminSignupHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	admin, err := s.authService.Signup(r.Context(), req.FullName, req.Email, req.Password)

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{
		Success: true,
		Data:    admin,
	})
}

// adminLoginHandler exchanges credentials for a bearer token
func (s *Server) adminLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	token, admin, err := s.authService.Login(r.Context(), req.Email, req.Password)

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"token": token,
			"admin": admin,
		},
	})
}

// createMenuItemHandler adds a menu item
func (s *Server) createMenuItemHandler(w http.ResponseWriter, r *http.Request) {
	var input service.MenuItemInput
	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(&input); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	item, err := s.menuService.CreateItem(r.Context(), input)

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{
		Success: true,
		Data:    item,
	})
}

// updateMenuItemHandler updates a menu item
func (s *Server) updateMenuItemHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var input service.MenuItemInput
	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(&input); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	item, err := s.menuService.UpdateItem(r.Context(), id, input)

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    item,
	})
}

// deleteMenuItemHandler removes a menu item
func (s *Server) deleteMenuItemHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.menuService.DeleteItem(r.Context(), id); err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]string{"id": id, "message": "Menu item deleted"},
	})
}

// uploadMenuImageHandler accepts an image upload, multipart or raw body, and
// returns its object key.
func (s *Server) uploadMenuImageHandler(w http.ResponseWriter, r *http.Request) {
	if s.imageStore == nil {
		s.respondWithError(w, http.StatusServiceUnavailable, "Image uploads are not configured")
		return
	}

	var (
		data        []byte
		contentType string
		err         error
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, formErr := r.FormFile("image")

		if formErr != nil {
			s.respondWithError(w, http.StatusBadRequest, "Missing image file")
			return
		}
		defer file.Close()

		data, err = io.ReadAll(io.LimitReader(file, images.MaxImageSize+1))
		contentType = header.Header.Get("Content-Type")
	} else {
		data, err = io.ReadAll(io.LimitReader(r.Body, images.MaxImageSize+1))
		contentType = r.Header.Get("Content-Type")
	}

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Failed to read image data")
		return
	}
	defer r.Body.Close()

	key, err := s.imageStore.Upload(r.Context(), data, contentType)

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{
		Success: true,
		Data:    map[string]string{"key": key},
	})
}

// getDeadLettersHandler returns a list of dead letter messages
func (s *Server) getDeadLettersHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := strconv.Atoi(r.URL.Query().Get("page"))

	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.Atoi(r.URL.Query().Get("pageSize"))

	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	offset := (page - 1) * pageSize

	messages, err := s.dlqRepo.GetAll(ctx, pageSize, offset)

	if err != nil {
		s.logger.Error("Failed to fetch dead letter messages", "error", err)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch dead letter messages")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"items":    messages,
			"page":     page,
			"pageSize": pageSize,
		},
	})
}

// retryDeadLetterHandler queues a parked message for another delivery run
func (s *Server) retryDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idStr := mux.Vars(r)["id"]

	id, err := strconv.ParseInt(idStr, 10, 64)

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid message ID")
		return
	}

	message, err := s.dlqRepo.GetMessage(ctx, id)

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Dead letter message not found")
			return
		}
		s.logger.Error("Failed to fetch dead letter message", "error", err, "messageID", id)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch dead letter message")
		return
	}

	if message.Status == string(models.DeadLetterStatusResolved) {
		s.respondWithError(w, http.StatusBadRequest, "Message is already resolved")
		return
	}

	if err := s.dlqRepo.ResetToRetry(ctx, id); err != nil {
		s.logger.Error("Failed to mark message for retry", "error", err, "messageID", id)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to mark message for retry")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Dead letter message marked for retry",
			"id":      idStr,
		},
	})
}

// discardDeadLetterHandler discards a dead letter message
func (s *Server) discardDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idStr := mux.Vars(r)["id"]

	id, err := strconv.ParseInt(idStr, 10, 64)

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid message ID")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}

	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if req.Reason == "" {
		req.Reason = "No reason provided"
	}

	if err := s.dlqRepo.MarkAsDiscarded(ctx, id, req.Reason); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Dead letter message not found")
			return
		}
		s.logger.Error("Failed to discard message", "error", err, "messageID", id)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to discard message")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Dead letter message discarded",
			"id":      idStr,
		},
	})
}
