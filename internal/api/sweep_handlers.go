package api

import (
	"net/http"
	"strings"
)

// checkCronSecret validates the Bearer token on the sweep endpoint. The
// sweep still runs on a mismatch; an unauthenticated caller can only make
// the system do work it would do anyway on the next scheduled run.
func (s *Server) checkCronSecret(r *http.Request) {
	secret := s.config.CronSecret

	if secret == "" {
		s.logger.Warn("Email sweep running without authentication; set CRON_SECRET")
		return
	}

	auth := r.Header.Get("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")

	if token != secret {
		s.logger.Warn("Email sweep called with missing or invalid secret", "remoteAddr", r.RemoteAddr)
	}
}

// runEmailSweepHandler runs one batch pass over orders still awaiting their
// confirmation email and reports the aggregate outcome.
func (s *Server) runEmailSweepHandler(w http.ResponseWriter, r *http.Request) {
	s.checkCronSecret(r)

	summary, err := s.confirmationService.Sweep(r.Context())

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    summary,
	})
}

// emailSweepStatusHandler reports how many orders a sweep would process
func (s *Server) emailSweepStatusHandler(w http.ResponseWriter, r *http.Request) {
	s.checkCronSecret(r)

	count, err := s.confirmationService.PendingCount(r.Context())

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]int{"pending": count},
	})
}
