package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"soothe/internal/assignment"
	"soothe/internal/database"
	"soothe/internal/domain"
	"soothe/internal/metrics"
	"soothe/internal/models"
)

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("create_booking")

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var req models.BookingRequest
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	booking, err := s.service.CreateBooking(r.Context(), &req)
	if err != nil {
		if errors.Is(err, assignment.ErrNoCandidatesInRange) {
			writeError(w, http.StatusUnprocessableEntity, "no therapists available in your area for this time")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         booking.ID,
		"status":     booking.Status,
		"price":      booking.Service.Price,
		"candidates": len(booking.CandidateOrder),
	})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("get_booking")

	const prefix = "/api/v1/bookings/"
	id := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, prefix))
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "booking id is required")
		return
	}

	snapshot, err := s.service.GetSnapshot(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrBookingNotFound) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load booking")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// handleRespond is the therapist callback. The dispatch token authorizes the
// response; no API key is involved. Rate limited per remote address so a
// leaked link cannot be brute-forced into a scan.
func (s *HTTPServer) handleRespond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("respond")

	if s.limits != nil {
		limit := s.cfg.RespondRateLimit
		window := time.Duration(s.cfg.RespondRateWindow) * time.Second
		if limit > 0 {
			key := "respond:" + remoteHost(r)
			allowed, err := s.limits.CheckRateLimit(r.Context(), key, limit, window)
			if err != nil {
				s.logger.Warn().Err(err).Msg("respond rate limit check failed")
			} else if !allowed {
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
		}
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	action := strings.TrimSpace(r.URL.Query().Get("action"))
	if token == "" {
		respondPage(w, http.StatusBadRequest, "This link is missing its token.")
		return
	}

	outcome, err := s.service.Respond(r.Context(), token, action)
	if err != nil {
		switch {
		case errors.Is(err, assignment.ErrInvalidAction):
			respondPage(w, http.StatusBadRequest, "This link is not valid.")
		case errors.Is(err, database.ErrDispatchNotFound):
			respondPage(w, http.StatusNotFound, "This link is not recognized.")
		default:
			s.logger.Error().Err(err).Msg("respond failed")
			respondPage(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		}
		return
	}

	respondPage(w, http.StatusOK, outcomeMessage(outcome))
}

func outcomeMessage(outcome domain.Outcome) string {
	switch outcome {
	case domain.OutcomeConfirmed:
		return "You are confirmed for this booking. The client has been notified."
	case domain.OutcomeAdvanced, domain.OutcomeDeclined:
		return "Thanks for letting us know. The booking has been passed on."
	case domain.OutcomeAlreadyResolved:
		return "This booking has already been resolved."
	case domain.OutcomeStaleResponder:
		return "This request has moved on to another therapist."
	default:
		return "Response recorded."
	}
}

// respondPage renders the minimal page a therapist sees after clicking an
// email link.
func respondPage(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	fmt.Fprintf(w, "<!DOCTYPE html><html><head><title>Soothe</title></head><body><p>%s</p></body></html>\n", message)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
