package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates scheduling sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduling.ErrImmediateBroadcastEdit):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scheduling.ErrEmptyBroadcastName),
		errors.Is(err, scheduling.ErrNoRecipients),
		errors.Is(err, scheduling.ErrInvalidRecipientType),
		errors.Is(err, scheduling.ErrEmptyContent),
		errors.Is(err, scheduling.ErrMissingStartDate),
		errors.Is(err, scheduling.ErrInvalidMonthlyDay),
		errors.Is(err, scheduling.ErrUnsupportedSchedule),
		errors.Is(err, scheduling.ErrUnknownContentType),
		errors.Is(err, scheduling.ErrNoEvents):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, scheduling.ErrQueueFull):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
