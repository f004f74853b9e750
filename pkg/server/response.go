package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hsne-clustering-service/pkg/clustering"
	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

func writeSuccess(w http.ResponseWriter, r *http.Request, status int, message string, data interface{}) {
	writeJSON(w, r, status, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	response := APIResponse{
		Success: false,
		Message: message,
	}
	if err != nil {
		response.Error = err.Error()
	}
	writeJSON(w, r, status, response)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		zerolog.Ctx(r.Context()).Error().
			Err(err).
			Int("status_code", status).
			Msg("Failed to encode JSON response")
	}
}

// statusFor maps a clustering or parse error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, clustering.ErrInvalidMethod),
		errors.Is(err, hsne.ErrFormat):
		return http.StatusBadRequest
	case errors.Is(err, hsne.ErrInvalidScale):
		return http.StatusNotFound
	case errors.Is(err, clustering.ErrPartition),
		errors.Is(err, clustering.ErrNumericAnomaly),
		errors.Is(err, hsne.ErrMalformedMatrix),
		errors.Is(err, hsne.ErrLabelCountMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
