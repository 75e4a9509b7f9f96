package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/custodia/internal/common"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteServiceError maps sentinel errors onto HTTP status codes
func WriteServiceError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, common.ErrOverloaded):
		return WriteError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, common.ErrRateLimited):
		return WriteError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, common.ErrKindNotAllowed):
		return WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, common.ErrStatusConflict), errors.Is(err, common.ErrJobTerminal):
		return WriteError(w, http.StatusConflict, err.Error())
	}
	return WriteError(w, http.StatusInternalServerError, err.Error())
}

// clientIP extracts the caller address for audit rows
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
