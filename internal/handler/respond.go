package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"atcserver/internal/dto"
	"atcserver/internal/logger"
)

// respondJSON writes payload as JSON with the given status.
func respondJSON(w http.ResponseWriter, logger *logger.Logger, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// respondError writes the {"error": message} body used by every failure reply.
func respondError(w http.ResponseWriter, logger *logger.Logger, status int, message string) {
	respondJSON(w, logger, status, dto.ErrorResponse{Error: message})
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// NotFoundHandler replies to unknown routes with a JSON error.
func NotFoundHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondError(w, logger, http.StatusNotFound, "Not found")
	}
}

// MethodNotAllowedHandler replies to known routes called with the wrong method.
func MethodNotAllowedHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondError(w, logger, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
