package handler

import (
	"net/http"

	"atcserver/internal/logger"
	"atcserver/internal/repository"
	"atcserver/internal/service/websocket"
)

// HealthHandler reports whether the result store answers, plus the number
// of live viewers.
func HealthHandler(repo repository.PredictionRepository, hub *websocket.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := repo.Count(r.Context(), nil); err != nil {
			logger.Error("Health check failed: %v", err)
			respondJSON(w, logger, http.StatusServiceUnavailable, map[string]interface{}{"status": "unavailable"})
			return
		}
		respondJSON(w, logger, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"viewers": hub.GetClientCount(),
		})
	}
}
