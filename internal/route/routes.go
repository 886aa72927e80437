package route

import (
	"net/http"

	"atcserver/internal/config"
	"atcserver/internal/handler"
	"atcserver/internal/logger"
	"atcserver/internal/middleware"
	"atcserver/internal/repository"
	"atcserver/internal/service"
	"atcserver/internal/service/storage"
	"atcserver/internal/service/websocket"

	"github.com/gorilla/mux"
)

// Dependencies groups everything the HTTP layer needs.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	Predictions *service.PredictionService
	Results     repository.PredictionRepository
	Workspaces  *storage.WorkspaceService
	Hub         *websocket.HubService
}

// SetupRoutes registers the API endpoints and wraps the router with the
// CORS and request logging middleware.
func SetupRoutes(deps *Dependencies) http.Handler {
	cfg, logger := deps.Config, deps.Logger
	r := mux.NewRouter()

	// Prediction
	r.HandleFunc("/predict", handler.PredictHandler(cfg, deps.Predictions, logger)).Methods(http.MethodPost)

	// Results
	r.HandleFunc("/results", handler.ListResultsHandler(deps.Results, logger)).Methods(http.MethodGet)
	r.HandleFunc("/results/stats", handler.ResultStatsHandler(deps.Results, logger)).Methods(http.MethodGet)
	r.HandleFunc("/results/export", handler.ExportResultsHandler(deps.Results, logger)).Methods(http.MethodGet)
	r.HandleFunc("/results/{id:[0-9]+}", handler.GetResultHandler(deps.Results, logger)).Methods(http.MethodGet)
	r.HandleFunc("/results/{id:[0-9]+}/crop", handler.ResultCropHandler(cfg, deps.Workspaces, logger)).Methods(http.MethodGet)

	// Live feed and health
	r.HandleFunc("/api/live", handler.LiveWebsocketHandler(deps.Hub, logger))
	r.HandleFunc("/health", handler.HealthHandler(deps.Results, deps.Hub, logger)).Methods(http.MethodGet)

	// Log endpoints
	r.HandleFunc("/logs/{level}", handler.ShowLogsHandler(logger)).Methods(http.MethodGet)
	r.HandleFunc("/logs/{level}/clear", handler.ClearLogsHandler(logger)).Methods(http.MethodPost)

	r.NotFoundHandler = handler.NotFoundHandler(logger)
	r.MethodNotAllowedHandler = handler.MethodNotAllowedHandler(logger)

	return middleware.LoggingMiddleware(logger)(middleware.CORSMiddleware(r))
}
