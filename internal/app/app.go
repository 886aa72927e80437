package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"atcserver/internal/config"
	"atcserver/internal/logger"
	"atcserver/internal/repository"
	"atcserver/internal/repository/redis"
	"atcserver/internal/repository/sqlite"
	"atcserver/internal/route"
	"atcserver/internal/service"
	"atcserver/internal/service/ai"
	"atcserver/internal/service/storage"
	"atcserver/internal/service/websocket"
)

const (
	workspacePurgeInterval = 10 * time.Minute
	workspaceMaxAge        = time.Hour
	shutdownTimeout        = 15 * time.Second
)

type App struct {
	config      *config.Config
	logger      *logger.Logger
	results     repository.PredictionRepository
	workspaces  *storage.WorkspaceService
	hubService  *websocket.HubService
	manager     *service.Manager
	predictions *service.PredictionService
}

// NewApp loads every model and opens the result store. Any failure is
// returned before the server accepts a request.
func NewApp() (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)

	if err := ai.InitRuntime(cfg.OnnxRuntimeLibrary); err != nil {
		log.Close()
		return nil, err
	}

	workers := cfg.ProcessingWorkers
	if workers < 1 {
		workers = 1
	}
	models := make([]*service.Models, 0, workers)
	release := func() {
		for _, loaded := range models {
			loaded.Close()
		}
		ai.ShutdownRuntime()
		log.Close()
	}

	// One model set per worker.
	for i := 0; i < workers; i++ {
		m, err := loadModels(cfg, log)
		if err != nil {
			release()
			return nil, err
		}
		models = append(models, m)
	}

	results, err := openResults(cfg)
	if err != nil {
		release()
		return nil, err
	}

	workspaces, err := storage.NewWorkspaceService(cfg.UploadDirectory, log)
	if err != nil {
		results.Close()
		release()
		return nil, err
	}

	hub := websocket.NewHubService(log)
	mng := service.NewManager(models, cfg, log)

	return &App{
		config:      cfg,
		logger:      log,
		results:     results,
		workspaces:  workspaces,
		hubService:  hub,
		manager:     mng,
		predictions: service.NewPredictionService(mng, results, workspaces, hub, cfg.KeepCrops, log),
	}, nil
}

func loadModels(cfg *config.Config, log *logger.Logger) (*service.Models, error) {
	detector, err := ai.NewDetectorService(cfg, log)
	if err != nil {
		return nil, err
	}
	classifier, err := ai.NewClassifierService(cfg, log)
	if err != nil {
		detector.Close()
		return nil, err
	}
	pose, err := ai.NewPoseService(cfg, log)
	if err != nil {
		detector.Close()
		classifier.Close()
		return nil, err
	}
	return &service.Models{Detector: detector, Classifier: classifier, Extractor: pose}, nil
}

func openResults(cfg *config.Config) (repository.PredictionRepository, error) {
	switch cfg.StoreBackend {
	case "sqlite", "":
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return sqlite.NewPredictionRepository(db), nil
	case "redis":
		repo, err := redis.NewPredictionRepository(redis.NewPool(cfg.RedisAddress, cfg.RedisMaxConnections), redis.DefaultPrefix)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config {
	return a.config
}

// Predictions exposes the prediction pipeline for non-HTTP callers.
func (a *App) Predictions() *service.PredictionService {
	return a.predictions
}

// Results exposes the result store.
func (a *App) Results() repository.PredictionRepository {
	return a.results
}

// Logger returns the application logger.
func (a *App) Logger() *logger.Logger {
	return a.logger
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts down gracefully.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start background services
	go a.hubService.Run(ctx)
	go a.workspaces.Run(ctx, workspacePurgeInterval, workspaceMaxAge)

	router := route.SetupRoutes(&route.Dependencies{
		Config:      a.config,
		Logger:      a.logger,
		Predictions: a.predictions,
		Results:     a.results,
		Workspaces:  a.workspaces,
		Hub:         a.hubService,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      a.config.InferenceTimeout + 30*time.Second,
	}

	a.logger.Info("Cattle/buffalo ATC server")
	a.logger.Info("URL: http://localhost:%d", a.config.Port)
	a.logger.Info("Uploads: %s", a.config.UploadDirectory)
	a.logger.Info("Detector: %s, classifier: %s, pose: %s", a.config.DetectorModelPath, a.config.ClassifierModelPath, a.config.PoseModelPath)
	a.logger.Info("Result store: %s", a.config.StoreBackend)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close stops the workers and releases models, the result store and log files.
func (a *App) Close() {
	a.manager.Stop()
	ai.ShutdownRuntime()
	if err := a.results.Close(); err != nil {
		a.logger.Error("Error closing result store: %v", err)
	}
	a.logger.Close()
}
