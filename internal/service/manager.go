package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"atcserver/internal/config"
	"atcserver/internal/logger"
	"atcserver/internal/model"
)

// Errors reported by the inference pipeline.
var (
	ErrNoDetection = errors.New("no cattle/buffalo detected")
	ErrQueueFull   = errors.New("processing queue full")
	ErrTimeout     = errors.New("inference timed out")
	ErrStopped     = errors.New("manager stopped")
)

// Inference targets for classification and measurement.
const (
	InferOnCrop = "crop"
	InferOnFull = "full"
)

// Detector crops the best cattle/buffalo detection of an image.
type Detector interface {
	CropBest(ctx context.Context, imagePath, savePath string) (string, bool, error)
	Close() error
}

// Classifier labels an image as Cattle or Buffalo.
type Classifier interface {
	Predict(ctx context.Context, imagePath string) (string, error)
	Close() error
}

// MeasurementExtractor derives body measurements from an image. A missing
// pose is reported through the returned set, not as an error.
type MeasurementExtractor interface {
	Extract(ctx context.Context, imagePath string) (model.MeasurementSet, error)
	Close() error
}

// Models is the set of model instances owned by one worker.
type Models struct {
	Detector   Detector
	Classifier Classifier
	Extractor  MeasurementExtractor
}

// Close releases every model in the set.
func (m *Models) Close() {
	for _, c := range []interface{ Close() error }{m.Detector, m.Classifier, m.Extractor} {
		if c != nil {
			c.Close()
		}
	}
}

// Analysis is the outcome of running the models on one image.
type Analysis struct {
	Animal       string
	Measurements model.MeasurementSet
	CropPath     string
}

type analysisTask struct {
	ctx       context.Context
	imagePath string
	cropPath  string
	result    chan analysisResult
}

type analysisResult struct {
	analysis *Analysis
	err      error
}

// Manager runs inference on a fixed pool of workers. Each worker owns its
// own Models, so no model instance is ever used by two goroutines.
type Manager struct {
	models  []*Models
	logger  *logger.Logger
	timeout time.Duration
	inferOn string

	processingQueue chan analysisTask
	closed          bool
	closeMu         sync.RWMutex
	wg              sync.WaitGroup
}

// NewManager starts one worker per entry of models.
func NewManager(models []*Models, config *config.Config, logger *logger.Logger) *Manager {
	queueSize := config.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	inferOn := config.InferOn
	if inferOn != InferOnFull {
		inferOn = InferOnCrop
	}

	manager := &Manager{
		models:          models,
		logger:          logger,
		timeout:         config.InferenceTimeout,
		inferOn:         inferOn,
		processingQueue: make(chan analysisTask, queueSize),
	}

	for i := range models {
		manager.wg.Add(1)
		go manager.processingWorker(i)
	}

	manager.logger.Info("Manager started - %d worker(s), queue %d, inference on %s image", len(models), queueSize, inferOn)
	return manager
}

// Analyze detects, crops, classifies and measures the image at imagePath,
// writing the crop to cropPath. It fails with ErrQueueFull when every worker
// is busy and the queue is full, and with ErrTimeout when the configured
// inference timeout expires first.
func (m *Manager) Analyze(ctx context.Context, imagePath, cropPath string) (*Analysis, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	task := analysisTask{
		ctx:       ctx,
		imagePath: imagePath,
		cropPath:  cropPath,
		result:    make(chan analysisResult, 1),
	}

	if err := m.enqueue(task); err != nil {
		return nil, err
	}

	select {
	case res := <-task.result:
		return res.analysis, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func (m *Manager) enqueue(task analysisTask) error {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()

	if m.closed {
		return ErrStopped
	}

	select {
	case m.processingQueue <- task:
		return nil
	default:
		m.logger.Warning("Processing queue full - rejecting %s", task.imagePath)
		return ErrQueueFull
	}
}

// processingWorker serves the queue with the models of worker workerID.
func (m *Manager) processingWorker(workerID int) {
	defer m.wg.Done()

	m.logger.Info("Processing worker %d started", workerID)

	for task := range m.processingQueue {
		if err := task.ctx.Err(); err != nil {
			task.result <- analysisResult{err: err}
			continue
		}

		start := time.Now()
		analysis, err := m.analyze(task, m.models[workerID])
		task.result <- analysisResult{analysis: analysis, err: err}

		if err != nil && !errors.Is(err, ErrNoDetection) {
			m.logger.Error("Worker %d failed on %s: %v", workerID, task.imagePath, err)
		} else {
			m.logger.Info("Worker %d processed %s in %v", workerID, task.imagePath, time.Since(start))
		}
	}

	m.logger.Info("Processing worker %d stopped", workerID)
}

func (m *Manager) analyze(task analysisTask, models *Models) (*Analysis, error) {
	cropPath, ok, err := models.Detector.CropBest(task.ctx, task.imagePath, task.cropPath)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	if !ok {
		return nil, ErrNoDetection
	}

	target := task.imagePath
	if m.inferOn == InferOnCrop {
		target = cropPath
	}

	animal, err := models.Classifier.Predict(task.ctx, target)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	measurements, err := models.Extractor.Extract(task.ctx, target)
	if err != nil {
		return nil, fmt.Errorf("measurement failed: %w", err)
	}

	return &Analysis{Animal: animal, Measurements: measurements, CropPath: cropPath}, nil
}

// Stop drains the queue, waits for the workers and closes their models.
func (m *Manager) Stop() {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return
	}
	m.closed = true
	close(m.processingQueue)
	m.closeMu.Unlock()

	m.wg.Wait()
	for _, models := range m.models {
		models.Close()
	}
	m.logger.Info("All processing workers stopped")
}
