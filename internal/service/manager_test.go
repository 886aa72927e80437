package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"atcserver/internal/config"
	"atcserver/internal/logger"
	"atcserver/internal/model"
)

// ========================================
// Fake Models
// ========================================

type fakeDetector struct {
	found  bool
	err    error
	delay  time.Duration
	block  chan struct{}
	calls  int32
	closed int32
}

func (d *fakeDetector) CropBest(ctx context.Context, imagePath, savePath string) (string, bool, error) {
	atomic.AddInt32(&d.calls, 1)
	if d.block != nil {
		<-d.block
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil || !d.found {
		return "", false, d.err
	}
	if err := os.WriteFile(savePath, []byte("crop"), 0644); err != nil {
		return "", false, err
	}
	return savePath, true, nil
}

func (d *fakeDetector) Close() error {
	atomic.AddInt32(&d.closed, 1)
	return nil
}

type fakeClassifier struct {
	animal string
	err    error
	mu     sync.Mutex
	paths  []string
}

func (c *fakeClassifier) Predict(ctx context.Context, imagePath string) (string, error) {
	c.mu.Lock()
	c.paths = append(c.paths, imagePath)
	c.mu.Unlock()
	return c.animal, c.err
}

func (c *fakeClassifier) Close() error { return nil }

type fakeExtractor struct {
	set model.MeasurementSet
	err error
}

func (e *fakeExtractor) Extract(ctx context.Context, imagePath string) (model.MeasurementSet, error) {
	return e.set, e.err
}

func (e *fakeExtractor) Close() error { return nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	t.Cleanup(l.Close)
	return l
}

func newFakeModels(animal string) (*Models, *fakeDetector, *fakeClassifier) {
	det := &fakeDetector{found: true}
	cls := &fakeClassifier{animal: animal}
	ext := &fakeExtractor{set: model.MeasurementSet{BodyLength: 0.25, ChestWidth: 0.1, RumpAngle: model.PendingMeasurement}}
	return &Models{Detector: det, Classifier: cls, Extractor: ext}, det, cls
}

func newTestManager(t *testing.T, cfg *config.Config, models ...*Models) *Manager {
	t.Helper()
	m := NewManager(models, cfg, testLogger(t))
	t.Cleanup(m.Stop)
	return m
}

// ========================================
// Manager Tests
// ========================================

func TestManager_Analyze_Crop(t *testing.T) {
	models, _, cls := newFakeModels(model.AnimalBuffalo)
	m := newTestManager(t, &config.Config{QueueSize: 4, InferenceTimeout: time.Second, InferOn: InferOnCrop}, models)

	cropPath := t.TempDir() + "/crop.jpg"
	analysis, err := m.Analyze(context.Background(), "/tmp/upload.jpg", cropPath)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if analysis.Animal != model.AnimalBuffalo {
		t.Errorf("Expected Buffalo, got %s", analysis.Animal)
	}
	if analysis.CropPath != cropPath {
		t.Errorf("Expected crop path %s, got %s", cropPath, analysis.CropPath)
	}
	if analysis.Measurements.BodyLength != 0.25 {
		t.Errorf("Unexpected measurements: %+v", analysis.Measurements)
	}
	if len(cls.paths) != 1 || cls.paths[0] != cropPath {
		t.Errorf("Classifier should run on the crop, got %v", cls.paths)
	}
}

func TestManager_Analyze_FullImage(t *testing.T) {
	models, _, cls := newFakeModels(model.AnimalCattle)
	m := newTestManager(t, &config.Config{QueueSize: 4, InferenceTimeout: time.Second, InferOn: InferOnFull}, models)

	if _, err := m.Analyze(context.Background(), "/tmp/upload.jpg", t.TempDir()+"/crop.jpg"); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(cls.paths) != 1 || cls.paths[0] != "/tmp/upload.jpg" {
		t.Errorf("Classifier should run on the full image, got %v", cls.paths)
	}
}

func TestManager_Analyze_NoDetection(t *testing.T) {
	models, det, cls := newFakeModels(model.AnimalCattle)
	det.found = false
	m := newTestManager(t, &config.Config{QueueSize: 4, InferenceTimeout: time.Second}, models)

	_, err := m.Analyze(context.Background(), "/tmp/upload.jpg", t.TempDir()+"/crop.jpg")
	if !errors.Is(err, ErrNoDetection) {
		t.Fatalf("Expected ErrNoDetection, got %v", err)
	}
	if len(cls.paths) != 0 {
		t.Error("Classifier should not run without a detection")
	}
}

func TestManager_Analyze_ModelError(t *testing.T) {
	models, det, _ := newFakeModels(model.AnimalCattle)
	det.err = errors.New("cannot read image")
	m := newTestManager(t, &config.Config{QueueSize: 4, InferenceTimeout: time.Second}, models)

	_, err := m.Analyze(context.Background(), "/tmp/upload.jpg", t.TempDir()+"/crop.jpg")
	if err == nil || errors.Is(err, ErrNoDetection) {
		t.Fatalf("Expected detection error, got %v", err)
	}
}

func TestManager_Analyze_Timeout(t *testing.T) {
	models, det, _ := newFakeModels(model.AnimalCattle)
	det.delay = 200 * time.Millisecond
	m := newTestManager(t, &config.Config{QueueSize: 4, InferenceTimeout: 20 * time.Millisecond}, models)

	_, err := m.Analyze(context.Background(), "/tmp/upload.jpg", t.TempDir()+"/crop.jpg")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
}

func TestManager_Analyze_QueueFull(t *testing.T) {
	models, det, _ := newFakeModels(model.AnimalCattle)
	det.block = make(chan struct{})
	m := newTestManager(t, &config.Config{QueueSize: 1, InferenceTimeout: 5 * time.Second}, models)
	defer close(det.block)

	dir := t.TempDir()
	var wg sync.WaitGroup
	// First call occupies the worker.
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Analyze(context.Background(), "/tmp/a.jpg", dir+"/a.jpg")
	}()
	waitFor(t, func() bool { return atomic.LoadInt32(&det.calls) == 1 })

	// Second call fills the queue.
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Analyze(context.Background(), "/tmp/b.jpg", dir+"/b.jpg")
	}()
	waitFor(t, func() bool { return len(m.processingQueue) == 1 })

	if _, err := m.Analyze(context.Background(), "/tmp/c.jpg", dir+"/c.jpg"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}

	det.block <- struct{}{}
	det.block <- struct{}{}
	wg.Wait()
}

func TestManager_ConcurrentRequests(t *testing.T) {
	a, detA, _ := newFakeModels(model.AnimalCattle)
	b, detB, _ := newFakeModels(model.AnimalCattle)
	m := newTestManager(t, &config.Config{QueueSize: 32, InferenceTimeout: 5 * time.Second}, a, b)

	dir := t.TempDir()
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			crop := dir + "/" + string(rune('a'+i)) + ".jpg"
			analysis, err := m.Analyze(context.Background(), "/tmp/upload.jpg", crop)
			if err != nil {
				errs <- err
				return
			}
			if analysis.CropPath != crop {
				errs <- errors.New("crop path mixed up between requests")
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if total := atomic.LoadInt32(&detA.calls) + atomic.LoadInt32(&detB.calls); total != 16 {
		t.Errorf("Expected 16 detections, got %d", total)
	}
}

func TestManager_Stop(t *testing.T) {
	models, det, _ := newFakeModels(model.AnimalCattle)
	m := NewManager([]*Models{models}, &config.Config{QueueSize: 1}, testLogger(t))

	m.Stop()
	m.Stop()

	if atomic.LoadInt32(&det.closed) != 1 {
		t.Errorf("Expected models closed once, got %d", det.closed)
	}
	if _, err := m.Analyze(context.Background(), "/tmp/a.jpg", "/tmp/crop.jpg"); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped after Stop, got %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met in time")
}
