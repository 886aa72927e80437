package ai

import (
	"context"
	"fmt"
	"sync"

	"atcserver/internal/config"
	"atcserver/internal/logger"
	"atcserver/internal/model"
	"atcserver/internal/vision"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

const classifierInputSize = 224

// classifierLabels maps the model's output index to a label.
var classifierLabels = []string{model.AnimalCattle, model.AnimalBuffalo}

// ClassifierService runs the two-class cattle/buffalo ResNet model.
type ClassifierService struct {
	onnx   *onnxSession
	mu     sync.Mutex
	logger *logger.Logger
}

// NewClassifierService creates an ONNX session for the classifier model.
// InitRuntime must have been called first.
func NewClassifierService(config *config.Config, logger *logger.Logger) (*ClassifierService, error) {
	onnx, err := newOnnxSession(config.ClassifierModelPath,
		[]string{"input"}, []ort.Shape{ort.NewShape(1, 3, classifierInputSize, classifierInputSize)},
		[]string{"output"}, []ort.Shape{ort.NewShape(1, int64(len(classifierLabels)))},
	)
	if err != nil {
		return nil, err
	}
	logger.Info("Classifier loaded from %s", config.ClassifierModelPath)
	return &ClassifierService{onnx: onnx, logger: logger}, nil
}

// Predict classifies the image at imagePath as Cattle or Buffalo.
func (s *ClassifierService) Predict(ctx context.Context, imagePath string) (string, error) {
	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to open image for classification: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tensor := vision.ImageToNCHW(img, classifierInputSize, vision.ImageNetMean, vision.ImageNetStd)

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.onnx.inputs[0].GetData(), tensor)
	if err := s.onnx.session.Run(); err != nil {
		return "", fmt.Errorf("classifier inference failed: %w", err)
	}

	idx := vision.Argmax(s.onnx.outputs[0].GetData())
	return classifierLabels[idx], nil
}

// Close releases the ONNX session.
func (s *ClassifierService) Close() error {
	s.onnx.Destroy()
	return nil
}
