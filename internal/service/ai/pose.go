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

// BlazePose landmark model layout: 39 points (33 body + 6 auxiliary) with
// 5 values each, plus a single pose presence score.
const poseOutputPoints = 39

// PoseService estimates pose landmarks and derives body measurements.
type PoseService struct {
	onnx   *onnxSession
	mu     sync.Mutex
	logger *logger.Logger
}

// NewPoseService creates an ONNX session for the pose landmark model.
// InitRuntime must have been called first.
func NewPoseService(config *config.Config, logger *logger.Logger) (*PoseService, error) {
	size := int64(vision.PoseInputSize)
	onnx, err := newOnnxSession(config.PoseModelPath,
		[]string{"input_1"}, []ort.Shape{ort.NewShape(1, size, size, 3)},
		[]string{"Identity", "Identity_1"}, []ort.Shape{ort.NewShape(1, poseOutputPoints*5), ort.NewShape(1, 1)},
	)
	if err != nil {
		return nil, err
	}
	logger.Info("Pose model loaded from %s", config.PoseModelPath)
	return &PoseService{onnx: onnx, logger: logger}, nil
}

// Extract runs pose estimation on imagePath. When no landmarks are found the
// returned set carries the no-landmarks marker and err is nil.
func (s *PoseService) Extract(ctx context.Context, imagePath string) (model.MeasurementSet, error) {
	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return model.MeasurementSet{}, fmt.Errorf("failed to open image for pose estimation: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return model.MeasurementSet{}, err
	}

	tensor := vision.ImageToNHWC(img, vision.PoseInputSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.onnx.inputs[0].GetData(), tensor)
	if err := s.onnx.session.Run(); err != nil {
		return model.MeasurementSet{}, fmt.Errorf("pose inference failed: %w", err)
	}

	raw := s.onnx.outputs[0].GetData()
	presence := s.onnx.outputs[1].GetData()[0]
	landmarks := vision.DecodeLandmarks(raw, presence, vision.PoseInputSize)
	if landmarks == nil {
		s.logger.Info("No pose landmarks in %s (presence %.2f)", imagePath, presence)
	}
	return vision.Measure(landmarks), nil
}

// Close releases the ONNX session.
func (s *PoseService) Close() error {
	s.onnx.Destroy()
	return nil
}
