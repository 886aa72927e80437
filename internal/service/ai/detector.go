package ai

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"atcserver/internal/config"
	"atcserver/internal/logger"
	"atcserver/internal/vision"

	"gocv.io/x/gocv"
)

// DetectorService runs the YOLOv8 cattle/buffalo detector through the OpenCV
// DNN module. A DetectorService is not safe for concurrent use; each
// processing worker owns one.
type DetectorService struct {
	net           gocv.Net
	modelPath     string
	classes       []string
	confThreshold float64
	iouThreshold  float64
	logger        *logger.Logger
}

// NewDetectorService loads the detector weights named by the configuration.
func NewDetectorService(config *config.Config, logger *logger.Logger) (*DetectorService, error) {
	service := &DetectorService{
		modelPath:     config.DetectorModelPath,
		classes:       config.DetectorClasses,
		confThreshold: config.DetectionConfidence,
		iouThreshold:  config.DetectionIoU,
		logger:        logger,
	}

	if err := service.initializeNet(); err != nil {
		return nil, err
	}
	return service, nil
}

// initializeNet loads the ONNX weights into an OpenCV network.
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("detector weights not found: %s", s.modelPath)
	}

	net := gocv.ReadNetFromONNX(s.modelPath)
	if net.Empty() {
		return fmt.Errorf("failed to load detector network from %s", s.modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.logger.Info("Detection network initialized from %s", s.modelPath)
	return nil
}

// Detect returns the cattle/buffalo detections found in the image at imagePath.
func (s *DetectorService) Detect(ctx context.Context, imagePath string) ([]vision.Detection, error) {
	mat := gocv.IMRead(imagePath, gocv.IMReadColor)
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("failed to read image %s", imagePath)
	}
	return s.detectMat(ctx, mat)
}

// CropBest crops the highest-confidence detection of imagePath and writes it
// to savePath, overwriting any existing file. ok is false when nothing was
// detected or the image could not be loaded.
func (s *DetectorService) CropBest(ctx context.Context, imagePath, savePath string) (string, bool, error) {
	mat := gocv.IMRead(imagePath, gocv.IMReadColor)
	defer mat.Close()
	if mat.Empty() {
		s.logger.Warning("Could not load image for cropping: %s", imagePath)
		return "", false, nil
	}

	detections, err := s.detectMat(ctx, mat)
	if err != nil {
		return "", false, err
	}

	best, ok := vision.SelectBest(detections)
	if !ok {
		return "", false, nil
	}

	region := vision.CropRegion(vision.ClampBox(best.Box, mat.Cols(), mat.Rows()))
	crop := mat.Region(region)
	defer crop.Close()

	if err := os.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		return "", false, fmt.Errorf("failed to create crop directory: %w", err)
	}
	if !gocv.IMWrite(savePath, crop) {
		return "", false, fmt.Errorf("failed to write crop to %s", savePath)
	}

	s.logger.Info("Cropped %s (%.2f) at %v", best.Label, best.Confidence, region)
	return savePath, true, nil
}

func (s *DetectorService) detectMat(ctx context.Context, mat gocv.Mat) ([]vision.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.net.Empty() {
		return nil, fmt.Errorf("detection network not initialized")
	}

	size := vision.YOLOInputSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected detector output dims: %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read detector output: %w", err)
	}
	if dims[1]-4 != len(s.classes) {
		return nil, fmt.Errorf("detector has %d classes, configured %d", dims[1]-4, len(s.classes))
	}

	scaleX := float64(mat.Cols()) / float64(size)
	scaleY := float64(mat.Rows()) / float64(size)
	candidates, err := vision.DecodeYOLO(data, s.classes, dims[2], s.confThreshold, scaleX, scaleY)
	if err != nil {
		return nil, err
	}

	kept := vision.ApplyNMS(candidates, gocv.NMSBoxes, s.confThreshold, s.iouThreshold)
	return vision.FilterLabels(kept, vision.DetectorLabels), nil
}

// Close releases the network.
func (s *DetectorService) Close() error {
	return s.net.Close()
}
