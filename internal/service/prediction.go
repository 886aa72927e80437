package service

import (
	"context"
	"fmt"
	"io"

	"atcserver/internal/logger"
	"atcserver/internal/model"
	"atcserver/internal/repository"
	"atcserver/internal/service/storage"
)

// Analyzer runs the model pipeline on a stored image.
type Analyzer interface {
	Analyze(ctx context.Context, imagePath, cropPath string) (*Analysis, error)
}

// Publisher is notified about every newly stored result.
type Publisher interface {
	PublishRecord(rec *model.PredictionRecord)
}

// PredictionService turns one uploaded image into one stored result.
type PredictionService struct {
	analyzer   Analyzer
	repo       repository.PredictionRepository
	workspaces *storage.WorkspaceService
	publisher  Publisher
	keepCrops  bool
	logger     *logger.Logger
}

// NewPredictionService wires the pipeline. publisher may be nil.
func NewPredictionService(analyzer Analyzer, repo repository.PredictionRepository, workspaces *storage.WorkspaceService, publisher Publisher, keepCrops bool, logger *logger.Logger) *PredictionService {
	return &PredictionService{
		analyzer:   analyzer,
		repo:       repo,
		workspaces: workspaces,
		publisher:  publisher,
		keepCrops:  keepCrops,
		logger:     logger,
	}
}

// Predict saves the upload into a private workspace, analyzes it and stores
// the result. The workspace is removed on every path. Nothing is stored when
// analysis fails.
func (s *PredictionService) Predict(ctx context.Context, filename string, src io.Reader) (*model.PredictionRecord, error) {
	ws, err := s.workspaces.Create()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			s.logger.Warning("Failed to clean workspace %s: %v", ws.ID, err)
		}
	}()

	imagePath, err := ws.SaveUpload(filename, src)
	if err != nil {
		return nil, err
	}

	analysis, err := s.analyzer.Analyze(ctx, imagePath, ws.CropPath())
	if err != nil {
		return nil, err
	}

	id, err := s.repo.Save(ctx, analysis.Animal, analysis.Measurements)
	if err != nil {
		return nil, fmt.Errorf("failed to store result: %w", err)
	}

	if s.keepCrops {
		if _, err := s.workspaces.KeepCrop(id, analysis.CropPath); err != nil {
			s.logger.Warning("%v", err)
		}
	}

	rec, err := s.repo.Fetch(ctx, id)
	if err != nil || rec == nil {
		s.logger.Warning("Stored result %d could not be read back: %v", id, err)
		rec = &model.PredictionRecord{ID: id, Animal: analysis.Animal, Measurements: analysis.Measurements}
	}

	s.logger.Info("Stored result %d: %s", id, rec.Animal)
	if s.publisher != nil {
		s.publisher.PublishRecord(rec)
	}
	return rec, nil
}
