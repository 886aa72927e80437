package repository

import (
	"context"

	"atcserver/internal/dto"
	"atcserver/internal/model"
)

// PredictionRepository persists prediction records. Records are immutable:
// there is no update or delete.
type PredictionRepository interface {
	// Save stores a new record and returns an id that was never issued before.
	Save(ctx context.Context, animal string, measurements model.MeasurementSet) (int64, error)

	// Fetch returns the record for id, or nil when it does not exist.
	Fetch(ctx context.Context, id int64) (*model.PredictionRecord, error)

	// List returns records newest first.
	List(ctx context.Context, filter *dto.ResultFilters) ([]model.PredictionRecord, error)
	Count(ctx context.Context, filter *dto.ResultFilters) (int, error)
	Stats(ctx context.Context) (*dto.ResultStats, error)

	Close() error
}
