package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"atcserver/internal/dto"
	"atcserver/internal/model"
)

// PredictionRepository implements repository.PredictionRepository for SQLite.
type PredictionRepository struct {
	db *DB
}

// NewPredictionRepository creates a new SQLite prediction repository.
func NewPredictionRepository(db *DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Save inserts a record. AUTOINCREMENT guarantees ids are never reused, even
// after the highest row is gone.
func (r *PredictionRepository) Save(ctx context.Context, animal string, measurements model.MeasurementSet) (int64, error) {
	data, err := json.Marshal(measurements)
	if err != nil {
		return 0, fmt.Errorf("failed to encode measurements: %w", err)
	}

	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO predictions (animal, measurements, measurement_failed, created_at)
		VALUES (?, ?, ?, ?)
	`, animal, string(data), measurements.Failed(), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert prediction: %w", err)
	}

	return result.LastInsertId()
}

// Fetch retrieves a record by its ID.
func (r *PredictionRepository) Fetch(ctx context.Context, id int64) (*model.PredictionRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, animal, measurements, created_at
		FROM predictions WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return rec, nil
}

// List retrieves records matching the filter, newest first.
func (r *PredictionRepository) List(ctx context.Context, filter *dto.ResultFilters) ([]model.PredictionRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)
	query := `SELECT id, animal, measurements, created_at FROM predictions` + where + ` ORDER BY id DESC`

	if filter != nil && (filter.Limit > 0 || filter.Offset > 0) {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	records := []model.PredictionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

// Count returns the number of records matching the filter.
func (r *PredictionRepository) Count(ctx context.Context, filter *dto.ResultFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)

	var count int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return count, nil
}

// Stats returns totals per animal and the number of failed measurements.
func (r *PredictionRepository) Stats(ctx context.Context) (*dto.ResultStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &dto.ResultStats{PerAnimal: make(map[string]int)}

	rows, err := r.db.Conn().QueryContext(ctx, `SELECT animal, COUNT(*) FROM predictions GROUP BY animal`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var animal string
		var count int
		if err := rows.Scan(&animal, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats.PerAnimal[animal] = count
		stats.TotalResults += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM predictions WHERE measurement_failed = 1`).Scan(&stats.FailedMeasurements); err != nil {
		return nil, fmt.Errorf("failed to count failed measurements: %w", err)
	}

	return stats, nil
}

// Close closes the underlying database.
func (r *PredictionRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*model.PredictionRecord, error) {
	var rec model.PredictionRecord
	var measurements string
	if err := s.Scan(&rec.ID, &rec.Animal, &measurements, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(measurements), &rec.Measurements); err != nil {
		return nil, err
	}
	return &rec, nil
}

func buildWhere(filter *dto.ResultFilters) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter != nil && filter.Animal != "" {
		clauses = append(clauses, "LOWER(animal) = LOWER(?)")
		args = append(args, filter.Animal)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
