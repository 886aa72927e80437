package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"atcserver/internal/dto"
	"atcserver/internal/model"

	"github.com/garyburd/redigo/redis"
)

// DefaultPrefix namespaces every key written by the repository.
const DefaultPrefix = "atc:results"

// PredictionRepository implements repository.PredictionRepository on Redis.
// Ids come from INCR on a counter key, so they are never reissued.
type PredictionRepository struct {
	pool   *redis.Pool
	prefix string
}

// NewPool creates a connection pool for address.
func NewPool(address string, maxConnections int) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     maxConnections,
		MaxActive:   maxConnections,
		IdleTimeout: 240 * time.Second,
		Wait:        true,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", address)
		},
	}
}

// NewPredictionRepository checks the pool with a PING and returns the repository.
func NewPredictionRepository(pool *redis.Pool, prefix string) (*PredictionRepository, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	conn := pool.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return &PredictionRepository{pool: pool, prefix: prefix}, nil
}

func (r *PredictionRepository) key(parts ...string) string {
	return r.prefix + ":" + strings.Join(parts, ":")
}

func (r *PredictionRepository) recordKey(id int64) string {
	return r.key("record", strconv.FormatInt(id, 10))
}

// conn takes a pooled connection unless ctx is already done.
func (r *PredictionRepository) conn(ctx context.Context) (redis.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn := r.pool.Get()
	if err := conn.Err(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get redis connection: %w", err)
	}
	return conn, nil
}

// Save stores a record under a freshly incremented id.
func (r *PredictionRepository) Save(ctx context.Context, animal string, measurements model.MeasurementSet) (int64, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	id, err := redis.Int64(conn.Do("INCR", r.key("next_id")))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate id: %w", err)
	}

	rec := model.PredictionRecord{
		ID:           id,
		Animal:       animal,
		Measurements: measurements,
		CreatedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to encode prediction: %w", err)
	}

	conn.Send("MULTI")
	conn.Send("SET", r.recordKey(id), data)
	conn.Send("RPUSH", r.key("ids"), id)
	conn.Send("HINCRBY", r.key("per_animal"), animal, 1)
	if measurements.Failed() {
		conn.Send("INCR", r.key("failed"))
	}
	if _, err := conn.Do("EXEC"); err != nil {
		return 0, fmt.Errorf("failed to store prediction: %w", err)
	}

	return id, nil
}

// Fetch retrieves a record by id, or nil when it does not exist.
func (r *PredictionRepository) Fetch(ctx context.Context, id int64) (*model.PredictionRecord, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", r.recordKey(id)))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}

	var rec model.PredictionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode prediction: %w", err)
	}
	return &rec, nil
}

// List returns records newest first.
func (r *PredictionRepository) List(ctx context.Context, filter *dto.ResultFilters) ([]model.PredictionRecord, error) {
	matching, err := r.matching(ctx, filter)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return matching, nil
	}

	start := filter.Offset
	if start > len(matching) {
		start = len(matching)
	}
	end := len(matching)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matching[start:end], nil
}

// Count returns the number of records matching the filter.
func (r *PredictionRepository) Count(ctx context.Context, filter *dto.ResultFilters) (int, error) {
	if filter == nil || filter.Animal == "" {
		conn, err := r.conn(ctx)
		if err != nil {
			return 0, err
		}
		defer conn.Close()
		return redis.Int(conn.Do("LLEN", r.key("ids")))
	}

	matching, err := r.matching(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(matching), nil
}

// Stats returns totals per animal and the number of failed measurements.
func (r *PredictionRepository) Stats(ctx context.Context) (*dto.ResultStats, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	perAnimal, err := redis.IntMap(conn.Do("HGETALL", r.key("per_animal")))
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	failed, err := redis.Int(conn.Do("GET", r.key("failed")))
	if err != nil && err != redis.ErrNil {
		return nil, fmt.Errorf("failed to read failed count: %w", err)
	}

	stats := &dto.ResultStats{PerAnimal: perAnimal, FailedMeasurements: failed}
	for _, count := range perAnimal {
		stats.TotalResults += count
	}
	return stats, nil
}

// Close closes the connection pool.
func (r *PredictionRepository) Close() error {
	return r.pool.Close()
}

func (r *PredictionRepository) matching(ctx context.Context, filter *dto.ResultFilters) ([]model.PredictionRecord, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ids, err := redis.Strings(conn.Do("LRANGE", r.key("ids"), 0, -1))
	if err != nil {
		return nil, fmt.Errorf("failed to list ids: %w", err)
	}
	if len(ids) == 0 {
		return []model.PredictionRecord{}, nil
	}

	args := make([]interface{}, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		args = append(args, r.key("record", ids[i]))
	}
	values, err := redis.ByteSlices(conn.Do("MGET", args...))
	if err != nil {
		return nil, fmt.Errorf("failed to load predictions: %w", err)
	}

	records := make([]model.PredictionRecord, 0, len(values))
	for _, data := range values {
		if data == nil {
			continue
		}
		var rec model.PredictionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode prediction: %w", err)
		}
		if filter != nil && filter.Animal != "" && !strings.EqualFold(rec.Animal, filter.Animal) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
