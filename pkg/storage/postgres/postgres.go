package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcookie777/pizza-api/pkg/measurement"
	"github.com/rcookie777/pizza-api/pkg/storage"
)

// Storage implements storage.Storage on a Postgres restaurant_popular_times
// table. Rollups go to pizza_index_aggregates, see rollups.go.
type Storage struct {
	pool *pgxpool.Pool
}

// Config holds connection settings
type Config struct {
	// DSN is a postgres:// connection string
	DSN string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// New connects, pings and creates the schema if it does not exist
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres: DSN is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Storage{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	measurementsSQL := `
		CREATE TABLE IF NOT EXISTS restaurant_popular_times (
			id BIGSERIAL PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			current_popularity INTEGER,
			rating DOUBLE PRECISION,
			rating_count INTEGER,
			time_spent_min INTEGER,
			time_spent_max INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := pool.Exec(ctx, measurementsSQL); err != nil {
		return err
	}

	indexSQL := `
		CREATE INDEX IF NOT EXISTS restaurant_popular_times_restaurant_ts
		ON restaurant_popular_times (restaurant_id, timestamp)
	`
	if _, err := pool.Exec(ctx, indexSQL); err != nil {
		return err
	}

	aggregatesSQL := `
		CREATE TABLE IF NOT EXISTS pizza_index_aggregates (
			interval TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			avg_popularity DOUBLE PRECISION NOT NULL,
			data_points INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (interval, timestamp)
		)
	`
	_, err := pool.Exec(ctx, aggregatesSQL)
	return err
}

// Write inserts measurements in one batch
func (s *Storage) Write(ctx context.Context, rows []measurement.Measurement) error {
	if len(rows) == 0 {
		return nil
	}

	query := `
		INSERT INTO restaurant_popular_times (
			restaurant_id,
			timestamp,
			current_popularity,
			rating,
			rating_count,
			time_spent_min,
			time_spent_max
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	batch := &pgx.Batch{}
	for _, m := range rows {
		batch.Queue(query, m.EstablishmentID, m.Timestamp, m.Popularity,
			m.Rating, m.RatingCount, m.BusyMin, m.BusyMax)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert measurement: %w", err)
		}
	}
	return nil
}

const selectColumns = `
	SELECT
		restaurant_id,
		timestamp,
		current_popularity,
		rating,
		rating_count,
		time_spent_min,
		time_spent_max
	FROM restaurant_popular_times
`

// Latest returns the newest measurement at or before at.
// Rows without a popularity reading are skipped.
func (s *Storage) Latest(ctx context.Context, establishmentID string, at time.Time) (measurement.Measurement, error) {
	query := selectColumns + `
		WHERE restaurant_id = $1
		AND timestamp <= $2
		AND current_popularity IS NOT NULL
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`

	rows, err := s.pool.Query(ctx, query, establishmentID, at)
	if err != nil {
		return measurement.Measurement{}, err
	}
	results, err := scanMeasurements(rows)
	if err != nil {
		return measurement.Measurement{}, err
	}
	if len(results) == 0 {
		return measurement.Measurement{}, storage.ErrNotFound
	}
	return results[0], nil
}

// Range retrieves measurements matching the request
func (s *Storage) Range(ctx context.Context, req storage.RangeRequest) ([]measurement.Measurement, error) {
	query, args := buildRangeQuery(req)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanMeasurements(rows)
}

func buildRangeQuery(req storage.RangeRequest) (string, []any) {
	conditions := []string{"current_popularity IS NOT NULL"}
	var args []any

	if req.EstablishmentID != "" {
		args = append(args, req.EstablishmentID)
		conditions = append(conditions, fmt.Sprintf("restaurant_id = $%d", len(args)))
	}
	if !req.Start.IsZero() {
		args = append(args, req.Start)
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if !req.End.IsZero() {
		args = append(args, req.End)
		conditions = append(conditions, fmt.Sprintf("timestamp < $%d", len(args)))
	}

	order := "timestamp ASC, id ASC"
	if req.Descending {
		order = "timestamp DESC, id ASC"
	}

	query := selectColumns + " WHERE " + strings.Join(conditions, " AND ") + " ORDER BY " + order
	if req.Limit > 0 {
		args = append(args, req.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func scanMeasurements(rows pgx.Rows) ([]measurement.Measurement, error) {
	defer rows.Close()

	var results []measurement.Measurement
	for rows.Next() {
		var (
			m          measurement.Measurement
			popularity *int
		)
		if err := rows.Scan(
			&m.EstablishmentID,
			&m.Timestamp,
			&popularity,
			&m.Rating,
			&m.RatingCount,
			&m.BusyMin,
			&m.BusyMax,
		); err != nil {
			return nil, err
		}
		if popularity == nil {
			continue
		}
		m.Popularity = *popularity
		results = append(results, m)
	}
	return results, rows.Err()
}

// Delete removes measurements older than the given time
func (s *Storage) Delete(ctx context.Context, before time.Time) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM restaurant_popular_times WHERE timestamp < $1`, before)
	return err
}

// Close releases the connection pool
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	query := `
		SELECT
			count(*),
			count(DISTINCT restaurant_id),
			min(timestamp),
			max(timestamp),
			pg_total_relation_size('restaurant_popular_times')
		FROM restaurant_popular_times
	`

	var (
		total, establishments int64
		oldest, newest        *time.Time
		size                  int64
	)
	if err := s.pool.QueryRow(ctx, query).Scan(&total, &establishments, &oldest, &newest, &size); err != nil {
		return nil, err
	}

	stats := &storage.Stats{
		TotalMeasurements:   uint64(total),
		TotalEstablishments: uint64(establishments),
		SizeBytes:           uint64(size),
	}
	if oldest != nil {
		stats.Oldest = *oldest
	}
	if newest != nil {
		stats.Newest = *newest
	}
	return stats, nil
}
