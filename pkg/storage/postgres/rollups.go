package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rcookie777/pizza-api/pkg/index"
)

// UpsertRollups writes chart points into pizza_index_aggregates.
// An existing row for the same interval and bucket is replaced.
func (s *Storage) UpsertRollups(ctx context.Context, unit index.Interval, points []index.ChartPoint) error {
	if err := unit.Validate(); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	query := `
		INSERT INTO pizza_index_aggregates (interval, timestamp, value, avg_popularity, data_points)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (interval, timestamp) DO UPDATE SET
			value = EXCLUDED.value,
			avg_popularity = EXCLUDED.avg_popularity,
			data_points = EXCLUDED.data_points,
			updated_at = now()
	`

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(query, string(unit), p.BucketStart, p.Value, p.AvgPopularity, p.SampleCount)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert rollup: %w", err)
		}
	}
	return nil
}

// QueryRollups returns points for one interval with bucket start in [start, end)
func (s *Storage) QueryRollups(ctx context.Context, unit index.Interval, start, end time.Time) ([]index.ChartPoint, error) {
	if err := unit.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT timestamp, value, avg_popularity, data_points
		FROM pizza_index_aggregates
		WHERE interval = $1
		AND ($2::timestamptz IS NULL OR timestamp >= $2)
		AND ($3::timestamptz IS NULL OR timestamp < $3)
		ORDER BY timestamp ASC
	`

	rows, err := s.pool.Query(ctx, query, string(unit), nullTime(start), nullTime(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []index.ChartPoint{}
	for rows.Next() {
		var p index.ChartPoint
		if err := rows.Scan(&p.BucketStart, &p.Value, &p.AvgPopularity, &p.SampleCount); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
