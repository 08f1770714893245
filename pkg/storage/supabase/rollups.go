package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rcookie777/pizza-api/pkg/index"
)

// aggregateRow is the wire shape of pizza_index_aggregates
type aggregateRow struct {
	Interval      string    `json:"interval"`
	Timestamp     time.Time `json:"timestamp"`
	Value         float64   `json:"value"`
	AvgPopularity float64   `json:"avg_popularity"`
	DataPoints    int       `json:"data_points"`
}

// UpsertRollups merges points into pizza_index_aggregates on (interval, timestamp)
func (s *Storage) UpsertRollups(ctx context.Context, unit index.Interval, points []index.ChartPoint) error {
	if err := unit.Validate(); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	rows := make([]aggregateRow, len(points))
	for i, p := range points {
		rows[i] = aggregateRow{
			Interval:      string(unit),
			Timestamp:     p.BucketStart,
			Value:         p.Value,
			AvgPopularity: p.AvgPopularity,
			DataPoints:    p.SampleCount,
		}
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode rollups: %w", err)
	}

	q := url.Values{}
	q.Set("on_conflict", "interval,timestamp")
	return s.send(ctx, "POST", aggregatesTable, q, body, "resolution=merge-duplicates,return=minimal")
}

// QueryRollups returns points for one interval with bucket start in [start, end)
func (s *Storage) QueryRollups(ctx context.Context, unit index.Interval, start, end time.Time) ([]index.ChartPoint, error) {
	if err := unit.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("select", "*")
	q.Set("interval", "eq."+string(unit))
	if !start.IsZero() {
		q.Add("timestamp", "gte."+formatTime(start))
	}
	if !end.IsZero() {
		q.Add("timestamp", "lt."+formatTime(end))
	}
	q.Set("order", "timestamp.asc")

	var rows []aggregateRow
	if err := s.get(ctx, aggregatesTable, q, &rows); err != nil {
		return nil, err
	}

	points := make([]index.ChartPoint, len(rows))
	for i, r := range rows {
		points[i] = index.ChartPoint{
			BucketStart:   r.Timestamp,
			Value:         r.Value,
			AvgPopularity: r.AvgPopularity,
			SampleCount:   r.DataPoints,
		}
	}
	return points, nil
}
