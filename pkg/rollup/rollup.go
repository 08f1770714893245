package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/rcookie777/pizza-api/pkg/index"
	"github.com/rcookie777/pizza-api/pkg/measurement"
	"github.com/rcookie777/pizza-api/pkg/storage"
)

// Store persists precomputed chart points.
// Upserting a point replaces any point with the same interval and bucket start.
type Store interface {
	UpsertRollups(ctx context.Context, unit index.Interval, points []index.ChartPoint) error
	QueryRollups(ctx context.Context, unit index.Interval, start, end time.Time) ([]index.ChartPoint, error)
}

// Roller builds rollups from raw measurements
type Roller struct {
	source storage.Storage
	sink   Store
	scale  index.Scale
}

// Result reports how many points each interval produced
type Result struct {
	Start  time.Time              `json:"start"`
	End    time.Time              `json:"end"`
	Rows   int                    `json:"rows"`
	Points map[index.Interval]int `json:"points"`
}

// New creates a roller reading from source and writing to sink
func New(source storage.Storage, sink Store, scale index.Scale) *Roller {
	return &Roller{
		source: source,
		sink:   sink,
		scale:  scale,
	}
}

// Rollup recomputes every bucket of the given interval that overlaps [start, end)
func (r *Roller) Rollup(ctx context.Context, unit index.Interval, start, end time.Time) (int, error) {
	if err := unit.Validate(); err != nil {
		return 0, err
	}

	start = unit.Truncate(start.UTC())
	rows, err := r.fetch(ctx, start, end)
	if err != nil {
		return 0, err
	}
	return r.write(ctx, unit, rows, start, end)
}

// RollupRecent recomputes all intervals over the lookback window ending at now.
// Raw rows are read once, from the start of the widest bucket.
func (r *Roller) RollupRecent(ctx context.Context, now time.Time, lookback time.Duration) (*Result, error) {
	end := now.UTC()
	start := end.Add(-lookback)
	widest := index.IntervalDay.Truncate(start)

	rows, err := r.fetch(ctx, widest, end)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Start:  widest,
		End:    end,
		Rows:   len(rows),
		Points: make(map[index.Interval]int, len(index.Intervals)),
	}

	for _, unit := range index.Intervals {
		n, err := r.write(ctx, unit, rows, unit.Truncate(start), end)
		if err != nil {
			return result, fmt.Errorf("%s rollup failed: %w", unit, err)
		}
		result.Points[unit] = n
	}

	return result, nil
}

func (r *Roller) fetch(ctx context.Context, start, end time.Time) ([]measurement.Measurement, error) {
	rows, err := r.source.Range(ctx, storage.RangeRequest{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}

	for i := range rows {
		rows[i].Timestamp = rows[i].Timestamp.UTC()
	}
	return rows, nil
}

func (r *Roller) write(ctx context.Context, unit index.Interval, rows []measurement.Measurement, start, end time.Time) (int, error) {
	points, err := index.BuildChartSeries(rows, start, end, unit, r.scale)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}

	if err := r.sink.UpsertRollups(ctx, unit, points); err != nil {
		return 0, fmt.Errorf("failed to write %s rollups: %w", unit, err)
	}
	return len(points), nil
}
