package index

import (
	"sort"
	"time"

	"github.com/rcookie777/pizza-api/pkg/measurement"
)

// bucket accumulates the rows that fall into one interval.
type bucket struct {
	start time.Time
	sum   int
	count int
}

// BuildChartSeries groups rows into fixed-width buckets and returns one
// ChartPoint per non-empty bucket, sorted by bucket start.
//
// Rows may belong to any number of establishments; each row counts once.
// Rows outside [windowStart, windowEnd) are skipped, a zero bound is open.
// Buckets are aligned in the location of each row's timestamp.
func BuildChartSeries(
	rows []measurement.Measurement,
	windowStart, windowEnd time.Time,
	unit Interval,
	scale Scale,
) ([]ChartPoint, error) {
	if err := unit.Validate(); err != nil {
		return nil, err
	}

	buckets := make(map[int64]*bucket)
	for _, m := range rows {
		if !m.InWindow(windowStart, windowEnd) {
			continue
		}

		start := unit.Truncate(m.Timestamp)
		// Keyed on the instant so equal buckets from different
		// time.Time representations merge.
		key := start.UnixNano()

		b, exists := buckets[key]
		if !exists {
			b = &bucket{start: start}
			buckets[key] = b
		}
		b.sum += m.Popularity
		b.count++
	}

	points := make([]ChartPoint, 0, len(buckets))
	for _, b := range buckets {
		avg := float64(b.sum) / float64(b.count)
		points = append(points, ChartPoint{
			BucketStart:   b.start,
			Value:         scale.Apply(avg),
			AvgPopularity: avg,
			SampleCount:   b.count,
		})
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].BucketStart.Before(points[j].BucketStart)
	})

	return points, nil
}
