package index

import (
	"fmt"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/rcookie777/pizza-api/pkg/measurement"
)

// percentileAccuracy is the relative accuracy of popularity percentiles.
const percentileAccuracy = 0.01

// ComputeStats summarizes one establishment's rows over [windowStart, windowEnd).
//
// First and Last are the rows with the earliest and latest timestamp. When
// several rows share that timestamp, input order decides: the first of them
// becomes First and the last of them becomes Last.
func ComputeStats(rows []measurement.Measurement, windowStart, windowEnd time.Time) (StatsSummary, error) {
	summary := StatsSummary{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}

	sketch, err := ddsketch.NewDefaultDDSketch(percentileAccuracy)
	if err != nil {
		return StatsSummary{}, err
	}

	var (
		sum         int
		ratingSum   float64
		latestRated time.Time
		latestCount time.Time
	)

	for _, m := range rows {
		if !m.InWindow(windowStart, windowEnd) {
			continue
		}

		if summary.Count == 0 {
			summary.Min = m.Popularity
			summary.Max = m.Popularity
			summary.First = m
			summary.Last = m
		}
		summary.Count++
		sum += m.Popularity

		if m.Popularity < summary.Min {
			summary.Min = m.Popularity
		}
		if m.Popularity > summary.Max {
			summary.Max = m.Popularity
		}
		if m.Timestamp.Before(summary.First.Timestamp) {
			summary.First = m
		}
		if !m.Timestamp.Before(summary.Last.Timestamp) {
			summary.Last = m
		}

		if err := sketch.Add(float64(m.Popularity)); err != nil {
			return StatsSummary{}, fmt.Errorf("failed to add popularity to sketch: %w", err)
		}

		if r, ok := m.ValidRating(); ok {
			summary.RatedCount++
			ratingSum += r
			if summary.LatestRating == nil || !m.Timestamp.Before(latestRated) {
				latest := r
				summary.LatestRating = &latest
				latestRated = m.Timestamp
			}
		}
		if n, ok := m.ValidRatingCount(); ok {
			if summary.LatestReviews == nil || !m.Timestamp.Before(latestCount) {
				summary.LatestReviews = &n
				latestCount = m.Timestamp
			}
		}
	}

	if summary.Count == 0 {
		return StatsSummary{}, ErrNoDataAvailable
	}

	summary.Mean = float64(sum) / float64(summary.Count)
	summary.Trend = trendOf(summary.First.Popularity, summary.Last.Popularity)

	if summary.RatedCount > 0 {
		mean := ratingSum / float64(summary.RatedCount)
		summary.RatingMean = &mean
	}

	if !sketch.IsEmpty() {
		summary.P50, _ = sketch.GetValueAtQuantile(0.50)
		summary.P90, _ = sketch.GetValueAtQuantile(0.90)
		summary.P99, _ = sketch.GetValueAtQuantile(0.99)
	}

	return summary, nil
}

func trendOf(first, last int) Trend {
	switch {
	case last > first:
		return TrendRising
	case last < first:
		return TrendFalling
	default:
		return TrendFlat
	}
}
